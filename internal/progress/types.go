package progress

import (
	"strconv"
	"time"
)

// LessonStatus is the derived state of a lesson for one student.
type LessonStatus string

const (
	StatusLocked     LessonStatus = "locked"
	StatusAvailable  LessonStatus = "available"
	StatusInProgress LessonStatus = "inProgress"
	StatusCompleted  LessonStatus = "completed"
)

// TaskResult is one recorded task attempt. Results are append-only:
// re-attempts add new entries, existing entries are never rewritten.
type TaskResult struct {
	TaskID     string    `json:"taskId"`
	LessonID   string    `json:"lessonId"`
	Score      int       `json:"score"`
	MaxScore   int       `json:"maxScore"`
	Passed     bool      `json:"passed"`
	Attempt    int       `json:"attempt"` // 1-based count at submission time, never recomputed
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source,omitempty"`
	Mistakes   []string  `json:"mistakes,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	Screenshot string    `json:"screenshot,omitempty"`
}

// Record is the full mutable state for one student, keyed by token.
type Record struct {
	Token             string       `json:"token"`
	Nickname          string       `json:"nickname,omitempty"`
	Avatar            string       `json:"avatar,omitempty"`
	Candies           int          `json:"candies"`
	LessonsCompleted  []int        `json:"lessonsCompleted"`
	LessonsInProgress []int        `json:"lessonsInProgress"`
	Results           []TaskResult `json:"results"`
	Achievements      []string     `json:"achievements"` // reserved, no rule populates it yet
	CreatedAt         time.Time    `json:"createdAt"`
	LastActive        time.Time    `json:"lastActive"`

	// firstPass maps lessonID/taskID to the timestamp of the first passed
	// result. Derived from Results, rebuilt on load and maintained on
	// submission so the candy-grant guard avoids scanning the history.
	firstPass map[string]time.Time
}

// NewRecord creates a zero-state record for a token seen for the first time.
func NewRecord(token string, now time.Time) *Record {
	return &Record{
		Token:             token,
		LessonsCompleted:  []int{},
		LessonsInProgress: []int{},
		Results:           []TaskResult{},
		Achievements:      []string{},
		CreatedAt:         now,
		LastActive:        now,
		firstPass:         make(map[string]time.Time),
	}
}

func taskKey(lessonID, taskID string) string {
	return lessonID + "/" + taskID
}

// RebuildIndex recomputes the first-pass index from the result history.
// Stores call it after deserializing a record.
func (r *Record) RebuildIndex() {
	r.firstPass = make(map[string]time.Time)
	for _, res := range r.Results {
		if !res.Passed {
			continue
		}
		key := taskKey(res.LessonID, res.TaskID)
		if _, ok := r.firstPass[key]; !ok {
			r.firstPass[key] = res.Timestamp
		}
	}
}

// FirstPassedAt returns when the task was first passed, if ever.
func (r *Record) FirstPassedAt(lessonID, taskID string) (time.Time, bool) {
	ts, ok := r.firstPass[taskKey(lessonID, taskID)]
	return ts, ok
}

func (r *Record) markFirstPass(lessonID, taskID string, ts time.Time) {
	if r.firstPass == nil {
		r.firstPass = make(map[string]time.Time)
	}
	key := taskKey(lessonID, taskID)
	if _, ok := r.firstPass[key]; !ok {
		r.firstPass[key] = ts
	}
}

// HasCompleted reports whether the lesson id is in the completed set.
func (r *Record) HasCompleted(lessonID int) bool {
	for _, id := range r.LessonsCompleted {
		if id == lessonID {
			return true
		}
	}
	return false
}

// InProgress reports whether the lesson id is in the in-progress set.
func (r *Record) InProgress(lessonID int) bool {
	for _, id := range r.LessonsInProgress {
		if id == lessonID {
			return true
		}
	}
	return false
}

// attemptCount returns how many results this student already has for the task.
func (r *Record) attemptCount(lessonID, taskID string) int {
	n := 0
	for _, res := range r.Results {
		if res.LessonID == lessonID && res.TaskID == taskID {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the record with a rebuilt index.
func (r *Record) Clone() *Record {
	cp := *r
	cp.LessonsCompleted = append([]int{}, r.LessonsCompleted...)
	cp.LessonsInProgress = append([]int{}, r.LessonsInProgress...)
	cp.Results = append([]TaskResult{}, r.Results...)
	cp.Achievements = append([]string{}, r.Achievements...)
	cp.RebuildIndex()
	return &cp
}

// lessonIDString converts a catalog lesson id to its result-record form.
func lessonIDString(id int) string {
	return strconv.Itoa(id)
}
