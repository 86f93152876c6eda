// Package progress implements the lesson-unlocking and progress-state engine:
// lesson status derivation, reward accounting and the student record store.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/NelyubinaIV/Ogegotovo/internal/catalog"
)

// Submission is one task outcome reported for a student.
type Submission struct {
	LessonID   int
	TaskID     string
	Score      int
	MaxScore   int
	Passed     bool
	Source     string
	Mistakes   []string
	Notes      string
	Screenshot string
}

// TrackerConfig holds dependencies for the progress tracker.
type TrackerConfig struct {
	Catalog *catalog.Catalog
	Store   Store
	Events  EventLogger
	Now     func() time.Time // defaults to time.Now
}

// Tracker applies task results to student records and derives lesson state.
type Tracker struct {
	catalog *catalog.Catalog
	store   Store
	events  EventLogger
	now     func() time.Time
}

// NewTracker creates a progress tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		catalog: cfg.Catalog,
		store:   store,
		events:  events,
		now:     now,
	}
}

// Status derives the lesson status for one student at the given instant.
// Completion wins over in-progress, which wins over unlock gating.
func Status(lesson catalog.Lesson, rec *Record, now time.Time) LessonStatus {
	if rec.HasCompleted(lesson.ID) {
		return StatusCompleted
	}
	if rec.InProgress(lesson.ID) {
		return StatusInProgress
	}

	dateUnlocked := true
	if lesson.UnlockType == catalog.UnlockByDate || lesson.UnlockType == catalog.UnlockByBoth {
		if lesson.UnlockDate != "" {
			unlockAt, err := time.Parse(time.RFC3339, lesson.UnlockDate)
			if err == nil {
				dateUnlocked = !now.Before(unlockAt)
			}
		}
	}

	progressUnlocked := true
	if lesson.UnlockType == catalog.UnlockByProgress || lesson.UnlockType == catalog.UnlockByBoth {
		for _, reqID := range lesson.RequiredLessons {
			if !rec.HasCompleted(reqID) {
				progressUnlocked = false
				break
			}
		}
	}

	switch lesson.UnlockType {
	case catalog.UnlockByBoth:
		if dateUnlocked && progressUnlocked {
			return StatusAvailable
		}
	case catalog.UnlockByDate:
		if dateUnlocked {
			return StatusAvailable
		}
	default:
		if progressUnlocked {
			return StatusAvailable
		}
	}
	return StatusLocked
}

// CourseProgress returns the completed share of the catalog in percent.
func (t *Tracker) CourseProgress(rec *Record) int {
	total := t.catalog.Len()
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(len(rec.LessonsCompleted)) / float64(total) * 100))
}

// NextAvailableLesson returns the first available lesson in course order.
func (t *Tracker) NextAvailableLesson(rec *Record, now time.Time) (catalog.Lesson, bool) {
	for _, lesson := range t.catalog.Lessons() {
		if Status(lesson, rec, now) == StatusAvailable {
			return lesson, true
		}
	}
	return catalog.Lesson{}, false
}

// Recommendations produces guidance strings for the student: a progress-band
// message plus a caution when more than half of all attempts failed.
func (t *Tracker) Recommendations(rec *Record) []string {
	var recs []string

	switch pct := t.CourseProgress(rec); {
	case pct == 0:
		recs = append(recs, "Начни с первого урока! Это введение в структуру ОГЭ.")
	case pct < 30:
		recs = append(recs, "Отличное начало! Продолжай в том же духе.")
	case pct < 70:
		recs = append(recs, "Ты на полпути! Не забывай регулярно практиковаться.")
	case pct < 100:
		recs = append(recs, "Почти у цели! Осталось совсем немного.")
	default:
		recs = append(recs, "Поздравляем! Ты завершил все уроки курса.")
	}

	if len(rec.Results) > 0 {
		failed := 0
		for _, res := range rec.Results {
			if !res.Passed {
				failed++
			}
		}
		if float64(failed)/float64(len(rec.Results))*100 > 50 {
			recs = append(recs, "Не торопись! Внимательно изучай материалы перед тестами.")
		}
	}

	return recs
}

// EarnedCandiesForLesson sums the rewards of distinct passed tasks in a lesson.
func (t *Tracker) EarnedCandiesForLesson(lessonID int, rec *Record) int {
	lesson, ok := t.catalog.Lesson(lessonID)
	if !ok {
		return 0
	}

	passed := make(map[string]bool)
	lid := lessonIDString(lessonID)
	for _, res := range rec.Results {
		if res.LessonID == lid && res.Passed {
			passed[res.TaskID] = true
		}
	}

	total := 0
	for _, task := range lesson.Tasks {
		if passed[task.ID] {
			total += task.Reward
		}
	}
	return total
}

// LoadOrCreate returns the student record for a token, creating and
// persisting a zero-state record on first use.
func (t *Tracker) LoadOrCreate(ctx context.Context, token string) (*Record, error) {
	rec, err := t.store.Load(ctx, token)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rec = NewRecord(token, t.now())
	if err := t.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("create student %s: %w", token, err)
	}
	slog.Info("student registered", "token", token)
	return rec, nil
}

// SubmitResult applies one task outcome to the student's record and persists
// it. Every attempt is appended to the history; candies are granted only for
// the first passed attempt of a task; the lesson completes once every one of
// its tasks has a passed result.
func (t *Tracker) SubmitResult(ctx context.Context, token string, sub Submission) (*Record, error) {
	rec, err := t.LoadOrCreate(ctx, token)
	if err != nil {
		return nil, err
	}

	now := t.now()
	lid := lessonIDString(sub.LessonID)

	maxScore := sub.MaxScore
	if maxScore == 0 {
		maxScore = 100
	}

	result := TaskResult{
		TaskID:     sub.TaskID,
		LessonID:   lid,
		Score:      sub.Score,
		MaxScore:   maxScore,
		Passed:     sub.Passed,
		Attempt:    rec.attemptCount(lid, sub.TaskID) + 1,
		Timestamp:  now,
		Source:     sub.Source,
		Mistakes:   sub.Mistakes,
		Notes:      sub.Notes,
		Screenshot: sub.Screenshot,
	}

	// The append must precede the first-pass and completion checks: both
	// read the just-extended history.
	rec.Results = append(rec.Results, result)

	granted := 0
	if sub.Passed {
		if !rec.HasCompleted(sub.LessonID) && !rec.InProgress(sub.LessonID) {
			rec.LessonsInProgress = append(rec.LessonsInProgress, sub.LessonID)
		}
		if _, already := rec.FirstPassedAt(lid, sub.TaskID); !already {
			if task, ok := t.catalog.Task(sub.LessonID, sub.TaskID); ok {
				rec.Candies += task.Reward
				granted = task.Reward
			}
			rec.markFirstPass(lid, sub.TaskID, now)
		}
	}

	completed := t.completeIfAllTasksPassed(rec, sub.LessonID)

	rec.LastActive = now
	if err := t.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save student %s: %w", token, err)
	}

	t.logEvent(Event{Token: token, EventType: EventResultSubmitted, Data: map[string]any{
		"lesson_id": sub.LessonID,
		"task_id":   sub.TaskID,
		"passed":    sub.Passed,
		"attempt":   result.Attempt,
	}})
	if granted > 0 {
		t.logEvent(Event{Token: token, EventType: EventCandiesGranted, Data: map[string]any{
			"lesson_id": sub.LessonID,
			"task_id":   sub.TaskID,
			"candies":   granted,
		}})
	}
	if completed {
		t.logEvent(Event{Token: token, EventType: EventLessonCompleted, Data: map[string]any{
			"lesson_id": sub.LessonID,
		}})
	}

	return rec, nil
}

// completeIfAllTasksPassed recomputes lesson completion from the result
// history and moves the lesson out of the in-progress set. Idempotent.
func (t *Tracker) completeIfAllTasksPassed(rec *Record, lessonID int) bool {
	lesson, ok := t.catalog.Lesson(lessonID)
	if !ok {
		return false
	}

	lid := lessonIDString(lessonID)
	passed := make(map[string]bool)
	for _, res := range rec.Results {
		if res.LessonID == lid && res.Passed {
			passed[res.TaskID] = true
		}
	}
	for _, task := range lesson.Tasks {
		if !passed[task.ID] {
			return false
		}
	}

	wasCompleted := rec.HasCompleted(lessonID)
	if !wasCompleted {
		rec.LessonsCompleted = append(rec.LessonsCompleted, lessonID)
	}

	inProgress := rec.LessonsInProgress[:0]
	for _, id := range rec.LessonsInProgress {
		if id != lessonID {
			inProgress = append(inProgress, id)
		}
	}
	rec.LessonsInProgress = inProgress

	return !wasCompleted
}

// UpdateProfile replaces only the supplied fields; nil leaves a field untouched.
func (t *Tracker) UpdateProfile(ctx context.Context, token string, nickname, avatar *string) (*Record, error) {
	rec, err := t.store.Load(ctx, token)
	if err != nil {
		return nil, err
	}

	if nickname != nil {
		rec.Nickname = *nickname
	}
	if avatar != nil {
		rec.Avatar = *avatar
	}

	rec.LastActive = t.now()
	if err := t.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save student %s: %w", token, err)
	}
	return rec, nil
}

// AllStudents returns the roster snapshot.
func (t *Tracker) AllStudents(ctx context.Context) ([]*Record, error) {
	return t.store.All(ctx)
}

// StudentByToken returns one roster entry.
func (t *Tracker) StudentByToken(ctx context.Context, token string) (*Record, error) {
	return t.store.ByToken(ctx, token)
}

// Catalog exposes the injected catalog to the presentation layer.
func (t *Tracker) Catalog() *catalog.Catalog {
	return t.catalog
}

// Now returns the tracker's current instant.
func (t *Tracker) Now() time.Time {
	return t.now()
}

func (t *Tracker) logEvent(event Event) {
	if err := t.events.LogEvent(event); err != nil {
		slog.Warn("failed to log event", "type", event.EventType, "error", err)
	}
}
