package web

import (
	"time"

	"github.com/NelyubinaIV/Ogegotovo/internal/progress"
)

// studentView is the derived state returned to the student frontend:
// the raw record plus per-lesson statuses and guidance.
type studentView struct {
	Token            string       `json:"token"`
	Nickname         string       `json:"nickname,omitempty"`
	Avatar           string       `json:"avatar,omitempty"`
	Candies          int          `json:"candies"`
	CourseProgress   int          `json:"courseProgress"`
	Lessons          []lessonView `json:"lessons"`
	NextLessonID     int          `json:"nextLessonId,omitempty"`
	Recommendations  []string     `json:"recommendations"`
	LessonsCompleted []int        `json:"lessonsCompleted"`
	CreatedAt        time.Time    `json:"createdAt"`
	LastActive       time.Time    `json:"lastActive"`
}

type lessonView struct {
	ID            int                   `json:"id"`
	Title         string                `json:"title"`
	Status        progress.LessonStatus `json:"status"`
	EarnedCandies int                   `json:"earnedCandies"`
	TotalReward   int                   `json:"totalReward"`
}

func (s *Server) studentView(rec *progress.Record) studentView {
	now := s.tracker.Now()

	lessons := s.tracker.Catalog().Lessons()
	views := make([]lessonView, 0, len(lessons))
	for _, lesson := range lessons {
		views = append(views, lessonView{
			ID:            lesson.ID,
			Title:         lesson.Title,
			Status:        progress.Status(lesson, rec, now),
			EarnedCandies: s.tracker.EarnedCandiesForLesson(lesson.ID, rec),
			TotalReward:   lesson.TotalReward,
		})
	}

	view := studentView{
		Token:            rec.Token,
		Nickname:         rec.Nickname,
		Avatar:           rec.Avatar,
		Candies:          rec.Candies,
		CourseProgress:   s.tracker.CourseProgress(rec),
		Lessons:          views,
		Recommendations:  s.tracker.Recommendations(rec),
		LessonsCompleted: rec.LessonsCompleted,
		CreatedAt:        rec.CreatedAt,
		LastActive:       rec.LastActive,
	}
	if next, ok := s.tracker.NextAvailableLesson(rec, now); ok {
		view.NextLessonID = next.ID
	}
	return view
}

// rosterEntry is one row of the teacher roster.
type rosterEntry struct {
	Token            string    `json:"token"`
	Nickname         string    `json:"nickname,omitempty"`
	Candies          int       `json:"candies"`
	CourseProgress   int       `json:"courseProgress"`
	LessonsCompleted int       `json:"lessonsCompleted"`
	Results          int       `json:"results"`
	LastActive       time.Time `json:"lastActive"`
}

func (s *Server) rosterView(rec *progress.Record) rosterEntry {
	return rosterEntry{
		Token:            rec.Token,
		Nickname:         rec.Nickname,
		Candies:          rec.Candies,
		CourseProgress:   s.tracker.CourseProgress(rec),
		LessonsCompleted: len(rec.LessonsCompleted),
		Results:          len(rec.Results),
		LastActive:       rec.LastActive,
	}
}
