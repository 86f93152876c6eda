package web

import (
	"sort"
	"time"

	"github.com/NelyubinaIV/Ogegotovo/internal/catalog"
	"github.com/NelyubinaIV/Ogegotovo/internal/progress"
)

const activityWindow = 7 * 24 * time.Hour

// classAnalytics is the teacher dashboard payload: roster-wide mistake and
// completion statistics.
type classAnalytics struct {
	TotalStudents      int                             `json:"totalStudents"`
	ActiveLast7Days    int                             `json:"activeLast7Days"`
	AverageProgress    int                             `json:"averageProgress"`
	TotalCandies       int                             `json:"totalCandies"`
	TopMistakes        []mistakeCount                  `json:"topMistakes"`
	MistakesByCategory map[catalog.MistakeCategory]int `json:"mistakesByCategory"`
	LessonCompletion   []lessonCompletion              `json:"lessonCompletion"`
}

type mistakeCount struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name,omitempty"`
	Category catalog.MistakeCategory `json:"category,omitempty"`
	Count    int                     `json:"count"`
}

type lessonCompletion struct {
	LessonID     int    `json:"lessonId"`
	Title        string `json:"title"`
	Completed    int    `json:"completed"`
	CompletedPct int    `json:"completedPct"`
}

func (s *Server) buildAnalytics(students []*progress.Record) classAnalytics {
	now := s.tracker.Now()

	analytics := classAnalytics{
		TotalStudents:      len(students),
		MistakesByCategory: make(map[catalog.MistakeCategory]int),
		TopMistakes:        []mistakeCount{},
	}

	mistakes := make(map[string]int)
	progressSum := 0
	for _, rec := range students {
		progressSum += s.tracker.CourseProgress(rec)
		analytics.TotalCandies += rec.Candies
		if now.Sub(rec.LastActive) <= activityWindow {
			analytics.ActiveLast7Days++
		}
		for _, res := range rec.Results {
			for _, id := range res.Mistakes {
				mistakes[id]++
			}
		}
	}
	if len(students) > 0 {
		analytics.AverageProgress = progressSum / len(students)
	}

	for id, count := range mistakes {
		mc := mistakeCount{ID: id, Count: count}
		if m, ok := s.tracker.Catalog().Mistake(id); ok {
			mc.Name = m.Name
			mc.Category = m.Category
			analytics.MistakesByCategory[m.Category] += count
		}
		analytics.TopMistakes = append(analytics.TopMistakes, mc)
	}
	sort.Slice(analytics.TopMistakes, func(i, j int) bool {
		a, b := analytics.TopMistakes[i], analytics.TopMistakes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ID < b.ID
	})
	if len(analytics.TopMistakes) > 10 {
		analytics.TopMistakes = analytics.TopMistakes[:10]
	}

	for _, lesson := range s.tracker.Catalog().Lessons() {
		completed := 0
		for _, rec := range students {
			if rec.HasCompleted(lesson.ID) {
				completed++
			}
		}
		lc := lessonCompletion{LessonID: lesson.ID, Title: lesson.Title, Completed: completed}
		if len(students) > 0 {
			lc.CompletedPct = completed * 100 / len(students)
		}
		analytics.LessonCompletion = append(analytics.LessonCompletion, lc)
	}

	return analytics
}
