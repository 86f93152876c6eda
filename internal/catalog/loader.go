// Package catalog loads the static lesson and mistake definitions from YAML.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog holds the immutable lesson and mistake dictionaries.
// It is loaded once at startup and injected into the progress engine.
type Catalog struct {
	rootDir  string
	lessons  map[int]Lesson
	order    []int // lesson ids sorted ascending, defines course order
	mistakes map[string]Mistake
	mu       sync.RWMutex
}

// New builds a catalog from in-memory definitions. Used for synthetic
// catalogs in tests; production code loads from YAML via Load.
func New(lessons []Lesson, mistakes []Mistake) *Catalog {
	c := &Catalog{
		lessons:  make(map[int]Lesson, len(lessons)),
		mistakes: make(map[string]Mistake, len(mistakes)),
	}
	for _, l := range lessons {
		c.lessons[l.ID] = l
		c.order = append(c.order, l.ID)
	}
	sort.Ints(c.order)
	for _, m := range mistakes {
		c.mistakes[m.ID] = m
	}
	return c
}

// Load reads all catalog content under rootDir.
func Load(rootDir string) (*Catalog, error) {
	c := &Catalog{
		rootDir:  rootDir,
		lessons:  make(map[int]Lesson),
		mistakes: make(map[string]Mistake),
	}

	if err := c.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "lessons", len(c.lessons), "mistakes", len(c.mistakes))
	return c, nil
}

// Lessons returns all lessons in course order.
func (c *Catalog) Lessons() []Lesson {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lessons := make([]Lesson, 0, len(c.order))
	for _, id := range c.order {
		lessons = append(lessons, c.lessons[id])
	}
	return lessons
}

// Lesson returns a lesson by id.
func (c *Catalog) Lesson(id int) (Lesson, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lessons[id]
	return l, ok
}

// Task returns a task by lesson id and task id.
func (c *Catalog) Task(lessonID int, taskID string) (Task, bool) {
	lesson, ok := c.Lesson(lessonID)
	if !ok {
		return Task{}, false
	}
	for _, t := range lesson.Tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return Task{}, false
}

// Len returns the number of lessons.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lessons)
}

// Mistake returns a mistake dictionary entry by id.
func (c *Catalog) Mistake(id string) (Mistake, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.mistakes[id]
	return m, ok
}

// MistakesByCategory returns all mistakes of one category, ordered by id.
func (c *Catalog) MistakesByCategory(cat MistakeCategory) []Mistake {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Mistake
	for _, m := range c.mistakes {
		if m.Category == cat {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) loadAll() error {
	err := filepath.Walk(c.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".mistakes.yaml"), strings.HasSuffix(path, ".mistakes.yml"):
			return c.loadMistakes(path)
		case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
			return c.loadLesson(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.order = c.order[:0]
	for id := range c.lessons {
		c.order = append(c.order, id)
	}
	sort.Ints(c.order)
	c.mu.Unlock()

	return nil
}

func (c *Catalog) loadLesson(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var lesson Lesson
	if err := yaml.Unmarshal(data, &lesson); err != nil {
		slog.Warn("skipping invalid lesson YAML", "path", path, "error", err)
		return nil
	}

	if lesson.ID == 0 {
		return nil // Not a lesson file
	}
	if lesson.UnlockType == "" {
		lesson.UnlockType = UnlockByProgress
	}
	if lesson.TotalReward == 0 {
		for _, t := range lesson.Tasks {
			lesson.TotalReward += t.Reward
		}
	}

	c.mu.Lock()
	c.lessons[lesson.ID] = lesson
	c.mu.Unlock()

	return nil
}

func (c *Catalog) loadMistakes(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var entries []Mistake
	if err := yaml.Unmarshal(data, &entries); err != nil {
		slog.Warn("skipping invalid mistakes YAML", "path", path, "error", err)
		return nil
	}

	c.mu.Lock()
	for _, m := range entries {
		if m.ID == "" {
			continue
		}
		c.mistakes[m.ID] = m
	}
	c.mu.Unlock()

	return nil
}
