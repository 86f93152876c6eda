package progress

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when no record exists for a token.
var ErrNotFound = errors.New("student not found")

// Store persists student records. A record write is also a roster upsert:
// after Save, All and ByToken must reflect the saved record. Each
// implementation makes the upsert atomic from a reader's perspective;
// there is no coordination between two separate store clients (last
// writer wins per token).
type Store interface {
	Load(ctx context.Context, token string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	All(ctx context.Context) ([]*Record, error)
	ByToken(ctx context.Context, token string) (*Record, error)
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	students map[string]*Record
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students: make(map[string]*Record),
	}
}

func (s *MemoryStore) Load(ctx context.Context, token string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.students[token]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.students[rec.Token] = rec.Clone()
	return nil
}

func (s *MemoryStore) All(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.students))
	for _, rec := range s.students {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (s *MemoryStore) ByToken(ctx context.Context, token string) (*Record, error) {
	return s.Load(ctx, token)
}
