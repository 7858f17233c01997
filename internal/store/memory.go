package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/medendorse/internal/consult"
)

var errStoreClosed = errors.New("store closed")

// MemoryStore implements Repository with a mutex-guarded map.
type MemoryStore struct {
	mu       sync.RWMutex
	cases    map[string]*consult.Case
	closed   bool
	onDelete []func(caseID string)
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{cases: make(map[string]*consult.Case)}
}

// Create implements Repository.
func (s *MemoryStore) Create(_ context.Context) (*consult.Case, error) {
	c := consult.NewCase()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStoreClosed
	}
	s.cases[c.ID] = c
	return c, nil
}

// Get implements Repository.
func (s *MemoryStore) Get(_ context.Context, id string) (*consult.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, id)
	}
	return c, nil
}

// Delete implements Repository.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	c, ok := s.cases[id]
	delete(s.cases, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrCaseNotFound, id)
	}
	c.Close()

	s.mu.RLock()
	hooks := slices.Clone(s.onDelete)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
	return nil
}

// OnDelete registers fn to run after a case is deleted or expires.
func (s *MemoryStore) OnDelete(fn func(caseID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

// List implements Repository.
func (s *MemoryStore) List(_ context.Context) ([]*consult.Case, error) {
	s.mu.RLock()
	out := make([]*consult.Case, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, c)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *consult.Case) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// GetExpired implements Repository.
func (s *MemoryStore) GetExpired(_ context.Context, ttl time.Duration) ([]*consult.Case, error) {
	cutoff := time.Now().Add(-ttl)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []*consult.Case
	for _, c := range s.cases {
		if c.LastSeen().Before(cutoff) {
			expired = append(expired, c)
		}
	}
	return expired, nil
}

// Ping implements Repository.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}
	return nil
}

// Close implements Repository.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	cases := s.cases
	s.cases = make(map[string]*consult.Case)
	s.closed = true
	s.mu.Unlock()

	for _, c := range cases {
		c.Close()
	}
	return nil
}

// Ensure MemoryStore implements Repository.
var _ Repository = (*MemoryStore)(nil)
