package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRecord struct {
	prefs Preferences
	rel   Relationship
	turns []Turn
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryRecord
	closed   bool
	now      func() time.Time
}

// NewMemoryStore creates a Store backed by in-process maps. Session IDs are
// UUIDv7.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string]*memoryRecord),
		now:      time.Now,
	}
}

func (s *memoryStore) Create(_ context.Context, prefs Preferences) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	id := uuid.Must(uuid.NewV7()).String()
	s.sessions[id] = &memoryRecord{prefs: prefs.Normalize()}
	return id, nil
}

// record must be called with s.mu held.
func (s *memoryStore) record(id string) (*memoryRecord, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	r, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

func (s *memoryStore) Append(_ context.Context, id string, turns ...Turn) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.record(id)
	if err != nil {
		return nil, err
	}

	var last time.Time
	if n := len(r.turns); n > 0 {
		last = r.turns[n-1].Timestamp
	}

	prepared, err := prepare(last, s.now(), turns)
	if err != nil {
		return nil, err
	}
	r.turns = append(r.turns, prepared...)
	return cloneTurns(prepared), nil
}

func (s *memoryStore) History(_ context.Context, id string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.record(id)
	if err != nil {
		return nil, err
	}
	return cloneTurns(r.turns), nil
}

func (s *memoryStore) Preferences(_ context.Context, id string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.record(id)
	if err != nil {
		return Preferences{}, err
	}
	return r.prefs, nil
}

func (s *memoryStore) SetPreferences(_ context.Context, id string, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.record(id)
	if err != nil {
		return err
	}
	r.prefs = prefs.Normalize()
	return nil
}

func (s *memoryStore) Relationship(_ context.Context, id string) (Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.record(id)
	if err != nil {
		return Relationship{}, err
	}
	return r.rel, nil
}

func (s *memoryStore) AdvanceRelationship(_ context.Context, id string, g Growth) (Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.record(id)
	if err != nil {
		return Relationship{}, err
	}
	r.rel = r.rel.Apply(g)
	return r.rel, nil
}

func (s *memoryStore) ResetRelationship(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.record(id)
	if err != nil {
		return err
	}
	r.rel = Relationship{}
	return nil
}

func (s *memoryStore) Export(_ context.Context, id string) (Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.record(id)
	if err != nil {
		return Export{}, err
	}
	return NewExport(id, r.turns, r.rel), nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.record(id); err != nil {
		return err
	}
	delete(s.sessions, id)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.sessions = nil
	return nil
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.clone()
	}
	return out
}
