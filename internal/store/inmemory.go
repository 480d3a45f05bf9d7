package store

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore keeps call history in process memory. History disappears on
// restart, which is acceptable for kiosks run without a database.
type InMemoryStore struct {
	mu    sync.RWMutex
	calls map[string]CallRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{calls: make(map[string]CallRecord)}
}

func (s *InMemoryStore) SaveCall(_ context.Context, rec CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rec
	cp.Turns = append([]TurnRecord(nil), rec.Turns...)
	s.calls[rec.ID] = cp
	return nil
}

func (s *InMemoryStore) ListCalls(_ context.Context, limit int) ([]CallRecord, error) {
	s.mu.RLock()
	out := make([]CallRecord, 0, len(s.calls))
	for _, rec := range s.calls {
		rec.Turns = nil
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) GetCall(_ context.Context, id string) (CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.calls[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	rec.Turns = append([]TurnRecord(nil), rec.Turns...)
	return rec, nil
}

func (s *InMemoryStore) SetSummary(_ context.Context, id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	rec.Summary = summary
	s.calls[id] = rec
	return nil
}

func (s *InMemoryStore) Name() string { return "inmemory" }

func (s *InMemoryStore) Close() {}
