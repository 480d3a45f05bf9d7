// Package session tracks live call records: one per call from start to
// teardown, with activity timestamps and an interruption count. A janitor
// expires records whose call stopped reporting activity without a clean end,
// so a wedged call never pins the active gauge.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// End reasons recorded on call teardown.
const (
	EndReasonHangup  = "hangup"
	EndReasonError   = "transport_error"
	EndReasonClosed  = "transport_closed"
	EndReasonExpired = "expired"
)

// Record is one call's lifecycle bookkeeping.
type Record struct {
	ID            string
	StartedAt     time.Time
	LastActive    time.Time
	EndedAt       time.Time
	EndReason     string
	Interruptions int
	Active        bool
}

// Manager owns call records behind a mutex. Accessors return copies; callers
// never share the stored struct.
type Manager struct {
	mu         sync.Mutex
	records    map[string]*Record
	inactivity time.Duration
	now        func() time.Time
}

// NewManager builds a manager whose janitor expires active records idle
// longer than inactivity.
func NewManager(inactivity time.Duration) *Manager {
	return &Manager{
		records:    make(map[string]*Record),
		inactivity: inactivity,
		now:        time.Now,
	}
}

// Create opens a new active record and returns its ID.
func (m *Manager) Create() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	now := m.now()
	m.records[id] = &Record{
		ID:         id,
		StartedAt:  now,
		LastActive: now,
		Active:     true,
	}
	return id
}

// Get returns a copy of the record.
func (m *Manager) Get(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Touch refreshes a record's activity timestamp. Unknown or ended records
// are ignored.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok && r.Active {
		r.LastActive = m.now()
	}
}

// Interrupt counts one barge-in on the record.
func (m *Manager) Interrupt(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok && r.Active {
		r.Interruptions++
		r.LastActive = m.now()
	}
}

// End closes the record with a reason. Ending an already-ended record keeps
// the first reason.
func (m *Manager) End(id, reason string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, false
	}
	if r.Active {
		r.Active = false
		r.EndedAt = m.now()
		r.EndReason = reason
	}
	return *r, true
}

// Remove deletes a record after it has been persisted.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
}

// ActiveCount reports how many records are still active.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Active {
			n++
		}
	}
	return n
}

// StartJanitor expires stale active records every interval until ctx ends.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireStale()
			}
		}
	}()
}

func (m *Manager) expireStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.inactivity)
	for _, r := range m.records {
		if r.Active && r.LastActive.Before(cutoff) {
			r.Active = false
			r.EndedAt = m.now()
			r.EndReason = EndReasonExpired
		}
	}
}
