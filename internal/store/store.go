// Package store persists finished call records for the admin history
// surface. Postgres when a database URL is configured, an in-memory fallback
// otherwise; both sides of the factory satisfy the same interface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/afroluxe/concierge/internal/transcript"
)

// ErrNotFound reports a call ID with no stored record.
var ErrNotFound = errors.New("call not found")

// TurnRecord is one persisted transcript turn.
type TurnRecord struct {
	ID   string          `json:"id"`
	Role transcript.Role `json:"role"`
	Text string          `json:"text"`
}

// CallRecord is one finished call.
type CallRecord struct {
	ID            string       `json:"id"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       time.Time    `json:"ended_at"`
	DurationMS    int64        `json:"duration_ms"`
	Interruptions int          `json:"interruptions"`
	EndReason     string       `json:"end_reason"`
	Summary       string       `json:"summary,omitempty"`
	Turns         []TurnRecord `json:"turns"`
}

// Store is the call-history persistence surface.
type Store interface {
	// SaveCall persists one finished call with its transcript.
	SaveCall(ctx context.Context, rec CallRecord) error
	// ListCalls returns finished calls, most recent first, without their
	// transcripts.
	ListCalls(ctx context.Context, limit int) ([]CallRecord, error)
	// GetCall returns one call with its transcript.
	GetCall(ctx context.Context, id string) (CallRecord, error)
	// SetSummary attaches a generated lead summary to a stored call.
	SetSummary(ctx context.Context, id, summary string) error
	// Name identifies the backing implementation for health reporting.
	Name() string
	Close()
}
