package store

import (
	"context"
	"log"
)

// NewStore selects the backend: Postgres when a database URL is configured
// and reachable, otherwise the in-memory fallback. A configured but
// unreachable database is reported and downgraded rather than fatal; the
// kiosk must still take calls.
func NewStore(ctx context.Context, databaseURL string) Store {
	if databaseURL == "" {
		log.Printf("store: no database configured, call history is in-memory")
		return NewInMemoryStore()
	}
	pg, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		log.Printf("store: postgres unavailable (%v), falling back to in-memory", err)
		return NewInMemoryStore()
	}
	log.Printf("store: using postgres")
	return pg
}
