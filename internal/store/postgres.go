package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afroluxe/concierge/internal/transcript"
)

// PostgresStore persists call history in two tables: calls and their
// transcript turns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS calls (
			id            TEXT PRIMARY KEY,
			started_at    TIMESTAMPTZ NOT NULL,
			ended_at      TIMESTAMPTZ NOT NULL,
			duration_ms   BIGINT NOT NULL,
			interruptions INT NOT NULL DEFAULT 0,
			end_reason    TEXT NOT NULL DEFAULT '',
			summary       TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS call_turns (
			id       TEXT PRIMARY KEY,
			call_id  TEXT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			position INT NOT NULL,
			role     TEXT NOT NULL,
			text     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_call_turns_call ON call_turns(call_id, position);
		CREATE INDEX IF NOT EXISTS idx_calls_started ON calls(started_at DESC);
	`)
	return err
}

func (s *PostgresStore) SaveCall(ctx context.Context, rec CallRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO calls (id, started_at, ended_at, duration_ms, interruptions, end_reason, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.StartedAt, rec.EndedAt, rec.DurationMS, rec.Interruptions, rec.EndReason, rec.Summary)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	for i, turn := range rec.Turns {
		_, err = tx.Exec(ctx, `
			INSERT INTO call_turns (id, call_id, position, role, text)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, turn.ID, rec.ID, i, string(turn.Role), turn.Text)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, ended_at, duration_ms, interruptions, end_reason, summary
		FROM calls ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var rec CallRecord
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &rec.DurationMS,
			&rec.Interruptions, &rec.EndReason, &rec.Summary); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetCall(ctx context.Context, id string) (CallRecord, error) {
	var rec CallRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, started_at, ended_at, duration_ms, interruptions, end_reason, summary
		FROM calls WHERE id = $1
	`, id).Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &rec.DurationMS,
		&rec.Interruptions, &rec.EndReason, &rec.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	if err != nil {
		return CallRecord{}, fmt.Errorf("get call: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, role, text FROM call_turns WHERE call_id = $1 ORDER BY position
	`, id)
	if err != nil {
		return CallRecord{}, fmt.Errorf("get turns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var turn TurnRecord
		var role string
		if err := rows.Scan(&turn.ID, &role, &turn.Text); err != nil {
			return CallRecord{}, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = transcript.Role(role)
		rec.Turns = append(rec.Turns, turn)
	}
	return rec, rows.Err()
}

func (s *PostgresStore) SetSummary(ctx context.Context, id, summary string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE calls SET summary = $2 WHERE id = $1`, id, summary)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Close() { s.pool.Close() }
