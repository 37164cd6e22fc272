// internal/session/postgres_store.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be exercised against a mock
// in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore persists sessions in a single table, one row per session.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS agent_sessions (
    id               TEXT PRIMARY KEY,
    task             TEXT NOT NULL,
    status           TEXT NOT NULL,
    device_id        TEXT NOT NULL DEFAULT '',
    step_count       INTEGER NOT NULL DEFAULT 0,
    summary          TEXT NOT NULL DEFAULT '',
    pending_question TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);`

// NewPostgresStore verifies the connection and ensures the schema exists.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createSessionsTable); err != nil {
		return nil, fmt.Errorf("failed to ensure sessions table: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("session-store")}, nil
}

const upsertSessionSQL = `
INSERT INTO agent_sessions (id, task, status, device_id, step_count, summary, pending_question, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    task = EXCLUDED.task,
    status = EXCLUDED.status,
    device_id = EXCLUDED.device_id,
    step_count = EXCLUDED.step_count,
    summary = EXCLUDED.summary,
    pending_question = EXCLUDED.pending_question,
    updated_at = EXCLUDED.updated_at;`

// Save upserts the record.
func (ps *PostgresStore) Save(ctx context.Context, state State) error {
	_, err := ps.pool.Exec(ctx, upsertSessionSQL,
		state.ID, state.Task, string(state.Status), state.DeviceID,
		state.StepCount, state.Summary, state.PendingQuestion,
		state.CreatedAt.UTC(), state.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", state.ID, err)
	}
	return nil
}

const selectSessionSQL = `
SELECT id, task, status, device_id, step_count, summary, pending_question, created_at, updated_at
FROM agent_sessions`

// Get fetches one session row.
func (ps *PostgresStore) Get(ctx context.Context, id string) (State, error) {
	row := ps.pool.QueryRow(ctx, selectSessionSQL+" WHERE id = $1;", id)
	state, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, ErrSessionNotFound
		}
		return State{}, fmt.Errorf("failed to fetch session %s: %w", id, err)
	}
	return state, nil
}

// List returns matching sessions newest first. Filtering happens in SQL so
// large tables stay cheap to query.
func (ps *PostgresStore) List(ctx context.Context, filter ListFilter) ([]State, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.DeviceID != "" {
		args = append(args, filter.DeviceID)
		conds = append(conds, fmt.Sprintf("device_id = $%d", len(args)))
	}
	query := selectSessionSQL
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC;"

	rows, err := ps.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		state, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// Delete removes a session row; absent ids are fine.
func (ps *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := ps.pool.Exec(ctx, "DELETE FROM agent_sessions WHERE id = $1;", id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// DeleteOlderThan removes stale terminal sessions.
func (ps *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := ps.pool.Exec(ctx,
		"DELETE FROM agent_sessions WHERE status IN ($1, $2) AND updated_at < $3;",
		string(StatusCompleted), string(StatusAborted), cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close releases the pool.
func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}

func scanSession(row pgx.Row) (State, error) {
	var (
		state  State
		status string
	)
	err := row.Scan(
		&state.ID, &state.Task, &status, &state.DeviceID,
		&state.StepCount, &state.Summary, &state.PendingQuestion,
		&state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		return State{}, err
	}
	state.Status = Status(status)
	return state, nil
}
