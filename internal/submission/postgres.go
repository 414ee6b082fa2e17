// File: internal/submission/postgres.go
package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	createSubmissionsTable = `CREATE TABLE IF NOT EXISTS form_submissions (
    session_id   TEXT PRIMARY KEY,
    payload      JSONB NOT NULL,
    submitted_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	upsertSubmission = `INSERT INTO form_submissions (session_id, payload, submitted_at)
VALUES ($1, $2, now())
ON CONFLICT (session_id) DO UPDATE SET payload = EXCLUDED.payload, submitted_at = EXCLUDED.submitted_at`
	selectSubmission = `SELECT payload FROM form_submissions WHERE session_id = $1`
)

// PostgresChannel stores submissions in one row per session. A single
// upsert statement commits atomically, and a later write replaces the row.
type PostgresChannel struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresChannel verifies the connection and returns the channel.
func NewPostgresChannel(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresChannel, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresChannel{pool: pool, log: logger.Named("postgres_channel")}, nil
}

// OpenPostgres connects a pool to databaseURL, ensures the schema exists, and
// returns the channel along with a function that closes the pool.
func OpenPostgres(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresChannel, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	ch, err := NewPostgresChannel(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := ch.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return ch, pool.Close, nil
}

// EnsureSchema creates the submissions table if it does not exist.
func (p *PostgresChannel) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createSubmissionsTable); err != nil {
		return fmt.Errorf("failed to create submissions table: %w", err)
	}
	return nil
}

func (p *PostgresChannel) Write(ctx context.Context, sessionID string, payload map[string]any) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, upsertSubmission, sessionID, data); err != nil {
		return fmt.Errorf("failed to upsert submission: %w", err)
	}
	p.log.Debug("Stored submission", zap.String("session_id", sessionID))
	return nil
}

func (p *PostgresChannel) Read(ctx context.Context, sessionID string) (map[string]any, bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, false, err
	}
	var data []byte
	if err := p.pool.QueryRow(ctx, selectSubmission, sessionID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to query submission: %w", err)
	}
	payload, err := decodePayload(data)
	if err != nil {
		return nil, false, nil
	}
	return payload, true, nil
}
