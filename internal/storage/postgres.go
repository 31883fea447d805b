package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS contact_rate_limits (
	key      TEXT PRIMARY KEY,
	count    INTEGER NOT NULL,
	reset_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS contact_rate_limits_reset_at_idx ON contact_rate_limits (reset_at);
`

// The row lock taken by ON CONFLICT serializes concurrent increments of one key.
const pgIncrement = `
INSERT INTO contact_rate_limits (key, count, reset_at)
VALUES ($1, 1, $3)
ON CONFLICT (key) DO UPDATE SET
	count    = CASE WHEN contact_rate_limits.reset_at <= $2 THEN 1 ELSE contact_rate_limits.count + 1 END,
	reset_at = CASE WHEN contact_rate_limits.reset_at <= $2 THEN EXCLUDED.reset_at ELSE contact_rate_limits.reset_at END
RETURNING count, reset_at`

const pgSweep = `DELETE FROM contact_rate_limits WHERE reset_at <= $1`

// PostgresStore implements CounterStore on PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and creates the counter table if needed.
func NewPostgresStore(ctx context.Context, config Config) (*PostgresStore, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	pool, err := pgxpool.New(ctx, config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create rate limit table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Increment counts one request for key.
func (ps *PostgresStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Counter, error) {
	if err := checkIncrement(key, int64(window)); err != nil {
		return Counter{}, err
	}

	var c Counter
	err := ps.pool.QueryRow(ctx, pgIncrement, key, now.UTC(), now.Add(window).UTC()).Scan(&c.Count, &c.ResetAt)
	if err != nil {
		return Counter{}, fmt.Errorf("failed to increment counter: %w", err)
	}
	return c, nil
}

// Sweep removes expired windows.
func (ps *PostgresStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	tag, err := ps.pool.Exec(ctx, pgSweep, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep counters: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks connectivity.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}
