package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contact_rate_limits (
	key      TEXT PRIMARY KEY,
	count    INTEGER NOT NULL,
	reset_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS contact_rate_limits_reset_at_idx ON contact_rate_limits (reset_at);
`

// reset_at is stored as Unix milliseconds.
const sqliteIncrement = `
INSERT INTO contact_rate_limits (key, count, reset_at)
VALUES (?1, 1, ?3)
ON CONFLICT (key) DO UPDATE SET
	count    = CASE WHEN contact_rate_limits.reset_at <= ?2 THEN 1 ELSE contact_rate_limits.count + 1 END,
	reset_at = CASE WHEN contact_rate_limits.reset_at <= ?2 THEN excluded.reset_at ELSE contact_rate_limits.reset_at END
RETURNING count, reset_at`

const sqliteSweep = `DELETE FROM contact_rate_limits WHERE reset_at <= ?`

// SQLiteStore implements CounterStore on a local SQLite database. It suits a
// single host running several processes; use PostgreSQL across hosts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database file and creates the counter table if needed.
func NewSQLiteStore(ctx context.Context, config Config) (*SQLiteStore, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create rate limit table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Increment counts one request for key.
func (ss *SQLiteStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Counter, error) {
	if err := checkIncrement(key, int64(window)); err != nil {
		return Counter{}, err
	}

	var (
		count   int
		resetMs int64
	)
	err := ss.db.QueryRowContext(ctx, sqliteIncrement, key, now.UnixMilli(), now.Add(window).UnixMilli()).Scan(&count, &resetMs)
	if err != nil {
		return Counter{}, fmt.Errorf("failed to increment counter: %w", err)
	}
	return Counter{Count: count, ResetAt: time.UnixMilli(resetMs)}, nil
}

// Sweep removes expired windows.
func (ss *SQLiteStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	res, err := ss.db.ExecContext(ctx, sqliteSweep, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep counters: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database is usable.
func (ss *SQLiteStore) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the database.
func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}
