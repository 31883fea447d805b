// Package storage provides the shared counter stores behind the distributed
// rate limiter. Each store implements a fixed window counter with a single
// atomic statement, so concurrent instances never let more than the cap
// through for one key.
package storage

import (
	"context"
	"time"
)

// Counter is the state of one window after an increment.
type Counter struct {
	Count   int
	ResetAt time.Time
}

// CounterStore defines the contract for window counters shared between
// service instances.
type CounterStore interface {
	// Increment atomically counts one request for key. When no record exists
	// or the stored window has ended at now, the record restarts at 1 with a
	// new window ending at now+window.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Counter, error)

	// Sweep deletes records whose window ended before now and returns how
	// many were removed.
	Sweep(ctx context.Context, now time.Time) (int64, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// Config holds configuration for counter store backends
type Config struct {
	// ConnectionString is the DSN (PostgreSQL) or database path (SQLite).
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`
}
