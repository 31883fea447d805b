package storage

import (
	"context"
	"fmt"

	"contactd/internal/models"
)

// New instantiates the counter store named by the rate limit backend.
// Supported backends:
//   - postgres: shared across hosts (pgx pool)
//   - sqlite: shared across processes on one host
//
// The memory backend has no store; the in-process limiter keeps its own map.
func New(ctx context.Context, cfg models.RateLimitConfig) (CounterStore, error) {
	config := Config{ConnectionString: cfg.DSN}

	switch cfg.Backend {
	case models.RateLimitBackendPostgres:
		return NewPostgresStore(ctx, config)
	case models.RateLimitBackendSQLite:
		return NewSQLiteStore(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported counter store backend: %s", cfg.Backend)
	}
}

// SupportedBackends returns every backend that is served by a CounterStore.
func SupportedBackends() []string {
	return []string{models.RateLimitBackendPostgres, models.RateLimitBackendSQLite}
}
