// Package ratelimit throttles contact submissions per client identifier with
// a fixed window counter (5 requests per 10 minutes by default) and caps the
// total outbound mail rate with a shared token bucket.
//
// The window can live in process memory for a single instance or in a shared
// counter store (PostgreSQL, SQLite) when several instances serve traffic.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"contactd/internal/models"
	"contactd/internal/storage"
)

// Limiter defines the rate limiting contract. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Allow checks whether a request identified by key should be allowed.
	// Returns whether the request is allowed and rate information for
	// populating response headers.
	Allow(ctx context.Context, key string) (allowed bool, info Info)

	// Ping reports whether the backing state is reachable.
	Ping(ctx context.Context) error

	// Close stops background goroutines and releases resources.
	Close()
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum requests per window
	Remaining  int           // Requests left in the current window
	ResetAt    time.Time     // When the current window ends
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

// StoreWrapper decorates a counter store, for example with instrumentation.
type StoreWrapper func(storage.CounterStore) (storage.CounterStore, error)

// New builds the limiter selected by cfg.Backend. Wrappers apply to the
// counter store in order and are ignored by the memory backend.
func New(ctx context.Context, cfg models.RateLimitConfig, logger *slog.Logger, wrappers ...StoreWrapper) (Limiter, error) {
	if cfg.Backend == "" || cfg.Backend == models.RateLimitBackendMemory {
		return NewMemoryLimiter(cfg.MaxRequests, cfg.Window, cfg.CleanupInterval), nil
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s counter store: %w", cfg.Backend, err)
	}
	for _, wrap := range wrappers {
		wrapped, err := wrap(store)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to wrap counter store: %w", err)
		}
		store = wrapped
	}

	return NewStoreLimiter(store, StoreOptions{
		MaxRequests:     cfg.MaxRequests,
		Window:          cfg.Window,
		CleanupInterval: cfg.CleanupInterval,
		FailOpen:        cfg.FailMode == models.FailModeOpen,
		Logger:          logger,
	}), nil
}
