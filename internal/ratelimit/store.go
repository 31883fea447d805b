package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"contactd/internal/storage"
)

// StoreOptions configures a StoreLimiter.
type StoreOptions struct {
	MaxRequests     int
	Window          time.Duration
	CleanupInterval time.Duration
	// FailOpen allows requests while the store is unreachable. The default
	// denies them.
	FailOpen bool
	Logger   *slog.Logger
}

// StoreLimiter is a fixed window limiter whose counters live in a shared
// storage.CounterStore. Every request, allowed or not, is counted by the
// store's atomic increment; the window itself never slides.
type StoreLimiter struct {
	store           storage.CounterStore
	limit           int
	window          time.Duration
	cleanupInterval time.Duration
	failOpen        bool
	logger          *slog.Logger
	now             func() time.Time

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStoreLimiter creates a limiter over store and starts its sweeper.
func NewStoreLimiter(store storage.CounterStore, opts StoreOptions) *StoreLimiter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cleanup := opts.CleanupInterval
	if cleanup <= 0 {
		cleanup = opts.Window
	}
	s := &StoreLimiter{
		store:           store,
		limit:           opts.MaxRequests,
		window:          opts.Window,
		cleanupInterval: cleanup,
		failOpen:        opts.FailOpen,
		logger:          logger,
		now:             time.Now,
		done:            make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweep()
	return s
}

// Allow counts the request in the shared store. When the store fails the
// configured fail mode decides; the error is logged with the hashed key only.
func (s *StoreLimiter) Allow(ctx context.Context, key string) (bool, Info) {
	now := s.now()
	c, err := s.store.Increment(ctx, key, s.window, now)
	if err != nil {
		s.logger.WarnContext(ctx, "Rate limit store unavailable",
			"client", key,
			"fail_open", s.failOpen,
			"error", err,
		)
		info := Info{Limit: s.limit, ResetAt: now.Add(s.window)}
		if !s.failOpen {
			info.RetryAfter = s.window
		}
		return s.failOpen, info
	}

	info := Info{
		Limit:     s.limit,
		Remaining: max(0, s.limit-c.Count),
		ResetAt:   c.ResetAt,
	}
	if c.Count > s.limit {
		info.RetryAfter = max(0, c.ResetAt.Sub(now))
		return false, info
	}
	return true, info
}

// Ping checks the backing store.
func (s *StoreLimiter) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close stops the sweeper and closes the store.
func (s *StoreLimiter) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if err := s.store.Close(); err != nil {
			s.logger.Warn("Failed to close rate limit store", "error", err)
		}
	})
}

func (s *StoreLimiter) sweep() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			removed, err := s.store.Sweep(ctx, s.now())
			cancel()
			if err != nil {
				s.logger.Warn("Failed to sweep expired rate limit windows", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Debug("Swept expired rate limit windows", "removed", removed)
			}
		}
	}
}
