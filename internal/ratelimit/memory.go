package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window holds the request count for one key and when its window ends.
type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is an in-memory fixed window limiter. Each unique key gets its
// own counter. A background goroutine periodically evicts windows that have
// already ended so the map stays bounded by the number of recent clients.
type MemoryLimiter struct {
	limit           int
	window          time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	mu      sync.Mutex
	entries map[string]*window
	done    chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewMemoryLimiter creates a limiter allowing maxRequests per window for each
// key. It starts a background goroutine for eviction.
func NewMemoryLimiter(maxRequests int, windowSize, cleanupInterval time.Duration) *MemoryLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = windowSize
	}
	m := &MemoryLimiter{
		limit:           maxRequests,
		window:          windowSize,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		entries:         make(map[string]*window),
		done:            make(chan struct{}),
	}
	m.wg.Add(1)
	go m.cleanup()
	return m
}

// Allow checks whether a request from the given key should be allowed.
// Denied requests do not count against the window.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, Info) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, exists := m.entries[key]
	if !exists || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(m.window)}
		m.entries[key] = w
	}

	info := Info{
		Limit:   m.limit,
		ResetAt: w.resetAt,
	}

	if w.count >= m.limit {
		info.RetryAfter = w.resetAt.Sub(now)
		return false, info
	}

	w.count++
	info.Remaining = m.limit - w.count
	return true, info
}

// Ping always succeeds; the state is local.
func (m *MemoryLimiter) Ping(context.Context) error {
	return nil
}

// Close stops the background cleanup goroutine and waits for it to exit.
func (m *MemoryLimiter) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *MemoryLimiter) cleanup() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

// evictExpired removes windows that have ended.
func (m *MemoryLimiter) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, w := range m.entries {
		if !now.Before(w.resetAt) {
			delete(m.entries, key)
		}
	}
}

// size reports the number of tracked keys.
func (m *MemoryLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
