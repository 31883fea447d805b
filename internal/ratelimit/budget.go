package ratelimit

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// GlobalBudget caps outbound mail across all clients with a single token
// bucket. A nil *GlobalBudget allows everything.
type GlobalBudget struct {
	limiter   *rate.Limiter
	perMinute int
	burst     int
}

// NewGlobalBudget returns a budget of perMinute sends with the given burst,
// or nil when perMinute is not positive.
func NewGlobalBudget(perMinute, burst int) *GlobalBudget {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &GlobalBudget{
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
		perMinute: perMinute,
		burst:     burst,
	}
}

// Allow takes one token if available.
func (b *GlobalBudget) Allow() (bool, Info) {
	if b == nil {
		return true, Info{}
	}

	now := time.Now()
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	info := Info{
		Limit:     b.perMinute,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now,
	}
	if missing := float64(b.burst) - tokens; missing > 0 {
		info.ResetAt = now.Add(time.Duration(missing / float64(b.limiter.Limit()) * float64(time.Second)))
	}

	if !allowed {
		// Time until the next token is available.
		reservation := b.limiter.ReserveN(now, 1)
		info.RetryAfter = reservation.DelayFrom(now)
		reservation.CancelAt(now)
	}

	return allowed, info
}
