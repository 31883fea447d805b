// Package heuristics implements the cheap bot filters that run before any
// rate limit or network call: the hidden honeypot field and the form fill
// timing check. They are best-effort filters, not a security boundary.
package heuristics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"contactd/internal/models"
)

// Violation reasons, used in logs and metrics.
const (
	ReasonHoneypot        = "honeypot"
	ReasonTooFast         = "too_fast"
	ReasonFutureTimestamp = "future_timestamp"
	ReasonStaleForm       = "stale_form"
)

// ErrAbuse is matched with errors.Is for every heuristic rejection.
var ErrAbuse = errors.New("abuse detected")

// Violation reports which heuristic rejected a submission.
type Violation struct {
	Reason  string
	Elapsed time.Duration
}

func (v *Violation) Error() string {
	if v.Reason == ReasonHoneypot {
		return "abuse detected: honeypot field filled"
	}
	return fmt.Sprintf("abuse detected: %s (elapsed %s)", v.Reason, v.Elapsed)
}

func (v *Violation) Is(target error) bool {
	return target == ErrAbuse
}

// Checker runs the honeypot and timing checks.
type Checker struct {
	minFill time.Duration
	maxAge  time.Duration
	maxSkew time.Duration
	now     func() time.Time
}

// New creates a Checker from the heuristics settings.
func New(cfg models.HeuristicsConfig) *Checker {
	return &Checker{
		minFill: cfg.MinFillTime,
		maxAge:  cfg.MaxFormAge,
		maxSkew: cfg.MaxClockSkew,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

// Check returns nil when the submission looks human, or a *Violation.
// The honeypot is checked first; a submission without a render timestamp
// skips the timing checks.
func (c *Checker) Check(sub *models.ContactSubmission) error {
	if sub == nil {
		return &Violation{Reason: ReasonHoneypot}
	}
	if strings.TrimSpace(sub.Website) != "" {
		return &Violation{Reason: ReasonHoneypot}
	}
	if !sub.HasRenderTime() {
		return nil
	}

	elapsed := c.now().Sub(*sub.FormRenderTime)
	switch {
	case elapsed < -c.maxSkew:
		return &Violation{Reason: ReasonFutureTimestamp, Elapsed: elapsed}
	case elapsed < c.minFill:
		return &Violation{Reason: ReasonTooFast, Elapsed: elapsed}
	case c.maxAge > 0 && elapsed > c.maxAge:
		return &Violation{Reason: ReasonStaleForm, Elapsed: elapsed}
	}
	return nil
}
