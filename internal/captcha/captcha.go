// Package captcha verifies reCAPTCHA v3 tokens against the siteverify API and
// classifies the returned verdict.
//
// The network call (Client.Verify) and the acceptance rules (Policy.Evaluate)
// are separate so the rules can be tested without a network and the call can
// be wrapped with tracing. Check combines both the way the contact pipeline
// uses them.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"contactd/internal/models"
)

// Rejection reasons, used in logs and metrics. They are never sent to clients.
const (
	ReasonVerificationFailed  = "verification_failed"
	ReasonRejected            = "rejected"
	ReasonActionMismatch      = "action_mismatch"
	ReasonLowScore            = "low_score"
	ReasonScoreBelowThreshold = "score_below_threshold"
	ReasonHostnameMismatch    = "hostname_mismatch"
)

// ErrCaptchaFailed is matched with errors.Is for every rejected token.
var ErrCaptchaFailed = errors.New("captcha verification failed")

// Verdict is the siteverify response.
type Verdict struct {
	Success     bool     `json:"success"`
	Score       float64  `json:"score"`
	Action      string   `json:"action"`
	Hostname    string   `json:"hostname"`
	ChallengeTS string   `json:"challenge_ts"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verifier calls the verification service once for a token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (*Verdict, error)
}

// Rejection describes why a token was not accepted.
type Rejection struct {
	Reason string
	Score  float64
	Action string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("captcha %s: %v", r.Reason, r.Err)
	}
	return fmt.Sprintf("captcha %s (score %.2f, action %q)", r.Reason, r.Score, r.Action)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

func (r *Rejection) Is(target error) bool {
	return target == ErrCaptchaFailed
}

// Policy holds the acceptance rules for a verdict.
type Policy struct {
	ExpectedAction   string
	MinScore         float64
	AcceptScore      float64
	AllowedHostnames []string
}

// NewPolicy builds a Policy from the captcha settings.
func NewPolicy(cfg models.CaptchaConfig) Policy {
	return Policy{
		ExpectedAction:   cfg.ExpectedAction,
		MinScore:         cfg.MinScore,
		AcceptScore:      cfg.AcceptScore,
		AllowedHostnames: cfg.AllowedHostnames,
	}
}

// Evaluate accepts a verdict only when the service reported success, the
// action matches, the hostname is allowed (when a list is configured) and the
// score reaches the accept threshold. Scores below the hard floor and scores
// in the buffer band between floor and threshold are both rejected, with
// different reasons.
func (p Policy) Evaluate(v *Verdict) error {
	if v == nil || !v.Success {
		rej := &Rejection{Reason: ReasonRejected}
		if v != nil && len(v.ErrorCodes) > 0 {
			rej.Err = fmt.Errorf("error codes: %s", strings.Join(v.ErrorCodes, ","))
		}
		return rej
	}

	if v.Action != p.ExpectedAction {
		return &Rejection{Reason: ReasonActionMismatch, Score: v.Score, Action: v.Action}
	}

	if len(p.AllowedHostnames) > 0 && !p.hostnameAllowed(v.Hostname) {
		return &Rejection{Reason: ReasonHostnameMismatch, Score: v.Score, Action: v.Action}
	}

	switch {
	case v.Score < p.MinScore:
		return &Rejection{Reason: ReasonLowScore, Score: v.Score, Action: v.Action}
	case v.Score < p.AcceptScore:
		return &Rejection{Reason: ReasonScoreBelowThreshold, Score: v.Score, Action: v.Action}
	}

	return nil
}

func (p Policy) hostnameAllowed(host string) bool {
	return slices.ContainsFunc(p.AllowedHostnames, func(h string) bool {
		return strings.EqualFold(h, host)
	})
}

// Check verifies token once and evaluates the verdict. Transport and service
// failures are reported as a ReasonVerificationFailed rejection.
func Check(ctx context.Context, verifier Verifier, policy Policy, token, remoteIP string) (*Verdict, error) {
	verdict, err := verifier.Verify(ctx, token, remoteIP)
	if err != nil {
		return nil, &Rejection{Reason: ReasonVerificationFailed, Err: err}
	}
	if err := policy.Evaluate(verdict); err != nil {
		return verdict, err
	}
	return verdict, nil
}
