// Package contact runs the contact form pipeline: validation, abuse
// heuristics, per-client rate limiting, CAPTCHA verification, and finally
// one notification email.
//
// The stages always run in that order and every failure is terminal for the
// request. Nothing is retried; the client has to resubmit.
package contact

import (
	"context"
	"errors"
	"log/slog"

	"contactd/internal/captcha"
	"contactd/internal/clientip"
	"contactd/internal/heuristics"
	"contactd/internal/logger"
	"contactd/internal/mailer"
	"contactd/internal/models"
	"contactd/internal/ratelimit"
	"contactd/internal/validate"
)

// Pipeline stages, in order. Outcome.Stage holds the last one reached.
const (
	StageReceived         = "received"
	StageValidated        = "validated"
	StageHeuristicsPassed = "heuristics_passed"
	StageRateOK           = "rate_ok"
	StageCaptchaOK        = "captcha_ok"
	StageSent             = "sent"
)

// Rate limit rejection reasons.
const (
	ReasonClientLimit  = "client_limit"
	ReasonGlobalBudget = "global_budget"
)

// Recorder receives one call per finished submission. outcome is StageSent
// on success or the ServiceError code.
type Recorder interface {
	RecordSubmission(ctx context.Context, outcome, reason string)
}

type noopRecorder struct{}

func (noopRecorder) RecordSubmission(context.Context, string, string) {}

// Outcome describes how far a submission got. It is returned even when the
// submission fails so the handler can set rate limit headers.
type Outcome struct {
	Stage       string
	ClientHash  string
	RateLimit   ratelimit.Info
	RateLimited bool
}

// Dependencies are the collaborators of the pipeline.
type Dependencies struct {
	Heuristics *heuristics.Checker
	Limiter    ratelimit.Limiter
	Budget     *ratelimit.GlobalBudget
	Verifier   captcha.Verifier
	Policy     captcha.Policy
	Notifier   mailer.Notifier
	Recorder   Recorder
}

// Service handles contact submissions.
type Service struct {
	deps    Dependencies
	captcha models.CaptchaConfig
	mail    models.MailConfig
	salt    string
}

// NewService creates a contact service from the loaded configuration and
// its collaborators.
func NewService(cfg *models.Config, deps Dependencies) *Service {
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	return &Service{
		deps:    deps,
		captcha: cfg.Captcha,
		mail:    cfg.Mail,
		salt:    cfg.Server.IdentifierSalt,
	}
}

// MissingSettings lists required settings that are empty.
func (s *Service) MissingSettings() []string {
	var missing []string
	if s.captcha.Secret == "" {
		missing = append(missing, "captcha_secret")
	}
	for _, m := range s.mail.Missing() {
		missing = append(missing, "mail_"+m)
	}
	return missing
}

// ClientHash returns the identifier used for rate limiting and logs.
func (s *Service) ClientHash(ip string) string {
	return clientip.Hash(s.salt, ip)
}

// Submit runs req through the pipeline. clientIP is the resolved caller
// address; it is forwarded to the CAPTCHA service and otherwise only used
// hashed. The returned error, when not nil, is always a *ServiceError.
func (s *Service) Submit(ctx context.Context, req models.ContactRequest, clientIP string) (*Outcome, error) {
	out := &Outcome{Stage: StageReceived, ClientHash: s.ClientHash(clientIP)}
	log := logger.FromContext(ctx).With("client", out.ClientHash)

	// Required settings are checked before any stage that may reach the network.
	if missing := s.MissingSettings(); len(missing) > 0 {
		log.ErrorContext(ctx, "Required configuration missing", "settings", missing)
		return s.fail(ctx, out, NewConfigurationError(missing, nil))
	}

	sub, err := validate.Submission(req)
	if err != nil {
		var verr *validate.Error
		fields := []string{err.Error()}
		if errors.As(err, &verr) {
			fields = verr.Names()
		}
		log.InfoContext(ctx, "Contact submission failed validation", "fields", fields)
		return s.fail(ctx, out, NewInvalidInputError("validation", err))
	}
	out.Stage = StageValidated

	if err := s.deps.Heuristics.Check(sub); err != nil {
		reason := heuristics.ReasonHoneypot
		var v *heuristics.Violation
		if errors.As(err, &v) {
			reason = v.Reason
		}
		message := models.MessageInvalidRequest
		if reason == heuristics.ReasonTooFast {
			message = models.MessageTooFast
		}
		log.WarnContext(ctx, "Abuse heuristic triggered", "reason", reason)
		return s.fail(ctx, out, NewAbuseError(reason, message, err))
	}
	out.Stage = StageHeuristicsPassed

	allowed, info := s.deps.Limiter.Allow(ctx, out.ClientHash)
	out.RateLimit = info
	if !allowed {
		out.RateLimited = true
		log.WarnContext(ctx, "Rate limit exceeded",
			"limit", info.Limit,
			"retry_after", info.RetryAfter.String(),
		)
		return s.fail(ctx, out, NewRateLimitedError(ReasonClientLimit))
	}
	out.Stage = StageRateOK

	verdict, err := captcha.Check(ctx, s.deps.Verifier, s.deps.Policy, sub.RecaptchaToken, clientIP)
	if err != nil {
		reason := captcha.ReasonVerificationFailed
		var rej *captcha.Rejection
		if errors.As(err, &rej) {
			reason = rej.Reason
		}
		attrs := []any{"reason", reason}
		if verdict != nil {
			attrs = append(attrs, "score", verdict.Score, "action", verdict.Action, "hostname", verdict.Hostname)
		}
		if reason == captcha.ReasonVerificationFailed {
			attrs = append(attrs, "error", err)
		}
		log.WarnContext(ctx, "Captcha verification failed", attrs...)
		return s.fail(ctx, out, NewCaptchaError(reason, err))
	}
	out.Stage = StageCaptchaOK
	log.DebugContext(ctx, "Captcha passed", "score", verdict.Score)

	if ok, budget := s.deps.Budget.Allow(); !ok {
		out.RateLimited = true
		out.RateLimit.RetryAfter = max(out.RateLimit.RetryAfter, budget.RetryAfter)
		log.WarnContext(ctx, "Global send budget exhausted", "retry_after", budget.RetryAfter.String())
		return s.fail(ctx, out, NewRateLimitedError(ReasonGlobalBudget))
	}

	if err := s.deps.Notifier.Notify(ctx, sub); err != nil {
		if errors.Is(err, mailer.ErrNotConfigured) {
			log.ErrorContext(ctx, "Mail relay not configured", "error", err)
			return s.fail(ctx, out, NewConfigurationError(s.mail.Missing(), err))
		}
		log.ErrorContext(ctx, "Failed to send notification", "error", err)
		return s.fail(ctx, out, NewSendFailedError(err))
	}
	out.Stage = StageSent

	log.InfoContext(ctx, "Contact message sent")
	s.deps.Recorder.RecordSubmission(ctx, StageSent, "")
	return out, nil
}

func (s *Service) fail(ctx context.Context, out *Outcome, err *ServiceError) (*Outcome, error) {
	s.deps.Recorder.RecordSubmission(ctx, err.Code, err.Reason)
	logger.FromContext(ctx).DebugContext(ctx, "Contact pipeline stopped",
		slog.String("stage", out.Stage),
		slog.String("code", err.Code),
	)
	return out, err
}
