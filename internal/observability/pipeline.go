package observability

import (
	"context"
	"time"

	"contactd/internal/captcha"
	"contactd/internal/mailer"
	"contactd/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentedVerifier wraps a captcha.Verifier. The token and client address
// are never recorded; the verdict score and action are.
type InstrumentedVerifier struct {
	inner captcha.Verifier
	in    *instruments
}

func NewInstrumentedVerifier(inner captcha.Verifier) (*InstrumentedVerifier, error) {
	in, err := newInstruments("captcha")
	if err != nil {
		return nil, err
	}
	return &InstrumentedVerifier{inner: inner, in: in}, nil
}

func (v *InstrumentedVerifier) Verify(ctx context.Context, token, remoteIP string) (*captcha.Verdict, error) {
	ctx, span := v.in.startSpan(ctx, "Verify")
	start := time.Now()
	verdict, err := v.inner.Verify(ctx, token, remoteIP)
	if verdict != nil {
		span.SetAttributes(
			attribute.Bool("captcha.success", verdict.Success),
			attribute.Float64("captcha.score", verdict.Score),
			attribute.String("captcha.action", verdict.Action),
		)
	}
	v.in.record(ctx, span, "Verify", start, err)
	return verdict, err
}

// InstrumentedNotifier wraps a mailer.Notifier.
type InstrumentedNotifier struct {
	inner mailer.Notifier
	in    *instruments
}

func NewInstrumentedNotifier(inner mailer.Notifier) (*InstrumentedNotifier, error) {
	in, err := newInstruments("mail")
	if err != nil {
		return nil, err
	}
	return &InstrumentedNotifier{inner: inner, in: in}, nil
}

func (n *InstrumentedNotifier) Notify(ctx context.Context, sub *models.ContactSubmission) error {
	ctx, span := n.in.startSpan(ctx, "Notify", attribute.Int("message.length", len(sub.Message)))
	start := time.Now()
	err := n.inner.Notify(ctx, sub)
	n.in.record(ctx, span, "Notify", start, err)
	return err
}

// SubmissionCounter counts finished contact submissions by outcome and reason.
type SubmissionCounter struct {
	total metric.Int64Counter
}

func NewSubmissionCounter() (*SubmissionCounter, error) {
	total, err := otel.Meter("contactd/contact").Int64Counter(
		"contact.submissions",
		metric.WithDescription("Contact submissions by pipeline outcome"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, err
	}
	return &SubmissionCounter{total: total}, nil
}

func (c *SubmissionCounter) RecordSubmission(ctx context.Context, outcome, reason string) {
	c.total.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	))
}
