package observability

import (
	"context"
	"time"

	"contactd/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instruments bundles the tracer and the latency and error instruments shared
// by every wrapper in this package.
type instruments struct {
	prefix   string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

func newInstruments(prefix string) (*instruments, error) {
	tracer := otel.Tracer("contactd/" + prefix)
	meter := otel.Meter("contactd/" + prefix)

	duration, err := meter.Float64Histogram(
		prefix+".operation.duration",
		metric.WithDescription("Duration of "+prefix+" operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		prefix+".operation.errors",
		metric.WithDescription("Number of "+prefix+" operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &instruments{
		prefix:   prefix,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (in *instruments) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, in.prefix+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String(in.prefix+".operation", operation),
		}, attrs...)...),
	)
}

func (in *instruments) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	in.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		in.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// InstrumentedCounterStore wraps a storage.CounterStore with tracing and
// metrics. Keys are hashed client identifiers and are not recorded.
type InstrumentedCounterStore struct {
	inner storage.CounterStore
	in    *instruments
}

// NewInstrumentedCounterStore creates a counter store wrapper that records
// trace spans, latency histograms, and error counters for every call.
func NewInstrumentedCounterStore(inner storage.CounterStore) (*InstrumentedCounterStore, error) {
	in, err := newInstruments("storage")
	if err != nil {
		return nil, err
	}
	return &InstrumentedCounterStore{inner: inner, in: in}, nil
}

func (s *InstrumentedCounterStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (storage.Counter, error) {
	ctx, span := s.in.startSpan(ctx, "Increment", attribute.String("window", window.String()))
	start := time.Now()
	result, err := s.inner.Increment(ctx, key, window, now)
	if err == nil {
		span.SetAttributes(attribute.Int("count", result.Count))
	}
	s.in.record(ctx, span, "Increment", start, err)
	return result, err
}

func (s *InstrumentedCounterStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := s.in.startSpan(ctx, "Sweep")
	start := time.Now()
	removed, err := s.inner.Sweep(ctx, now)
	span.SetAttributes(attribute.Int64("removed", removed))
	s.in.record(ctx, span, "Sweep", start, err)
	return removed, err
}

func (s *InstrumentedCounterStore) Ping(ctx context.Context) error {
	ctx, span := s.in.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.in.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedCounterStore) Close() error {
	return s.inner.Close()
}
