package main

import (
	"context"
	"testing"

	"contactd/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestStartTelemetry_InstallsTracerProvider(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	cfg := models.NewDefaultConfig()
	cfg.Observability.ServiceName = "contact-lambda-test"
	cfg.Observability.Tracing.Enabled = true
	cfg.Observability.Tracing.Exporter = "stdout"
	cfg.Observability.Tracing.SampleRate = 1

	shutdown, err := startTelemetry(context.Background(), cfg)
	require.NoError(t, err)

	_, span := otel.Tracer("contact-lambda-test").Start(context.Background(), "submission")
	assert.True(t, span.IsRecording())
	span.End()

	shutdown()
}

func TestStartTelemetry_InvalidExporter(t *testing.T) {
	cfg := models.NewDefaultConfig()
	cfg.Observability.Tracing.Enabled = true
	cfg.Observability.Tracing.Exporter = "zipkin"

	shutdown, err := startTelemetry(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, shutdown)
}
