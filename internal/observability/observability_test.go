package observability

import (
	"context"
	"testing"

	"contactd/internal/models"
	"contactd/internal/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

var testBuild = version.Info{Version: "1.2.3", InstanceID: "contactd-test", Hostname: "test-host"}

func TestSetup(t *testing.T) {
	tests := []struct {
		name        string
		metrics     bool
		tracing     bool
		sampleRate  float64
		wantTracer  bool
		wantMetrics bool
	}{
		{name: "both disabled"},
		{name: "metrics only", metrics: true, wantMetrics: true},
		{name: "tracing always", tracing: true, sampleRate: 1, wantTracer: true},
		{name: "tracing never", tracing: true, sampleRate: 0, wantTracer: true},
		{name: "tracing ratio with metrics", metrics: true, tracing: true, sampleRate: 0.25, wantTracer: true, wantMetrics: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := models.MetricsConfig{Enabled: tt.metrics, Path: "/metrics", Port: 9090}
			obs := models.ObservabilityConfig{
				ServiceName: "contactd-test",
				Tracing: models.TracingConfig{
					Enabled:    tt.tracing,
					Exporter:   "stdout",
					SampleRate: tt.sampleRate,
				},
			}

			provider, err := Setup(context.Background(), metrics, obs, testBuild)
			require.NoError(t, err)
			require.NotNil(t, provider)

			assert.Equal(t, tt.wantTracer, provider.tracerProvider != nil)
			assert.Equal(t, tt.wantMetrics, provider.PrometheusExporter() != nil)
			assert.Equal(t, tt.wantMetrics, provider.registry != nil)

			assert.NoError(t, provider.Shutdown(context.Background()))
		})
	}
}

func TestSetup_TracingInstallsPropagator(t *testing.T) {
	provider, err := Setup(context.Background(), models.MetricsConfig{}, models.ObservabilityConfig{
		ServiceName: "contactd-test",
		Tracing:     models.TracingConfig{Enabled: true, Exporter: "stdout", SampleRate: 1},
	}, testBuild)
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}

func TestSetup_InvalidExporter(t *testing.T) {
	provider, err := Setup(context.Background(), models.MetricsConfig{}, models.ObservabilityConfig{
		Tracing: models.TracingConfig{Enabled: true, Exporter: "zipkin"},
	}, testBuild)

	assert.Nil(t, provider)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported trace exporter")
}

func TestGetEnvironment(t *testing.T) {
	t.Setenv("CONTACT_ENVIRONMENT", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("DEPLOYMENT_ENV", "")
	assert.Equal(t, "development", getEnvironment())

	t.Setenv("DEPLOYMENT_ENV", "staging")
	assert.Equal(t, "staging", getEnvironment())

	t.Setenv("CONTACT_ENVIRONMENT", "production")
	assert.Equal(t, "production", getEnvironment())
}

func TestProvider_ShutdownNilProviders(t *testing.T) {
	assert.NoError(t, (&Provider{}).Shutdown(context.Background()))
}
