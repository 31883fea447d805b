package observability

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"contactd/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type testTelemetry struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// setupTestTelemetry installs in-memory global providers for the duration of
// the test.
func setupTestTelemetry(t *testing.T) *testTelemetry {
	t.Helper()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	return &testTelemetry{spans: spans, reader: reader}
}

func (tt *testTelemetry) spanNames() []string {
	var names []string
	for _, s := range tt.spans.Ended() {
		names = append(names, s.Name())
	}
	return names
}

// sumOf returns the summed value of the named int64 counter.
func (tt *testTelemetry) sumOf(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tt.reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func newSQLiteStore(t *testing.T) storage.CounterStore {
	t.Helper()
	s, err := storage.NewSQLiteStore(context.Background(), storage.Config{
		ConnectionString: filepath.Join(t.TempDir(), "counters.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewInstrumentedCounterStore(t *testing.T) {
	setupTestTelemetry(t)

	instrumented, err := NewInstrumentedCounterStore(newSQLiteStore(t))
	require.NoError(t, err)
	assert.NotNil(t, instrumented)
}

func TestInstrumentedCounterStore_Operations(t *testing.T) {
	tel := setupTestTelemetry(t)
	instrumented, err := NewInstrumentedCounterStore(newSQLiteStore(t))
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now()

	c, err := instrumented.Increment(ctx, "client", 10*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Count)

	c, err = instrumented.Increment(ctx, "client", 10*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Count)

	removed, err := instrumented.Sweep(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, instrumented.Ping(ctx))

	assert.Equal(t,
		[]string{"storage.Increment", "storage.Increment", "storage.Sweep", "storage.Ping"},
		tel.spanNames())
	assert.Zero(t, tel.sumOf(t, "storage.operation.errors"))
}

func TestInstrumentedCounterStore_RecordsErrors(t *testing.T) {
	tel := setupTestTelemetry(t)
	instrumented, err := NewInstrumentedCounterStore(newSQLiteStore(t))
	require.NoError(t, err)

	_, err = instrumented.Increment(context.Background(), "", time.Minute, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrEmptyKey))

	ended := tel.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, int64(1), tel.sumOf(t, "storage.operation.errors"))
}
