package restexec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_NilReceiver(t *testing.T) {
	var m *metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.recordRequestDuration(ctx, time.Second, nil)
		m.recordActiveRequestStart(ctx, nil)
		m.recordActiveRequestEnd(ctx, nil)
		m.recordError(ctx, ErrorTypeTimeout, nil)
		m.recordDNSDuration(ctx, time.Millisecond, nil)
		m.recordTLSDuration(ctx, time.Millisecond, nil)
		m.recordConnectionDuration(ctx, time.Millisecond, nil)
		m.recordTTFB(ctx, time.Millisecond, nil)
		m.recordExecution(ctx, time.Second, KindParse, nil)
		m.recordTokenCacheHit(ctx, nil)
		m.recordTokenCacheMiss(ctx, nil)
		m.recordTokenExchange(ctx, time.Millisecond, nil)
		m.recordBreakerRequest(ctx, "b", "success")
		m.recordBreakerState(ctx, "b", 1)
	})
}

func TestMetrics_RecordExecution(t *testing.T) {
	tests := []struct {
		name        string
		kind        ErrorKind
		wantOutcome string
		wantFailure bool
	}{
		{name: "given success, then records duration only", kind: "", wantOutcome: "success"},
		{name: "given failure, then counts it by kind", kind: KindAuthentication, wantOutcome: "failure", wantFailure: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			defer mp.Shutdown(context.Background())

			m, err := newMetrics(mp.Meter("test"))
			require.NoError(t, err)

			ctx := context.Background()
			m.recordExecution(ctx, 250*time.Millisecond, tt.kind, nil)

			var rm metricdata.ResourceMetrics
			require.NoError(t, reader.Collect(ctx, &rm))

			duration := findMetric(rm, "restexec.execution.duration")
			require.NotNil(t, duration)
			hist, ok := duration.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			require.Len(t, hist.DataPoints, 1)
			outcome, _ := hist.DataPoints[0].Attributes.Value("restexec.outcome")
			assert.Equal(t, tt.wantOutcome, outcome.AsString())

			failures := findMetric(rm, "restexec.execution.failures")
			if !tt.wantFailure {
				assert.Nil(t, failures)
				return
			}
			require.NotNil(t, failures)
			sum, ok := failures.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			kind, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("restexec.error.kind"))
			assert.Equal(t, string(tt.kind), kind.AsString())
		})
	}
}

func TestMetrics_BreakerState(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := newMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.recordBreakerState(ctx, "billing", 2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	state := findMetric(rm, "http.client.breaker.state")
	require.NotNil(t, state)
	gauge, ok := state.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(2), gauge.DataPoints[0].Value)
}
