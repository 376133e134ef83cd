package restexec

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the metric instruments of the engine. All record methods are
// safe on a nil receiver.
type metrics struct {
	// === Round Trip Metrics ===

	// requestDuration measures a single HTTP round trip in seconds, token
	// exchanges included.
	requestDuration metric.Float64Histogram

	// activeRequests tracks the number of in-flight round trips.
	activeRequests metric.Int64UpDownCounter

	// requestErrors counts round trips that failed below HTTP.
	requestErrors metric.Int64Counter

	// === Network Timing Metrics ===

	dnsDuration        metric.Float64Histogram
	tlsDuration        metric.Float64Histogram
	connectionDuration metric.Float64Histogram
	ttfb               metric.Float64Histogram

	// === Execution Metrics ===

	// executionDuration measures Engine.Execute end to end.
	executionDuration metric.Float64Histogram

	// executionFailures counts Failure results by error kind.
	executionFailures metric.Int64Counter

	// === Token Metrics ===

	tokenCacheHits        metric.Int64Counter
	tokenCacheMisses      metric.Int64Counter
	tokenExchangeDuration metric.Float64Histogram

	// === Circuit Breaker Metrics ===

	breakerRequests metric.Int64Counter
	breakerState    metric.Int64Gauge
}

// Bucket boundaries in seconds.
var (
	// OTel semconv recommendation for http.client.request.duration.
	roundTripBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10}
	handshakeBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	connectBuckets   = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	ttfbBuckets      = []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5}
	exchangeBuckets  = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// Executions are bounded by MaxTimeout.
	executionBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}
)

type histogramDef struct {
	dst     *metric.Float64Histogram
	name    string
	desc    string
	buckets []float64
}

type counterDef struct {
	dst  *metric.Int64Counter
	name string
	desc string
	unit string
}

// newMetrics creates and registers metric instruments.
func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}

	histograms := []histogramDef{
		{&m.requestDuration, "http.client.request.duration", "Duration of HTTP client requests in seconds", roundTripBuckets},
		{&m.dnsDuration, "http.client.dns.duration", "DNS lookup duration in seconds", handshakeBuckets},
		{&m.tlsDuration, "http.client.tls.duration", "TLS handshake duration in seconds", handshakeBuckets},
		{&m.connectionDuration, "http.client.connection.duration", "Time to establish HTTP connection in seconds", connectBuckets},
		{&m.ttfb, "http.client.ttfb", "Time to first response byte in seconds", ttfbBuckets},
		{&m.executionDuration, "restexec.execution.duration", "Duration of descriptor executions in seconds, auth resolution included", executionBuckets},
		{&m.tokenExchangeDuration, "restexec.token.exchange.duration", "Duration of OAuth2 token exchanges in seconds", exchangeBuckets},
	}
	for _, h := range histograms {
		inst, err := meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(h.buckets...),
		)
		if err != nil {
			return nil, err
		}
		*h.dst = inst
	}

	counters := []counterDef{
		{&m.requestErrors, "http.client.request.error", "Number of HTTP client request errors", "{error}"},
		{&m.executionFailures, "restexec.execution.failures", "Number of executions that produced a Failure", "{execution}"},
		{&m.tokenCacheHits, "restexec.token.cache.hits", "Number of OAuth2 resolutions served from the token cache", "{resolution}"},
		{&m.tokenCacheMisses, "restexec.token.cache.misses", "Number of OAuth2 resolutions that required a token exchange", "{resolution}"},
		{&m.breakerRequests, "http.client.breaker.requests", "Number of requests seen by the circuit breaker by outcome", "{request}"},
	}
	for _, c := range counters {
		inst, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*c.dst = inst
	}

	var err error
	m.activeRequests, err = meter.Int64UpDownCounter(
		"http.client.active_requests",
		metric.WithDescription("Number of active HTTP client requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerState, err = meter.Int64Gauge(
		"http.client.breaker.state",
		metric.WithDescription("Circuit breaker state: 0 closed, 1 half-open, 2 open"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// observe records d in seconds on h. A nil h is skipped.
func observe(ctx context.Context, h metric.Float64Histogram, d time.Duration, attrs []attribute.KeyValue) {
	if h == nil {
		return
	}
	h.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// count adds one to c. A nil c is skipped.
func count(ctx context.Context, c metric.Int64Counter, attrs []attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// withAttrs returns attrs plus extra in a fresh slice.
func withAttrs(attrs []attribute.KeyValue, extra ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs)+len(extra))
	out = append(out, attrs...)
	return append(out, extra...)
}

func (m *metrics) recordRequestDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	observe(ctx, m.requestDuration, d, attrs)
}

func (m *metrics) recordActiveRequestStart(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordActiveRequestEnd(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, -1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	count(ctx, m.requestErrors, withAttrs(attrs, attribute.String("error.type", errorType)))
}

func (m *metrics) recordDNSDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	observe(ctx, m.dnsDuration, d, attrs)
}

func (m *metrics) recordTLSDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	observe(ctx, m.tlsDuration, d, attrs)
}

func (m *metrics) recordConnectionDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	observe(ctx, m.connectionDuration, d, attrs)
}

func (m *metrics) recordTTFB(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	observe(ctx, m.ttfb, d, attrs)
}

// recordExecution records one Execute call. kind is empty on Success.
func (m *metrics) recordExecution(ctx context.Context, d time.Duration, kind ErrorKind, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}

	outcome := "success"
	if kind != "" {
		outcome = "failure"
	}
	attrs = withAttrs(attrs, attribute.String("restexec.outcome", outcome))

	observe(ctx, m.executionDuration, d, attrs)
	if kind != "" {
		count(ctx, m.executionFailures, withAttrs(attrs, attribute.String("restexec.error.kind", string(kind))))
	}
}

func (m *metrics) recordTokenCacheHit(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	count(ctx, m.tokenCacheHits, attrs)
}

func (m *metrics) recordTokenCacheMiss(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	count(ctx, m.tokenCacheMisses, attrs)
}

func (m *metrics) recordTokenExchange(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	observe(ctx, m.tokenExchangeDuration, d, attrs)
}

// recordBreakerRequest records a breaker outcome: success, failure or rejected.
func (m *metrics) recordBreakerRequest(ctx context.Context, name, outcome string) {
	if m == nil {
		return
	}
	count(ctx, m.breakerRequests, []attribute.KeyValue{
		attribute.String("breaker.name", name),
		attribute.String("breaker.outcome", outcome),
	})
}

func (m *metrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String("breaker.name", name),
	))
}
