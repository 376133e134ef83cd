package restexec

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Round trip phases, recorded as the restexec.phase attribute.
const (
	phaseRequest       = "request"
	phaseTokenExchange = "token_exchange"
)

// callOptions travel with the request context from the engine down to the
// transport chain.
type callOptions struct {
	insecure bool
	phase    string
}

type callOptionsKey struct{}

func withCallOptions(ctx context.Context, o callOptions) context.Context {
	return context.WithValue(ctx, callOptionsKey{}, o)
}

func callOptionsFrom(ctx context.Context) callOptions {
	o, _ := ctx.Value(callOptionsKey{}).(callOptions)
	return o
}

// newTransportChain builds the engine transport:
//
//	otel -> circuit breaker -> rate limit -> TLS switch -> base
//
// Breaker and rate limiter are skipped unless configured.
func newTransportChain(cfg *internalConfig) http.RoundTripper {
	secure, insecure := baseTransports(cfg)

	var rt http.RoundTripper = &tlsSwitch{secure: secure, insecure: insecure}
	if cfg.RateLimit != nil {
		rt = newRateLimitTransport(rt, *cfg.RateLimit)
	}
	rt = newCircuitBreakerTransport(rt, cfg)
	return newOtelTransport(rt, cfg)
}

// baseTransports returns the verifying transport and its insecure twin.
func baseTransports(cfg *internalConfig) (secure, insecure http.RoundTripper) {
	switch {
	case cfg.MockTransport != nil:
		return cfg.MockTransport, cfg.MockTransport
	case cfg.BaseTransport != nil:
		if t, ok := cfg.BaseTransport.(*http.Transport); ok {
			return t, insecureClone(t)
		}
		return cfg.BaseTransport, cfg.BaseTransport
	default:
		t := cfg.buildTransport()
		return t, insecureClone(t)
	}
}

func insecureClone(t *http.Transport) *http.Transport {
	c := t.Clone()
	if c.TLSClientConfig == nil {
		c.TLSClientConfig = &tls.Config{} //nolint:gosec // verification is disabled below on purpose
	}
	c.TLSClientConfig.InsecureSkipVerify = true
	return c
}

// Compile-time interface check.
var _ http.RoundTripper = (*tlsSwitch)(nil)

// tlsSwitch routes a request to the insecure transport only when its
// context asks for it.
type tlsSwitch struct {
	secure   http.RoundTripper
	insecure http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *tlsSwitch) RoundTrip(req *http.Request) (*http.Response, error) {
	if callOptionsFrom(req.Context()).insecure {
		return t.insecure.RoundTrip(req)
	}
	return t.secure.RoundTrip(req)
}

// Compile-time interface check.
var _ http.RoundTripper = (*otelTransport)(nil)

// otelTransport wraps an http.RoundTripper with OpenTelemetry instrumentation.
type otelTransport struct {
	base       http.RoundTripper
	cfg        *internalConfig
	propagator propagation.TextMapPropagator
}

func newOtelTransport(base http.RoundTripper, cfg *internalConfig) *otelTransport {
	return &otelTransport{
		base:       base,
		cfg:        cfg,
		propagator: cfg.Propagators,
	}
}

// RoundTrip implements http.RoundTripper with tracing and metrics.
func (t *otelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	ctx, span := t.cfg.Tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.requestAttributes(req)...),
	)
	defer span.End()

	// Clone before injecting: the caller owns req.Header.
	req = req.Clone(ctx)
	if t.propagator != nil {
		t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	}

	baseAttrs := t.cfg.baseAttributes()
	t.cfg.Metrics.recordActiveRequestStart(ctx, baseAttrs)
	defer t.cfg.Metrics.recordActiveRequestEnd(ctx, baseAttrs)

	var nt *networkTrace
	if t.cfg.EnableNetworkTrace {
		nt = &networkTrace{}
		req = req.WithContext(httptrace.WithClientTrace(ctx, nt.clientTrace()))
	}

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if nt != nil {
		nt.addTraceEvents(span)
		nt.recordTimingMetrics(ctx, t.cfg.Metrics, baseAttrs)
	}

	if err != nil {
		errorType := classifyNetworkError(err)
		setSpanError(span, err, errorType)
		t.cfg.Metrics.recordError(ctx, errorType, baseAttrs)
		t.cfg.Metrics.recordRequestDuration(ctx, duration, t.metricsAttributes(req, nil, errorType))
		return nil, err
	}

	span.SetAttributes(t.responseAttributes(resp)...)
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		span.SetAttributes(attribute.String("error.type", errorTypeFromStatusCode(resp.StatusCode)))
	}

	t.cfg.Metrics.recordRequestDuration(ctx, duration, t.metricsAttributes(req, resp, ""))

	return resp, nil
}

// requestAttributes returns span attributes for the request.
func (t *otelTransport) requestAttributes(req *http.Request) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 8)
	attrs = append(attrs, t.cfg.baseAttributes()...)
	attrs = append(attrs, attribute.String("http.request.method", req.Method))

	if phase := callOptionsFrom(req.Context()).phase; phase != "" {
		attrs = append(attrs, attribute.String("restexec.phase", phase))
	}

	if req.URL != nil {
		// url.full is recorded without the query string: API keys may live there.
		u := *req.URL
		u.RawQuery = ""
		u.User = nil
		attrs = append(attrs, attribute.String("url.full", u.String()))
		attrs = append(attrs, attribute.String("url.scheme", req.URL.Scheme))
		attrs = append(attrs, serverAttributes(req)...)
	}

	if req.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.request.body.size", req.ContentLength))
	}
	if ua := req.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}

	return attrs
}

// responseAttributes returns span attributes for the response.
func (t *otelTransport) responseAttributes(resp *http.Response) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.response.body.size", resp.ContentLength))
	}

	if v := protocolVersion(resp); v != "" {
		attrs = append(attrs, attribute.String("network.protocol.version", v))
	}

	return attrs
}

// protocolVersion renders the response protocol the semconv way: "1.1",
// "2" or "3". Empty when unknown, as with hand-built responses.
func protocolVersion(resp *http.Response) string {
	switch {
	case resp.ProtoMajor == 0:
		return ""
	case resp.ProtoMajor >= 2:
		return strconv.Itoa(resp.ProtoMajor)
	default:
		return strconv.Itoa(resp.ProtoMajor) + "." + strconv.Itoa(resp.ProtoMinor)
	}
}

// metricsAttributes returns the low-cardinality attribute set for the
// duration histogram. resp is nil when the round trip failed.
func (t *otelTransport) metricsAttributes(
	req *http.Request,
	resp *http.Response,
	errorType string,
) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 6)
	attrs = append(attrs, t.cfg.baseAttributes()...)
	attrs = append(attrs, attribute.String("http.request.method", req.Method))

	if phase := callOptionsFrom(req.Context()).phase; phase != "" {
		attrs = append(attrs, attribute.String("restexec.phase", phase))
	}
	if req.URL != nil {
		attrs = append(attrs, serverAttributes(req)...)
	}

	if resp != nil {
		attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
		if resp.StatusCode >= 400 {
			errorType = errorTypeFromStatusCode(resp.StatusCode)
		}
	}
	if errorType != "" {
		attrs = append(attrs, attribute.String("error.type", errorType))
	}

	return attrs
}

func serverAttributes(req *http.Request) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)

	if host := req.URL.Hostname(); host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}

	if port := req.URL.Port(); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			attrs = append(attrs, attribute.Int("server.port", p))
		}
	} else {
		switch req.URL.Scheme {
		case "http":
			attrs = append(attrs, attribute.Int("server.port", 80))
		case "https":
			attrs = append(attrs, attribute.Int("server.port", 443))
		}
	}

	return attrs
}
