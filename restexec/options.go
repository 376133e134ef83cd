package restexec

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kroma-labs/sentinel-rest/tokencache"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/sentinel-rest/restexec"
)

// =============================================================================
// Config - Transport Configuration
// =============================================================================

// Config holds the connection-level settings of the engine's transport.
// The overall request timeout is not part of it: every Descriptor carries
// its own.
//
// Example:
//
//	cfg := restexec.DefaultConfig()
//	cfg.DialTimeout = 2 * time.Second
//
//	engine := restexec.New(
//	    restexec.WithConfig(cfg),
//	    restexec.WithServiceName("workflow-connector"),
//	)
type Config struct {
	// DialTimeout is the maximum time to wait for a TCP connection to be
	// established, before any TLS handshake.
	//
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive specifies the TCP keep-alive probe interval.
	//
	// Default: 30s
	KeepAlive time.Duration

	// TLSHandshakeTimeout is the maximum time to wait for a TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout is the time to wait for response headers after
	// the request is fully written. Zero means the Descriptor timeout alone
	// applies.
	//
	// Default: 0
	ResponseHeaderTimeout time.Duration

	// ExpectContinueTimeout is how long to wait for a "100 Continue" when
	// the request carries "Expect: 100-continue".
	//
	// Default: 1s
	ExpectContinueTimeout time.Duration

	// IdleConnTimeout is how long an idle connection is kept for reuse.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// DisableKeepAlives forces a new connection for every request.
	//
	// Default: false
	DisableKeepAlives bool

	// ForceHTTP2 attempts HTTP/2 even with a custom dialer.
	//
	// Default: false
	ForceHTTP2 bool
}

// DefaultConfig returns balanced settings suitable for most integrations.
func DefaultConfig() Config {
	return Config{
		DialTimeout:           5 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 0, // Descriptor timeout applies
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}
}

// LowLatencyConfig returns settings that fail fast on slow networks.
//
// Key differences from DefaultConfig:
//   - Quick dial and TLS handshake timeouts
//   - Response headers must arrive within 3s
//   - HTTP/2 attempted
func LowLatencyConfig() Config {
	return Config{
		DialTimeout:           2 * time.Second,
		KeepAlive:             15 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 3 * time.Second,
		ExpectContinueTimeout: 500 * time.Millisecond,
		IdleConnTimeout:       60 * time.Second,
		ForceHTTP2:            true,
	}
}

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig holds the engine configuration after all options are applied.
type internalConfig struct {
	httpConfig Config

	// === OpenTelemetry ===

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *metrics
	Propagators    propagation.TextMapPropagator

	// ServiceName is added as "http.client.name" on spans and metrics.
	ServiceName string

	// EnableNetworkTrace enables httptrace timing events. Default: true
	EnableNetworkTrace bool

	// === Logging ===

	Logger zerolog.Logger

	// Debug logs a redacted cURL command for every business request.
	Debug bool

	// === Engine ===

	// Store holds OAuth2 tokens. Default: a fresh tokencache.Memory.
	Store tokencache.Store

	// Clock is consulted for token expiry decisions. Default: time.Now
	Clock func() time.Time

	// DefaultHeaders have the lowest precedence on every business request.
	DefaultHeaders http.Header

	// === Transport ===

	// BaseTransport replaces the transport built from httpConfig.
	BaseTransport http.RoundTripper

	// MockTransport replaces every other transport. Used in tests.
	MockTransport *MockTransport

	RateLimit     *RateLimitConfig
	BreakerConfig *BreakerConfig

	ProxyURL             *url.URL
	ProxyFromEnvironment bool
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
		Propagators: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		Logger: zerolog.Nop(),
		Clock:  time.Now,

		EnableNetworkTrace:   true,
		ProxyFromEnvironment: true,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Store == nil {
		cfg.Store = tokencache.NewMemory()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Instruments that fail to register stay nil and are skipped.
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// buildTransport creates an http.Transport from the configuration.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:   hc.DialTimeout,
		KeepAlive: hc.KeepAlive,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout: hc.ResponseHeaderTimeout,
		ExpectContinueTimeout: hc.ExpectContinueTimeout,
		IdleConnTimeout:       hc.IdleConnTimeout,
		DisableKeepAlives:     hc.DisableKeepAlives,
		ForceAttemptHTTP2:     hc.ForceHTTP2,
	}

	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	} else if cfg.ProxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// =============================================================================
// Options
// =============================================================================

// Option configures an Engine.
type Option func(*internalConfig)

// WithConfig sets the transport configuration. Start from DefaultConfig()
// or LowLatencyConfig() and adjust.
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithServiceName sets an identifier for this engine in traces and metrics,
// added as the "http.client.name" attribute. It also names the circuit
// breaker when one is enabled.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithLogger sets the zerolog logger. Request and response lines are logged
// at debug level; insecure TLS calls at warn level.
//
// Default: zerolog.Nop()
//
// Example:
//
//	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
//	engine := restexec.New(restexec.WithLogger(logger))
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
	}
}

// WithDebug logs an equivalent cURL command for every business request at
// debug level. Credentials are masked.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Debug = enabled
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not called, the global provider from otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not called, the global provider from otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithTokenStore sets the store used to cache OAuth2 tokens. Engines that
// share a store share their tokens.
//
// Example - share tokens across replicas:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	engine := restexec.New(restexec.WithTokenStore(tokencache.NewRedis(rdb)))
func WithTokenStore(store tokencache.Store) Option {
	return func(cfg *internalConfig) {
		cfg.Store = store
	}
}

// WithClock overrides the clock used for token expiry. Elapsed times are
// always measured with the monotonic wall clock.
func WithClock(now func() time.Time) Option {
	return func(cfg *internalConfig) {
		cfg.Clock = now
	}
}

// WithDefaultHeaders sets headers sent on every business request. They have
// the lowest precedence: content type, credentials and Descriptor headers
// all override them.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(cfg *internalConfig) {
		if cfg.DefaultHeaders == nil {
			cfg.DefaultHeaders = make(http.Header, len(headers))
		}
		for k, v := range headers {
			cfg.DefaultHeaders.Set(k, v)
		}
	}
}

// WithBaseTransport replaces the transport built from Config. When it is an
// *http.Transport, insecure calls use a clone of it with certificate
// verification disabled.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.BaseTransport = rt
	}
}

// WithMockTransport routes every request, token exchanges included, to mock.
func WithMockTransport(mock *MockTransport) Option {
	return func(cfg *internalConfig) {
		cfg.MockTransport = mock
	}
}

// WithRateLimit limits the outbound request rate of the engine. Token
// exchanges count against the same limiter.
//
// Default: disabled
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimit = &rl
	}
}

// WithBreaker wraps the outbound transport in a circuit breaker.
//
// Default: disabled
//
// Example - breaker shared by every replica:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	engine := restexec.New(
//	    restexec.WithServiceName("crm-connector"),
//	    restexec.WithBreaker(restexec.DistributedBreakerConfig(restexec.NewRedisBreakerStore(rdb))),
//	)
func WithBreaker(bc BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &bc
	}
}

// WithProxyURL sends every request through proxyURL. Takes precedence over
// the HTTP_PROXY family of environment variables.
func WithProxyURL(proxyURL *url.URL) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyURL = proxyURL
		cfg.ProxyFromEnvironment = false
	}
}

// WithProxyFromEnvironment enables or disables reading HTTP_PROXY,
// HTTPS_PROXY and NO_PROXY.
//
// Default: true
func WithProxyFromEnvironment(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyFromEnvironment = enabled
	}
}

// WithDisableNetworkTrace disables the httptrace integration that records
// DNS, connect, TLS and time-to-first-byte timings.
func WithDisableNetworkTrace() Option {
	return func(cfg *internalConfig) {
		cfg.EnableNetworkTrace = false
	}
}

// WithPropagators overrides the W3C TraceContext + Baggage propagators used
// to inject trace context into outgoing requests.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}
