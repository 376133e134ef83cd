package restexec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kroma-labs/sentinel-rest/tokencache"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Engine executes Descriptors. It is safe for concurrent use; the token
// store is the only state shared between executions.
type Engine struct {
	cfg       *internalConfig
	transport http.RoundTripper
	resolver  *resolver
}

// New creates an Engine.
//
// Example:
//
//	engine := restexec.New(
//	    restexec.WithServiceName("crm-connector"),
//	    restexec.WithLogger(logger),
//	)
//
//	res := engine.Execute(ctx, restexec.Descriptor{
//	    BaseURL: "https://api.example.com",
//	    Path:    "/v1/contacts",
//	    Auth:    restexec.BearerAuth{Token: token},
//	})
func New(opts ...Option) *Engine {
	cfg := newConfig(opts...)
	return &Engine{
		cfg:       cfg,
		transport: newTransportChain(cfg),
		resolver:  &resolver{cfg: cfg},
	}
}

// TokenStore returns the store holding this engine's OAuth2 tokens.
func (e *Engine) TokenStore() tokencache.Store {
	return e.cfg.Store
}

// Execute runs d and returns its Result. It never panics and never returns
// nil: every error, including one recovered from a panic, becomes a
// *Failure. Any HTTP response, whatever its status, is a *Success.
func (e *Engine) Execute(ctx context.Context, d Descriptor) (result Result) {
	start := time.Now()
	d = d.normalized()
	target := d.URL()

	id := uuid.NewString()
	logger := e.cfg.Logger.With().
		Str("execution_id", id).
		Str("method", d.Method).
		Str("url", target).
		Logger()

	attrs := e.cfg.baseAttributes()
	attrs = append(attrs,
		attribute.String("http.request.method", d.Method),
		attribute.String("restexec.auth", string(d.Auth.Kind())),
	)
	ctx, span := e.cfg.Tracer.Start(ctx, "restexec.Execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
		trace.WithAttributes(attribute.String("restexec.execution_id", id)),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("execution panicked")
			result = &Failure{
				Kind:    KindTransport,
				Message: fmt.Sprintf("internal error: %v", r),
				Elapsed: time.Since(start),
				URL:     target,
			}
		}

		var kind ErrorKind
		switch r := result.(type) {
		case *Success:
			span.SetAttributes(attribute.Int("http.response.status_code", r.StatusCode))
			logResponse(logger, r)
		case *Failure:
			kind = r.Kind
			span.SetAttributes(attribute.String("restexec.error.kind", string(r.Kind)))
			span.SetStatus(codes.Error, r.Message)
			logFailure(logger, r)
		}
		e.cfg.Metrics.recordExecution(ctx, time.Since(start), kind, attrs)
		span.End()
	}()

	if err := d.Validate(); err != nil {
		return normalizeError(err, start, target)
	}

	if !d.VerifySSL {
		logger.Warn().Msg("TLS certificate verification disabled for this call")
		ctx = withCallOptions(ctx, callOptions{insecure: true})
	}

	contrib, err := e.resolver.resolve(ctx, d.Auth, e.client(d.Timeout, false), logger)
	if err != nil {
		return normalizeError(err, start, target)
	}

	reqCtx := withCallOptions(ctx, callOptions{
		insecure: !d.VerifySSL,
		phase:    phaseRequest,
	})
	req, err := buildRequest(reqCtx, d, contrib, e.cfg.DefaultHeaders)
	if err != nil {
		return normalizeError(err, start, target)
	}

	if e.cfg.Debug {
		logger.Debug().Str("curl", curlCommand(req, d.Body, d.Auth)).Msg("HTTP request as cURL")
	}
	logRequest(logger, req, d.Timeout)

	resp, err := e.client(d.Timeout, d.FollowRedirects).Do(req)
	if err != nil {
		return normalizeError(wrapError(KindTransport, stripURLError(err), "%s %s", d.Method, target), start, target)
	}

	return normalizeResponse(resp, start, target)
}

// Resolve returns the credentials auth contributes to a request, running a
// token exchange if the strategy needs one. The exchange uses DefaultTimeout
// and verifies TLS.
func (e *Engine) Resolve(ctx context.Context, auth Auth) (Contribution, error) {
	return e.resolver.resolve(ctx, auth, e.client(DefaultTimeout, false), e.cfg.Logger)
}

// Invalidate drops the cached tokens of both OAuth2 grants for the given
// token endpoint and identity (client ID or username). The next resolution
// exchanges again.
func (e *Engine) Invalidate(ctx context.Context, tokenURL, identity string) error {
	return e.cfg.Store.Invalidate(ctx, tokenURL, identity)
}

// ClearAll empties the token store.
func (e *Engine) ClearAll(ctx context.Context) error {
	return e.cfg.Store.Clear(ctx)
}

// client returns an http.Client bound to one call's policy. Clients are
// cheap; the transport and its connection pools are shared.
func (e *Engine) client(timeout time.Duration, followRedirects bool) *http.Client {
	c := &http.Client{
		Transport: e.transport,
		Timeout:   ClampTimeout(timeout),
	}
	if !followRedirects {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c
}

// stripURLError unwraps *url.Error, whose message repeats the full URL and
// with it any API key carried in the query string.
func stripURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
