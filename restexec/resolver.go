package restexec

import (
	"context"
	"encoding/base64"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kroma-labs/sentinel-rest/tokencache"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultExpiresIn is assumed when a token response has no expires_in.
	DefaultExpiresIn = 3600 * time.Second

	// ExpirySafetyBuffer is subtracted from every token lifetime before it
	// is cached. A token is never handed out within this window of its
	// real expiry.
	ExpirySafetyBuffer = 60 * time.Second
)

// Contribution is what an authentication strategy adds to a request.
type Contribution struct {
	Headers http.Header
	Query   url.Values
}

func headerContribution(name, value string) Contribution {
	h := make(http.Header, 1)
	h.Set(name, value)
	return Contribution{Headers: h}
}

func bearer(token string) Contribution {
	return headerContribution("Authorization", "Bearer "+token)
}

// resolver turns a strategy into a Contribution. It is safe for concurrent
// use; the token store is its only shared state.
type resolver struct {
	cfg *internalConfig
}

// resolve dispatches on the strategy variant. client is used for token
// exchanges only.
func (r *resolver) resolve(
	ctx context.Context,
	auth Auth,
	client *http.Client,
	logger zerolog.Logger,
) (Contribution, error) {
	auth = normalizeAuth(auth)
	if err := auth.validate(); err != nil {
		return Contribution{}, err
	}

	switch a := auth.(type) {
	case NoAuth:
		return Contribution{}, nil

	case BasicAuth:
		creds := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
		return headerContribution("Authorization", "Basic "+creds), nil

	case BearerAuth:
		return bearer(a.Token), nil

	case APIKeyAuth:
		if a.Placement == APIKeyInQuery {
			return Contribution{Query: url.Values{a.Name: {a.Value}}}, nil
		}
		return headerContribution(a.Name, a.Value), nil

	case ClientCredentialsAuth:
		return r.resolveOAuth(ctx, a.cacheKey(), logger, func(ctx context.Context) (*oauth2.Token, error) {
			conf := clientcredentials.Config{
				ClientID:     a.ClientID,
				ClientSecret: a.ClientSecret,
				TokenURL:     a.TokenURL,
				Scopes:       strings.Fields(a.Scope),
				AuthStyle:    oauth2.AuthStyleInParams,
			}
			return conf.Token(context.WithValue(ctx, oauth2.HTTPClient, client))
		})

	case PasswordAuth:
		return r.resolveOAuth(ctx, a.cacheKey(), logger, func(ctx context.Context) (*oauth2.Token, error) {
			conf := oauth2.Config{
				ClientID: a.ClientID,
				Endpoint: oauth2.Endpoint{
					TokenURL:  a.TokenURL,
					AuthStyle: oauth2.AuthStyleInParams,
				},
			}
			return conf.PasswordCredentialsToken(
				context.WithValue(ctx, oauth2.HTTPClient, client),
				a.Username,
				a.Password,
			)
		})

	default:
		return Contribution{}, newError(KindConfiguration, "unsupported auth strategy %T", auth)
	}
}

// resolveOAuth serves key from the store while it is valid, and otherwise
// runs exchange and caches the result. Concurrent misses on one key may all
// exchange; the last Put wins.
func (r *resolver) resolveOAuth(
	ctx context.Context,
	key tokencache.Key,
	logger zerolog.Logger,
	exchange func(context.Context) (*oauth2.Token, error),
) (Contribution, error) {
	attrs := []attribute.KeyValue{
		attribute.String("restexec.grant", string(key.Grant)),
	}
	logger = logger.With().
		Str("grant", string(key.Grant)).
		Str("token_url", key.TokenURL).
		Logger()

	entry, ok, err := r.cfg.Store.Get(ctx, key)
	if err != nil {
		// An unreachable store degrades to a miss.
		logger.Warn().Err(err).Msg("token cache lookup failed")
	}
	if ok && entry.Valid(r.cfg.Clock()) {
		r.cfg.Metrics.recordTokenCacheHit(ctx, attrs)
		logger.Debug().Time("expires_at", entry.ExpiresAt).Msg("token cache hit")
		return bearer(entry.Token), nil
	}
	r.cfg.Metrics.recordTokenCacheMiss(ctx, attrs)

	ctx, span := r.cfg.Tracer.Start(ctx, "restexec.TokenExchange",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	start := time.Now()
	tok, err := exchange(withCallOptions(ctx, callOptions{
		insecure: callOptionsFrom(ctx).insecure,
		phase:    phaseTokenExchange,
	}))
	r.cfg.Metrics.recordTokenExchange(ctx, time.Since(start), attrs)

	if err != nil {
		classified := classifyExchangeError(key.TokenURL, err)
		span.RecordError(classified)
		span.SetStatus(codes.Error, classified.Error())
		logger.Warn().Err(err).Str("kind", string(classified.Kind)).Msg("token exchange failed")
		return Contribution{}, classified
	}

	now := r.cfg.Clock()
	entry = tokencache.Entry{
		Token:     tok.AccessToken,
		ExpiresAt: now.Add(tokenLifetime(tok, now) - ExpirySafetyBuffer),
	}
	if err := r.cfg.Store.Put(ctx, key, entry); err != nil {
		// The token is still good for this call.
		logger.Warn().Err(err).Msg("token cache store failed")
	}

	logger.Debug().Time("expires_at", entry.ExpiresAt).Msg("token exchanged")
	return bearer(entry.Token), nil
}

// tokenLifetime returns the expires_in of the token response, falling back
// to DefaultExpiresIn when it is absent or not positive.
func tokenLifetime(tok *oauth2.Token, now time.Time) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}

	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return time.Duration(math.Round(v)) * time.Second
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}

	if !tok.Expiry.IsZero() && tok.Expiry.After(now) {
		return tok.Expiry.Sub(now).Round(time.Second)
	}

	return DefaultExpiresIn
}
