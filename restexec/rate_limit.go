package restexec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures engine-wide outbound rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum sustained request rate.
	RequestsPerSecond float64

	// Burst is the maximum number of requests allowed in a burst.
	Burst int

	// WaitOnLimit makes requests wait for a token, bounded by the
	// Descriptor timeout. When false, requests over the limit fail at once
	// with ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig returns 100 requests per second with a burst of 10,
// waiting when the limit is hit.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// ErrRateLimited is the cause of a Transport failure rejected by the limiter.
var ErrRateLimited = errors.New("rate limit exceeded")

// rateLimitTransport admits round trips through a token bucket shared by
// business requests and token exchanges.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
	wait    bool
}

// newRateLimitTransport wraps next, or returns it unchanged when the rate
// is not positive.
func newRateLimitTransport(next http.RoundTripper, cfg RateLimitConfig) http.RoundTripper {
	if cfg.RequestsPerSecond <= 0 {
		return next
	}
	return &rateLimitTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1)),
		wait:    cfg.WaitOnLimit,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.admit(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// admit takes one token. Without wait it fails when none is available;
// with wait it sleeps for the next slot unless that slot lies past the
// context deadline, in which case it fails at once and gives the slot back.
func (t *rateLimitTransport) admit(ctx context.Context) error {
	if !t.wait {
		if t.limiter.Allow() {
			return nil
		}
		return ErrRateLimited
	}

	r := t.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		r.Cancel()
		return fmt.Errorf("%w: next slot in %s is past the deadline", ErrRateLimited, delay.Round(time.Millisecond))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
