package restexec

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	assert.InEpsilon(t, 100.0, cfg.RequestsPerSecond, 0.001)
	assert.Equal(t, 10, cfg.Burst)
	assert.True(t, cfg.WaitOnLimit)
}

func TestNewRateLimitTransport(t *testing.T) {
	next := NewMockTransport()

	tests := []struct {
		name      string
		cfg       RateLimitConfig
		wantLimit bool
		wantBurst int
	}{
		{name: "given zero rate, then returns next unchanged", cfg: RateLimitConfig{}, wantLimit: false},
		{name: "given rate without burst, then uses burst of one", cfg: RateLimitConfig{RequestsPerSecond: 5}, wantLimit: true, wantBurst: 1},
		{name: "given rate and burst, then uses them", cfg: RateLimitConfig{RequestsPerSecond: 5, Burst: 3}, wantLimit: true, wantBurst: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRateLimitTransport(next, tt.cfg)

			limited, ok := rt.(*rateLimitTransport)
			assert.Equal(t, tt.wantLimit, ok)
			if ok {
				assert.Equal(t, tt.wantBurst, limited.limiter.Burst())
			}
		})
	}
}

func TestExecute_RateLimitRejects(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
	engine := New(
		WithMockTransport(mock),
		WithRateLimit(RateLimitConfig{RequestsPerSecond: 0.1, Burst: 1, WaitOnLimit: false}),
	)
	d := Descriptor{BaseURL: "https://api.example.com", VerifySSL: true}

	requireSuccess(t, engine.Execute(context.Background(), d))
	failure := requireFailure(t, engine.Execute(context.Background(), d))

	assert.Equal(t, KindTransport, failure.Kind)
	assert.Contains(t, failure.Message, ErrRateLimited.Error())
	assert.Equal(t, 1, mock.RequestCount())
}

func TestExecute_RateLimitWaitsWithinTimeout(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
	engine := New(
		WithMockTransport(mock),
		WithRateLimit(RateLimitConfig{RequestsPerSecond: 10, Burst: 1, WaitOnLimit: true}),
	)
	d := Descriptor{BaseURL: "https://api.example.com", Timeout: 2 * time.Second, VerifySSL: true}

	start := time.Now()
	for range 3 {
		requireSuccess(t, engine.Execute(context.Background(), d))
	}

	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 3, mock.RequestCount())
}

func TestExecute_RateLimitWaitBeyondTimeout(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
	engine := New(
		WithMockTransport(mock),
		WithRateLimit(RateLimitConfig{RequestsPerSecond: 0.1, Burst: 1, WaitOnLimit: true}),
	)
	d := Descriptor{BaseURL: "https://api.example.com", Timeout: 200 * time.Millisecond, VerifySSL: true}

	requireSuccess(t, engine.Execute(context.Background(), d))
	failure := requireFailure(t, engine.Execute(context.Background(), d))

	require.Equal(t, KindTransport, failure.Kind)
	assert.Less(t, failure.Elapsed, time.Second, "limiter must not wait past the deadline")
	assert.Equal(t, 1, mock.RequestCount())
}

func TestRateLimitTransport_Admit(t *testing.T) {
	tests := []struct {
		name    string
		wait    bool
		ctx     func(t *testing.T) context.Context
		wantErr error
	}{
		{
			name:    "given no wait and empty bucket, then rejects",
			ctx:     func(*testing.T) context.Context { return context.Background() },
			wantErr: ErrRateLimited,
		},
		{
			name: "given wait and slot past deadline, then rejects without waiting",
			wait: true,
			ctx: func(t *testing.T) context.Context {
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				t.Cleanup(cancel)
				return ctx
			},
			wantErr: ErrRateLimited,
		},
		{
			name: "given wait and canceled context, then returns the cancellation",
			wait: true,
			ctx: func(t *testing.T) context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRateLimitTransport(NewMockTransport(), RateLimitConfig{
				RequestsPerSecond: 0.5,
				Burst:             1,
				WaitOnLimit:       tt.wait,
			}).(*rateLimitTransport)
			require.NoError(t, rt.admit(context.Background()))

			start := time.Now()
			err := rt.admit(tt.ctx(t))

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Less(t, time.Since(start), 500*time.Millisecond)
		})
	}
}
