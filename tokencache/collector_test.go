package tokencache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	ctx := context.Background()
	entry := Entry{Token: "abc", ExpiresAt: time.Now().Add(time.Hour)}

	tests := []struct {
		name  string
		setup func(t *testing.T) Counter
		want  float64
	}{
		{
			name: "given empty memory store, then reports zero",
			setup: func(_ *testing.T) Counter {
				return NewMemory()
			},
			want: 0,
		},
		{
			name: "given memory store with two entries, then reports two",
			setup: func(t *testing.T) Counter {
				m := NewMemory()
				require.NoError(t, m.Put(ctx, ccKey, entry))
				require.NoError(t, m.Put(ctx, pwKey, entry))
				return m
			},
			want: 2,
		},
		{
			name: "given redis store with one entry, then reports one",
			setup: func(t *testing.T) Counter {
				store, _ := newTestRedis(t)
				require.NoError(t, store.Put(ctx, ccKey, entry))
				return store
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector(tt.setup(t), "test")
			assert.InDelta(t, tt.want, testutil.ToFloat64(c), 0)
		})
	}
}

func TestCollector_Exposition(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Put(context.Background(), ccKey, Entry{Token: "abc"}))

	expected := `
# HELP restexec_token_cache_entries Number of access tokens held by the token cache, expired ones included.
# TYPE restexec_token_cache_entries gauge
restexec_token_cache_entries{store="memory"} 1
`
	err := testutil.CollectAndCompare(
		NewCollector(m, "memory"),
		strings.NewReader(expected),
		"restexec_token_cache_entries",
	)
	assert.NoError(t, err)
}
