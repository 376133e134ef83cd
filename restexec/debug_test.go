package restexec

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurlCommand(t *testing.T) {
	tests := []struct {
		name       string
		descriptor Descriptor
		contrib    Contribution
		want       string
	}{
		{
			name:       "given plain GET, then omits method",
			descriptor: Descriptor{BaseURL: "https://api.example.com", Path: "/v1/ping", Method: http.MethodGet},
			want:       `curl 'https://api.example.com/v1/ping'`,
		},
		{
			name: "given POST with body, then quotes the body",
			descriptor: Descriptor{
				BaseURL: "https://api.example.com",
				Path:    "/v1/notes",
				Method:  http.MethodPost,
				Body:    Body(`{"text":"it's"}`),
			},
			want: `curl -X POST 'https://api.example.com/v1/notes' -H 'Content-Type: application/json' --data-raw '{"text":"it'\''s"}'`,
		},
		{
			name: "given authorization header, then masks it",
			descriptor: Descriptor{
				BaseURL: "https://api.example.com",
				Method:  http.MethodGet,
				Auth:    BasicAuth{Username: "user", Password: "pass"},
			},
			contrib: headerContribution("Authorization", "Basic dXNlcjpwYXNz"),
			want:    `curl 'https://api.example.com' -H 'Authorization: REDACTED'`,
		},
		{
			name: "given api key header, then masks it",
			descriptor: Descriptor{
				BaseURL: "https://api.example.com",
				Method:  http.MethodGet,
				Auth:    APIKeyAuth{Name: "x-api-key", Value: "k"},
			},
			contrib: headerContribution("x-api-key", "k"),
			want:    `curl 'https://api.example.com' -H 'X-Api-Key: REDACTED'`,
		},
		{
			name: "given api key query, then masks only the key",
			descriptor: Descriptor{
				BaseURL:     "https://api.example.com",
				Method:      http.MethodGet,
				QueryParams: map[string]string{"page": "2"},
				Auth:        APIKeyAuth{Placement: APIKeyInQuery, Name: "key", Value: "k"},
			},
			want: `curl 'https://api.example.com?key=REDACTED&page=2'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.descriptor
			contrib := tt.contrib
			if k, ok := d.Auth.(APIKeyAuth); ok && k.Placement == APIKeyInQuery {
				contrib.Query = map[string][]string{k.Name: {k.Value}}
			}

			req, err := buildRequest(context.Background(), d, contrib, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.want, curlCommand(req, d.Body, d.Auth))
		})
	}
}
