package restexec

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest_Headers(t *testing.T) {
	defaults := http.Header{
		"User-Agent":   {"restexec-test"},
		"Content-Type": {"text/plain"},
		"X-Tenant":     {"default"},
	}

	tests := []struct {
		name        string
		descriptor  Descriptor
		contrib     Contribution
		wantHeaders map[string]string
		wantAbsent  []string
	}{
		{
			name:       "given no body, then no content type beyond defaults",
			descriptor: Descriptor{BaseURL: "https://api.example.com", Method: http.MethodGet},
			wantHeaders: map[string]string{
				"User-Agent":   "restexec-test",
				"Content-Type": "text/plain",
				"X-Tenant":     "default",
			},
		},
		{
			name: "given body without content type, then sends application/json",
			descriptor: Descriptor{
				BaseURL: "https://api.example.com",
				Method:  http.MethodPost,
				Body:    Body(`{}`),
			},
			wantHeaders: map[string]string{"Content-Type": "application/json"},
		},
		{
			name: "given body with content type, then sends it",
			descriptor: Descriptor{
				BaseURL:     "https://api.example.com",
				Method:      http.MethodPost,
				Body:        Body(`<a/>`),
				ContentType: "application/xml",
			},
			wantHeaders: map[string]string{"Content-Type": "application/xml"},
		},
		{
			name:       "given auth contribution, then overrides defaults",
			descriptor: Descriptor{BaseURL: "https://api.example.com", Method: http.MethodGet},
			contrib:    headerContribution("x-tenant", "from-auth"),
			wantHeaders: map[string]string{
				"X-Tenant": "from-auth",
			},
		},
		{
			name: "given caller header, then overrides auth contribution",
			descriptor: Descriptor{
				BaseURL: "https://api.example.com",
				Method:  http.MethodGet,
				Headers: map[string]string{"authorization": "Bearer override"},
			},
			contrib:     bearer("x"),
			wantHeaders: map[string]string{"Authorization": "Bearer override"},
		},
		{
			name: "given caller content type, then overrides body default",
			descriptor: Descriptor{
				BaseURL: "https://api.example.com",
				Method:  http.MethodPost,
				Body:    Body(`x`),
				Headers: map[string]string{"Content-Type": "text/csv"},
			},
			wantHeaders: map[string]string{"Content-Type": "text/csv"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := buildRequest(context.Background(), tt.descriptor, tt.contrib, defaults)
			require.NoError(t, err)

			for k, v := range tt.wantHeaders {
				assert.Equal(t, v, req.Header.Get(k), k)
				assert.Len(t, req.Header.Values(k), 1, k)
			}
			for _, k := range tt.wantAbsent {
				assert.Empty(t, req.Header.Get(k), k)
			}
		})
	}
}

func TestBuildRequest_Query(t *testing.T) {
	tests := []struct {
		name       string
		descriptor Descriptor
		contrib    Contribution
		want       url.Values
		wantRaw    string
	}{
		{
			name:       "given no params, then leaves URL untouched",
			descriptor: Descriptor{BaseURL: "https://api.example.com", Path: "/v1/items"},
			wantRaw:    "",
		},
		{
			name: "given descriptor params, then encodes them",
			descriptor: Descriptor{
				BaseURL:     "https://api.example.com",
				Path:        "/v1/items",
				QueryParams: map[string]string{"q": "a b", "page": "2"},
			},
			want: url.Values{"q": {"a b"}, "page": {"2"}},
		},
		{
			name: "given auth query param, then wins over descriptor",
			descriptor: Descriptor{
				BaseURL:     "https://api.example.com",
				Path:        "/v1/items",
				QueryParams: map[string]string{"api_key": "caller", "page": "1"},
			},
			contrib: Contribution{Query: url.Values{"api_key": {"secret"}}},
			want:    url.Values{"api_key": {"secret"}, "page": {"1"}},
		},
		{
			name: "given query already in path, then merges",
			descriptor: Descriptor{
				BaseURL:     "https://api.example.com",
				Path:        "/v1/items?sort=asc",
				QueryParams: map[string]string{"page": "3"},
			},
			want: url.Values{"sort": {"asc"}, "page": {"3"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.descriptor.normalized()
			req, err := buildRequest(context.Background(), d, tt.contrib, nil)
			require.NoError(t, err)

			if tt.want == nil {
				assert.Equal(t, tt.wantRaw, req.URL.RawQuery)
				return
			}
			assert.Equal(t, tt.want, req.URL.Query())
		})
	}
}

func TestBuildRequest_Body(t *testing.T) {
	payload := "{\"name\": \"Ada\",\n \"emoji\": \"\u2603\", \"raw\": \"\\u0000\"}  "

	tests := []struct {
		name     string
		body     *string
		wantBody string
		wantLen  int64
	}{
		{
			name:     "given body, then sends it byte-for-byte",
			body:     Body(payload),
			wantBody: payload,
			wantLen:  int64(len(payload)),
		},
		{
			name:     "given empty body, then sends empty payload",
			body:     Body(""),
			wantBody: "",
			wantLen:  0,
		},
		{
			name:     "given no body, then sends nothing",
			body:     nil,
			wantBody: "",
			wantLen:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Descriptor{BaseURL: "https://api.example.com", Method: http.MethodPost, Body: tt.body}

			req, err := buildRequest(context.Background(), d, Contribution{}, nil)
			require.NoError(t, err)

			got, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(got))
			assert.Equal(t, tt.wantLen, req.ContentLength)
		})
	}
}

func TestBuildRequest_HostHeader(t *testing.T) {
	d := Descriptor{
		BaseURL: "https://10.0.0.7",
		Method:  http.MethodGet,
		Headers: map[string]string{"host": "api.internal"},
	}

	req, err := buildRequest(context.Background(), d, Contribution{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "api.internal", req.Host)
	assert.Empty(t, req.Header.Get("Host"))
}
