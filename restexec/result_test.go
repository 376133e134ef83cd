package restexec

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveContentType(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "given no header, then defaults to JSON", header: "", want: "application/json"},
		{name: "given JSON with charset, then strips parameters", header: "application/json; charset=utf-8", want: "application/json"},
		{name: "given upper case, then lower cases", header: "Text/HTML", want: "text/html"},
		{name: "given xml, then keeps it", header: "application/xml", want: "application/xml"},
		{name: "given csv, then keeps it", header: "text/csv", want: "text/csv"},
		{name: "given +json suffix, then keeps it", header: "application/problem+json", want: "application/problem+json"},
		{name: "given +xml suffix, then keeps it", header: "application/atom+xml", want: "application/atom+xml"},
		{name: "given unrecognized type, then defaults to JSON", header: "image/png", want: "application/json"},
		{name: "given malformed header, then defaults to JSON", header: ";;", want: "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveContentType(tt.header))
		})
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

func TestNormalizeResponse(t *testing.T) {
	t.Run("given response, then keeps first header value", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: http.StatusNotFound,
			Header: http.Header{
				"Content-Type": {"text/plain; charset=utf-8"},
				"Set-Cookie":   {"a=1", "b=2"},
			},
			Body: io.NopCloser(strings.NewReader("not found")),
		}

		res := normalizeResponse(resp, time.Now(), "https://api.example.com/missing")

		success, ok := res.(*Success)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, success.StatusCode)
		assert.Equal(t, "not found", success.Body)
		assert.Equal(t, "text/plain", success.ContentType)
		assert.Equal(t, "a=1", success.Headers["Set-Cookie"])
		assert.Equal(t, "https://api.example.com/missing", success.URL)
		assert.GreaterOrEqual(t, success.Elapsed, time.Duration(0))
	})

	t.Run("given unreadable body, then returns transport failure", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(errReader{}),
		}

		res := normalizeResponse(resp, time.Now(), "https://api.example.com")

		failure, ok := res.(*Failure)
		require.True(t, ok)
		assert.Equal(t, KindTransport, failure.Kind)
		assert.Contains(t, failure.Message, "connection reset by peer")
	})
}

func TestNormalizeError(t *testing.T) {
	start := time.Now().Add(-50 * time.Millisecond)

	f := normalizeError(newError(KindConfiguration, "base URL is required"), start, "")

	assert.Equal(t, KindConfiguration, f.Kind)
	assert.Equal(t, "base URL is required", f.Message)
	assert.GreaterOrEqual(t, f.Elapsed, 50*time.Millisecond)
	assert.ErrorIs(t, f.Err(), ErrConfiguration)
}

func TestMarshalResult(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{
			name: "given success, then encodes outcome and response",
			result: &Success{
				StatusCode:  http.StatusCreated,
				Headers:     map[string]string{"Location": "/v1/contacts/7"},
				Body:        `{"id":7}`,
				ContentType: "application/json",
				Elapsed:     1500 * time.Millisecond,
				URL:         "https://api.example.com/v1/contacts",
			},
			want: `{
				"outcome": "success",
				"status_code": 201,
				"headers": {"Location": "/v1/contacts/7"},
				"body": "{\"id\":7}",
				"content_type": "application/json",
				"elapsed_ms": 1500,
				"url": "https://api.example.com/v1/contacts"
			}`,
		},
		{
			name: "given failure, then encodes outcome and kind",
			result: &Failure{
				Kind:    KindAuthentication,
				Message: "token endpoint returned HTTP 401",
				Elapsed: 20 * time.Millisecond,
				URL:     "https://api.example.com/v1/contacts",
			},
			want: `{
				"outcome": "failure",
				"kind": "authentication",
				"message": "token endpoint returned HTTP 401",
				"elapsed_ms": 20,
				"url": "https://api.example.com/v1/contacts"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalResult(tt.result)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}

	_, err := MarshalResult(nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}
