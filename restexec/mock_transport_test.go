package restexec

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransport_Stubs(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name       string
		mock       *MockTransport
		path       string
		wantStatus int
		wantBody   string
		wantHeader string
		wantErr    error
	}{
		{
			name:       "given path stub, then matches path",
			mock:       NewMockTransport().StubPath("/a", http.StatusAccepted, "a"),
			path:       "/a",
			wantStatus: http.StatusAccepted,
			wantBody:   "a",
		},
		{
			name: "given path stub and default, then falls back to default",
			mock: NewMockTransport().
				StubPath("/a", http.StatusAccepted, "a").
				StubResponse(http.StatusTeapot, "default"),
			path:       "/b",
			wantStatus: http.StatusTeapot,
			wantBody:   "default",
		},
		{
			name: "given stub with headers, then returns them",
			mock: NewMockTransport().
				StubPathWithHeaders("/h", http.StatusOK, "h", http.Header{"Content-Type": {"text/csv"}}),
			path:       "/h",
			wantStatus: http.StatusOK,
			wantBody:   "h",
			wantHeader: "text/csv",
		},
		{
			name:    "given error stub, then returns error",
			mock:    NewMockTransport().StubFuncError(func(*http.Request) bool { return true }, errBoom),
			path:    "/x",
			wantErr: errBoom,
		},
		{
			name:    "given default error, then returns it",
			mock:    NewMockTransport().StubError(errBoom),
			path:    "/x",
			wantErr: errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "https://api.example.com"+tt.path, nil)
			require.NoError(t, err)

			resp, err := tt.mock.RoundTrip(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, string(body))
			if tt.wantHeader != "" {
				assert.Equal(t, tt.wantHeader, resp.Header.Get("Content-Type"))
			}
		})
	}
}

func TestMockTransport_NoStub(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/none", nil)
	require.NoError(t, err)

	_, err = NewMockTransport().RoundTrip(req)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stub found")
}

func TestMockTransport_RecordsRequests(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")

	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/items", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	_, err = mock.RoundTrip(req)
	require.NoError(t, err)

	last := mock.LastRequest()
	require.NotNil(t, last)
	assert.Equal(t, `{"a":1}`, string(last.Body))
	assert.Equal(t, 1, mock.CountPath("/items"))
	assert.Zero(t, mock.CountPath("/other"))

	mock.Reset()
	assert.Zero(t, mock.RequestCount())
	assert.Nil(t, mock.LastRequest())
}

func TestMockTransport_ConcurrentResponses(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "shared body")

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
			resp, err := mock.RoundTrip(req)
			if !assert.NoError(t, err) {
				return
			}
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, "shared body", string(body))
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, mock.RequestCount())
	assert.Len(t, mock.Requests(), 16)
}
