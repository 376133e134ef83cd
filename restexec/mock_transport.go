package restexec

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
)

// MockTransport is an http.RoundTripper for tests. It returns stubbed
// responses and records every request it sees, token exchanges included.
//
// Example:
//
//	mock := restexec.NewMockTransport().
//	    StubPath("/oauth/token", http.StatusOK, `{"access_token":"abc123","expires_in":3600}`).
//	    StubResponse(http.StatusOK, `{"ok":true}`)
//	engine := restexec.New(restexec.WithMockTransport(mock))
type MockTransport struct {
	mu          sync.RWMutex
	stubs       []stub
	defaultResp *stub
	defaultErr  error
	requests    []RecordedRequest
}

// RecordedRequest is a request seen by MockTransport with its body read.
type RecordedRequest struct {
	*http.Request
	Body []byte
}

type stub struct {
	matcher    func(*http.Request) bool
	statusCode int
	body       string
	header     http.Header
	err        error
}

// response builds a fresh response so concurrent requests never share a body.
func (s stub) response(req *http.Request) *http.Response {
	header := s.header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode:    s.statusCode,
		Status:        http.StatusText(s.statusCode),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewBufferString(s.body)),
		ContentLength: int64(len(s.body)),
		Request:       req,
	}
}

// NewMockTransport creates an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse makes every unmatched request return statusCode and body.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = &stub{statusCode: statusCode, body: body}
	return m
}

// StubError makes every unmatched request fail with err.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultErr = err
	return m
}

// StubPath stubs requests whose URL path equals path.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, statusCode, body)
}

// StubPathWithHeaders stubs requests whose URL path equals path with a
// response carrying header.
func (m *MockTransport) StubPathWithHeaders(
	path string,
	statusCode int,
	body string,
	header http.Header,
) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{
		matcher:    func(req *http.Request) bool { return req.URL.Path == path },
		statusCode: statusCode,
		body:       body,
		header:     header,
	})
	return m
}

// StubFunc stubs requests matching the predicate. Stubs are checked in
// registration order.
func (m *MockTransport) StubFunc(
	matcher func(*http.Request) bool,
	statusCode int,
	body string,
) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{
		matcher:    matcher,
		statusCode: statusCode,
		body:       body,
	})
	return m
}

// StubFuncError makes requests matching the predicate fail with err.
func (m *MockTransport) StubFuncError(matcher func(*http.Request) bool, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{matcher: matcher, err: err})
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{Request: req, Body: body})
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.stubs {
		if s.matcher(req) {
			if s.err != nil {
				return nil, s.err
			}
			return s.response(req), nil
		}
	}

	if m.defaultErr != nil {
		return nil, m.defaultErr
	}
	if m.defaultResp != nil {
		return m.defaultResp.response(req), nil
	}

	return nil, errors.New("no stub found for request: " + req.Method + " " + req.URL.String())
}

// Requests returns every recorded request.
func (m *MockTransport) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest{}, m.requests...)
}

// RequestCount returns the number of recorded requests.
func (m *MockTransport) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// CountPath returns the number of recorded requests to path.
func (m *MockTransport) CountPath(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if r.URL.Path == path {
			n++
		}
	}
	return n
}

// LastRequest returns the most recent request, or nil if none.
func (m *MockTransport) LastRequest() *RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return nil
	}
	r := m.requests[len(m.requests)-1]
	return &r
}

// Reset clears recorded requests and stubs.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.stubs = nil
	m.defaultResp = nil
	m.defaultErr = nil
}
