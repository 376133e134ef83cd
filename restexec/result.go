package restexec

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Result is the outcome of Engine.Execute: exactly one of *Success or
// *Failure.
//
//	switch r := engine.Execute(ctx, d).(type) {
//	case *restexec.Success:
//	    fmt.Println(r.StatusCode, r.Body)
//	case *restexec.Failure:
//	    fmt.Println(r.Kind, r.Message)
//	}
type Result interface {
	isResult()
}

// Success is any HTTP response, whatever its status code.
type Success struct {
	StatusCode int
	// Headers holds the first value of every response header, keyed by
	// canonical name.
	Headers     map[string]string
	Body        string
	ContentType string
	Elapsed     time.Duration
	URL         string
}

// Failure is an execution that produced no HTTP response.
type Failure struct {
	Kind    ErrorKind
	Message string
	Elapsed time.Duration
	URL     string
}

func (*Success) isResult() {}
func (*Failure) isResult() {}

// Err returns the failure as an *Error.
func (f *Failure) Err() error {
	return &Error{Kind: f.Kind, Message: f.Message}
}

// recognizedContentTypes are reported as-is; anything else is reported as
// DefaultContentType.
var recognizedContentTypes = map[string]struct{}{
	"application/json":                  {},
	"application/xml":                   {},
	"text/xml":                          {},
	"text/plain":                        {},
	"text/html":                         {},
	"text/csv":                          {},
	"application/x-www-form-urlencoded": {},
	"multipart/form-data":               {},
	"application/octet-stream":          {},
	"application/pdf":                   {},
}

// resolveContentType returns the media type of a Content-Type header value,
// without parameters, or DefaultContentType when it is absent or not
// recognized.
func resolveContentType(header string) string {
	if header == "" {
		return DefaultContentType
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return DefaultContentType
	}
	if _, ok := recognizedContentTypes[mediaType]; ok {
		return mediaType
	}
	if strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml") {
		return mediaType
	}
	return DefaultContentType
}

// firstValues flattens h keeping the first value of every name.
func firstValues(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[http.CanonicalHeaderKey(k)] = vs[0]
		}
	}
	return out
}

// normalizeResponse reads and closes resp.Body. A body that cannot be read
// turns the outcome into a Transport failure.
func normalizeResponse(resp *http.Response, start time.Time, target string) Result {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return normalizeError(wrapError(KindTransport, err, "read response body"), start, target)
	}

	return &Success{
		StatusCode:  resp.StatusCode,
		Headers:     firstValues(resp.Header),
		Body:        string(body),
		ContentType: resolveContentType(resp.Header.Get("Content-Type")),
		Elapsed:     time.Since(start),
		URL:         target,
	}
}

// normalizeError converts any error into a Failure, keeping the cause's
// message.
func normalizeError(err error, start time.Time, target string) *Failure {
	kind := KindOf(err)

	message := err.Error()
	var e *Error
	if errors.As(err, &e) && message == "" {
		message = string(e.Kind) + " error"
	}

	return &Failure{
		Kind:    kind,
		Message: message,
		Elapsed: time.Since(start),
		URL:     target,
	}
}

// =============================================================================
// JSON
// =============================================================================

type successJSON struct {
	Outcome     string            `json:"outcome"`
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	ContentType string            `json:"content_type"`
	ElapsedMs   int64             `json:"elapsed_ms"`
	URL         string            `json:"url"`
}

type failureJSON struct {
	Outcome   string    `json:"outcome"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	ElapsedMs int64     `json:"elapsed_ms"`
	URL       string    `json:"url"`
}

// MarshalResult encodes r as JSON with an "outcome" discriminator of
// "success" or "failure".
func MarshalResult(r Result) ([]byte, error) {
	switch v := r.(type) {
	case *Success:
		return json.Marshal(successJSON{
			Outcome:     "success",
			StatusCode:  v.StatusCode,
			Headers:     v.Headers,
			Body:        v.Body,
			ContentType: v.ContentType,
			ElapsedMs:   v.Elapsed.Milliseconds(),
			URL:         v.URL,
		})
	case *Failure:
		return json.Marshal(failureJSON{
			Outcome:   "failure",
			Kind:      v.Kind,
			Message:   v.Message,
			ElapsedMs: v.Elapsed.Milliseconds(),
			URL:       v.URL,
		})
	default:
		return nil, newError(KindConfiguration, "unknown result type %T", r)
	}
}
