package restexec

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const redacted = "REDACTED"

// sensitiveHeaders are always masked in debug output.
var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Cookie":              {},
}

// curlCommand renders req as an equivalent cURL command with credentials
// masked. auth names the API key header or query parameter to mask, if any.
//
//	curl -X POST 'https://api.example.com/users' \
//	  -H 'Authorization: REDACTED' \
//	  -H 'Content-Type: application/json' \
//	  -d '{"name":"John"}'
func curlCommand(req *http.Request, body *string, auth Auth) string {
	var keyHeader, keyParam string
	if k, ok := auth.(APIKeyAuth); ok {
		if k.Placement == APIKeyInQuery {
			keyParam = k.Name
		} else {
			keyHeader = http.CanonicalHeaderKey(k.Name)
		}
	}

	parts := []string{"curl"}
	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}

	u := *req.URL
	if keyParam != "" {
		q := u.Query()
		if q.Has(keyParam) {
			q.Set(keyParam, redacted)
			u.RawQuery = q.Encode()
		}
	}
	parts = append(parts, shellQuote(u.String()))

	names := make([]string, 0, len(req.Header))
	for k := range req.Header {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		_, sensitive := sensitiveHeaders[k]
		for _, v := range req.Header[k] {
			if sensitive || k == keyHeader {
				v = redacted
			}
			parts = append(parts, "-H", shellQuote(k+": "+v))
		}
	}
	if req.Host != "" && req.Host != req.URL.Host {
		parts = append(parts, "-H", shellQuote("Host: "+req.Host))
	}

	if body != nil {
		parts = append(parts, "--data-raw", shellQuote(*body))
	}

	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// logRequest logs the business request at debug level.
func logRequest(logger zerolog.Logger, req *http.Request, timeout time.Duration) {
	logger.Debug().
		Str("method", req.Method).
		Str("host", req.URL.Host).
		Str("path", req.URL.Path).
		Dur("timeout", timeout).
		Msg("HTTP request")
}

// logResponse logs the business response at debug level.
func logResponse(logger zerolog.Logger, res *Success) {
	logger.Debug().
		Int("status", res.StatusCode).
		Str("content_type", res.ContentType).
		Int("body_bytes", len(res.Body)).
		Dur("elapsed", res.Elapsed).
		Msg("HTTP response")
}

// logFailure logs a failed execution. Configuration failures are the
// caller's mistake and logged at debug level; everything else at warn.
func logFailure(logger zerolog.Logger, f *Failure) {
	ev := logger.Warn()
	if f.Kind == KindConfiguration {
		ev = logger.Debug()
	}
	ev.Str("kind", string(f.Kind)).
		Str("error", f.Message).
		Dur("elapsed", f.Elapsed).
		Msg("execution failed")
}
