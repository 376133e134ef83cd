package restexec

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Timeout bounds applied to every Descriptor.
const (
	MinTimeout     = 100 * time.Millisecond
	MaxTimeout     = 5 * time.Minute
	DefaultTimeout = 30 * time.Second
)

// DefaultContentType is sent with a body when the Descriptor names none,
// and reported for responses without a recognized Content-Type.
const DefaultContentType = "application/json"

// Descriptor describes one HTTP call. It is a plain value: build one per
// call, hand it to Engine.Execute, and discard it.
//
// Placeholders such as {{name}} must already be substituted; the engine
// sends every field as given.
type Descriptor struct {
	// BaseURL is the scheme and host, optionally with a path prefix.
	// A trailing slash is stripped before Path is appended.
	BaseURL string

	// Path is appended to BaseURL verbatim.
	Path string

	// Method defaults to GET. It is upper-cased.
	Method string

	// QueryParams are set on the URL before any auth query parameter.
	QueryParams map[string]string

	// Headers are the caller headers. They win over every other source.
	Headers map[string]string

	// Body is sent byte-for-byte when non-nil.
	Body *string

	// ContentType is sent with Body. Defaults to DefaultContentType.
	ContentType string

	// Timeout bounds the business call and, separately, the token exchange.
	// Zero means DefaultTimeout; other values are clamped into
	// [MinTimeout, MaxTimeout].
	Timeout time.Duration

	// FollowRedirects follows 3xx responses. When false the 3xx itself is
	// returned as a Success.
	FollowRedirects bool

	// VerifySSL must be true for certificate and hostname validation.
	// Setting it to false disables validation for this call only.
	VerifySSL bool

	// Auth is the authentication strategy. Nil means NoAuth.
	Auth Auth
}

// ClampTimeout applies the timeout policy: zero becomes DefaultTimeout,
// anything else is clamped into [MinTimeout, MaxTimeout].
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultTimeout
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	default:
		return d
	}
}

// Body returns a pointer to s, for building a Descriptor literal.
func Body(s string) *string {
	return &s
}

// normalized returns a copy with defaults applied. Maps are shared with d.
func (d Descriptor) normalized() Descriptor {
	d.Method = strings.ToUpper(strings.TrimSpace(d.Method))
	if d.Method == "" {
		d.Method = http.MethodGet
	}
	d.Timeout = ClampTimeout(d.Timeout)
	d.Auth = normalizeAuth(d.Auth)
	return d
}

// URL returns BaseURL with its trailing slash stripped followed by Path.
// Query parameters are not included.
func (d Descriptor) URL() string {
	return strings.TrimSuffix(d.BaseURL, "/") + d.Path
}

// Validate reports a Configuration error for a Descriptor that cannot be
// executed. It performs no I/O.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.BaseURL) == "" {
		return newError(KindConfiguration, "base URL is required")
	}

	u, err := url.Parse(d.URL())
	if err != nil {
		return wrapError(KindConfiguration, err, "invalid URL %q", d.URL())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return newError(KindConfiguration, "unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return newError(KindConfiguration, "URL %q has no host", d.URL())
	}

	if method := strings.TrimSpace(d.Method); method != "" && !validMethod(method) {
		return newError(KindConfiguration, "invalid method %q", d.Method)
	}

	for name := range d.Headers {
		if !validHeaderName(name) {
			return newError(KindConfiguration, "invalid header name %q", name)
		}
	}

	return normalizeAuth(d.Auth).validate()
}

// validMethod reports whether m is an RFC 9110 token.
func validMethod(m string) bool {
	return validHeaderName(m)
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r > 0x7e || r <= ' ' || strings.ContainsRune(`"(),/:;<=>?@[\]{}`, r) {
			return false
		}
	}
	return true
}

// =============================================================================
// JSON
// =============================================================================

// descriptorJSON is the file format read by the CLI.
type descriptorJSON struct {
	BaseURL         string            `json:"base_url"`
	Path            string            `json:"path,omitempty"`
	Method          string            `json:"method,omitempty"`
	Query           map[string]string `json:"query,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            json.RawMessage   `json:"body,omitempty"`
	ContentType     string            `json:"content_type,omitempty"`
	TimeoutMs       int64             `json:"timeout_ms,omitempty"`
	FollowRedirects bool              `json:"follow_redirects,omitempty"`
	VerifySSL       *bool             `json:"verify_ssl,omitempty"`
	Auth            json.RawMessage   `json:"auth,omitempty"`
}

// ParseDescriptor decodes the JSON form of a Descriptor:
//
//	{
//	  "base_url": "https://api.example.com",
//	  "path": "/v1/contacts",
//	  "method": "POST",
//	  "query": {"dry_run": "true"},
//	  "headers": {"X-Request-Source": "workflow"},
//	  "body": {"name": "Ada"},
//	  "timeout_ms": 5000,
//	  "auth": {"type": "bearer", "token": "..."}
//	}
//
// "body" may be a JSON string, sent as its text, or any other JSON value,
// sent as its compact encoding. "verify_ssl" defaults to true.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, wrapError(KindConfiguration, err, "decode descriptor")
	}
	return d, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var dj descriptorJSON
	if err := json.Unmarshal(data, &dj); err != nil {
		return err
	}

	out := Descriptor{
		BaseURL:         dj.BaseURL,
		Path:            dj.Path,
		Method:          dj.Method,
		QueryParams:     dj.Query,
		Headers:         dj.Headers,
		ContentType:     dj.ContentType,
		Timeout:         time.Duration(dj.TimeoutMs) * time.Millisecond,
		FollowRedirects: dj.FollowRedirects,
		VerifySSL:       dj.VerifySSL == nil || *dj.VerifySSL,
	}

	if body := strings.TrimSpace(string(dj.Body)); body != "" && body != "null" {
		if body[0] == '"' {
			var s string
			if err := json.Unmarshal(dj.Body, &s); err != nil {
				return err
			}
			out.Body = &s
		} else {
			var buf bytes.Buffer
			if err := json.Compact(&buf, dj.Body); err != nil {
				return err
			}
			out.Body = Body(buf.String())
		}
	}

	if len(dj.Auth) > 0 && string(dj.Auth) != "null" {
		auth, err := UnmarshalAuth(dj.Auth)
		if err != nil {
			return err
		}
		out.Auth = auth
	}

	*d = out
	return nil
}

// MarshalJSON implements json.Marshaler. The body is always written as a
// JSON string.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	verify := d.VerifySSL
	dj := descriptorJSON{
		BaseURL:         d.BaseURL,
		Path:            d.Path,
		Method:          d.Method,
		Query:           d.QueryParams,
		Headers:         d.Headers,
		ContentType:     d.ContentType,
		TimeoutMs:       d.Timeout.Milliseconds(),
		FollowRedirects: d.FollowRedirects,
		VerifySSL:       &verify,
	}

	if d.Body != nil {
		raw, err := json.Marshal(*d.Body)
		if err != nil {
			return nil, err
		}
		dj.Body = raw
	}

	auth, err := MarshalAuth(d.Auth)
	if err != nil {
		return nil, err
	}
	dj.Auth = auth

	return json.Marshal(dj)
}
