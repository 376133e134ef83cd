package restexec

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// buildRequest assembles the wire request for d.
//
// Header precedence, lowest to highest: engine defaults, the content type
// (only with a body), auth contribution, caller headers. Query parameters
// are applied descriptor first, then auth contribution; the last one wins.
func buildRequest(
	ctx context.Context,
	d Descriptor,
	contrib Contribution,
	defaults http.Header,
) (*http.Request, error) {
	u, err := url.Parse(d.URL())
	if err != nil {
		return nil, wrapError(KindConfiguration, err, "invalid URL %q", d.URL())
	}

	if len(d.QueryParams) > 0 || len(contrib.Query) > 0 {
		q := u.Query()
		for k, v := range d.QueryParams {
			q.Set(k, v)
		}
		for k, vs := range contrib.Query {
			q[k] = append([]string(nil), vs...)
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader = http.NoBody
	if d.Body != nil {
		body = strings.NewReader(*d.Body)
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, u.String(), body)
	if err != nil {
		return nil, wrapError(KindConfiguration, err, "build request")
	}

	for k, vs := range defaults {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	if d.Body != nil {
		contentType := d.ContentType
		if contentType == "" {
			contentType = DefaultContentType
		}
		req.Header.Set("Content-Type", contentType)
	}

	for k, vs := range contrib.Headers {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	for k, v := range d.Headers {
		if http.CanonicalHeaderKey(k) == "Host" {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}

	return req, nil
}
