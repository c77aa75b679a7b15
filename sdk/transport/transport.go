// Package transport carries the HTTP-level request and response forms
// exchanged between protocol codecs and the execution pipeline. Codecs
// produce and consume these values without doing I/O; the pipeline owns the
// actual network round trip.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client sends one HTTP request. *http.Client satisfies it.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultClient returns the client used when none is configured.
func DefaultClient() Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// Request is a marshalled request before endpoint resolution: method, path
// and query relative to the service endpoint, headers, and the body bytes.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// NewRequest returns an empty request with initialized header and query.
func NewRequest(method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Query:  url.Values{},
		Header: http.Header{},
	}
}

// SetBody replaces the request body.
func (r *Request) SetBody(body []byte) {
	r.Body = body
}

// Build materializes the request against a resolved endpoint. The request
// body is rewindable, so the pipeline can retry without re-marshalling.
func (r *Request) Build(ctx context.Context, endpoint url.URL) (*http.Request, error) {
	u := endpoint
	u.Path = joinPath(u.Path, r.Path)
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building http request: %w", err)
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if len(r.Body) > 0 {
		req.ContentLength = int64(len(r.Body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(r.Body)), nil
		}
	}
	return req, nil
}

func joinPath(base, path string) string {
	if path == "" {
		path = "/"
	}
	if base == "" || base == "/" {
		return path
	}
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}

// Response is the wire response handed to a codec. For buffered operations
// Body holds the full payload and Stream is nil; for streaming outputs the
// payload stays live on Stream and Body is empty.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Stream     io.ReadCloser
}

// ReadResponse converts an *http.Response. When streaming is set the body
// is left unread on Stream and ownership passes to the caller; otherwise
// the body is drained and closed here.
func ReadResponse(resp *http.Response, streaming bool) (*Response, error) {
	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}
	if streaming {
		out.Stream = resp.Body
		return out, nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	out.Body = body
	return out, nil
}

// RequestID extracts the service request id from the response headers.
func (r *Response) RequestID() string {
	if r == nil || r.Header == nil {
		return ""
	}
	for _, key := range []string{"X-Amzn-Requestid", "X-Amz-Request-Id", "X-Amzn-Request-Id"} {
		if v := r.Header.Get(key); v != "" {
			return v
		}
	}
	return ""
}
