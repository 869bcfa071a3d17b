package types

import (
	"bytes"
	"net/http"
	"strings"
	"time"
)

// RequestContext is the mutable record of the next request a worker will issue.
// Hooks read and write it; the engine reads it only between hook invocations.
type RequestContext struct {
	Method  string
	URL     string
	Host    string // Host header override, empty keeps the URL host
	Headers *Header
	Body    []byte
}

// NewRequestContext creates a request context preloaded with the configured defaults
func NewRequestContext(cfg RequestConfig) *RequestContext {
	rc := &RequestContext{
		Method:  cfg.Method,
		URL:     cfg.URL,
		Host:    cfg.Host,
		Headers: NewHeader(cfg.Header),
	}
	if cfg.Body != "" {
		rc.Body = []byte(cfg.Body)
	}
	return rc
}

// SetBody replaces the body with s
func (r *RequestContext) SetBody(s string) {
	if s == "" {
		r.Body = nil
		return
	}
	r.Body = []byte(s)
}

// BodyString returns the body as a string
func (r *RequestContext) BodyString() string {
	return string(r.Body)
}

// Snapshot returns a deep copy of the current fields.
// Later writes to the context never reach an issued snapshot.
func (r *RequestContext) Snapshot() Request {
	s := Request{
		Method:  r.Method,
		URL:     r.URL,
		Host:    r.Host,
		Headers: r.Headers.Clone(),
	}
	if len(r.Body) > 0 {
		s.Body = append([]byte(nil), r.Body...)
	}
	return s
}

// Request is an immutable snapshot of a RequestContext, handed to the network phase
type Request struct {
	Method  string
	URL     string
	Host    string
	Headers *Header
	Body    []byte
}

// Equal reports whether two snapshots carry byte-identical fields
func (r Request) Equal(other Request) bool {
	return r.Method == other.Method &&
		r.URL == other.URL &&
		r.Host == other.Host &&
		r.Headers.Equal(other.Headers) &&
		bytes.Equal(r.Body, other.Body)
}

// ResponseView is the read-only snapshot of a completed response passed to the
// after-response hook. It is discarded once the hook returns.
type ResponseView struct {
	Status   int
	Duration time.Duration
	headers  *Header
	body     []byte
}

// NewResponseView builds a view from a received response.
// Multi-value headers are joined with ", ".
func NewResponseView(status int, header http.Header, body []byte, duration time.Duration) *ResponseView {
	h := &Header{entries: make(map[string]headerEntry, len(header))}
	for key, values := range header {
		h.Set(key, strings.Join(values, ", "))
	}
	return &ResponseView{
		Status:   status,
		Duration: duration,
		headers:  h,
		body:     body,
	}
}

// Header returns a response header value by case-insensitive name
func (r *ResponseView) Header(name string) (string, bool) {
	return r.headers.Get(name)
}

// Headers returns a copy of all response headers
func (r *ResponseView) Headers() map[string]string {
	return r.headers.Map()
}

// Body returns a copy of the response body
func (r *ResponseView) Body() []byte {
	return append([]byte(nil), r.body...)
}

// BodyString returns the response body as a string
func (r *ResponseView) BodyString() string {
	return string(r.body)
}

// Size returns the body length in bytes
func (r *ResponseView) Size() int {
	return len(r.body)
}
