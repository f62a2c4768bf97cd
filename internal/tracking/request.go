package tracking

import (
	"encoding/json"
	"mime"
	"strings"
	"sync"

	"api-tracking/internal/domain/entity"
)

// Request is the host framework's view of an incoming request
type Request interface {
	Method() string
	Path() string
	ViewName() string
	Host() string
	RemoteAddr() string
	QueryParams() map[string]string
	// User returns nil for unauthenticated requests
	User() *string
	// Body may be nil when the request carries no payload
	Body() *LazyBody
}

// Response is the completed response as seen by the interceptor
type Response interface {
	StatusCode() int
	ContentType() string
	// Streaming responses are never read by the interceptor
	Streaming() bool
	Body() []byte
}

// DecodeFunc parses a request payload. It runs at most once per request.
type DecodeFunc func() (map[string]any, error)

// LazyBody defers request decoding until first access and memoizes the
// outcome, parse errors included.
type LazyBody struct {
	once     sync.Once
	decode   DecodeFunc
	data     map[string]any
	err      error
	accessed bool
	mu       sync.Mutex
}

func NewLazyBody(decode DecodeFunc) *LazyBody {
	return &LazyBody{decode: decode}
}

// Data decodes the body on first call
func (b *LazyBody) Data() (map[string]any, error) {
	b.once.Do(func() {
		b.mu.Lock()
		b.accessed = true
		b.mu.Unlock()
		if b.decode != nil {
			b.data, b.err = b.decode()
		}
	})
	return b.data, b.err
}

// Accessed reports whether anything has triggered decoding yet
func (b *LazyBody) Accessed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accessed
}

// ResponseData returns the loggable form of a response payload: the
// streaming marker, decoded JSON, plain text, or nil for an empty body.
func ResponseData(resp Response) any {
	if resp == nil {
		return nil
	}
	if resp.Streaming() {
		return entity.StreamedContent
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil
	}
	if isJSON(resp.ContentType()) {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			return v
		}
	}
	return string(body)
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// unhandledResponse stands in when the handler panicked before producing a
// response, so hooks always receive a non-nil Response.
type unhandledResponse struct{}

func (unhandledResponse) StatusCode() int     { return entity.StatusUnhandled }
func (unhandledResponse) ContentType() string { return "" }
func (unhandledResponse) Streaming() bool     { return false }
func (unhandledResponse) Body() []byte        { return nil }

// errorResponse is used when the handler returned an error without a response
type errorResponse struct{ status int }

func (r errorResponse) StatusCode() int   { return r.status }
func (errorResponse) ContentType() string { return "" }
func (errorResponse) Streaming() bool     { return false }
func (errorResponse) Body() []byte        { return nil }
