package entity

import "time"

// StatusUnhandled is recorded when the handler never produced a response,
// i.e. it panicked and the panic propagated past the interceptor.
const StatusUnhandled = 500

// StreamedContent replaces the response payload of streaming responses.
// The stream itself is never read by the logger.
const StreamedContent = "<streaming response content>"

// AnonymousUser is stored in UsernamePersistent for unauthenticated requests
const AnonymousUser = "Anonymous"

// RequestLog is one audit row per intercepted API request
type RequestLog struct {
	ID                 string            `json:"id"`
	RequestedAt        time.Time         `json:"requested_at"`
	ResponseMs         int64             `json:"response_ms"`
	Path               string            `json:"path"`
	ViewName           string            `json:"view,omitempty"`
	ViewMethod         string            `json:"view_method,omitempty"`
	Host               string            `json:"host,omitempty"`
	Method             string            `json:"method"`
	RemoteAddr         string            `json:"remote_addr,omitempty"`
	QueryParams        map[string]string `json:"query_params,omitempty"`
	RequestData        map[string]any    `json:"data,omitempty"`
	ResponseData       any               `json:"response,omitempty"`
	Streamed           bool              `json:"streamed"`
	Errors             *ErrorInfo        `json:"errors,omitempty"`
	StatusCode         int               `json:"status_code"`
	User               *string           `json:"user,omitempty"`
	UsernamePersistent string            `json:"username_persistent"`
}

// ErrorInfo is the structured form of a handler failure
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	// Detail holds the panic stack, or the error payload of a 4xx/5xx
	// response that was returned without a Go error.
	Detail any `json:"detail,omitempty"`
}

// IsError reports whether the record describes a failed request
func (l *RequestLog) IsError() bool {
	return l.Errors != nil || l.StatusCode >= 400
}

// Clone returns a deep copy so the original can be handed off without
// later writes leaking into it.
func (l RequestLog) Clone() RequestLog {
	out := l
	if l.QueryParams != nil {
		out.QueryParams = make(map[string]string, len(l.QueryParams))
		for k, v := range l.QueryParams {
			out.QueryParams[k] = v
		}
	}
	if l.RequestData != nil {
		out.RequestData = cloneValue(l.RequestData).(map[string]any)
	}
	out.ResponseData = cloneValue(l.ResponseData)
	if l.Errors != nil {
		e := *l.Errors
		e.Detail = cloneValue(l.Errors.Detail)
		out.Errors = &e
	}
	if l.User != nil {
		u := *l.User
		out.User = &u
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, item := range t {
			m[k] = cloneValue(item)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, item := range t {
			s[i] = cloneValue(item)
		}
		return s
	default:
		return v
	}
}

// RequestLogFilter narrows log queries
type RequestLogFilter struct {
	Path       string
	Method     string
	StatusCode int
	Limit      int
	Offset     int
}
