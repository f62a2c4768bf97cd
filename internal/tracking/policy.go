package tracking

import (
	"context"
	"fmt"
	"strings"

	"api-tracking/internal/domain/entity"
)

// ShouldLogFunc decides whether a finalized request/response pair is kept
type ShouldLogFunc func(req Request, resp Response) bool

// PersistFunc commits a record
type PersistFunc func(ctx context.Context, rec entity.RequestLog) error

// HandleLogFunc is the persistence trigger. Implementations call next to
// store the record, or return without calling it to drop it.
type HandleLogFunc func(ctx context.Context, rec entity.RequestLog, next PersistFunc) error

// MethodPolicy is the base eligibility check. An empty method list admits
// every method. Custom ShouldLog hooks replace the base check, so they must
// call MethodPolicy themselves to keep honouring LoggingMethods.
func MethodPolicy(methods []string) ShouldLogFunc {
	set := methodSet(methods)
	return func(req Request, _ Response) bool {
		return methodAllowed(set, req.Method())
	}
}

// ErrorsOnly keeps client and server error responses only
func ErrorsOnly() ShouldLogFunc {
	return func(_ Request, resp Response) bool {
		return resp != nil && resp.StatusCode() >= 400
	}
}

// ResponseContains keeps responses whose logged payload mentions substr
func ResponseContains(substr string) ShouldLogFunc {
	return func(_ Request, resp Response) bool {
		data := ResponseData(resp)
		if data == nil {
			return false
		}
		if s, ok := data.(string); ok {
			return strings.Contains(s, substr)
		}
		return strings.Contains(fmt.Sprint(data), substr)
	}
}

// All is satisfied when every policy is
func All(policies ...ShouldLogFunc) ShouldLogFunc {
	return func(req Request, resp Response) bool {
		for _, p := range policies {
			if !p(req, resp) {
				return false
			}
		}
		return true
	}
}

// DefaultHandleLog persists every record it receives
func DefaultHandleLog(ctx context.Context, rec entity.RequestLog, next PersistFunc) error {
	return next(ctx, rec)
}

// SlowerThan only persists records whose response took longer than ms
func SlowerThan(ms int64) HandleLogFunc {
	return func(ctx context.Context, rec entity.RequestLog, next PersistFunc) error {
		if rec.ResponseMs <= ms {
			return nil
		}
		return next(ctx, rec)
	}
}

func methodSet(methods []string) map[string]struct{} {
	if len(methods) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
	}
	return set
}

func methodAllowed(set map[string]struct{}, method string) bool {
	if set == nil {
		return true
	}
	_, ok := set[strings.ToUpper(method)]
	return ok
}
