package tracking

import (
	"errors"
	"fmt"
	"strings"

	"api-tracking/internal/domain/entity"
)

// DefaultCleanedSubstitute replaces sensitive values unless configured otherwise
const DefaultCleanedSubstitute = "********************"

// ErrInvalidSubstitute is returned when the cleaned substitute is not a string
var ErrInvalidSubstitute = errors.New("cleaned substitute must be a string")

// DefaultSensitiveFields are always redacted
var DefaultSensitiveFields = []string{"api", "token", "key", "secret", "password", "signature"}

// Redactor masks sensitive keys in captured payloads
type Redactor struct {
	fields     map[string]struct{}
	substitute string
	recursive  bool
}

// NewRedactor merges fields with DefaultSensitiveFields. A nil substitute
// selects DefaultCleanedSubstitute.
func NewRedactor(fields []string, substitute interface{}, recursive bool) (*Redactor, error) {
	if substitute == nil {
		substitute = DefaultCleanedSubstitute
	}
	s, ok := substitute.(string)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidSubstitute, substitute)
	}

	r := &Redactor{
		fields:     make(map[string]struct{}, len(DefaultSensitiveFields)+len(fields)),
		substitute: s,
		recursive:  recursive,
	}
	for _, f := range DefaultSensitiveFields {
		r.fields[f] = struct{}{}
	}
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			r.fields[strings.ToLower(f)] = struct{}{}
		}
	}
	return r, nil
}

// Substitute returns the marker written over sensitive values
func (r *Redactor) Substitute() string {
	return r.substitute
}

// IsSensitive reports whether key is masked, ignoring case
func (r *Redactor) IsSensitive(key string) bool {
	_, ok := r.fields[strings.ToLower(key)]
	return ok
}

// Clean returns a masked copy of data; the input map is never modified
func (r *Redactor) Clean(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		switch {
		case r.IsSensitive(k):
			out[k] = r.substitute
		case r.recursive:
			out[k] = r.cleanValue(v)
		default:
			out[k] = v
		}
	}
	return out
}

// CleanValue masks v when it is a JSON object. Arrays are only walked in
// recursive mode.
func (r *Redactor) CleanValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		return r.Clean(m)
	}
	if r.recursive {
		return r.cleanValue(v)
	}
	return v
}

func (r *Redactor) cleanValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return r.Clean(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = r.cleanValue(item)
		}
		return out
	default:
		return v
	}
}

// Apply masks the captured payloads of rec. Metadata fields are left as is.
func (r *Redactor) Apply(rec *entity.RequestLog) {
	rec.RequestData = r.Clean(rec.RequestData)
	rec.ResponseData = r.CleanValue(rec.ResponseData)
	if rec.Errors != nil && rec.Errors.Detail != nil {
		e := *rec.Errors
		e.Detail = r.CleanValue(e.Detail)
		rec.Errors = &e
	}
}
