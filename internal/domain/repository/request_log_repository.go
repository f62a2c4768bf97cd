package repository

import (
	"context"
	"errors"
	"time"

	"api-tracking/internal/domain/entity"
)

// ErrLogNotFound is returned when a request log id is unknown
var ErrLogNotFound = errors.New("request log not found")

type RequestLogRepository interface {
	// Save appends one request log row; implementations must accept concurrent calls
	Save(ctx context.Context, log *entity.RequestLog) error

	// FindByID returns ErrLogNotFound for unknown ids
	FindByID(ctx context.Context, id string) (*entity.RequestLog, error)

	// Find lists logs newest first. filter.Path matches as a prefix of the
	// request path; method and status must match exactly.
	Find(ctx context.Context, filter entity.RequestLogFilter) ([]*entity.RequestLog, error)

	// DeleteBefore removes logs requested before cutoff and returns how many were removed
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping checks the backend connection
	Ping(ctx context.Context) error
}
