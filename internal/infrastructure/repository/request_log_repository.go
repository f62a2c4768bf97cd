package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"api-tracking/internal/domain/entity"
	"api-tracking/internal/domain/repository"
	"api-tracking/internal/infrastructure/database"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

const selectRequestLogColumns = `
	SELECT id, requested_at, response_ms, path, view, view_method, host, method, remote_addr,
		query_params, data, response, streamed, errors, status_code, user_id, username_persistent
	FROM api_request_logs
`

type requestLogRepository struct {
	db     *database.Database
	logger *zap.Logger
}

// NewRequestLogRepository creates the postgres backed request log repository
func NewRequestLogRepository(db *database.Database, logger *zap.Logger) repository.RequestLogRepository {
	return &requestLogRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts a request log row
func (r *requestLogRepository) Save(ctx context.Context, log *entity.RequestLog) error {
	query := `
		INSERT INTO api_request_logs (requested_at, response_ms, path, view, view_method, host, method, remote_addr,
			query_params, data, response, streamed, errors, status_code, user_id, username_persistent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	queryParams, err := jsonColumn(log.QueryParams)
	if err != nil {
		return fmt.Errorf("failed to encode query params: %w", err)
	}
	data, err := jsonColumn(log.RequestData)
	if err != nil {
		return fmt.Errorf("failed to encode request data: %w", err)
	}
	response, err := jsonColumn(log.ResponseData)
	if err != nil {
		return fmt.Errorf("failed to encode response data: %w", err)
	}
	errs, err := jsonColumn(log.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}

	var userID sql.NullString
	if log.User != nil {
		userID = sql.NullString{String: *log.User, Valid: true}
	}

	_, err = r.db.DB.ExecContext(ctx, query,
		log.RequestedAt,
		log.ResponseMs,
		log.Path,
		log.ViewName,
		log.ViewMethod,
		log.Host,
		log.Method,
		log.RemoteAddr,
		queryParams,
		data,
		response,
		log.Streamed,
		errs,
		log.StatusCode,
		userID,
		log.UsernamePersistent,
	)

	if err != nil {
		r.logger.Error("Failed to save request log",
			zap.String("path", log.Path),
			zap.String("method", log.Method),
			zap.Error(err),
		)
		return fmt.Errorf("failed to save request log: %w", err)
	}

	return nil
}

func (r *requestLogRepository) FindByID(ctx context.Context, id string) (*entity.RequestLog, error) {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, repository.ErrLogNotFound
	}

	row := r.db.DB.QueryRowContext(ctx, selectRequestLogColumns+" WHERE id = $1", numericID)
	log, err := scanRequestLog(row)
	if err == sql.ErrNoRows {
		return nil, repository.ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find request log: %w", err)
	}

	return log, nil
}

func (r *requestLogRepository) Find(ctx context.Context, filter entity.RequestLogFilter) ([]*entity.RequestLog, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter.Path != "" {
		args = append(args, filter.Path+"%")
		where = append(where, fmt.Sprintf("path LIKE $%d", len(args)))
	}
	if filter.Method != "" {
		args = append(args, strings.ToUpper(filter.Method))
		where = append(where, fmt.Sprintf("method = $%d", len(args)))
	}
	if filter.StatusCode != 0 {
		args = append(args, filter.StatusCode)
		where = append(where, fmt.Sprintf("status_code = $%d", len(args)))
	}

	query := selectRequestLogColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	args = append(args, clampLimit(filter.Limit), clampOffset(filter.Offset))
	query += fmt.Sprintf(" ORDER BY requested_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query request logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*entity.RequestLog, 0)
	for rows.Next() {
		log, err := scanRequestLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate request logs: %w", err)
	}

	return logs, nil
}

func (r *requestLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM api_request_logs WHERE requested_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete request logs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted request logs: %w", err)
	}

	return deleted, nil
}

func (r *requestLogRepository) Ping(ctx context.Context) error {
	return r.db.DB.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequestLog(row rowScanner) (*entity.RequestLog, error) {
	var (
		log                                     entity.RequestLog
		id                                      int64
		queryParams, data, response, errorsJSON []byte
		userID                                  sql.NullString
	)

	err := row.Scan(
		&id,
		&log.RequestedAt,
		&log.ResponseMs,
		&log.Path,
		&log.ViewName,
		&log.ViewMethod,
		&log.Host,
		&log.Method,
		&log.RemoteAddr,
		&queryParams,
		&data,
		&response,
		&log.Streamed,
		&errorsJSON,
		&log.StatusCode,
		&userID,
		&log.UsernamePersistent,
	)
	if err != nil {
		return nil, err
	}

	log.ID = strconv.FormatInt(id, 10)
	if userID.Valid {
		log.User = &userID.String
	}

	if err := unmarshalColumn(queryParams, &log.QueryParams); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(data, &log.RequestData); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(response, &log.ResponseData); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(errorsJSON, &log.Errors); err != nil {
		return nil, err
	}

	return &log, nil
}

// jsonColumn encodes v for a JSONB column; nil values become SQL NULL
func jsonColumn(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		if t == nil {
			return nil, nil
		}
	case map[string]interface{}:
		if t == nil {
			return nil, nil
		}
	case *entity.ErrorInfo:
		if t == nil {
			return nil, nil
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalColumn(raw []byte, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
