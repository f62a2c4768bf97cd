package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"api-tracking/internal/domain/entity"
	"api-tracking/internal/domain/repository"
	"api-tracking/internal/infrastructure/redis"
)

const (
	redisLogPrefix     = "apilog:"
	redisTimelineKey   = "apilogs:timeline"
	redisScanBatchSize = 200
)

type redisRequestLogRepository struct {
	client *redis.RedisClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisRequestLogRepository stores logs as JSON blobs indexed by a
// sorted-set timeline (score = requested_at in ms).
func NewRedisRequestLogRepository(client *redis.RedisClient, ttl time.Duration, logger *zap.Logger) repository.RequestLogRepository {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &redisRequestLogRepository{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *redisRequestLogRepository) Save(ctx context.Context, log *entity.RequestLog) error {
	stored := *log
	stored.ID = uuid.NewString()

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to encode request log: %w", err)
	}

	score := float64(stored.RequestedAt.UnixMilli())
	member := goredis.Z{Score: score, Member: stored.ID}

	pipe := r.client.Client.TxPipeline()
	pipe.Set(ctx, redisLogPrefix+stored.ID, data, r.ttl)
	pipe.ZAdd(ctx, redisTimelineKey, member)
	pipe.Expire(ctx, redisTimelineKey, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save request log to redis",
			zap.String("path", log.Path),
			zap.Error(err),
		)
		return fmt.Errorf("failed to save request log: %w", err)
	}

	return nil
}

func (r *redisRequestLogRepository) FindByID(ctx context.Context, id string) (*entity.RequestLog, error) {
	raw, err := r.client.Get(ctx, redisLogPrefix+id)
	if err == goredis.Nil {
		return nil, repository.ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find request log: %w", err)
	}

	var log entity.RequestLog
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		return nil, fmt.Errorf("corrupted request log %s: %w", id, err)
	}

	return &log, nil
}

// Find walks the timeline newest first. Path prefix, method and status
// filters are applied while scanning.
func (r *redisRequestLogRepository) Find(ctx context.Context, filter entity.RequestLogFilter) ([]*entity.RequestLog, error) {
	limit := clampLimit(filter.Limit)
	method := strings.ToUpper(filter.Method)
	skipped := 0
	logs := make([]*entity.RequestLog, 0, limit)

	for start := int64(0); len(logs) < limit; start += redisScanBatchSize {
		ids, err := r.client.Client.ZRevRange(ctx, redisTimelineKey, start, start+redisScanBatchSize-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to query request logs: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			log, err := r.FindByID(ctx, id)
			if err != nil {
				// Expired blob still referenced by the index
				continue
			}
			if !strings.HasPrefix(log.Path, filter.Path) {
				continue
			}
			if method != "" && log.Method != method {
				continue
			}
			if filter.StatusCode != 0 && log.StatusCode != filter.StatusCode {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			logs = append(logs, log)
			if len(logs) == limit {
				break
			}
		}
	}

	return logs, nil
}

func (r *redisRequestLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	maxScore := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	ids, err := r.client.Client.ZRangeByScore(ctx, redisTimelineKey, &goredis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired request logs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := r.client.Client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, redisLogPrefix+id)
	}
	pipe.ZRemRangeByScore(ctx, redisTimelineKey, "-inf", maxScore)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete request logs: %w", err)
	}

	return int64(len(ids)), nil
}

func (r *redisRequestLogRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}
