package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mfalan/stock-ledger/internal/core/domain"
)

const (
	idempotencyKeyPrefix = "idem:"
	idempotencyKeyTTL    = 24 * time.Hour

	summaryKey = "inventory:summary"
	summaryTTL = 30 * time.Second
)

// RedisAdapter implements the CacheRepository port: idempotency keys for
// replay-safe composite stock-outs and a short-lived inventory summary cache.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *RedisAdapter) DeleteIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) GetSummary(ctx context.Context) ([]domain.StockSummary, bool, error) {
	data, err := r.client.Get(ctx, summaryKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary []domain.StockSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, false, err
	}
	return summary, true, nil
}

func (r *RedisAdapter) SetSummary(ctx context.Context, summary []domain.StockSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, summaryKey, data, summaryTTL).Err()
}

func (r *RedisAdapter) InvalidateSummary(ctx context.Context) error {
	return r.client.Del(ctx, summaryKey).Err()
}
