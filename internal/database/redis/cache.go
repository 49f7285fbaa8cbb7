package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HarshTuring/docklens/internal/database"
	"github.com/HarshTuring/docklens/internal/entity"
)

const resultKeyPrefix = "result:"

// ErrCacheMiss is returned by Get when no entry exists or the TTL
// expired; the two cases are indistinguishable on purpose.
var ErrCacheMiss = redis.Nil

type cacheRepository struct {
	client *redis.Client
}

func NewCacheRepository(client *redis.Client) database.CacheRepository {
	return &cacheRepository{client: client}
}

func (r *cacheRepository) Get(ctx context.Context, fingerprint string) (*entity.CacheEntry, error) {
	data, err := r.client.Get(ctx, resultKeyPrefix+fingerprint).Result()
	if err != nil {
		return nil, err
	}

	var entry entity.CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Set is an idempotent overwrite: outputs are deterministic, so a
// concurrent writer stores an equivalent value.
func (r *cacheRepository) Set(ctx context.Context, fingerprint string, entry *entity.CacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, resultKeyPrefix+fingerprint, data, ttl).Err()
}

func (r *cacheRepository) Delete(ctx context.Context, fingerprint string) error {
	return r.client.Del(ctx, resultKeyPrefix+fingerprint).Err()
}

func (r *cacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
