package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "shortlink:code:"

// entry holds only fields that never change after a mapping is created.
type entry struct {
	ID          int64     `json:"id"`
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, code string) (*internal.Mapping, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached mapping: %w", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached mapping: %w", err)
	}

	return &internal.Mapping{
		ID:          e.ID,
		ShortCode:   e.ShortCode,
		OriginalURL: e.OriginalURL,
		CreatedAt:   e.CreatedAt,
	}, true, nil
}

func (c *RedisCache) Set(ctx context.Context, mapping *internal.Mapping) error {
	raw, err := json.Marshal(entry{
		ID:          mapping.ID,
		ShortCode:   mapping.ShortCode,
		OriginalURL: mapping.OriginalURL,
		CreatedAt:   mapping.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+mapping.ShortCode, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache mapping: %w", err)
	}
	return nil
}
