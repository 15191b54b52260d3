package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"platewatch/internal/consent/models"
)

// RedisCache stores verification results in Redis with a per-entry TTL.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedis constructs a Redis-backed verification cache.
func NewRedis(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, subject models.Subject, types []models.ConsentType) (*models.VerificationResult, error) {
	payload, err := c.client.Get(ctx, entryKey(subject.Key(), types)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var result models.VerificationResult
	if err := json.Unmarshal(payload, &result); err != nil {
		// Corrupt entry: treat as a miss, the fresh result will overwrite it.
		return nil, nil
	}
	return &result, nil
}

func (c *RedisCache) Set(ctx context.Context, subject models.Subject, types []models.ConsentType, result *models.VerificationResult, ttl time.Duration) error {
	if result == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, entryKey(subject.Key(), types), payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, subject models.Subject) error {
	for _, prefix := range identityPrefixes(subject) {
		iter := c.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("cache invalidate: %w", err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("cache invalidate scan: %w", err)
		}
	}
	return nil
}
