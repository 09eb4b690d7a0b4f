package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/pkg/models"
)

// MapCache stores built maps. A miss is reported as (nil, false, nil).
type MapCache interface {
	Get(ctx context.Context, key string) (*models.MapResponse, bool, error)
	Set(ctx context.Context, key string, resp *models.MapResponse) error
}

// RedisMapCache keeps JSON-encoded maps in Redis with a fixed TTL.
type RedisMapCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisMapCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisMapCache {
	return &RedisMapCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *RedisMapCache) Get(ctx context.Context, key string) (*models.MapResponse, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read map cache: %w", err)
	}

	var resp models.MapResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached map: %w", err)
	}
	return &resp, true, nil
}

func (c *RedisMapCache) Set(ctx context.Context, key string, resp *models.MapResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode map: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write map cache: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"key":   key,
		"bytes": len(data),
		"ttl":   c.ttl,
	}).Debug("Map cached")
	return nil
}
