package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joeblew999/plat-patch/internal/logger"
	"github.com/joeblew999/plat-patch/internal/patch"
)

// Redis stores summaries as JSON strings with a TTL.
type Redis struct {
	rc  *redis.Client
	ttl time.Duration
}

// OpenRedis connects to addr and pings it.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return rc, nil
}

// NewRedis wraps a client.
func NewRedis(rc *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rc: rc, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, key string) (patch.Summary, bool) {
	s, err := c.rc.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Warn("stats_cache_get", "key", key, "err", err)
		}
		return patch.Summary{}, false
	}
	var sum patch.Summary
	if err := json.Unmarshal([]byte(s), &sum); err != nil {
		return patch.Summary{}, false
	}
	return sum, true
}

func (c *Redis) Set(ctx context.Context, key string, s patch.Summary) {
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.rc.Set(ctx, key, string(b), c.ttl).Err(); err != nil {
		logger.L().Warn("stats_cache_set", "key", key, "err", err)
	}
}

// Close closes the underlying client.
func (c *Redis) Close() error {
	return c.rc.Close()
}
