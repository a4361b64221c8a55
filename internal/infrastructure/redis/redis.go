package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const insightsKey = "traffic:insights:v1"

type Cache struct {
	Client *redis.Client
}

func New(addr, pass string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Cache{Client: rdb}
}

// GetInsights returns the cached 30-day insight rows, or ErrCacheMiss.
func (c *Cache) GetInsights(ctx context.Context) ([]domain.DayInsight, error) {
	raw, err := c.Client.Get(ctx, insightsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, err
	}
	var rows []domain.DayInsight
	if err := json.Unmarshal(raw, &rows); err != nil {
		// treat a corrupt entry as a miss; the writer will replace it
		return nil, domain.ErrCacheMiss
	}
	return rows, nil
}

func (c *Cache) SetInsights(ctx context.Context, rows []domain.DayInsight, ttl time.Duration) error {
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, insightsKey, raw, ttl).Err()
}

func (c *Cache) InvalidateInsights(ctx context.Context) error {
	return c.Client.Del(ctx, insightsKey).Err()
}

// AllowRequest: Simple Fixed Window Rate Limit
func (c *Cache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + ip
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}
