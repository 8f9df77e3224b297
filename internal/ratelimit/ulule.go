package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Ulule adapts a ulule/limiter store to the Limiter interface. It counts fixed windows.
type Ulule struct {
	Store limiter.Store
}

// NewUluleRedis builds a ulule adapter backed by Redis.
func NewUluleRedis(client *redis.Client, prefix string) (Ulule, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return Ulule{}, fmt.Errorf("ulule redis store: %w", err)
	}
	return Ulule{Store: store}, nil
}

// Allow consumes one unit for key under a rate of max per window.
func (u Ulule) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	if u.Store == nil || max <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: max, Reset: time.Now().Add(window)}, nil
	}
	lim := limiter.New(u.Store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("ulule %s: %w", key, err)
	}
	return Decision{
		Allowed:   !res.Reached,
		Remaining: int(res.Remaining),
		Reset:     time.Unix(res.Reset, 0),
	}, nil
}
