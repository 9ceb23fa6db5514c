package httpx

import (
	"context"
	"sync/atomic"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// redisRateLimiter shares the minute window across backend replicas. Keys
// are minute-aligned and expire after the same two-minute retention the
// in-memory limiter uses.
type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
	limit   atomic.Int64
	now     func() time.Time
}

// NewRedisRateLimiter constructs a Redis backed rate limiter.
func NewRedisRateLimiter(addr, password string, db, limit int, logger *slog.Logger) (RateLimiter, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	rl := &redisRateLimiter{
		client:  client,
		logger:  logger,
		prefix:  "dwi:ratelimit:",
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
	rl.limit.Store(int64(limit))
	return rl, nil
}

func (rl *redisRateLimiter) Admit() bool {
	limit := rl.limit.Load()
	if limit <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	minute := rl.now().UTC().Truncate(time.Minute)
	key := rl.prefix + minute.Format("200601021504")
	counter, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		// Fail open: an unreachable limiter must not take the dashboard down.
		rl.logRedisError("incr", err)
		return true
	}
	if counter == 1 {
		if err := rl.client.Expire(ctx, key, bucketRetention).Err(); err != nil {
			rl.logRedisError("expire", err)
		}
	}
	return counter <= limit
}

func (rl *redisRateLimiter) SetLimit(limit int) {
	rl.limit.Store(int64(limit))
}

func (rl *redisRateLimiter) Limit() int {
	return int(rl.limit.Load())
}

func (rl *redisRateLimiter) Close() {
	if rl.client != nil {
		_ = rl.client.Close()
	}
}

func (rl *redisRateLimiter) logRedisError(op string, err error) {
	if rl.logger == nil {
		return
	}
	rl.logger.Error("redis rate limiter error", "op", op, "error", err)
}
