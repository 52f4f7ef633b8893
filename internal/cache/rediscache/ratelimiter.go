package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter — fixed window счётчик на Redis (INCR + EXPIRE).
type RateLimiter struct {
	c   *redis.Client
	now func() time.Time
}

func NewRateLimiter(addr string) *RateLimiter {
	return NewRateLimiterWithClient(redis.NewClient(&redis.Options{Addr: addr}))
}

func NewRateLimiterWithClient(c *redis.Client) *RateLimiter {
	return &RateLimiter{c: c, now: time.Now}
}

// Allow считает обращения subject в текущем окне и ставит TTL на ключ окна.
// Возвращает (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, subject string, limit int64, window time.Duration) (bool, int64, error) {
	if window <= 0 {
		window = time.Minute
	}
	bucket := rl.now().UTC().UnixNano() / int64(window)
	key := fmt.Sprintf("rl:%s:%d", subject, bucket)

	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window+10*time.Second)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}
