// Package ratelimit tracks use of the zero-cost CLI path over a rolling
// window so suggestions back off before the tool's own quota is hit.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// DefaultNearCapRatio is the fraction of the window limit treated as "near".
const DefaultNearCapRatio = 0.8

// Window counts uses over a rolling period.
type Window interface {
	// Record notes one use.
	Record(ctx context.Context) error
	// NearCap reports whether usage is at or above the near-cap threshold.
	NearCap(ctx context.Context) (bool, error)
}

// Noop never reports near cap.
type Noop struct{}

// Record implements Window.
func (Noop) Record(context.Context) error { return nil }

// NearCap implements Window.
func (Noop) NearCap(context.Context) (bool, error) { return false, nil }

// RedisWindow is a sliding window over a Redis sorted set scored by
// millisecond timestamps, shared by every process using the same key.
type RedisWindow struct {
	client *redis.Client
	key    string
	limit  int
	window time.Duration
	ratio  float64
	now    func() time.Time
}

// NewRedisWindow creates a RedisWindow. A limit <= 0 disables the cap.
func NewRedisWindow(client *redis.Client, name string, limit int, window time.Duration, nearRatio float64) *RedisWindow {
	if nearRatio <= 0 || nearRatio > 1 {
		nearRatio = DefaultNearCapRatio
	}
	return &RedisWindow{
		client: client,
		key:    fmt.Sprintf("llmrouter:ratelimit:%s", name),
		limit:  limit,
		window: window,
		ratio:  nearRatio,
		now:    time.Now,
	}
}

// Record adds one use and trims entries outside the window.
func (w *RedisWindow) Record(ctx context.Context) error {
	now := w.now()
	windowStart := now.Add(-w.window)

	pipe := w.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, w.key, "0", fmt.Sprintf("%d", windowStart.UnixMilli()))
	pipe.ZAdd(ctx, w.key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, w.key, 2*w.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record window use: %w", err)
	}
	return nil
}

// Usage returns the number of uses inside the window.
func (w *RedisWindow) Usage(ctx context.Context) (int64, error) {
	windowStart := w.now().Add(-w.window)

	pipe := w.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, w.key, "0", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, w.key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("read window usage: %w", err)
	}
	return countCmd.Val(), nil
}

// NearCap implements Window.
func (w *RedisWindow) NearCap(ctx context.Context) (bool, error) {
	if w.limit <= 0 {
		return false, nil
	}
	n, err := w.Usage(ctx)
	if err != nil {
		return false, err
	}
	return float64(n) >= float64(w.limit)*w.ratio, nil
}

// Reset clears the window.
func (w *RedisWindow) Reset(ctx context.Context) error {
	return w.client.Del(ctx, w.key).Err()
}

// LocalWindow approximates the rolling window with an in-process token
// bucket refilling limit tokens per window.
type LocalWindow struct {
	lim   *rate.Limiter
	limit int
	ratio float64
	now   func() time.Time
}

// NewLocalWindow creates a LocalWindow. A limit <= 0 disables the cap.
func NewLocalWindow(limit int, window time.Duration, nearRatio float64) *LocalWindow {
	if nearRatio <= 0 || nearRatio > 1 {
		nearRatio = DefaultNearCapRatio
	}
	w := &LocalWindow{limit: limit, ratio: nearRatio, now: time.Now}
	if limit > 0 && window > 0 {
		w.lim = rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)
	}
	return w
}

// Record implements Window. Uses beyond the bucket still count and push
// the bucket negative.
func (w *LocalWindow) Record(context.Context) error {
	if w.lim == nil {
		return nil
	}
	w.lim.ReserveN(w.now(), 1)
	return nil
}

// NearCap implements Window.
func (w *LocalWindow) NearCap(context.Context) (bool, error) {
	if w.lim == nil {
		return false, nil
	}
	used := float64(w.limit) - w.lim.TokensAt(w.now())
	return used >= float64(w.limit)*w.ratio, nil
}
