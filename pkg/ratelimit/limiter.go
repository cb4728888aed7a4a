// Package ratelimit implements a fixed-window request counter shared by every
// gateway instance through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
)

// FailurePolicy decides what Admit reports when the counter store is down.
type FailurePolicy string

const (
	FailClosed FailurePolicy = "closed"
	FailOpen   FailurePolicy = "open"
)

func ParsePolicy(s string) FailurePolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(FailOpen)) {
		return FailOpen
	}
	return FailClosed
}

type Config struct {
	Prefix  string
	Limit   int
	Window  time.Duration
	Policy  FailurePolicy
	Timeout time.Duration
}

type Decision struct {
	Allowed   bool
	Count     int64
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the store failed and Policy made the call.
	Degraded bool
}

func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

type Limiter struct {
	rdb   redis.Cmdable
	cfg   Config
	clock clockwork.Clock
}

func New(rdb redis.Cmdable, cfg Config, clock clockwork.Clock) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Policy == "" {
		cfg.Policy = FailClosed
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 200 * time.Millisecond
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{rdb: rdb, cfg: cfg, clock: clock}
}

func (l *Limiter) Limit() int { return l.cfg.Limit }

// window returns the wall-clock aligned bounds containing now.
func (l *Limiter) window(now time.Time) (start, end time.Time) {
	w := l.cfg.Window.Milliseconds()
	ms := now.UnixMilli()
	startMs := ms - ms%w
	return time.UnixMilli(startMs), time.UnixMilli(startMs + w)
}

func (l *Limiter) bucketKey(key string, start time.Time) string {
	return l.cfg.Prefix + ":" + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}

// Admit counts one request for key in the current window. The increment is
// always applied, so a saturated window keeps rejecting until it rolls over.
// When the store fails the decision follows the configured policy and the
// store error is returned alongside it.
func (l *Limiter) Admit(ctx context.Context, key string) (Decision, error) {
	now := l.clock.Now()
	start, end := l.window(now)
	bucket := l.bucketKey(key, start)

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, bucket)
		pipe.PExpireAt(ctx, bucket, end)
		return nil
	})
	if err != nil {
		d := Decision{
			Allowed:  l.cfg.Policy == FailOpen,
			Limit:    l.cfg.Limit,
			ResetAt:  end,
			Degraded: true,
		}
		return d, apperr.Transient("rate limit store unavailable", fmt.Errorf("incr %s: %w", bucket, err))
	}

	count := incr.Val()
	remaining := l.cfg.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(l.cfg.Limit),
		Count:     count,
		Limit:     l.cfg.Limit,
		Remaining: remaining,
		ResetAt:   end,
	}, nil
}
