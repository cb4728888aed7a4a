// Package cache is a read-through JSON cache on Redis. The store is an
// optimisation only: every store failure degrades to calling the source.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/social_platform/pkg/logging"
)

const scanBatch = 100

type Cache struct {
	rdb     redis.Cmdable
	timeout time.Duration
}

func New(rdb redis.Cmdable, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &Cache{rdb: rdb, timeout: timeout}
}

// Fetch returns the cached value for key, or calls compute and stores its
// result for ttl. Errors from compute are returned unchanged and never cached.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var out T
	if c != nil {
		hit, err := c.get(ctx, key, &out)
		if err != nil {
			logging.FromContext(ctx).Warn("cache_read_failed", "key", key, "error", err)
		}
		if hit {
			return out, nil
		}
	}

	out, err := compute(ctx)
	if err != nil {
		return out, err
	}

	if c != nil {
		if err := c.Set(ctx, key, out, ttl); err != nil {
			logging.FromContext(ctx).Warn("cache_write_failed", "key", key, "error", err)
		}
	}
	return out, nil
}

// GetOrCompute is Fetch for callers holding a destination pointer. A nil
// Cache always computes.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, out any, compute func(context.Context) (any, error)) error {
	if c != nil {
		hit, err := c.get(ctx, key, out)
		if err != nil {
			logging.FromContext(ctx).Warn("cache_read_failed", "key", key, "error", err)
		}
		if hit {
			return nil
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	if c == nil {
		return nil
	}
	if err := c.setRaw(ctx, key, raw, ttl); err != nil {
		logging.FromContext(ctx).Warn("cache_write_failed", "key", key, "error", err)
	}
	return nil
}

// get reports a hit only when the stored value decodes into out. A value that
// fails to decode is treated as a miss.
func (c *Cache) get(ctx context.Context, key string, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.setRaw(ctx, key, raw, ttl)
}

func (c *Cache) setRaw(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// Invalidate removes exact keys and every key matching a pattern ending in
// '*'. It keeps going after a failure and returns all errors joined.
func (c *Cache) Invalidate(ctx context.Context, patterns ...string) error {
	var (
		exact []string
		errs  []error
	)
	for _, p := range patterns {
		if strings.HasSuffix(p, "*") {
			if err := c.invalidatePattern(ctx, p); err != nil {
				errs = append(errs, fmt.Errorf("invalidate %s: %w", p, err))
			}
			continue
		}
		exact = append(exact, p)
	}

	if len(exact) > 0 {
		dctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.rdb.Del(dctx, exact...).Err()
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", strings.Join(exact, ","), err))
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) invalidatePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		sctx, cancel := context.WithTimeout(ctx, c.timeout)
		keys, next, err := c.rdb.Scan(sctx, cursor, pattern, scanBatch).Result()
		if err == nil && len(keys) > 0 {
			err = c.rdb.Unlink(sctx, keys...).Err()
		}
		cancel()
		if err != nil {
			return err
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping is used by readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
