package eventbus

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/social_platform/pkg/logging"
)

// Ledger remembers which (consumer, event) pairs were handled. It only lets
// consumers skip obvious redeliveries; handlers stay idempotent on their own.
type Ledger interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type RedisLedger struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisLedger(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = "evt"
	}
	return &RedisLedger{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) Seen(ctx context.Context, key string) (bool, error) {
	n, err := l.rdb.Exists(ctx, l.prefix+":"+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisLedger) Mark(ctx context.Context, key string) error {
	return l.rdb.SetNX(ctx, l.prefix+":"+key, 1, l.ttl).Err()
}

type MemoryLedger struct {
	items *ttlcache.Cache[string, struct{}]
}

// NewMemoryLedger starts the expiry loop; call Stop when done.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	items := ttlcache.New(
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go items.Start()
	return &MemoryLedger{items: items}
}

func (l *MemoryLedger) Seen(_ context.Context, key string) (bool, error) {
	return l.items.Has(key), nil
}

func (l *MemoryLedger) Mark(_ context.Context, key string) error {
	l.items.Set(key, struct{}{}, ttlcache.DefaultTTL)
	return nil
}

func (l *MemoryLedger) Stop() { l.items.Stop() }

// FallbackLedger uses primary and falls back to a process-local ledger when
// primary is unreachable.
type FallbackLedger struct {
	primary  Ledger
	fallback Ledger
}

func NewFallbackLedger(primary, fallback Ledger) *FallbackLedger {
	return &FallbackLedger{primary: primary, fallback: fallback}
}

func (l *FallbackLedger) Seen(ctx context.Context, key string) (bool, error) {
	seen, err := l.primary.Seen(ctx, key)
	if err == nil {
		if seen {
			return true, nil
		}
		return l.fallback.Seen(ctx, key)
	}
	logging.FromContext(ctx).Warn("ledger_degraded", "op", "seen", "error", err)
	return l.fallback.Seen(ctx, key)
}

func (l *FallbackLedger) Mark(ctx context.Context, key string) error {
	_ = l.fallback.Mark(ctx, key)
	if err := l.primary.Mark(ctx, key); err != nil {
		logging.FromContext(ctx).Warn("ledger_degraded", "op", "mark", "error", err)
	}
	return nil
}
