// Package outbox republishes events whose inline publish failed, so a broker
// outage or a crash after commit delays the cascade instead of losing it.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"

	"github.com/Skotchmaster/social_platform/pkg/eventbus"
	"github.com/Skotchmaster/social_platform/services/post/internal/models"
)

type Store interface {
	PendingEvents(ctx context.Context, olderThan time.Time, limit int) ([]models.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause error) error
	PurgeDispatched(ctx context.Context, before time.Time) (int64, error)
}

type Publisher interface {
	PublishEvent(ctx context.Context, ev eventbus.Event) error
}

type Config struct {
	Interval time.Duration
	// MinAge leaves fresh rows to the request that wrote them.
	MinAge    time.Duration
	Batch     int
	Retries   uint64
	Backoff   time.Duration
	Retention time.Duration
}

type Relay struct {
	store Store
	pub   Publisher
	cfg   Config
	clock clockwork.Clock
	log   *slog.Logger
}

func NewRelay(store Store, pub Publisher, cfg Config, clock clockwork.Clock, log *slog.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 5 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Relay{store: store, pub: pub, cfg: cfg, clock: clock, log: log.With("component", "outbox_relay")}
}

func (r *Relay) Run(ctx context.Context) error {
	t := r.clock.NewTicker(r.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Chan():
			if _, err := r.DispatchPending(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("outbox_dispatch_failed", "error", err)
			}
			if n, err := r.store.PurgeDispatched(ctx, r.clock.Now().Add(-r.cfg.Retention)); err != nil {
				r.log.Warn("outbox_purge_failed", "error", err)
			} else if n > 0 {
				r.log.Info("outbox_purged", "count", n)
			}
		}
	}
}

// DispatchPending publishes one batch of pending events. It stops at the
// first event the broker keeps rejecting and leaves the rest for the next
// round.
func (r *Relay) DispatchPending(ctx context.Context) (int, error) {
	rows, err := r.store.PendingEvents(ctx, r.clock.Now().Add(-r.cfg.MinAge), r.cfg.Batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range rows {
		row := &rows[i]
		b := retry.WithMaxRetries(r.cfg.Retries, retry.NewExponential(r.cfg.Backoff))
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			if err := r.pub.PublishEvent(ctx, row.Event()); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			if merr := r.store.MarkFailed(ctx, row.ID, err); merr != nil {
				r.log.Warn("outbox_mark_failed", "event_id", row.ID, "error", merr)
			}
			r.log.Error("outbox_publish_failed", "event_id", row.ID, "event", row.Name, "attempts", row.Attempts+1, "error", err)
			return sent, err
		}

		if err := r.store.MarkDispatched(ctx, row.ID, r.clock.Now()); err != nil {
			r.log.Warn("outbox_mark_failed", "event_id", row.ID, "error", err)
		}
		r.log.Info("outbox_event_dispatched", "event_id", row.ID, "event", row.Name)
		sent++
	}
	return sent, nil
}
