package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/social_platform/pkg/logging"
)

const DefaultMaxAttempts = 5

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ReaderFactory func(topic, group string) MessageReader

func KafkaReaders(brokers []string) ReaderFactory {
	return func(topic, group string) MessageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  group,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  time.Second,
		})
	}
}

type ConsumerConfig struct {
	Group       string
	MaxAttempts int
	// WriteRetries bounds retries of requeue and dead-letter writes before
	// the consumer stops without committing.
	WriteRetries uint64
	WriteBackoff time.Duration
}

type Consumer struct {
	cfg       ConsumerConfig
	reg       *Registry
	pub       *Publisher
	ledger    Ledger
	newReader ReaderFactory
	log       *slog.Logger
}

func NewConsumer(cfg ConsumerConfig, reg *Registry, pub *Publisher, ledger Ledger, readers ReaderFactory, log *slog.Logger) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.WriteRetries == 0 {
		cfg.WriteRetries = 3
	}
	if cfg.WriteBackoff <= 0 {
		cfg.WriteBackoff = 200 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{cfg: cfg, reg: reg, pub: pub, ledger: ledger, newReader: readers, log: log}
}

// Run consumes every subscribed event until ctx is cancelled or a message
// can be neither handled nor parked. In the second case the message is left
// uncommitted and the error is returned.
func (c *Consumer) Run(ctx context.Context) error {
	names := c.reg.Names()
	if len(names) == 0 {
		return fmt.Errorf("eventbus: consumer %s has no subscriptions", c.cfg.Group)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		h, _ := c.reg.Handler(name)
		topic := c.pub.Topic(name)
		r := c.newReader(topic, c.cfg.Group)
		g.Go(func() error {
			defer r.Close()
			return c.consume(ctx, topic, h, r)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) consume(ctx context.Context, topic string, h Handler, r MessageReader) error {
	log := c.log.With("topic", topic, "group", c.cfg.Group)
	log.Info("consumer_started")
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("consumer_stopped")
				return ctx.Err()
			}
			return fmt.Errorf("fetch %s: %w", topic, err)
		}

		if err := c.process(logging.IntoContext(ctx, log), topic, h, msg); err != nil {
			log.Error("consumer_halted", "offset", msg.Offset, "error", err)
			return err
		}
		if err := r.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit %s@%d: %w", topic, msg.Offset, err)
		}
	}
}

// process runs one message to an outcome. A nil return means the message may
// be committed.
func (c *Consumer) process(ctx context.Context, topic string, h Handler, msg kafka.Message) error {
	log := logging.FromContext(ctx)

	ev, attempt, err := fromMessage(msg)
	if err != nil {
		log.Warn("event_undecodable", "offset", msg.Offset, "error", err)
		return c.deadLetter(ctx, topic, msg, err)
	}
	log = log.With("event_id", ev.ID, "event", ev.Name, "attempt", attempt)
	ctx = logging.IntoContext(ctx, log)

	key := c.cfg.Group + ":" + ev.ID
	if seen, err := c.ledger.Seen(ctx, key); err == nil && seen {
		log.Info("event_skipped", "reason", "already handled")
		return nil
	}

	herr := safeCall(ctx, h, ev)
	switch {
	case herr == nil:
		log.Info("event_handled")
		c.mark(ctx, key)
		return nil

	case IsPartial(herr):
		log.Warn("event_partially_handled", "error", herr)
		if err := c.deadLetter(ctx, topic, msg, herr); err != nil {
			return err
		}
		c.mark(ctx, key)
		return nil

	case IsPermanent(herr):
		log.Error("event_rejected", "error", herr)
		return c.deadLetter(ctx, topic, msg, herr)

	case attempt >= c.cfg.MaxAttempts:
		log.Error("event_exhausted", "max_attempts", c.cfg.MaxAttempts, "error", herr)
		return c.deadLetter(ctx, topic, msg, herr)

	default:
		log.Warn("event_requeued", "error", herr)
		return c.withRetry(ctx, func(ctx context.Context) error {
			return c.pub.write(ctx, topic, ev, attempt+1)
		})
	}
}

func (c *Consumer) mark(ctx context.Context, key string) {
	if err := c.ledger.Mark(ctx, key); err != nil {
		logging.FromContext(ctx).Warn("ledger_mark_failed", "error", err)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, topic string, msg kafka.Message, cause error) error {
	dlq := kafka.Message{
		Topic:   DeadLetterTopic(topic),
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: withHeader(withHeader(msg.Headers, headerReason, cause.Error()), headerSource, topic),
	}
	id := header(msg, headerEventID)
	return c.withRetry(ctx, func(ctx context.Context) error {
		return c.pub.writeMessage(ctx, dlq, id)
	})
}

func (c *Consumer) withRetry(ctx context.Context, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(c.cfg.WriteRetries, retry.NewExponential(c.cfg.WriteBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func safeCall(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, ev)
}
