package eventbus

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	w       MessageWriter
	prefix  string
	timeout time.Duration
}

func NewPublisher(brokers []string, prefix string, timeout time.Duration) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return NewPublisherWithWriter(w, prefix, timeout)
}

func NewPublisherWithWriter(w MessageWriter, prefix string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{w: w, prefix: prefix, timeout: timeout}
}

func (p *Publisher) Topic(name string) string { return p.prefix + name }

// Publish wraps payload in a new Event and writes it to the topic for name.
func (p *Publisher) Publish(ctx context.Context, name string, payload any) (Event, error) {
	ev, err := NewEvent(name, payload)
	if err != nil {
		return Event{}, err
	}
	return ev, p.PublishEvent(ctx, ev)
}

// PublishEvent writes an already built event, keeping its id. Used by the
// outbox relay so redelivered events stay deduplicable.
func (p *Publisher) PublishEvent(ctx context.Context, ev Event) error {
	return p.write(ctx, p.Topic(ev.Name), ev, 1)
}

func (p *Publisher) write(ctx context.Context, topic string, ev Event, attempt int) error {
	msg, err := toMessage(topic, ev, attempt)
	if err != nil {
		return &PublishError{Topic: topic, EventID: ev.ID, Err: err}
	}
	return p.writeMessage(ctx, msg, ev.ID)
}

func (p *Publisher) writeMessage(ctx context.Context, msg kafka.Message, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return &PublishError{Topic: msg.Topic, EventID: eventID, Err: err}
	}
	return nil
}

func (p *Publisher) Close() error { return p.w.Close() }
