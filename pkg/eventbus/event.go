// Package eventbus publishes and consumes domain events over Kafka with
// at-least-once delivery. Consumers requeue transient failures, move poison
// messages to a dead-letter topic and skip events they already handled.
package eventbus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/ksuid"
)

const (
	PostCreated = "post.created"
	PostDeleted = "post.deleted"
)

const (
	headerEventID   = "event-id"
	headerEventName = "event-name"
	headerAttempt   = "attempt"
	headerReason    = "dlq-reason"
	headerSource    = "dlq-source-topic"

	deadLetterSuffix = ".dlq"
)

type Event struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewEvent serializes payload once. The id is a ksuid so ids sort by time.
func NewEvent(name string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Event{
		ID:         ksuid.New().String(),
		Name:       name,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", e.Name, err))
	}
	return nil
}

type PostCreatedPayload struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type PostDeletedPayload struct {
	PostID   string   `json:"postId"`
	UserID   string   `json:"userId"`
	MediaIDs []string `json:"mediaIds"`
}

func DeadLetterTopic(topic string) string { return topic + deadLetterSuffix }

func toMessage(topic string, ev Event, attempt int) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(ev.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventID, Value: []byte(ev.ID)},
			{Key: headerEventName, Value: []byte(ev.Name)},
			{Key: headerAttempt, Value: []byte(strconv.Itoa(attempt))},
		},
	}, nil
}

func fromMessage(m kafka.Message) (Event, int, error) {
	var ev Event
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return Event{}, 0, fmt.Errorf("decode message at offset %d: %w", m.Offset, err)
	}
	if ev.ID == "" || ev.Name == "" {
		return Event{}, 0, fmt.Errorf("message at offset %d has no event id or name", m.Offset)
	}

	attempt := 1
	if v := header(m, headerAttempt); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			attempt = n
		}
	}
	return ev, attempt, nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func withHeader(hs []kafka.Header, key, value string) []kafka.Header {
	out := make([]kafka.Header, 0, len(hs)+1)
	for _, h := range hs {
		if h.Key != key {
			out = append(out, h)
		}
	}
	return append(out, kafka.Header{Key: key, Value: []byte(value)})
}
