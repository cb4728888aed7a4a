package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/social_platform/pkg/eventbus"
)

type Post struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"userId"`
	Content   string    `gorm:"size:500;not null" json:"content"`
	MediaIDs  []string  `gorm:"serializer:json;type:text" json:"mediaIds"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p *Post) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// OutboxEvent is written in the same transaction as the post change it
// describes and stays pending until the broker accepted it.
type OutboxEvent struct {
	ID           string     `gorm:"size:27;primaryKey"`
	Name         string     `gorm:"size:64;not null"`
	Payload      []byte     `gorm:"not null"`
	OccurredAt   time.Time  `gorm:"not null"`
	DispatchedAt *time.Time `gorm:"index"`
	Attempts     int        `gorm:"not null;default:0"`
	LastError    string
	CreatedAt    time.Time `gorm:"index"`
}

func OutboxFromEvent(ev eventbus.Event) *OutboxEvent {
	return &OutboxEvent{
		ID:         ev.ID,
		Name:       ev.Name,
		Payload:    ev.Payload,
		OccurredAt: ev.OccurredAt,
	}
}

func (o *OutboxEvent) Event() eventbus.Event {
	return eventbus.Event{
		ID:         o.ID,
		Name:       o.Name,
		Payload:    o.Payload,
		OccurredAt: o.OccurredAt,
	}
}
