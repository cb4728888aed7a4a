package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Media struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"type:uuid;not null;index" json:"userId"`
	ObjectKey    string    `gorm:"size:255;not null;uniqueIndex" json:"-"`
	OriginalName string    `gorm:"size:255;not null" json:"originalName"`
	MimeType     string    `gorm:"size:127;not null" json:"mimeType"`
	URL          string    `gorm:"not null" json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (m *Media) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
