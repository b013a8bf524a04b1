package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification is an in-app message. Message holds the sanitised HTML subset.
type Notification struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	Message   string     `gorm:"column:message;type:text;not null"`
	IsRead    bool       `gorm:"column:is_read;not null;default:false"`
	ReadAt    *time.Time `gorm:"column:read_at"`
	SentAt    time.Time  `gorm:"column:sent_at;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	return nil
}

// EmailTemplate is an admin-managed email body with {{placeholder}} slots.
type EmailTemplate struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Key          string    `gorm:"column:key;type:text;not null;uniqueIndex"`
	Subject      string    `gorm:"column:subject;type:text;not null"`
	HTML         string    `gorm:"column:html;type:text;not null"`
	Placeholders []string  `gorm:"column:placeholders;type:jsonb;serializer:json"`
	IsActive     bool      `gorm:"column:is_active;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *EmailTemplate) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
