package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity record consumed by the pipeline. Profile management
// lives outside this service.
type User struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email        string     `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name         string     `gorm:"column:name;type:text;not null"`
	PasswordHash string     `gorm:"column:password_hash;not null;default:''"`
	IsRoot       bool       `gorm:"column:is_root;not null;default:false"`
	IsActive     bool       `gorm:"column:is_active;not null"`
	Roles        []string   `gorm:"column:roles;type:jsonb;serializer:json"`
	Permissions  []string   `gorm:"column:permissions;type:jsonb;serializer:json"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
