package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Shop is a tenant selling through the marketplace.
type Shop struct {
	ID        uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID   uuid.UUID   `gorm:"column:owner_id;type:uuid;not null;index"`
	Name      string      `gorm:"column:name;type:text;not null"`
	Slug      string      `gorm:"column:slug;type:text;not null;uniqueIndex"`
	IsActive  bool        `gorm:"column:is_active;not null"`
	Staff     []ShopStaff `gorm:"foreignKey:ShopID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Shop) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// ShopStaff links a user to a shop they help operate.
type ShopStaff struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShopID    uuid.UUID `gorm:"column:shop_id;type:uuid;not null;uniqueIndex:ux_shop_staff_member"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_shop_staff_member"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ShopStaff) TableName() string { return "shop_staff" }

func (s *ShopStaff) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
