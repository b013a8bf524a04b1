package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Category groups products and carries the platform commission rate (percent).
type Category struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Name                string              `gorm:"column:name;type:text;not null"`
	AdminCommissionRate decimal.NullDecimal `gorm:"column:admin_commission_rate;type:numeric(5,2)"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
