package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// InventoryLog is the append-only record of every stock mutation.
type InventoryLog struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Type           enums.StockOperation  `gorm:"column:type;type:text;not null"`
	ProductID      uuid.UUID             `gorm:"column:product_id;type:uuid;not null;index"`
	VariationID    *uuid.UUID            `gorm:"column:variation_id;type:uuid"`
	OrderID        *uuid.UUID            `gorm:"column:order_id;type:uuid;index"`
	PreviousQty    int                   `gorm:"column:previous_qty;not null"`
	NewQty         int                   `gorm:"column:new_qty;not null"`
	QuantityChange int                   `gorm:"column:quantity_change;not null"`
	UnitPrice      decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Reason         enums.InventoryReason `gorm:"column:reason;type:text;not null"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (l *InventoryLog) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
