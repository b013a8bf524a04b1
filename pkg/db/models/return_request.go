package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// ReturnRequest is a customer's request to send back a whole order or lines.
type ReturnRequest struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	UserID             uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	Type               enums.ReturnType   `gorm:"column:type;type:text;not null"`
	Reason             string             `gorm:"column:reason;type:text;not null"`
	Status             enums.ReturnStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	RefundAmount       decimal.Decimal    `gorm:"column:refund_amount;type:numeric(12,2);not null"`
	RefundStatus       enums.RefundStatus `gorm:"column:refund_status;type:text;not null;default:'none'"`
	WalletCreditID     *uuid.UUID         `gorm:"column:wallet_credit_id;type:uuid"`
	TransferEligibleAt *time.Time         `gorm:"column:transfer_eligible_at"`
	AdminNote          *string            `gorm:"column:admin_note;type:text"`
	ReviewedBy         *uuid.UUID         `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt         *time.Time         `gorm:"column:reviewed_at"`
	RefundedAt         *time.Time         `gorm:"column:refunded_at"`
	Items              []ReturnItem       `gorm:"foreignKey:ReturnRequestID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// ReturnItem is one order line being returned.
type ReturnItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ReturnRequestID uuid.UUID       `gorm:"column:return_request_id;type:uuid;not null;index"`
	OrderLineID     uuid.UUID       `gorm:"column:order_line_id;type:uuid;not null;index"`
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariationID     *uuid.UUID      `gorm:"column:variation_id;type:uuid"`
	Quantity        int             `gorm:"column:quantity;not null"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	RefundAmount    decimal.Decimal `gorm:"column:refund_amount;type:numeric(12,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *ReturnItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
