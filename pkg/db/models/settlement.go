package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// ShopEarning is the shop's net for one completed order line.
type ShopEarning struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ShopID           uuid.UUID       `gorm:"column:shop_id;type:uuid;not null;index"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	OrderLineID      uuid.UUID       `gorm:"column:order_line_id;type:uuid;not null;uniqueIndex:ux_shop_earnings_order_line_id"`
	OrderAmount      decimal.Decimal `gorm:"column:order_amount;type:numeric(12,2);not null"`
	AdminCommission  decimal.Decimal `gorm:"column:admin_commission;type:numeric(12,2);not null"`
	DeliveryFeeShare decimal.Decimal `gorm:"column:delivery_fee_share;type:numeric(12,2);not null;default:0"`
	ShopEarning      decimal.Decimal `gorm:"column:shop_earning;type:numeric(12,2);not null"`
	IsSettled        bool            `gorm:"column:is_settled;not null;default:false"`
	SettledAt        *time.Time      `gorm:"column:settled_at"`
	WithdrawalID     *uuid.UUID      `gorm:"column:withdrawal_id;type:uuid"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (e *ShopEarning) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// ShopWithdrawRequest is a shop owner's payout request.
type ShopWithdrawRequest struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ShopID          uuid.UUID            `gorm:"column:shop_id;type:uuid;not null;index"`
	RequestedBy     uuid.UUID            `gorm:"column:requested_by;type:uuid;not null"`
	Amount          decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	AdminCommission decimal.Decimal      `gorm:"column:admin_commission;type:numeric(12,2);not null;default:0"`
	NetAmount       decimal.Decimal      `gorm:"column:net_amount;type:numeric(12,2);not null"`
	Status          enums.WithdrawStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentMethod   string               `gorm:"column:payment_method;type:text;not null"`
	BankName        *string              `gorm:"column:bank_name;type:text"`
	AccountTitle    *string              `gorm:"column:account_title;type:text"`
	AccountNumber   *string              `gorm:"column:account_number;type:text"`
	IBAN            *string              `gorm:"column:iban;type:text"`
	Note            *string              `gorm:"column:note;type:text"`
	RejectionReason *string              `gorm:"column:rejection_reason;type:text"`
	ProcessedBy     *uuid.UUID           `gorm:"column:processed_by;type:uuid"`
	ApprovedAt      *time.Time           `gorm:"column:approved_at"`
	ProcessedAt     *time.Time           `gorm:"column:processed_at"`
	SettledEarnings decimal.Decimal      `gorm:"column:settled_earnings;type:numeric(12,2);not null;default:0"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *ShopWithdrawRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
