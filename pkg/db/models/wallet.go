package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// UserWallet holds a customer's refund balance.
// Balance is always TotalCredited − TotalDebited.
type UserWallet struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Balance       decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	TotalCredited decimal.Decimal `gorm:"column:total_credited;type:numeric(12,2);not null;default:0"`
	TotalDebited  decimal.Decimal `gorm:"column:total_debited;type:numeric(12,2);not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *UserWallet) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

// WalletTransaction is one signed movement on a user wallet.
type WalletTransaction struct {
	ID                 uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	Amount             decimal.Decimal             `gorm:"column:amount;type:numeric(12,2);not null"`
	Kind               enums.WalletTransactionKind `gorm:"column:kind;type:text;not null"`
	BalanceAfter       decimal.Decimal             `gorm:"column:balance_after;type:numeric(12,2);not null"`
	IsRefund           bool                        `gorm:"column:is_refund;not null;default:false"`
	TransferEligibleAt *time.Time                  `gorm:"column:transfer_eligible_at"`
	TransferredToBank  bool                        `gorm:"column:transferred_to_bank;not null;default:false"`
	TransferredAt      *time.Time                  `gorm:"column:transferred_at"`
	ReturnRequestID    *uuid.UUID                  `gorm:"column:return_request_id;type:uuid;index"`
	BankAccountID      *string                     `gorm:"column:bank_account_id;type:text"`
	Description        string                      `gorm:"column:description;type:text;not null;default:''"`
	CreatedAt          time.Time                   `gorm:"column:created_at"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}
