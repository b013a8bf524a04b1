package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// PaymentTransaction binds an order to one gateway attempt.
type PaymentTransaction struct {
	ID                   uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID        string                  `gorm:"column:transaction_id;type:text;not null;uniqueIndex"`
	GatewayTransactionID *string                 `gorm:"column:gateway_transaction_id;type:text;index"`
	OrderID              uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Gateway              string                  `gorm:"column:gateway;type:text;not null"`
	FlowType             enums.GatewayFlow       `gorm:"column:flow_type;type:text;not null"`
	Amount               decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency             string                  `gorm:"column:currency;type:text;not null"`
	Status               enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'initiated'"`
	RefundedAmount       decimal.Decimal         `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`
	RedirectURL          *string                 `gorm:"column:redirect_url;type:text"`
	GatewayRequest       map[string]any          `gorm:"column:gateway_request;type:jsonb;serializer:json"`
	GatewayResponse      map[string]any          `gorm:"column:gateway_response;type:jsonb;serializer:json"`
	WebhookReceived      bool                    `gorm:"column:webhook_received;not null;default:false"`
	WebhookPayload       map[string]any          `gorm:"column:webhook_payload;type:jsonb;serializer:json"`
	ErrorMessage         *string                 `gorm:"column:error_message;type:text"`
	CustomerIP           *string                 `gorm:"column:customer_ip;type:text"`
	UserAgent            *string                 `gorm:"column:user_agent;type:text"`
	CompletedAt          *time.Time              `gorm:"column:completed_at"`
	RefundedAt           *time.Time              `gorm:"column:refunded_at"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// RemainingRefundable is the amount that can still be refunded.
func (p PaymentTransaction) RemainingRefundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}
