package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

type customerRequest struct {
	Name  string `json:"name" validate:"max=255"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"max=32"`
}

type initiateRequest struct {
	OrderID     uuid.UUID       `json:"order_id" validate:"required"`
	Gateway     string          `json:"gateway" validate:"required"`
	Amount      *types.Money    `json:"amount" validate:"omitempty,money"`
	Customer    customerRequest `json:"customer"`
	Description string          `json:"description" validate:"max=255"`
}

type refundRequest struct {
	TransactionID string       `json:"transaction_id" validate:"required"`
	Amount        *types.Money `json:"amount" validate:"omitempty,money"`
	Reason        string       `json:"reason" validate:"max=500"`
}

// InitiateResponse tells the client how to hand the buyer to the provider.
type InitiateResponse struct {
	TransactionID string            `json:"transaction_id"`
	FlowType      enums.GatewayFlow `json:"flow_type"`
	RedirectURL   string            `json:"redirect_url,omitempty"`
	PaymentData   map[string]string `json:"payment_data,omitempty"`
	Amount        types.Money       `json:"amount"`
	Currency      string            `json:"currency"`
}

// TransactionDTO is the public view of a payment transaction.
type TransactionDTO struct {
	TransactionID        string                  `json:"transaction_id"`
	GatewayTransactionID *string                 `json:"gateway_transaction_id,omitempty"`
	OrderID              uuid.UUID               `json:"order_id"`
	Gateway              string                  `json:"gateway"`
	FlowType             enums.GatewayFlow       `json:"flow_type"`
	Amount               types.Money             `json:"amount"`
	RefundedAmount       types.Money             `json:"refunded_amount"`
	Currency             string                  `json:"currency"`
	Status               enums.TransactionStatus `json:"status"`
	ErrorMessage         *string                 `json:"error_message,omitempty"`
	CompletedAt          *time.Time              `json:"completed_at,omitempty"`
	RefundedAt           *time.Time              `json:"refunded_at,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
}

func toTransactionDTO(t *models.PaymentTransaction) TransactionDTO {
	return TransactionDTO{
		TransactionID:        t.TransactionID,
		GatewayTransactionID: t.GatewayTransactionID,
		OrderID:              t.OrderID,
		Gateway:              t.Gateway,
		FlowType:             t.FlowType,
		Amount:               types.NewMoney(t.Amount),
		RefundedAmount:       types.NewMoney(t.RefundedAmount),
		Currency:             t.Currency,
		Status:               t.Status,
		ErrorMessage:         t.ErrorMessage,
		CompletedAt:          t.CompletedAt,
		RefundedAt:           t.RefundedAt,
		CreatedAt:            t.CreatedAt,
	}
}
