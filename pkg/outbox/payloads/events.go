// Package payloads defines the data carried by each outbox event type.
// Money fields are strings with two decimals.
package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

type OrderPlacedEvent struct {
	OrderID    uuid.UUID   `json:"order_id"`
	TrackingNo string      `json:"tracking_no"`
	CustomerID *uuid.UUID  `json:"customer_id,omitempty"`
	ShopIDs    []uuid.UUID `json:"shop_ids"`
	Total      string      `json:"total"`
}

type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	TrackingNo    string              `json:"tracking_no"`
	CustomerID    *uuid.UUID          `json:"customer_id,omitempty"`
	From          enums.OrderStatus   `json:"from"`
	To            enums.OrderStatus   `json:"to"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

type OrderCancelledEvent struct {
	OrderID    uuid.UUID   `json:"order_id"`
	TrackingNo string      `json:"tracking_no"`
	CustomerID *uuid.UUID  `json:"customer_id,omitempty"`
	ShopIDs    []uuid.UUID `json:"shop_ids"`
}

type PaymentEvent struct {
	TransactionID  string                  `json:"transaction_id"`
	OrderID        uuid.UUID               `json:"order_id"`
	Gateway        string                  `json:"gateway"`
	Status         enums.TransactionStatus `json:"status"`
	Amount         string                  `json:"amount"`
	RefundedAmount string                  `json:"refunded_amount"`
}

type ReturnEvent struct {
	ReturnID     uuid.UUID          `json:"return_id"`
	OrderID      uuid.UUID          `json:"order_id"`
	TrackingNo   string             `json:"tracking_no"`
	UserID       uuid.UUID          `json:"user_id"`
	ShopIDs      []uuid.UUID        `json:"shop_ids"`
	Status       enums.ReturnStatus `json:"status"`
	RefundAmount string             `json:"refund_amount"`
}

type WithdrawalEvent struct {
	WithdrawalID uuid.UUID            `json:"withdrawal_id"`
	ShopID       uuid.UUID            `json:"shop_id"`
	Status       enums.WithdrawStatus `json:"status"`
	Amount       string               `json:"amount"`
}

type StockEvent struct {
	ProductID uuid.UUID  `json:"product_id"`
	ShopID    *uuid.UUID `json:"shop_id,omitempty"`
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
}

type WalletEvent struct {
	UserID   uuid.UUID                   `json:"user_id"`
	Kind     enums.WalletTransactionKind `json:"kind"`
	Amount   string                      `json:"amount"`
	ReturnID *uuid.UUID                  `json:"return_id,omitempty"`
}
