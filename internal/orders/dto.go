package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// PlaceOrderInput is a checkout submission. CustomerID is nil for guests.
type PlaceOrderInput struct {
	CustomerID      *uuid.UUID
	CustomerName    string
	CustomerEmail   *string
	CustomerContact string
	ShippingAddress map[string]any
	BillingAddress  map[string]any
	DeliveryTime    *string
	Note            *string
	SalesTax        decimal.Decimal
	DeliveryFee     decimal.Decimal
	Discount        decimal.Decimal
	PaymentMethod   enums.PaymentMethod
	PaymentGateway  *string
	Lines           []LineInput
}

// LineInput is one requested line. Subtotal must equal Quantity × UnitPrice.
type LineInput struct {
	ProductID    uuid.UUID
	ItemType     enums.ItemType
	VariationID  *uuid.UUID
	Quantity     int
	UnitPrice    decimal.Decimal
	Subtotal     decimal.Decimal
	GroupedItems []models.GroupedItem
}

// StatusUpdate carries the optional next order and payment statuses.
type StatusUpdate struct {
	OrderID       uuid.UUID
	OrderStatus   *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	ActorID       *uuid.UUID
}

// ListFilters narrow order listings. Zero values match everything.
type ListFilters struct {
	CustomerID    *uuid.UUID
	ShopID        *uuid.UUID
	OrderStatus   *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	TrackingNo    string
}

// FieldError flags an invalid input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}
