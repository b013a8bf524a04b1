package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// StockLine describes the stock touched by one order line.
type StockLine struct {
	ProductID    uuid.UUID
	VariationID  *uuid.UUID
	ItemType     enums.ItemType
	Quantity     int
	UnitPrice    decimal.Decimal
	GroupedItems []models.GroupedItem
	OrderID      *uuid.UUID
}

// LineError explains why a requested line cannot be satisfied.
type LineError struct {
	Index       int        `json:"index"`
	ProductID   uuid.UUID  `json:"product_id"`
	VariationID *uuid.UUID `json:"variation_id,omitempty"`
	Reason      string     `json:"reason"`
}

const (
	ReasonNotFound          = "product not found"
	ReasonInactive          = "product is not active"
	ReasonOutOfStock        = "product is out of stock"
	ReasonInsufficientStock = "insufficient stock"
	ReasonVariationMissing  = "variation not found"
	ReasonVariationInactive = "variation is not active"
	ReasonGroupedEmpty      = "grouped product has no items"
	ReasonInvalidQuantity   = "quantity must be positive"
	ReasonUnknownItemType   = "unknown item type"
)
