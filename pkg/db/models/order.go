package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// Order is the customer-facing purchase. Total is always
// Σ line.subtotal + sales_tax + delivery_fee − discount.
type Order struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TrackingNo            string              `gorm:"column:tracking_no;type:text;not null;uniqueIndex"`
	CustomerID            *uuid.UUID          `gorm:"column:customer_id;type:uuid;index"`
	CustomerName          string              `gorm:"column:customer_name;type:text;not null;default:''"`
	CustomerEmail         *string             `gorm:"column:customer_email;type:text"`
	CustomerContact       string              `gorm:"column:customer_contact;type:text;not null;default:''"`
	ShopID                *uuid.UUID          `gorm:"column:shop_id;type:uuid;index"`
	Amount                decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	SalesTax              decimal.Decimal     `gorm:"column:sales_tax;type:numeric(12,2);not null;default:0"`
	DeliveryFee           decimal.Decimal     `gorm:"column:delivery_fee;type:numeric(12,2);not null;default:0"`
	Discount              decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Total                 decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	AdminCommissionAmount decimal.Decimal     `gorm:"column:admin_commission_amount;type:numeric(12,2);not null;default:0"`
	OrderStatus           enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'pending'"`
	PaymentStatus         enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentMethod         enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'online'"`
	PaymentGateway        *string             `gorm:"column:payment_gateway;type:text"`
	ShippingAddress       map[string]any      `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress        map[string]any      `gorm:"column:billing_address;type:jsonb;serializer:json"`
	DeliveryTime          *string             `gorm:"column:delivery_time;type:text"`
	Note                  *string             `gorm:"column:note;type:text"`
	EmailSent             bool                `gorm:"column:email_sent;not null;default:false"`
	InventoryRestored     bool                `gorm:"column:inventory_restored;not null;default:false"`
	CompletedAt           *time.Time          `gorm:"column:completed_at"`
	Lines                 []OrderLine         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory         *OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// ProductSnapshot freezes catalogue attributes at placement time.
type ProductSnapshot struct {
	Name          string           `json:"name"`
	Slug          string           `json:"slug,omitempty"`
	SKU           *string          `json:"sku,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	SalePrice     *decimal.Decimal `json:"sale_price,omitempty"`
	Image         map[string]any   `json:"image,omitempty"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
}

// GroupedItem is one constituent of a grouped order line.
type GroupedItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// OrderLine is a single purchased item. Subtotal is quantity × unit price.
type OrderLine struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	ShopID            *uuid.UUID       `gorm:"column:shop_id;type:uuid;index"`
	ProductID         uuid.UUID        `gorm:"column:product_id;type:uuid;not null"`
	VariationID       *uuid.UUID       `gorm:"column:variation_id;type:uuid"`
	ItemType          enums.ItemType   `gorm:"column:item_type;type:text;not null"`
	Quantity          int              `gorm:"column:quantity;not null"`
	UnitPrice         decimal.Decimal  `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Subtotal          decimal.Decimal  `gorm:"column:subtotal;type:numeric(12,2);not null"`
	AdminCommission   decimal.Decimal  `gorm:"column:admin_commission;type:numeric(12,2);not null;default:0"`
	ProductSnapshot   ProductSnapshot  `gorm:"column:product_snapshot;type:jsonb;serializer:json"`
	VariationSnapshot *ProductSnapshot `gorm:"column:variation_snapshot;type:jsonb;serializer:json"`
	GroupedItems      []GroupedItem    `gorm:"column:grouped_items;type:jsonb;serializer:json"`
	IsReturned        bool             `gorm:"column:is_returned;not null;default:false"`
	ReturnedQty       int              `gorm:"column:returned_qty;not null;default:0"`
	ReturnRequestID   *uuid.UUID       `gorm:"column:return_request_id;type:uuid"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// OrderStatusHistory is the per-order sidecar of first-seen timestamps.
type OrderStatusHistory struct {
	ID                            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                       uuid.UUID  `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	OrderPendingDate              *time.Time `gorm:"column:order_pending_date"`
	OrderProcessingDate           *time.Time `gorm:"column:order_processing_date"`
	OrderPackedDate               *time.Time `gorm:"column:order_packed_date"`
	OrderAtDistributionCenterDate *time.Time `gorm:"column:order_at_distribution_center_date"`
	OrderAtLocalFacilityDate      *time.Time `gorm:"column:order_at_local_facility_date"`
	OrderOutForDeliveryDate       *time.Time `gorm:"column:order_out_for_delivery_date"`
	OrderCompletedDate            *time.Time `gorm:"column:order_completed_date"`
	OrderCancelledDate            *time.Time `gorm:"column:order_cancelled_date"`
	OrderFailedDate               *time.Time `gorm:"column:order_failed_date"`
	OrderRefundedDate             *time.Time `gorm:"column:order_refunded_date"`
}

func (OrderStatusHistory) TableName() string { return "order_status_histories" }

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}

// StatusColumn maps an order status onto its sidecar column.
func StatusColumn(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusPending:
		return "order_pending_date"
	case enums.OrderStatusProcessing:
		return "order_processing_date"
	case enums.OrderStatusPacked:
		return "order_packed_date"
	case enums.OrderStatusAtDistributionCenter:
		return "order_at_distribution_center_date"
	case enums.OrderStatusAtLocalFacility:
		return "order_at_local_facility_date"
	case enums.OrderStatusOutForDelivery:
		return "order_out_for_delivery_date"
	case enums.OrderStatusCompleted:
		return "order_completed_date"
	case enums.OrderStatusCancelled:
		return "order_cancelled_date"
	case enums.OrderStatusFailed:
		return "order_failed_date"
	case enums.OrderStatusRefunded:
		return "order_refunded_date"
	}
	return ""
}
