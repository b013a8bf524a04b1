package orders

import (
	"time"

	"github.com/google/uuid"

	internalorders "github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

type groupedItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type lineRequest struct {
	ProductID    uuid.UUID            `json:"product_id" validate:"required"`
	ItemType     enums.ItemType       `json:"item_type" validate:"required"`
	VariationID  *uuid.UUID           `json:"variation_id"`
	Quantity     int                  `json:"order_quantity" validate:"required,min=1"`
	UnitPrice    types.Money          `json:"unit_price"`
	Subtotal     types.Money          `json:"subtotal"`
	GroupedItems []groupedItemRequest `json:"grouped_items" validate:"dive"`
}

type createOrderRequest struct {
	CustomerName    string              `json:"customer_name" validate:"max=255"`
	CustomerEmail   *string             `json:"customer_email" validate:"omitempty,email"`
	CustomerContact string              `json:"customer_contact" validate:"required,max=64"`
	ShippingAddress map[string]any      `json:"shipping_address" validate:"required"`
	BillingAddress  map[string]any      `json:"billing_address"`
	DeliveryTime    *string             `json:"delivery_time"`
	Note            *string             `json:"note" validate:"omitempty,max=2000"`
	SalesTax        types.Money         `json:"sales_tax"`
	DeliveryFee     types.Money         `json:"delivery_fee"`
	Discount        types.Money         `json:"discount"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method" validate:"required,enum"`
	PaymentGateway  *string             `json:"payment_gateway"`
	Products        []lineRequest       `json:"products" validate:"required,min=1,dive"`
}

func (req createOrderRequest) toInput(customerID *uuid.UUID) internalorders.PlaceOrderInput {
	lines := make([]internalorders.LineInput, 0, len(req.Products))
	for _, p := range req.Products {
		var grouped []models.GroupedItem
		for _, g := range p.GroupedItems {
			grouped = append(grouped, models.GroupedItem{ProductID: g.ProductID, Quantity: g.Quantity})
		}
		lines = append(lines, internalorders.LineInput{
			ProductID:    p.ProductID,
			ItemType:     p.ItemType,
			VariationID:  p.VariationID,
			Quantity:     p.Quantity,
			UnitPrice:    p.UnitPrice.Decimal,
			Subtotal:     p.Subtotal.Decimal,
			GroupedItems: grouped,
		})
	}
	return internalorders.PlaceOrderInput{
		CustomerID:      customerID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerContact: req.CustomerContact,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		DeliveryTime:    req.DeliveryTime,
		Note:            req.Note,
		SalesTax:        req.SalesTax.Decimal,
		DeliveryFee:     req.DeliveryFee.Decimal,
		Discount:        req.Discount.Decimal,
		PaymentMethod:   req.PaymentMethod,
		PaymentGateway:  req.PaymentGateway,
		Lines:           lines,
	}
}

type statusRequest struct {
	OrderStatus   *enums.OrderStatus   `json:"order_status"`
	PaymentStatus *enums.PaymentStatus `json:"payment_status"`
}

// OrderLineDTO is the public view of an order line.
type OrderLineDTO struct {
	ID                uuid.UUID               `json:"id"`
	ShopID            *uuid.UUID              `json:"shop_id,omitempty"`
	ProductID         uuid.UUID               `json:"product_id"`
	VariationID       *uuid.UUID              `json:"variation_id,omitempty"`
	ItemType          enums.ItemType          `json:"item_type"`
	Quantity          int                     `json:"order_quantity"`
	UnitPrice         types.Money             `json:"unit_price"`
	Subtotal          types.Money             `json:"subtotal"`
	AdminCommission   types.Money             `json:"admin_commission"`
	ProductSnapshot   models.ProductSnapshot  `json:"product"`
	VariationSnapshot *models.ProductSnapshot `json:"variation,omitempty"`
	GroupedItems      []models.GroupedItem    `json:"grouped_items,omitempty"`
	IsReturned        bool                    `json:"is_returned"`
	ReturnedQty       int                     `json:"returned_qty"`
}

// OrderDTO is the public view of an order.
type OrderDTO struct {
	ID                    uuid.UUID           `json:"id"`
	TrackingNo            string              `json:"tracking_no"`
	CustomerID            *uuid.UUID          `json:"customer_id,omitempty"`
	CustomerName          string              `json:"customer_name"`
	CustomerEmail         *string             `json:"customer_email,omitempty"`
	CustomerContact       string              `json:"customer_contact"`
	ShopID                *uuid.UUID          `json:"shop_id,omitempty"`
	Amount                types.Money         `json:"amount"`
	SalesTax              types.Money         `json:"sales_tax"`
	DeliveryFee           types.Money         `json:"delivery_fee"`
	Discount              types.Money         `json:"discount"`
	Total                 types.Money         `json:"total"`
	AdminCommissionAmount types.Money         `json:"admin_commission_amount"`
	OrderStatus           enums.OrderStatus   `json:"order_status"`
	PaymentStatus         enums.PaymentStatus `json:"payment_status"`
	PaymentMethod         enums.PaymentMethod `json:"payment_method"`
	PaymentGateway        *string             `json:"payment_gateway,omitempty"`
	ShippingAddress       map[string]any      `json:"shipping_address,omitempty"`
	BillingAddress        map[string]any      `json:"billing_address,omitempty"`
	DeliveryTime          *string             `json:"delivery_time,omitempty"`
	Note                  *string             `json:"note,omitempty"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`
	Products              []OrderLineDTO      `json:"products"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

func toOrderDTO(o *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                    o.ID,
		TrackingNo:            o.TrackingNo,
		CustomerID:            o.CustomerID,
		CustomerName:          o.CustomerName,
		CustomerEmail:         o.CustomerEmail,
		CustomerContact:       o.CustomerContact,
		ShopID:                o.ShopID,
		Amount:                types.NewMoney(o.Amount),
		SalesTax:              types.NewMoney(o.SalesTax),
		DeliveryFee:           types.NewMoney(o.DeliveryFee),
		Discount:              types.NewMoney(o.Discount),
		Total:                 types.NewMoney(o.Total),
		AdminCommissionAmount: types.NewMoney(o.AdminCommissionAmount),
		OrderStatus:           o.OrderStatus,
		PaymentStatus:         o.PaymentStatus,
		PaymentMethod:         o.PaymentMethod,
		PaymentGateway:        o.PaymentGateway,
		ShippingAddress:       o.ShippingAddress,
		BillingAddress:        o.BillingAddress,
		DeliveryTime:          o.DeliveryTime,
		Note:                  o.Note,
		CompletedAt:           o.CompletedAt,
		Products:              make([]OrderLineDTO, 0, len(o.Lines)),
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
	for _, l := range o.Lines {
		dto.Products = append(dto.Products, OrderLineDTO{
			ID:                l.ID,
			ShopID:            l.ShopID,
			ProductID:         l.ProductID,
			VariationID:       l.VariationID,
			ItemType:          l.ItemType,
			Quantity:          l.Quantity,
			UnitPrice:         types.NewMoney(l.UnitPrice),
			Subtotal:          types.NewMoney(l.Subtotal),
			AdminCommission:   types.NewMoney(l.AdminCommission),
			ProductSnapshot:   l.ProductSnapshot,
			VariationSnapshot: l.VariationSnapshot,
			GroupedItems:      l.GroupedItems,
			IsReturned:        l.IsReturned,
			ReturnedQty:       l.ReturnedQty,
		})
	}
	return dto
}

func toOrderDTOs(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toOrderDTO(&rows[i]))
	}
	return out
}

// HistoryDTO lists the first time each status was reached.
type HistoryDTO struct {
	OrderID                       uuid.UUID  `json:"order_id"`
	OrderPendingDate              *time.Time `json:"order_pending_date"`
	OrderProcessingDate           *time.Time `json:"order_processing_date"`
	OrderPackedDate               *time.Time `json:"order_packed_date"`
	OrderAtDistributionCenterDate *time.Time `json:"order_at_distribution_center_date"`
	OrderAtLocalFacilityDate      *time.Time `json:"order_at_local_facility_date"`
	OrderOutForDeliveryDate       *time.Time `json:"order_out_for_delivery_date"`
	OrderCompletedDate            *time.Time `json:"order_completed_date"`
	OrderCancelledDate            *time.Time `json:"order_cancelled_date"`
	OrderFailedDate               *time.Time `json:"order_failed_date"`
	OrderRefundedDate             *time.Time `json:"order_refunded_date"`
}

func toHistoryDTO(h *models.OrderStatusHistory) HistoryDTO {
	return HistoryDTO{
		OrderID:                       h.OrderID,
		OrderPendingDate:              h.OrderPendingDate,
		OrderProcessingDate:           h.OrderProcessingDate,
		OrderPackedDate:               h.OrderPackedDate,
		OrderAtDistributionCenterDate: h.OrderAtDistributionCenterDate,
		OrderAtLocalFacilityDate:      h.OrderAtLocalFacilityDate,
		OrderOutForDeliveryDate:       h.OrderOutForDeliveryDate,
		OrderCompletedDate:            h.OrderCompletedDate,
		OrderCancelledDate:            h.OrderCancelledDate,
		OrderFailedDate:               h.OrderFailedDate,
		OrderRefundedDate:             h.OrderRefundedDate,
	}
}
