package returns

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

type itemRequest struct {
	OrderLineID uuid.UUID `json:"order_line_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"required,min=1"`
}

type createRequest struct {
	OrderID uuid.UUID        `json:"order_id" validate:"required"`
	Type    enums.ReturnType `json:"type" validate:"required"`
	Reason  string           `json:"reason" validate:"required,max=2000"`
	Items   []itemRequest    `json:"items" validate:"dive"`
}

type reviewRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

type ReturnItemDTO struct {
	OrderLineID  uuid.UUID   `json:"order_line_id"`
	ProductID    uuid.UUID   `json:"product_id"`
	VariationID  *uuid.UUID  `json:"variation_id,omitempty"`
	Quantity     int         `json:"quantity"`
	UnitPrice    types.Money `json:"unit_price"`
	RefundAmount types.Money `json:"refund_amount"`
}

// ReturnDTO is the public view of a return request.
type ReturnDTO struct {
	ID                 uuid.UUID          `json:"id"`
	OrderID            uuid.UUID          `json:"order_id"`
	UserID             uuid.UUID          `json:"user_id"`
	Type               enums.ReturnType   `json:"type"`
	Reason             string             `json:"reason"`
	Status             enums.ReturnStatus `json:"status"`
	RefundAmount       types.Money        `json:"refund_amount"`
	RefundStatus       enums.RefundStatus `json:"refund_status"`
	TransferEligibleAt *time.Time         `json:"transfer_eligible_at,omitempty"`
	AdminNote          *string            `json:"admin_note,omitempty"`
	ReviewedAt         *time.Time         `json:"reviewed_at,omitempty"`
	RefundedAt         *time.Time         `json:"refunded_at,omitempty"`
	Items              []ReturnItemDTO    `json:"items"`
	CreatedAt          time.Time          `json:"created_at"`
}

func toReturnDTO(r *models.ReturnRequest) ReturnDTO {
	dto := ReturnDTO{
		ID:                 r.ID,
		OrderID:            r.OrderID,
		UserID:             r.UserID,
		Type:               r.Type,
		Reason:             r.Reason,
		Status:             r.Status,
		RefundAmount:       types.NewMoney(r.RefundAmount),
		RefundStatus:       r.RefundStatus,
		TransferEligibleAt: r.TransferEligibleAt,
		AdminNote:          r.AdminNote,
		ReviewedAt:         r.ReviewedAt,
		RefundedAt:         r.RefundedAt,
		Items:              make([]ReturnItemDTO, 0, len(r.Items)),
		CreatedAt:          r.CreatedAt,
	}
	for _, item := range r.Items {
		dto.Items = append(dto.Items, ReturnItemDTO{
			OrderLineID:  item.OrderLineID,
			ProductID:    item.ProductID,
			VariationID:  item.VariationID,
			Quantity:     item.Quantity,
			UnitPrice:    types.NewMoney(item.UnitPrice),
			RefundAmount: types.NewMoney(item.RefundAmount),
		})
	}
	return dto
}
