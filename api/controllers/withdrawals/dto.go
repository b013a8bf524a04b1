package withdrawals

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

type withdrawRequest struct {
	ShopID        uuid.UUID   `json:"shop_id" validate:"required"`
	Amount        types.Money `json:"amount" validate:"money"`
	PaymentMethod string      `json:"payment_method" validate:"required,max=64"`
	BankName      *string     `json:"bank_name" validate:"omitempty,max=128"`
	AccountTitle  *string     `json:"account_title" validate:"omitempty,max=128"`
	AccountNumber *string     `json:"account_number" validate:"omitempty,max=64"`
	IBAN          *string     `json:"iban" validate:"omitempty,max=34"`
	Note          *string     `json:"note" validate:"omitempty,max=1000"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// WithdrawalDTO is the public view of a shop payout request.
type WithdrawalDTO struct {
	ID              uuid.UUID            `json:"id"`
	ShopID          uuid.UUID            `json:"shop_id"`
	RequestedBy     uuid.UUID            `json:"requested_by"`
	Amount          types.Money          `json:"amount"`
	AdminCommission types.Money          `json:"admin_commission"`
	NetAmount       types.Money          `json:"net_amount"`
	Status          enums.WithdrawStatus `json:"status"`
	PaymentMethod   string               `json:"payment_method"`
	BankName        *string              `json:"bank_name,omitempty"`
	AccountTitle    *string              `json:"account_title,omitempty"`
	AccountNumber   *string              `json:"account_number,omitempty"`
	IBAN            *string              `json:"iban,omitempty"`
	Note            *string              `json:"note,omitempty"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	ProcessedBy     *uuid.UUID           `json:"processed_by,omitempty"`
	ApprovedAt      *time.Time           `json:"approved_at,omitempty"`
	ProcessedAt     *time.Time           `json:"processed_at,omitempty"`
	SettledEarnings types.Money          `json:"settled_earnings"`
	CreatedAt       time.Time            `json:"created_at"`
}

type EarningDTO struct {
	ID               uuid.UUID   `json:"id"`
	OrderID          uuid.UUID   `json:"order_id"`
	OrderLineID      uuid.UUID   `json:"order_line_id"`
	OrderAmount      types.Money `json:"order_amount"`
	AdminCommission  types.Money `json:"admin_commission"`
	DeliveryFeeShare types.Money `json:"delivery_fee_share"`
	ShopEarning      types.Money `json:"shop_earning"`
	IsSettled        bool        `json:"is_settled"`
	SettledAt        *time.Time  `json:"settled_at,omitempty"`
	WithdrawalID     *uuid.UUID  `json:"withdrawal_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

func toWithdrawalDTO(w *models.ShopWithdrawRequest) WithdrawalDTO {
	return WithdrawalDTO{
		ID:              w.ID,
		ShopID:          w.ShopID,
		RequestedBy:     w.RequestedBy,
		Amount:          types.NewMoney(w.Amount),
		AdminCommission: types.NewMoney(w.AdminCommission),
		NetAmount:       types.NewMoney(w.NetAmount),
		Status:          w.Status,
		PaymentMethod:   w.PaymentMethod,
		BankName:        w.BankName,
		AccountTitle:    w.AccountTitle,
		AccountNumber:   w.AccountNumber,
		IBAN:            w.IBAN,
		Note:            w.Note,
		RejectionReason: w.RejectionReason,
		ProcessedBy:     w.ProcessedBy,
		ApprovedAt:      w.ApprovedAt,
		ProcessedAt:     w.ProcessedAt,
		SettledEarnings: types.NewMoney(w.SettledEarnings),
		CreatedAt:       w.CreatedAt,
	}
}

func toEarningDTO(e *models.ShopEarning) EarningDTO {
	return EarningDTO{
		ID:               e.ID,
		OrderID:          e.OrderID,
		OrderLineID:      e.OrderLineID,
		OrderAmount:      types.NewMoney(e.OrderAmount),
		AdminCommission:  types.NewMoney(e.AdminCommission),
		DeliveryFeeShare: types.NewMoney(e.DeliveryFeeShare),
		ShopEarning:      types.NewMoney(e.ShopEarning),
		IsSettled:        e.IsSettled,
		SettledAt:        e.SettledAt,
		WithdrawalID:     e.WithdrawalID,
		CreatedAt:        e.CreatedAt,
	}
}
