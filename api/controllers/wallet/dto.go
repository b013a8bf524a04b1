package wallet

import (
	"time"

	"github.com/google/uuid"

	internalwallet "github.com/angelmondragon/marketcore-backend/internal/wallet"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

type transferRequest struct {
	Amount        types.Money `json:"amount" validate:"money"`
	BankAccountID string      `json:"bank_account_id" validate:"required,max=128"`
}

type TransactionDTO struct {
	ID                 uuid.UUID                   `json:"id"`
	Amount             types.Money                 `json:"amount"`
	Kind               enums.WalletTransactionKind `json:"kind"`
	BalanceAfter       types.Money                 `json:"balance_after"`
	IsRefund           bool                        `json:"is_refund"`
	TransferEligibleAt *time.Time                  `json:"transfer_eligible_at,omitempty"`
	TransferredToBank  bool                        `json:"transferred_to_bank"`
	TransferredAt      *time.Time                  `json:"transferred_at,omitempty"`
	ReturnRequestID    *uuid.UUID                  `json:"return_request_id,omitempty"`
	BankAccountID      *string                     `json:"bank_account_id,omitempty"`
	Description        string                      `json:"description"`
	CreatedAt          time.Time                   `json:"created_at"`
}

// TransferDTO reports the debit and which credits it settled.
type TransferDTO struct {
	Debit    TransactionDTO  `json:"debit"`
	Consumed []uuid.UUID     `json:"consumed_credit_ids"`
	Residual *TransactionDTO `json:"residual_credit,omitempty"`
}

func toTransactionDTO(t *models.WalletTransaction) TransactionDTO {
	return TransactionDTO{
		ID:                 t.ID,
		Amount:             types.NewMoney(t.Amount),
		Kind:               t.Kind,
		BalanceAfter:       types.NewMoney(t.BalanceAfter),
		IsRefund:           t.IsRefund,
		TransferEligibleAt: t.TransferEligibleAt,
		TransferredToBank:  t.TransferredToBank,
		TransferredAt:      t.TransferredAt,
		ReturnRequestID:    t.ReturnRequestID,
		BankAccountID:      t.BankAccountID,
		Description:        t.Description,
		CreatedAt:          t.CreatedAt,
	}
}

func toTransferDTO(res *internalwallet.TransferResult) TransferDTO {
	dto := TransferDTO{Consumed: res.Consumed}
	if res.Debit != nil {
		dto.Debit = toTransactionDTO(res.Debit)
	}
	if dto.Consumed == nil {
		dto.Consumed = []uuid.UUID{}
	}
	if res.Residual != nil {
		residual := toTransactionDTO(res.Residual)
		dto.Residual = &residual
	}
	return dto
}
