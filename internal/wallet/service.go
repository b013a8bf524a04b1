package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

// RefundLockPeriod is how long a refund credit stays in the wallet before it
// can be transferred to a bank account.
const RefundLockPeriod = 15 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Summary is a user's wallet position.
type Summary struct {
	UserID        uuid.UUID   `json:"user_id"`
	Balance       types.Money `json:"balance"`
	TotalCredited types.Money `json:"total_credited"`
	TotalDebited  types.Money `json:"total_debited"`
	Transferable  types.Money `json:"transferable"`
	Locked        types.Money `json:"locked"`
}

// TransferInput asks to move eligible refund credits to a bank account.
type TransferInput struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	BankAccountID string
}

// TransferResult is the debit row and the credits it consumed.
type TransferResult struct {
	Debit    *models.WalletTransaction
	Consumed []uuid.UUID
	Residual *models.WalletTransaction
}

type Service struct {
	repo   *Repository
	tx     txRunner
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(repo *Repository, tx txRunner, emitter outboxEmitter, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:   repo,
		tx:     tx,
		outbox: emitter,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// ProcessRefund credits an approved return's refund to the customer's wallet.
// It is safe to run more than once for the same return: a processed return or
// an existing credit for it short-circuits without touching balances.
func (s *Service) ProcessRefund(ctx context.Context, returnID uuid.UUID) (*models.WalletTransaction, error) {
	logCtx := s.logg.WithField(ctx, "return_id", returnID.String())
	var credit *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ret, err := repo.LockReturn(ctx, returnID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock return request")
		}
		if ret.Status != enums.ReturnStatusApproved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return request is not approved")
		}

		existing, err := repo.FindRefundCredit(ctx, ret.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund credit")
		}
		if ret.RefundStatus == enums.RefundStatusProcessed {
			credit = existing
			return nil
		}
		if existing != nil {
			s.logg.Warn(logCtx, "refund credit exists for unprocessed return; repairing return state")
			credit = existing
			return repo.UpdateReturn(ctx, ret.ID, map[string]any{
				"refund_status":        enums.RefundStatusProcessed,
				"wallet_credit_id":     existing.ID,
				"transfer_eligible_at": existing.TransferEligibleAt,
				"refunded_at":          existing.CreatedAt,
			})
		}

		amount := types.Round2(ret.RefundAmount)
		if !amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
		}
		wallet, err := repo.EnsureWallet(ctx, ret.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure wallet")
		}

		now := s.now()
		eligibleAt := now.Add(RefundLockPeriod)
		balance := wallet.Balance.Add(amount)
		row := &models.WalletTransaction{
			UserID:             ret.UserID,
			Amount:             amount,
			Kind:               enums.WalletTransactionKindCredit,
			BalanceAfter:       balance,
			IsRefund:           true,
			TransferEligibleAt: &eligibleAt,
			ReturnRequestID:    &ret.ID,
			Description:        "Refund for return " + ret.ID.String(),
			CreatedAt:          now,
		}
		if err := repo.CreateTransaction(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet credit")
		}
		if err := repo.UpdateWallet(ctx, wallet.ID, map[string]any{
			"balance":        balance,
			"total_credited": wallet.TotalCredited.Add(amount),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet")
		}
		if err := repo.UpdateReturn(ctx, ret.ID, map[string]any{
			"refund_status":        enums.RefundStatusProcessed,
			"wallet_credit_id":     row.ID,
			"transfer_eligible_at": eligibleAt,
			"refunded_at":          now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return refund")
		}
		credit = row
		return s.emit(ctx, tx, enums.EventWalletCredited, row)
	})
	if err != nil {
		s.logg.Error(logCtx, "process refund failed", err)
		return nil, err
	}
	s.logg.Info(logCtx, "refund credited to wallet")
	return credit, nil
}

// Allocation is how much of one credit a transfer consumes.
type Allocation struct {
	Credit   models.WalletTransaction
	Take     decimal.Decimal
	Residual decimal.Decimal
}

// PlanTransfer consumes credits in order until amount is covered. Only the
// last allocation may leave a residual. The second return value is the total
// the credits can cover, capped at amount.
func PlanTransfer(credits []models.WalletTransaction, amount decimal.Decimal) ([]Allocation, decimal.Decimal) {
	remaining := amount
	var plan []Allocation
	for _, credit := range credits {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(credit.Amount, remaining)
		plan = append(plan, Allocation{
			Credit:   credit,
			Take:     take,
			Residual: credit.Amount.Sub(take),
		})
		remaining = remaining.Sub(take)
	}
	return plan, amount.Sub(remaining)
}

// TransferToBank debits the wallet for amount, marking eligible refund credits
// as transferred oldest first. A credit larger than what is still needed is
// shrunk to the consumed part and its remainder is kept as a new credit row
// with the same eligibility and return.
func (s *Service) TransferToBank(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.Amount.Exponent() < -2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimals")
	}
	bankAccount := strings.TrimSpace(input.BankAccountID)
	if bankAccount == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank account required")
	}

	var result TransferResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := repo.LockWallet(ctx, input.UserID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return insufficient(decimal.Zero)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
		}
		now := s.now()
		credits, err := repo.LockEligibleCredits(ctx, input.UserID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load eligible credits")
		}
		plan, covered := PlanTransfer(credits, input.Amount)
		if covered.LessThan(input.Amount) || wallet.Balance.LessThan(input.Amount) {
			return insufficient(decimal.Min(covered, wallet.Balance))
		}

		for _, alloc := range plan {
			updates := map[string]any{
				"transferred_to_bank": true,
				"transferred_at":      now,
			}
			if alloc.Residual.IsPositive() {
				updates["amount"] = alloc.Take
				residual := &models.WalletTransaction{
					UserID:             alloc.Credit.UserID,
					Amount:             alloc.Residual,
					Kind:               enums.WalletTransactionKindCredit,
					BalanceAfter:       alloc.Credit.BalanceAfter,
					IsRefund:           true,
					TransferEligibleAt: alloc.Credit.TransferEligibleAt,
					ReturnRequestID:    alloc.Credit.ReturnRequestID,
					Description:        alloc.Credit.Description,
					CreatedAt:          alloc.Credit.CreatedAt,
				}
				if err := repo.CreateTransaction(ctx, residual); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create residual credit")
				}
				result.Residual = residual
			}
			if err := repo.UpdateTransaction(ctx, alloc.Credit.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark credit transferred")
			}
			result.Consumed = append(result.Consumed, alloc.Credit.ID)
		}

		balance := wallet.Balance.Sub(input.Amount)
		debit := &models.WalletTransaction{
			UserID:        input.UserID,
			Amount:        input.Amount,
			Kind:          enums.WalletTransactionKindDebit,
			BalanceAfter:  balance,
			BankAccountID: &bankAccount,
			Description:   "Transfer to bank account",
			CreatedAt:     now,
		}
		if err := repo.CreateTransaction(ctx, debit); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet debit")
		}
		if err := repo.UpdateWallet(ctx, wallet.ID, map[string]any{
			"balance":       balance,
			"total_debited": wallet.TotalDebited.Add(input.Amount),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet")
		}
		result.Debit = debit
		return s.emit(ctx, tx, enums.EventWalletTransferToBank, debit)
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, input.UserID.String()), map[string]any{
		"amount":   input.Amount.StringFixed(2),
		"consumed": len(result.Consumed),
	})
	s.logg.Info(logCtx, "wallet transferred to bank")
	return &result, nil
}

func insufficient(eligible decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeUnavailable, "insufficient transferable wallet funds").
		WithDetails(map[string]string{"transferable": eligible.StringFixed(2)})
}

// Get returns the user's wallet position. Users without a wallet get zeros.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	summary := &Summary{
		UserID:        userID,
		Balance:       types.NewMoney(decimal.Zero),
		TotalCredited: types.NewMoney(decimal.Zero),
		TotalDebited:  types.NewMoney(decimal.Zero),
	}
	wallet, err := s.repo.FindWallet(ctx, userID)
	switch {
	case err == nil:
		summary.Balance = types.NewMoney(wallet.Balance)
		summary.TotalCredited = types.NewMoney(wallet.TotalCredited)
		summary.TotalDebited = types.NewMoney(wallet.TotalDebited)
	case !dbpkg.IsNotFound(err):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	credits, err := s.repo.OpenCredits(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open credits")
	}
	now := s.now()
	transferable, locked := decimal.Zero, decimal.Zero
	for _, credit := range credits {
		if credit.TransferEligibleAt != nil && !credit.TransferEligibleAt.After(now) {
			transferable = transferable.Add(credit.Amount)
		} else {
			locked = locked.Add(credit.Amount)
		}
	}
	summary.Transferable = types.NewMoney(transferable)
	summary.Locked = types.NewMoney(locked)
	return summary, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]models.WalletTransaction, int64, error) {
	rows, total, err := s.repo.ListTransactions(ctx, userID, page)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet transactions")
	}
	return rows, total, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, row *models.WalletTransaction) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateWalletTransaction,
		AggregateID:   row.ID,
		Data: payloads.WalletEvent{
			UserID:   row.UserID,
			Kind:     row.Kind,
			Amount:   row.Amount.StringFixed(2),
			ReturnID: row.ReturnRequestID,
		},
	})
}
