package settlement

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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Balance is a shop's withdrawable position.
type Balance struct {
	ShopID                 uuid.UUID   `json:"shop_id"`
	TotalUnsettledEarnings types.Money `json:"total_unsettled_earnings"`
	PendingWithdrawals     types.Money `json:"pending_withdrawals"`
	Available              types.Money `json:"available"`
}

// WithdrawalInput is a shop's payout request.
type WithdrawalInput struct {
	ShopID        uuid.UUID
	RequestedBy   uuid.UUID
	AsAdmin       bool
	Amount        decimal.Decimal
	PaymentMethod string
	BankName      *string
	AccountTitle  *string
	AccountNumber *string
	IBAN          *string
	Note          *string
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
		return nil, fmt.Errorf("settlement repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Service{
		repo:   repo,
		tx:     tx,
		outbox: emitter,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// RecordEarnings creates one ShopEarning per shop-owned line of a completed
// order. It runs in the caller's transaction and skips lines that already
// have an earning, so completing twice does not double-credit.
func (s *Service) RecordEarnings(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.ShopEarning, error) {
	if order == nil {
		return nil, fmt.Errorf("order required")
	}
	repo := s.repo.WithTx(tx)

	subtotalSum := decimal.Zero
	for _, line := range order.Lines {
		subtotalSum = subtotalSum.Add(line.Subtotal)
	}

	var created []models.ShopEarning
	for _, line := range order.Lines {
		if line.ShopID == nil {
			continue
		}
		exists, err := repo.EarningExists(ctx, line.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check shop earning")
		}
		if exists {
			continue
		}

		share := DeliveryFeeShare(order.DeliveryFee, line.Subtotal, subtotalSum)
		earning := models.ShopEarning{
			ShopID:           *line.ShopID,
			OrderID:          order.ID,
			OrderLineID:      line.ID,
			OrderAmount:      line.Subtotal,
			AdminCommission:  line.AdminCommission,
			DeliveryFeeShare: types.Round2(share),
			ShopEarning:      LineEarning(line.Subtotal, line.AdminCommission, share),
		}
		if err := repo.CreateEarning(ctx, &earning); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shop earning")
		}
		created = append(created, earning)
	}
	return created, nil
}

// DeliveryFeeShare allocates fee to a line in proportion to its subtotal.
func DeliveryFeeShare(fee, subtotal, subtotalSum decimal.Decimal) decimal.Decimal {
	if fee.IsZero() || subtotalSum.IsZero() {
		return decimal.Zero
	}
	return fee.Mul(subtotal).Div(subtotalSum)
}

// LineEarning is subtotal − commission − fee share, rounded half-up to cents.
func LineEarning(subtotal, commission, share decimal.Decimal) decimal.Decimal {
	return types.Round2(subtotal.Sub(commission).Sub(share))
}

func (s *Service) Balance(ctx context.Context, shopID uuid.UUID) (*Balance, error) {
	return s.balance(ctx, s.repo, shopID, nil)
}

func (s *Service) balance(ctx context.Context, repo *Repository, shopID uuid.UUID, exclude *uuid.UUID) (*Balance, error) {
	unsettled, err := repo.UnsettledTotal(ctx, shopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum unsettled earnings")
	}
	pending, err := repo.PendingWithdrawals(ctx, shopID, exclude)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum pending withdrawals")
	}
	return &Balance{
		ShopID:                 shopID,
		TotalUnsettledEarnings: types.NewMoney(unsettled),
		PendingWithdrawals:     types.NewMoney(pending),
		Available:              types.NewMoney(unsettled.Sub(pending)),
	}, nil
}

// RequestWithdrawal locks the shop row so concurrent requests are checked
// against each other's committed amounts.
func (s *Service) RequestWithdrawal(ctx context.Context, input WithdrawalInput) (*models.ShopWithdrawRequest, error) {
	if input.ShopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.Amount.Exponent() < -2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimals")
	}
	if strings.TrimSpace(input.PaymentMethod) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method required")
	}

	var created *models.ShopWithdrawRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		shop, err := repo.LockShop(ctx, input.ShopID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock shop")
		}
		if !input.AsAdmin && shop.OwnerID != input.RequestedBy {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the shop owner can request withdrawals")
		}

		balance, err := s.balance(ctx, repo, shop.ID, nil)
		if err != nil {
			return err
		}
		if input.Amount.GreaterThan(balance.Available.Decimal) {
			return pkgerrors.New(pkgerrors.CodeUnavailable, "amount exceeds available balance").
				WithDetails(map[string]string{"available": balance.Available.StringFixed(2)})
		}

		req := &models.ShopWithdrawRequest{
			ShopID:          shop.ID,
			RequestedBy:     input.RequestedBy,
			Amount:          types.Round2(input.Amount),
			AdminCommission: decimal.Zero,
			NetAmount:       types.Round2(input.Amount),
			Status:          enums.WithdrawStatusPending,
			PaymentMethod:   strings.TrimSpace(input.PaymentMethod),
			BankName:        input.BankName,
			AccountTitle:    input.AccountTitle,
			AccountNumber:   input.AccountNumber,
			IBAN:            input.IBAN,
			Note:            input.Note,
		}
		if err := repo.CreateWithdrawal(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal request")
		}
		created = req
		return s.emit(ctx, tx, enums.EventWithdrawalRequested, req)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ApproveWithdrawal moves PENDING to APPROVED after re-checking the balance
// without counting the request itself.
func (s *Service) ApproveWithdrawal(ctx context.Context, id, actor uuid.UUID) (*models.ShopWithdrawRequest, error) {
	return s.transition(ctx, id, enums.WithdrawStatusApproved, func(ctx context.Context, repo *Repository, req *models.ShopWithdrawRequest, now time.Time) (map[string]any, error) {
		if req.Status != enums.WithdrawStatusPending {
			return nil, illegal(req.Status, enums.WithdrawStatusApproved)
		}
		if _, err := repo.LockShop(ctx, req.ShopID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock shop")
		}
		balance, err := s.balance(ctx, repo, req.ShopID, &req.ID)
		if err != nil {
			return nil, err
		}
		if req.Amount.GreaterThan(balance.Available.Decimal) {
			return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "amount exceeds available balance").
				WithDetails(map[string]string{"available": balance.Available.StringFixed(2)})
		}
		return map[string]any{
			"status":       enums.WithdrawStatusApproved,
			"approved_at":  now,
			"processed_by": actor,
		}, nil
	})
}

func (s *Service) RejectWithdrawal(ctx context.Context, id, actor uuid.UUID, reason string) (*models.ShopWithdrawRequest, error) {
	return s.transition(ctx, id, enums.WithdrawStatusRejected, func(_ context.Context, _ *Repository, req *models.ShopWithdrawRequest, now time.Time) (map[string]any, error) {
		if req.Status != enums.WithdrawStatusPending {
			return nil, illegal(req.Status, enums.WithdrawStatusRejected)
		}
		updates := map[string]any{
			"status":       enums.WithdrawStatusRejected,
			"processed_by": actor,
			"processed_at": now,
		}
		if reason = strings.TrimSpace(reason); reason != "" {
			updates["rejection_reason"] = reason
		}
		return updates, nil
	})
}

// ProcessWithdrawal moves APPROVED to PROCESSED and settles the oldest
// unsettled earnings, whole rows only, until net_amount is covered.
func (s *Service) ProcessWithdrawal(ctx context.Context, id, actor uuid.UUID) (*models.ShopWithdrawRequest, error) {
	return s.transition(ctx, id, enums.WithdrawStatusProcessed, func(ctx context.Context, repo *Repository, req *models.ShopWithdrawRequest, now time.Time) (map[string]any, error) {
		if req.Status != enums.WithdrawStatusApproved {
			return nil, illegal(req.Status, enums.WithdrawStatusProcessed)
		}
		earnings, err := repo.OldestUnsettled(ctx, req.ShopID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load unsettled earnings")
		}
		ids, covered := SelectForSettlement(earnings, req.NetAmount)
		if err := repo.MarkSettled(ctx, ids, req.ID, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle earnings")
		}
		return map[string]any{
			"status":           enums.WithdrawStatusProcessed,
			"processed_by":     actor,
			"processed_at":     now,
			"settled_earnings": covered,
		}, nil
	})
}

// SelectForSettlement walks earnings in order, taking whole rows until target
// is reached. The last row taken may overshoot target.
func SelectForSettlement(earnings []models.ShopEarning, target decimal.Decimal) ([]uuid.UUID, decimal.Decimal) {
	covered := decimal.Zero
	var ids []uuid.UUID
	for _, earning := range earnings {
		if covered.GreaterThanOrEqual(target) {
			break
		}
		ids = append(ids, earning.ID)
		covered = covered.Add(earning.ShopEarning)
	}
	return ids, covered
}

type transitionFunc func(ctx context.Context, repo *Repository, req *models.ShopWithdrawRequest, now time.Time) (map[string]any, error)

func (s *Service) transition(ctx context.Context, id uuid.UUID, target enums.WithdrawStatus, fn transitionFunc) (*models.ShopWithdrawRequest, error) {
	var result *models.ShopWithdrawRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.LockWithdrawal(ctx, id)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock withdrawal request")
		}
		updates, err := fn(ctx, repo, req, s.now())
		if err != nil {
			return err
		}
		if err := repo.UpdateWithdrawal(ctx, req.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update withdrawal request")
		}
		result, err = repo.FindWithdrawal(ctx, req.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload withdrawal request")
		}
		return s.emit(ctx, tx, withdrawalEvent(target), result)
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"withdrawal_id": id.String(), "status": target})
		s.logg.Info(logCtx, "withdrawal request transitioned")
	}
	return result, nil
}

func withdrawalEvent(status enums.WithdrawStatus) enums.OutboxEventType {
	switch status {
	case enums.WithdrawStatusApproved:
		return enums.EventWithdrawalApproved
	case enums.WithdrawStatusProcessed:
		return enums.EventWithdrawalProcessed
	case enums.WithdrawStatusRejected:
		return enums.EventWithdrawalRejected
	}
	return enums.EventWithdrawalRequested
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, req *models.ShopWithdrawRequest) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateWithdrawRequest,
		AggregateID:   req.ID,
		Data: payloads.WithdrawalEvent{
			WithdrawalID: req.ID,
			ShopID:       req.ShopID,
			Status:       req.Status,
			Amount:       req.Amount.StringFixed(2),
		},
	})
}

func illegal(from, to enums.WithdrawStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move withdrawal from %s to %s", from, to))
}

// CanManageShop reports whether user owns or staffs the shop.
func (s *Service) CanManageShop(ctx context.Context, shopID, userID uuid.UUID) (bool, error) {
	shop, err := s.repo.FindShop(ctx, shopID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	if shop.OwnerID == userID {
		return true, nil
	}
	for _, member := range shop.Staff {
		if member.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.ShopWithdrawRequest, error) {
	req, err := s.repo.FindWithdrawal(ctx, id)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal request")
	}
	return req, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, shopID uuid.UUID, status *enums.WithdrawStatus, page pagination.Params) ([]models.ShopWithdrawRequest, int64, error) {
	rows, total, err := s.repo.ListWithdrawals(ctx, shopID, status, page)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}
	return rows, total, nil
}

func (s *Service) ListEarnings(ctx context.Context, shopID uuid.UUID, page pagination.Params) ([]models.ShopEarning, int64, error) {
	rows, total, err := s.repo.ListEarnings(ctx, shopID, page)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list earnings")
	}
	return rows, total, nil
}
