package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/inventory"
	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
	"github.com/angelmondragon/marketcore-backend/pkg/workerpool"
)

// ReturnWindow is how long after completion an order can be returned.
const ReturnWindow = 30 * 24 * time.Hour

const sweepBatch = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockRestorer puts returned goods back on the shelf.
type StockRestorer interface {
	MutateStock(ctx context.Context, tx *gorm.DB, line inventory.StockLine, op enums.StockOperation, reason enums.InventoryReason) error
}

// RefundProcessor credits an approved return to the customer's wallet.
type RefundProcessor interface {
	ProcessRefund(ctx context.Context, returnID uuid.UUID) (*models.WalletTransaction, error)
}

type ServiceParams struct {
	Repo              *Repository
	TransactionRunner txRunner
	Outbox            outboxEmitter
	Stock             StockRestorer
	Refunds           RefundProcessor
	Queue             workerpool.Submitter
	Logger            *logger.Logger
}

// ItemInput selects an order line and how many units go back.
type ItemInput struct {
	OrderLineID uuid.UUID
	Quantity    int
}

type CreateInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Type    enums.ReturnType
	Reason  string
	Items   []ItemInput
}

// ReviewInput is an admin decision on a pending return.
type ReviewInput struct {
	ReturnID uuid.UUID
	ActorID  uuid.UUID
	Note     string
}

type Service struct {
	repo    *Repository
	tx      txRunner
	outbox  outboxEmitter
	stock   StockRestorer
	refunds RefundProcessor
	queue   workerpool.Submitter
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock restorer required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund processor required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("refund queue required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:    params.Repo,
		tx:      params.TransactionRunner,
		outbox:  params.Outbox,
		stock:   params.Stock,
		refunds: params.Refunds,
		queue:   params.Queue,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create opens a return request for a delivered order. The order row is
// locked so two requests for the same lines cannot both pass the checks.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.ReturnRequest, error) {
	if input.OrderID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and user id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return type must be full or single")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	if input.Type == enums.ReturnTypeSingle && len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}

	var created *models.ReturnRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, input.OrderID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if order.CustomerID == nil || *order.CustomerID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
		}
		if err := s.checkEligible(order); err != nil {
			return err
		}

		ret := &models.ReturnRequest{
			ID:           uuid.New(),
			OrderID:      order.ID,
			UserID:       input.UserID,
			Type:         input.Type,
			Reason:       reason,
			Status:       enums.ReturnStatusPending,
			RefundStatus: enums.RefundStatusNone,
		}
		items, refund, err := buildItems(order, input)
		if err != nil {
			return err
		}
		ret.Items = items
		ret.RefundAmount = refund

		if err := repo.CreateReturn(ctx, ret); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		lineIDs := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			lineIDs = append(lineIDs, item.OrderLineID)
		}
		if err := repo.AttachLines(ctx, lineIDs, ret.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach order lines")
		}
		created = ret
		return s.emit(ctx, tx, enums.EventReturnRequested, ret, order)
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
		"return_id":     created.ID.String(),
		"refund_amount": created.RefundAmount.StringFixed(2),
	})
	s.logg.Info(logCtx, "return requested")
	return created, nil
}

// checkEligible enforces the delivery state and the return window. Orders
// still out for delivery are always inside the window.
func (s *Service) checkEligible(order *models.Order) error {
	switch order.OrderStatus {
	case enums.OrderStatusOutForDelivery:
		return nil
	case enums.OrderStatusCompleted:
		completed := order.UpdatedAt
		if order.CompletedAt != nil {
			completed = *order.CompletedAt
		}
		if s.now().Sub(completed) > ReturnWindow {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return window has closed")
		}
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("orders in status %s cannot be returned", order.OrderStatus))
}

func buildItems(order *models.Order, input CreateInput) ([]models.ReturnItem, decimal.Decimal, error) {
	lines := make(map[uuid.UUID]models.OrderLine, len(order.Lines))
	for _, line := range order.Lines {
		lines[line.ID] = line
	}

	if input.Type == enums.ReturnTypeFull {
		items := make([]models.ReturnItem, 0, len(order.Lines))
		for _, line := range order.Lines {
			if err := checkLineOpen(line); err != nil {
				return nil, decimal.Zero, err
			}
			items = append(items, returnItem(line, line.Quantity))
		}
		if len(items) == 0 {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "order has no lines")
		}
		return items, types.Round2(order.Total), nil
	}

	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	items := make([]models.ReturnItem, 0, len(input.Items))
	refund := decimal.Zero
	for _, in := range input.Items {
		line, ok := lines[in.OrderLineID]
		if !ok {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "order line "+in.OrderLineID.String()+" is not part of the order")
		}
		if _, dup := seen[line.ID]; dup {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "order line listed twice")
		}
		seen[line.ID] = struct{}{}
		if in.Quantity <= 0 || in.Quantity > line.Quantity {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("quantity for line %s must be between 1 and %d", line.ID, line.Quantity))
		}
		if err := checkLineOpen(line); err != nil {
			return nil, decimal.Zero, err
		}
		item := returnItem(line, in.Quantity)
		items = append(items, item)
		refund = refund.Add(item.RefundAmount)
	}
	return items, types.Round2(refund), nil
}

func checkLineOpen(line models.OrderLine) error {
	if line.IsReturned {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order line "+line.ID.String()+" was already returned")
	}
	if line.ReturnRequestID != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "order line "+line.ID.String()+" has an open return request")
	}
	return nil
}

func returnItem(line models.OrderLine, qty int) models.ReturnItem {
	return models.ReturnItem{
		OrderLineID:  line.ID,
		ProductID:    line.ProductID,
		VariationID:  line.VariationID,
		Quantity:     qty,
		UnitPrice:    line.UnitPrice,
		RefundAmount: types.Round2(line.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))),
	}
}

// Approve restocks the returned units, flags the lines and schedules the
// wallet refund once the approval has committed.
func (s *Service) Approve(ctx context.Context, input ReviewInput) (*models.ReturnRequest, error) {
	ret, err := s.review(ctx, input, enums.ReturnStatusApproved, func(ctx context.Context, tx *gorm.DB, ret *models.ReturnRequest, order *models.Order) (map[string]any, error) {
		repo := s.repo.WithTx(tx)
		lines := make(map[uuid.UUID]models.OrderLine, len(order.Lines))
		for _, line := range order.Lines {
			lines[line.ID] = line
		}
		for _, item := range ret.Items {
			line, ok := lines[item.OrderLineID]
			if !ok {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "returned line no longer exists")
			}
			if line.IsReturned {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order line "+line.ID.String()+" was already returned")
			}
			if stock, ok := restockLine(line, item, order.ID); ok {
				if err := s.stock.MutateStock(ctx, tx, stock, enums.StockOperationRestore, enums.InventoryReasonOrderReturned); err != nil {
					return nil, err
				}
			}
			if err := repo.MarkLineReturned(ctx, line.ID, item.Quantity); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order line returned")
			}
		}
		return map[string]any{"refund_status": enums.RefundStatusPending}, nil
	})
	if err != nil {
		return nil, err
	}
	s.enqueueRefund(ctx, ret.ID)
	return ret, nil
}

// restockLine describes the stock a returned item puts back. Grouped lines
// restock each constituent in proportion to the returned quantity.
func restockLine(line models.OrderLine, item models.ReturnItem, orderID uuid.UUID) (inventory.StockLine, bool) {
	stock := inventory.StockLine{
		ProductID:   line.ProductID,
		VariationID: line.VariationID,
		ItemType:    line.ItemType,
		Quantity:    item.Quantity,
		UnitPrice:   line.UnitPrice,
		OrderID:     &orderID,
	}
	if line.ItemType != enums.ItemTypeGrouped {
		return stock, true
	}
	for _, grouped := range line.GroupedItems {
		qty := grouped.Quantity
		if line.Quantity > 0 && item.Quantity < line.Quantity {
			qty = grouped.Quantity * item.Quantity / line.Quantity
		}
		if qty > 0 {
			stock.GroupedItems = append(stock.GroupedItems, models.GroupedItem{ProductID: grouped.ProductID, Quantity: qty})
		}
	}
	return stock, len(stock.GroupedItems) > 0
}

// Reject closes a pending return and frees its lines for a new request.
func (s *Service) Reject(ctx context.Context, input ReviewInput) (*models.ReturnRequest, error) {
	return s.review(ctx, input, enums.ReturnStatusRejected, func(ctx context.Context, tx *gorm.DB, ret *models.ReturnRequest, _ *models.Order) (map[string]any, error) {
		if err := s.repo.WithTx(tx).DetachLines(ctx, ret.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach order lines")
		}
		return map[string]any{}, nil
	})
}

type reviewFunc func(ctx context.Context, tx *gorm.DB, ret *models.ReturnRequest, order *models.Order) (map[string]any, error)

func (s *Service) review(ctx context.Context, input ReviewInput, target enums.ReturnStatus, fn reviewFunc) (*models.ReturnRequest, error) {
	if input.ReturnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	var result *models.ReturnRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ret, err := repo.LockReturn(ctx, input.ReturnID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock return request")
		}
		if ret.Status != enums.ReturnStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move return from %s to %s", ret.Status, target))
		}
		order, err := repo.LockOrder(ctx, ret.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}

		updates, err := fn(ctx, tx, ret, order)
		if err != nil {
			return err
		}
		now := s.now()
		updates["status"] = target
		updates["reviewed_at"] = now
		if input.ActorID != uuid.Nil {
			updates["reviewed_by"] = input.ActorID
		}
		if note := strings.TrimSpace(input.Note); note != "" {
			updates["admin_note"] = note
		}
		if err := repo.UpdateReturn(ctx, ret.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return request")
		}
		result, err = repo.FindReturn(ctx, ret.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload return request")
		}
		return s.emit(ctx, tx, reviewEvent(target), result, order)
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"return_id": input.ReturnID.String(), "status": target})
	s.logg.Info(logCtx, "return request reviewed")
	return result, nil
}

func reviewEvent(status enums.ReturnStatus) enums.OutboxEventType {
	if status == enums.ReturnStatusApproved {
		return enums.EventReturnApproved
	}
	return enums.EventReturnRejected
}

// enqueueRefund hands the wallet credit to the background pool. A full
// queue leaves the return pending for SweepPendingRefunds.
func (s *Service) enqueueRefund(ctx context.Context, returnID uuid.UUID) {
	logCtx := s.logg.WithField(ctx, "return_id", returnID.String())
	err := s.queue.Submit(workerpool.Task{
		Name: "wallet.process_refund",
		Run: func(taskCtx context.Context) error {
			_, err := s.refunds.ProcessRefund(taskCtx, returnID)
			return err
		},
	})
	if err != nil {
		s.logg.Warn(logCtx, "refund not enqueued: "+err.Error())
	}
}

// SweepPendingRefunds re-enqueues approved returns whose refund has been
// pending since before olderThan. It returns how many were submitted.
func (s *Service) SweepPendingRefunds(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.repo.PendingRefunds(ctx, s.now().Add(-olderThan), sweepBatch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending refunds")
	}
	for _, id := range ids {
		s.enqueueRefund(ctx, id)
	}
	return len(ids), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	ret, err := s.repo.FindReturn(ctx, id)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	return ret, nil
}

func (s *Service) List(ctx context.Context, filters ListFilters, page pagination.Params) ([]models.ReturnRequest, int64, error) {
	rows, total, err := s.repo.ListReturns(ctx, filters, page)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list return requests")
	}
	return rows, total, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, ret *models.ReturnRequest, order *models.Order) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReturnRequest,
		AggregateID:   ret.ID,
		Data: payloads.ReturnEvent{
			ReturnID:     ret.ID,
			OrderID:      order.ID,
			TrackingNo:   order.TrackingNo,
			UserID:       ret.UserID,
			ShopIDs:      shopIDs(order.Lines),
			Status:       ret.Status,
			RefundAmount: ret.RefundAmount.StringFixed(2),
		},
	})
}

func shopIDs(lines []models.OrderLine) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	var ids []uuid.UUID
	for _, line := range lines {
		if line.ShopID == nil {
			continue
		}
		if _, ok := seen[*line.ShopID]; ok {
			continue
		}
		seen[*line.ShopID] = struct{}{}
		ids = append(ids, *line.ShopID)
	}
	return ids
}
