package orders

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
	"github.com/angelmondragon/marketcore-backend/pkg/security"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

const (
	trackingPrefix   = "TRK-"
	trackingAttempts = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockKeeper is the inventory surface the order engine relies on.
type StockKeeper interface {
	CheckAvailability(ctx context.Context, tx *gorm.DB, lines []inventory.StockLine) ([]inventory.LineError, error)
	MutateStock(ctx context.Context, tx *gorm.DB, line inventory.StockLine, op enums.StockOperation, reason enums.InventoryReason) error
	ComputeCommission(ctx context.Context, tx *gorm.DB, productID uuid.UUID, unitPrice decimal.Decimal, qty int) (decimal.Decimal, error)
}

// EarningsRecorder books shop earnings when an order completes.
type EarningsRecorder interface {
	RecordEarnings(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.ShopEarning, error)
}

// Service defines the order engine.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, input StatusUpdate) (*models.Order, error)
	UpdateStatusTx(ctx context.Context, tx *gorm.DB, input StatusUpdate) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByTracking(ctx context.Context, trackingNo string) (*models.Order, error)
	History(ctx context.Context, orderID uuid.UUID) (*models.OrderStatusHistory, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, int64, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	stock    StockKeeper
	earnings EarningsRecorder
	logg     *logger.Logger
	now      func() time.Time
	tracking func() (string, error)
}

// NewService builds the order engine with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, stock StockKeeper, earnings EarningsRecorder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock keeper required")
	}
	if earnings == nil {
		return nil, fmt.Errorf("earnings recorder required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   outbox,
		stock:    stock,
		earnings: earnings,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
		tracking: NewTrackingNumber,
	}, nil
}

// NewTrackingNumber returns TRK- followed by 12 uppercase hex characters.
func NewTrackingNumber() (string, error) {
	suffix, err := security.RandomHexUpper(12)
	if err != nil {
		return "", err
	}
	return trackingPrefix + suffix, nil
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if fieldErrs := validatePlacement(input); len(fieldErrs) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order").
			WithDetails(map[string]any{"errors": fieldErrs})
	}

	var placed *models.Order
	var err error
	for attempt := 1; attempt <= trackingAttempts; attempt++ {
		placed, err = s.placeOnce(ctx, input)
		if err == nil || !dbpkg.IsUniqueViolation(err, "tracking_no") {
			break
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "tracking number collision, retrying")
		}
	}
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "tracking_no") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate tracking number")
		}
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, placed.ID.String())
		s.logg.Info(s.logg.WithField(logCtx, "tracking_no", placed.TrackingNo), "order placed")
	}
	return s.Get(ctx, placed.ID)
}

func (s *service) placeOnce(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	trackingNo, err := s.tracking()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate tracking number")
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		stockLines := make([]inventory.StockLine, len(input.Lines))
		for i, line := range input.Lines {
			stockLines[i] = toStockLine(line)
		}
		lineErrs, err := s.stock.CheckAvailability(ctx, tx, stockLines)
		if err != nil {
			return err
		}
		if len(lineErrs) > 0 {
			return pkgerrors.New(pkgerrors.CodeUnavailable, "some items are unavailable").
				WithDetails(map[string]any{"errors": lineErrs})
		}

		now := s.now()
		order = &models.Order{
			ID:              uuid.New(),
			TrackingNo:      trackingNo,
			CustomerID:      input.CustomerID,
			CustomerName:    strings.TrimSpace(input.CustomerName),
			CustomerEmail:   input.CustomerEmail,
			CustomerContact: strings.TrimSpace(input.CustomerContact),
			SalesTax:        types.Round2(input.SalesTax),
			DeliveryFee:     types.Round2(input.DeliveryFee),
			Discount:        types.Round2(input.Discount),
			OrderStatus:     enums.OrderStatusPending,
			PaymentStatus:   initialPaymentStatus(input.PaymentMethod),
			PaymentMethod:   paymentMethodOrDefault(input.PaymentMethod),
			PaymentGateway:  input.PaymentGateway,
			ShippingAddress: input.ShippingAddress,
			BillingAddress:  input.BillingAddress,
			DeliveryTime:    input.DeliveryTime,
			Note:            input.Note,
			StatusHistory:   &models.OrderStatusHistory{OrderPendingDate: &now},
		}

		amount := decimal.Zero
		commission := decimal.Zero
		shops := map[uuid.UUID]struct{}{}
		lines := make([]models.OrderLine, 0, len(input.Lines))
		for _, in := range input.Lines {
			line, err := s.buildLine(ctx, tx, repo, order.ID, in)
			if err != nil {
				return err
			}
			amount = amount.Add(line.Subtotal)
			commission = commission.Add(line.AdminCommission)
			if line.ShopID != nil {
				shops[*line.ShopID] = struct{}{}
			}
			lines = append(lines, line)
		}
		order.Amount = types.Round2(amount)
		order.AdminCommissionAmount = types.Round2(commission)
		order.Total = OrderTotal(order.Amount, order.SalesTax, order.DeliveryFee, order.Discount)
		if order.Total.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order value")
		}
		if len(shops) == 1 {
			for id := range shops {
				shopID := id
				order.ShopID = &shopID
			}
		}

		for i := range lines {
			stockLine := toStockLine(input.Lines[i])
			stockLine.OrderID = &order.ID
			if err := s.stock.MutateStock(ctx, tx, stockLine, enums.StockOperationDeduct, enums.InventoryReasonOrderPlaced); err != nil {
				return err
			}
		}

		order.Lines = lines
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPlacedEvent{
				OrderID:    order.ID,
				TrackingNo: order.TrackingNo,
				CustomerID: order.CustomerID,
				ShopIDs:    shopIDs(order.Lines),
				Total:      order.Total.StringFixed(2),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) buildLine(ctx context.Context, tx *gorm.DB, repo Repository, orderID uuid.UUID, in LineInput) (models.OrderLine, error) {
	product, err := repo.LoadProduct(ctx, in.ProductID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return models.OrderLine{}, pkgerrors.New(pkgerrors.CodeUnavailable, inventory.ReasonNotFound)
		}
		return models.OrderLine{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	commission, err := s.stock.ComputeCommission(ctx, tx, product.ID, in.UnitPrice, in.Quantity)
	if err != nil {
		return models.OrderLine{}, err
	}

	line := models.OrderLine{
		ID:              uuid.New(),
		OrderID:         orderID,
		ShopID:          product.ShopID,
		ProductID:       product.ID,
		VariationID:     in.VariationID,
		ItemType:        in.ItemType,
		Quantity:        in.Quantity,
		UnitPrice:       types.Round2(in.UnitPrice),
		Subtotal:        types.Round2(in.Subtotal),
		AdminCommission: commission,
		ProductSnapshot: productSnapshot(product),
		GroupedItems:    in.GroupedItems,
	}

	if in.ItemType == enums.ItemTypeVariable && in.VariationID != nil {
		variation, err := repo.LoadVariation(ctx, product.ID, *in.VariationID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return models.OrderLine{}, pkgerrors.New(pkgerrors.CodeUnavailable, inventory.ReasonVariationMissing)
			}
			return models.OrderLine{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variation")
		}
		snap := variationSnapshot(product, variation)
		line.VariationSnapshot = &snap
	}
	return line, nil
}

// OrderTotal is Σ subtotal + sales_tax + delivery_fee − discount.
func OrderTotal(amount, salesTax, deliveryFee, discount decimal.Decimal) decimal.Decimal {
	return types.Round2(amount.Add(salesTax).Add(deliveryFee).Sub(discount))
}

func (s *service) UpdateStatus(ctx context.Context, input StatusUpdate) (*models.Order, error) {
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		updated, err = s.UpdateStatusTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, updated.ID)
}

// UpdateStatusTx applies a status change inside the caller's transaction.
// Asking for the current status is a no-op.
func (s *service) UpdateStatusTx(ctx context.Context, tx *gorm.DB, input StatusUpdate) (*models.Order, error) {
	if input.OrderStatus == nil && input.PaymentStatus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_status or payment_status required")
	}
	if input.OrderStatus != nil && !input.OrderStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if input.PaymentStatus != nil && !input.PaymentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.LockOrder(ctx, input.OrderID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}

	now := s.now()
	fromOrder := order.OrderStatus
	fromPayment := order.PaymentStatus
	updates := map[string]any{}

	nextOrder := fromOrder
	if input.OrderStatus != nil && *input.OrderStatus != fromOrder {
		nextOrder = *input.OrderStatus
		if !CanTransitionOrder(fromOrder, nextOrder) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", fromOrder, nextOrder))
		}
		updates["order_status"] = nextOrder
	}

	nextPayment := fromPayment
	if input.PaymentStatus != nil && *input.PaymentStatus != fromPayment {
		nextPayment = *input.PaymentStatus
		if !CanTransitionPayment(fromPayment, nextPayment) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move payment from %s to %s", fromPayment, nextPayment))
		}
	}

	if nextOrder == enums.OrderStatusCompleted && fromOrder != nextOrder {
		updates["completed_at"] = now
		if nextPayment == enums.PaymentStatusCashOnDelivery {
			nextPayment = enums.PaymentStatusSuccess
		}
	}
	if nextPayment != fromPayment {
		updates["payment_status"] = nextPayment
	}
	if len(updates) == 0 {
		return order, nil
	}

	if nextOrder != fromOrder && restocks(nextOrder) && !order.InventoryRestored {
		if err := s.restore(ctx, tx, order, restockReason(nextOrder)); err != nil {
			return nil, err
		}
		updates["inventory_restored"] = true
	}

	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	if nextOrder != fromOrder {
		if err := repo.StampHistory(ctx, order.ID, models.StatusColumn(nextOrder), now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp status history")
		}
	}

	order.OrderStatus = nextOrder
	order.PaymentStatus = nextPayment
	if nextOrder == enums.OrderStatusCompleted && fromOrder != nextOrder {
		order.CompletedAt = &now
		if _, err := s.earnings.RecordEarnings(ctx, tx, order); err != nil {
			return nil, err
		}
	}

	if err := s.emitStatus(ctx, tx, order, fromOrder, input.ActorID); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"from_status":  fromOrder,
			"to_status":    nextOrder,
			"payment_from": fromPayment,
			"payment_to":   nextPayment,
		})
		s.logg.Info(logCtx, "order status updated")
	}
	return order, nil
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, actorID *uuid.UUID) error {
	var actor *outbox.ActorRef
	if actorID != nil {
		actor = &outbox.ActorRef{UserID: *actorID}
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:       order.ID,
			TrackingNo:    order.TrackingNo,
			CustomerID:    order.CustomerID,
			From:          from,
			To:            order.OrderStatus,
			PaymentStatus: order.PaymentStatus,
		},
	})
	if err != nil || order.OrderStatus != enums.OrderStatusCancelled || from == order.OrderStatus {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderCancelledEvent{
			OrderID:    order.ID,
			TrackingNo: order.TrackingNo,
			CustomerID: order.CustomerID,
			ShopIDs:    shopIDs(order.Lines),
		},
	})
}

// restore returns every line's outstanding quantity to stock. Quantities
// already restocked by an approved return are skipped.
func (s *service) restore(ctx context.Context, tx *gorm.DB, order *models.Order, reason enums.InventoryReason) error {
	for _, line := range order.Lines {
		qty := line.Quantity - line.ReturnedQty
		if qty <= 0 || (line.ItemType == enums.ItemTypeGrouped && line.ReturnedQty > 0) {
			continue
		}
		stockLine := inventory.StockLine{
			ProductID:    line.ProductID,
			VariationID:  line.VariationID,
			ItemType:     line.ItemType,
			Quantity:     qty,
			UnitPrice:    line.UnitPrice,
			GroupedItems: line.GroupedItems,
			OrderID:      &order.ID,
		}
		if err := s.stock.MutateStock(ctx, tx, stockLine, enums.StockOperationRestore, reason); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if !order.InventoryRestored {
			if err := s.restore(ctx, tx, order, enums.InventoryReasonOrderDeleted); err != nil {
				return err
			}
		}
		if err := repo.DeleteOrder(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
		}
		if s.logg != nil {
			s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order deleted")
		}
		return nil
	})
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) GetByTracking(ctx context.Context, trackingNo string) (*models.Order, error) {
	trackingNo = strings.TrimSpace(trackingNo)
	if trackingNo == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number required")
	}
	order, err := s.repo.FindByTracking(ctx, trackingNo)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) (*models.OrderStatusHistory, error) {
	history, err := s.repo.FindHistory(ctx, orderID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order history not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order history")
	}
	return history, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, int64, error) {
	orders, total, err := s.repo.ListOrders(ctx, filters, params)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, total, nil
}

func validatePlacement(input PlaceOrderInput) []FieldError {
	var errs []FieldError
	if len(input.Lines) == 0 {
		errs = append(errs, FieldError{Field: "products", Reason: "at least one line required"})
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.IsValid() {
		errs = append(errs, FieldError{Field: "payment_method", Reason: "unknown payment method"})
	}
	for name, value := range map[string]decimal.Decimal{
		"sales_tax":    input.SalesTax,
		"delivery_fee": input.DeliveryFee,
		"discount":     input.Discount,
	} {
		if value.IsNegative() {
			errs = append(errs, FieldError{Field: name, Reason: "must not be negative"})
		}
	}
	for i, line := range input.Lines {
		field := fmt.Sprintf("products[%d]", i)
		switch {
		case line.ProductID == uuid.Nil:
			errs = append(errs, FieldError{Field: field + ".product_id", Reason: "required"})
		case !line.ItemType.IsValid():
			errs = append(errs, FieldError{Field: field + ".item_type", Reason: inventory.ReasonUnknownItemType})
		case line.Quantity <= 0:
			errs = append(errs, FieldError{Field: field + ".quantity", Reason: inventory.ReasonInvalidQuantity})
		case line.UnitPrice.IsNegative():
			errs = append(errs, FieldError{Field: field + ".unit_price", Reason: "must not be negative"})
		case !types.Round2(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))).Equal(types.Round2(line.Subtotal)):
			errs = append(errs, FieldError{Field: field + ".subtotal", Reason: "must equal quantity × unit_price"})
		case line.ItemType == enums.ItemTypeVariable && line.VariationID == nil:
			errs = append(errs, FieldError{Field: field + ".variation_id", Reason: "required for variable products"})
		case line.ItemType == enums.ItemTypeGrouped && len(line.GroupedItems) == 0:
			errs = append(errs, FieldError{Field: field + ".grouped_items", Reason: inventory.ReasonGroupedEmpty})
		}
	}
	return errs
}

func toStockLine(line LineInput) inventory.StockLine {
	return inventory.StockLine{
		ProductID:    line.ProductID,
		VariationID:  line.VariationID,
		ItemType:     line.ItemType,
		Quantity:     line.Quantity,
		UnitPrice:    line.UnitPrice,
		GroupedItems: line.GroupedItems,
	}
}

func productSnapshot(p *models.Product) models.ProductSnapshot {
	return models.ProductSnapshot{
		Name:          p.Name,
		Slug:          p.Slug,
		SKU:           p.SKU,
		Price:         p.Price,
		SalePrice:     p.SalePrice,
		Image:         p.Image,
		PurchasePrice: p.PurchasePrice,
	}
}

func variationSnapshot(p *models.Product, v *models.ProductVariation) models.ProductSnapshot {
	return models.ProductSnapshot{
		Name:          p.Name + " - " + v.Title,
		Slug:          p.Slug,
		SKU:           v.SKU,
		Price:         v.Price,
		SalePrice:     v.SalePrice,
		Image:         v.Image,
		PurchasePrice: v.PurchasePrice,
	}
}

func initialPaymentStatus(method enums.PaymentMethod) enums.PaymentStatus {
	if method == enums.PaymentMethodCashOnDelivery {
		return enums.PaymentStatusCashOnDelivery
	}
	return enums.PaymentStatusPending
}

func paymentMethodOrDefault(method enums.PaymentMethod) enums.PaymentMethod {
	if method == "" {
		return enums.PaymentMethodOnline
	}
	return method
}

func restockReason(status enums.OrderStatus) enums.InventoryReason {
	if status == enums.OrderStatusRefunded {
		return enums.InventoryReasonOrderRefunded
	}
	return enums.InventoryReasonOrderCancelled
}

func shopIDs(lines []models.OrderLine) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	ids := make([]uuid.UUID, 0, len(lines))
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
