package inventory

import (
	"context"
	"errors"
	"fmt"

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

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns every stock write. Callers pass their transaction so the
// mutation commits or rolls back with the surrounding order/return change.
type Service struct {
	outbox outboxEmitter
	logg   *logger.Logger
}

// NewService builds the inventory primitives. The emitter is optional; without
// it stock transitions are not announced.
func NewService(emitter outboxEmitter, logg *logger.Logger) *Service {
	return &Service{outbox: emitter, logg: logg}
}

var hundred = decimal.NewFromInt(100)

// CommissionRate returns the product's category rate in percent, or zero when
// the product has no category or the category has no rate.
func (s *Service) CommissionRate(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (decimal.Decimal, error) {
	var product models.Product
	if err := tx.WithContext(ctx).Select("id", "category_id").First(&product, "id = ?", productID).Error; err != nil {
		if dbpkg.IsNotFound(err) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.CategoryID == nil {
		return decimal.Zero, nil
	}
	var category models.Category
	err := tx.WithContext(ctx).Select("id", "admin_commission_rate").First(&category, "id = ?", *product.CategoryID).Error
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	if !category.AdminCommissionRate.Valid {
		return decimal.Zero, nil
	}
	return category.AdminCommissionRate.Decimal, nil
}

// ComputeCommission returns round2(unitPrice × qty × rate / 100).
func (s *Service) ComputeCommission(ctx context.Context, tx *gorm.DB, productID uuid.UUID, unitPrice decimal.Decimal, qty int) (decimal.Decimal, error) {
	rate, err := s.CommissionRate(ctx, tx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return Commission(unitPrice.Mul(decimal.NewFromInt(int64(qty))), rate), nil
}

// Commission applies a percent rate to subtotal, rounded half-up to cents.
func Commission(subtotal, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() || subtotal.IsZero() {
		return decimal.Zero
	}
	return types.Round2(subtotal.Mul(rate).Div(hundred))
}

// CheckAvailability validates every line without mutating anything and
// returns one LineError per unsatisfied line or constituent.
func (s *Service) CheckAvailability(ctx context.Context, tx *gorm.DB, lines []StockLine) ([]LineError, error) {
	var problems []LineError
	for i, line := range lines {
		errs, err := s.checkLine(ctx, tx, i, line)
		if err != nil {
			return nil, err
		}
		problems = append(problems, errs...)
	}
	return problems, nil
}

func (s *Service) checkLine(ctx context.Context, tx *gorm.DB, index int, line StockLine) ([]LineError, error) {
	fail := func(productID uuid.UUID, variationID *uuid.UUID, reason string) []LineError {
		return []LineError{{Index: index, ProductID: productID, VariationID: variationID, Reason: reason}}
	}
	if line.Quantity <= 0 {
		return fail(line.ProductID, line.VariationID, ReasonInvalidQuantity), nil
	}

	switch line.ItemType {
	case enums.ItemTypeSimple:
		reason, err := s.simpleAvailability(ctx, tx, line.ProductID, line.Quantity)
		if err != nil || reason == "" {
			return nil, err
		}
		return fail(line.ProductID, nil, reason), nil

	case enums.ItemTypeVariable:
		if line.VariationID == nil {
			return fail(line.ProductID, nil, ReasonVariationMissing), nil
		}
		var variation models.ProductVariation
		err := tx.WithContext(ctx).First(&variation, "id = ? AND product_id = ?", *line.VariationID, line.ProductID).Error
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return fail(line.ProductID, line.VariationID, ReasonVariationMissing), nil
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variation")
		}
		if !variation.IsActive {
			return fail(line.ProductID, line.VariationID, ReasonVariationInactive), nil
		}
		if variation.Quantity < line.Quantity {
			return fail(line.ProductID, line.VariationID, ReasonInsufficientStock), nil
		}
		return nil, nil

	case enums.ItemTypeGrouped:
		if len(line.GroupedItems) == 0 {
			return fail(line.ProductID, nil, ReasonGroupedEmpty), nil
		}
		var out []LineError
		for _, item := range line.GroupedItems {
			if item.Quantity <= 0 {
				out = append(out, LineError{Index: index, ProductID: item.ProductID, Reason: ReasonInvalidQuantity})
				continue
			}
			reason, err := s.simpleAvailability(ctx, tx, item.ProductID, item.Quantity)
			if err != nil {
				return nil, err
			}
			if reason != "" {
				out = append(out, LineError{Index: index, ProductID: item.ProductID, Reason: reason})
			}
		}
		return out, nil
	}
	return fail(line.ProductID, line.VariationID, ReasonUnknownItemType), nil
}

func (s *Service) simpleAvailability(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (string, error) {
	var product models.Product
	if err := tx.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		if dbpkg.IsNotFound(err) {
			return ReasonNotFound, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	switch {
	case !product.IsActive:
		return ReasonInactive, nil
	case !product.InStock:
		return ReasonOutOfStock, nil
	case product.Quantity < qty:
		return ReasonInsufficientStock, nil
	}
	return "", nil
}

// MutateStock applies op to the rows behind line and appends one inventory
// log per touched row. A deduct that would drive stock negative fails with
// UNAVAILABLE so the caller's transaction rolls back.
func (s *Service) MutateStock(ctx context.Context, tx *gorm.DB, line StockLine, op enums.StockOperation, reason enums.InventoryReason) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !op.IsValid() {
		return fmt.Errorf("invalid stock operation %q", op)
	}
	if line.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	switch line.ItemType {
	case enums.ItemTypeSimple:
		return s.mutateSimple(ctx, tx, line.ProductID, line.Quantity, line.UnitPrice, line.OrderID, op, reason)
	case enums.ItemTypeVariable:
		if line.VariationID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "variation id required for variable product")
		}
		return s.mutateVariation(ctx, tx, line, op, reason)
	case enums.ItemTypeGrouped:
		if len(line.GroupedItems) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "grouped product has no items")
		}
		for _, item := range line.GroupedItems {
			if err := s.mutateSimple(ctx, tx, item.ProductID, item.Quantity, decimal.Zero, line.OrderID, op, reason); err != nil {
				return err
			}
		}
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown item type %q", line.ItemType))
}

func (s *Service) lockProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := dbpkg.ForUpdate(tx.WithContext(ctx)).First(&product, "id = ?", productID).Error; err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock product")
	}
	return &product, nil
}

func (s *Service) mutateSimple(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, unitPrice decimal.Decimal, orderID *uuid.UUID, op enums.StockOperation, reason enums.InventoryReason) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	product, err := s.lockProduct(ctx, tx, productID)
	if err != nil {
		return err
	}
	if unitPrice.IsZero() {
		unitPrice = product.Price
	}

	previous := product.Quantity
	next, sold, err := apply(op, previous, product.TotalSoldQuantity, qty)
	if err != nil {
		return unavailable(productID, nil)
	}

	updates := map[string]any{
		"quantity":            next,
		"in_stock":            next > 0,
		"total_sold_quantity": sold,
	}
	if err := tx.WithContext(ctx).Model(&models.Product{}).Where("id = ?", productID).Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product stock")
	}
	if err := s.appendLog(ctx, tx, op, productID, nil, orderID, previous, next, unitPrice, reason); err != nil {
		return err
	}
	return s.announce(ctx, tx, product, previous, next)
}

func (s *Service) mutateVariation(ctx context.Context, tx *gorm.DB, line StockLine, op enums.StockOperation, reason enums.InventoryReason) error {
	product, err := s.lockProduct(ctx, tx, line.ProductID)
	if err != nil {
		return err
	}
	var variation models.ProductVariation
	err = dbpkg.ForUpdate(tx.WithContext(ctx)).First(&variation, "id = ? AND product_id = ?", *line.VariationID, line.ProductID).Error
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "variation not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock variation")
	}

	previous := variation.Quantity
	next, sold, err := apply(op, previous, product.TotalSoldQuantity, line.Quantity)
	if err != nil {
		return unavailable(line.ProductID, line.VariationID)
	}
	if err := tx.WithContext(ctx).Model(&models.ProductVariation{}).
		Where("id = ?", variation.ID).
		Update("quantity", next).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update variation stock")
	}

	var total int64
	if err := tx.WithContext(ctx).Model(&models.ProductVariation{}).
		Where("product_id = ?", line.ProductID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum variation stock")
	}
	parentPrevious := product.Quantity
	updates := map[string]any{
		"quantity":            int(total),
		"in_stock":            total > 0,
		"total_sold_quantity": sold,
	}
	if err := tx.WithContext(ctx).Model(&models.Product{}).Where("id = ?", line.ProductID).Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update parent stock")
	}

	unitPrice := line.UnitPrice
	if unitPrice.IsZero() {
		unitPrice = variation.Price
	}
	if err := s.appendLog(ctx, tx, op, line.ProductID, &variation.ID, line.OrderID, previous, next, unitPrice, reason); err != nil {
		return err
	}
	return s.announce(ctx, tx, product, parentPrevious, int(total))
}

// apply returns the new quantity and sold counter, or an error when a deduct
// would go negative.
func apply(op enums.StockOperation, quantity, sold, qty int) (int, int, error) {
	switch op {
	case enums.StockOperationDeduct:
		if quantity < qty {
			return 0, 0, errors.New("insufficient stock")
		}
		return quantity - qty, sold + qty, nil
	default:
		sold -= qty
		if sold < 0 {
			sold = 0
		}
		return quantity + qty, sold, nil
	}
}

func unavailable(productID uuid.UUID, variationID *uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeUnavailable, "requested items are unavailable").
		WithDetails([]LineError{{ProductID: productID, VariationID: variationID, Reason: ReasonInsufficientStock}})
}

func (s *Service) appendLog(ctx context.Context, tx *gorm.DB, op enums.StockOperation, productID uuid.UUID, variationID, orderID *uuid.UUID, previous, next int, unitPrice decimal.Decimal, reason enums.InventoryReason) error {
	entry := models.InventoryLog{
		Type:           op,
		ProductID:      productID,
		VariationID:    variationID,
		OrderID:        orderID,
		PreviousQty:    previous,
		NewQty:         next,
		QuantityChange: next - previous,
		UnitPrice:      unitPrice,
		Reason:         reason,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append inventory log")
	}
	return nil
}

// announce emits out-of-stock when stock reaches zero and back-in-stock when
// it rises from zero.
func (s *Service) announce(ctx context.Context, tx *gorm.DB, product *models.Product, previous, next int) error {
	if s.outbox == nil {
		return nil
	}
	var eventType enums.OutboxEventType
	switch {
	case previous > 0 && next <= 0:
		eventType = enums.EventOutOfStock
	case previous <= 0 && next > 0:
		eventType = enums.EventBackInStock
	default:
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateProduct,
		AggregateID:   product.ID,
		Data: payloads.StockEvent{
			ProductID: product.ID,
			ShopID:    product.ShopID,
			Name:      product.Name,
			Quantity:  next,
		},
	})
}

// ListLogs returns the stock audit trail for a product, newest first.
func (s *Service) ListLogs(ctx context.Context, db *gorm.DB, productID uuid.UUID, page pagination.Params) ([]models.InventoryLog, int64, error) {
	scope := func() *gorm.DB {
		return db.WithContext(ctx).Model(&models.InventoryLog{}).Where("product_id = ?", productID)
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count inventory logs")
	}
	var logs []models.InventoryLog
	err := scope().Order("created_at DESC").
		Limit(pagination.NormalizeLimit(page.Limit)).
		Offset(page.Offset()).
		Find(&logs).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory logs")
	}
	return logs, total, nil
}
