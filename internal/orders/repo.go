package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order with its lines and status sidecar.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) withAssociations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("StatusHistory")
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.withAssociations(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	var lines []models.OrderLine
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Order("created_at ASC, id ASC").Find(&lines).Error; err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

func (r *repository) FindByTracking(ctx context.Context, trackingNo string) (*models.Order, error) {
	var order models.Order
	if err := r.withAssociations(ctx).Where("tracking_no = ?", trackingNo).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindHistory(ctx context.Context, orderID uuid.UUID) (*models.OrderStatusHistory, error) {
	var history models.OrderStatusHistory
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&history).Error; err != nil {
		return nil, err
	}
	return &history, nil
}

// StampHistory sets column only when it is still empty.
func (r *repository) StampHistory(ctx context.Context, orderID uuid.UUID, column string, at any) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderStatusHistory{}).
		Where("order_id = ? AND "+column+" IS NULL", orderID).
		Update(column, at).Error
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("order_id = ?", id).Delete(&models.OrderLine{}).Error; err != nil {
		return err
	}
	if err := db.Where("order_id = ?", id).Delete(&models.OrderStatusHistory{}).Error; err != nil {
		return err
	}
	if err := db.Where("order_id = ?", id).Delete(&models.PaymentTransaction{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&models.Order{}).Error
}

func (r *repository) LoadProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) LoadVariation(ctx context.Context, productID, variationID uuid.UUID) (*models.ProductVariation, error) {
	var variation models.ProductVariation
	err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variationID, productID).
		First(&variation).Error
	if err != nil {
		return nil, err
	}
	return &variation, nil
}

func (r *repository) ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Order{})
		if filters.CustomerID != nil {
			q = q.Where("customer_id = ?", *filters.CustomerID)
		}
		if filters.ShopID != nil {
			q = q.Where("id IN (?)", r.db.Model(&models.OrderLine{}).Select("order_id").Where("shop_id = ?", *filters.ShopID))
		}
		if filters.OrderStatus != nil {
			q = q.Where("order_status = ?", *filters.OrderStatus)
		}
		if filters.PaymentStatus != nil {
			q = q.Where("payment_status = ?", *filters.PaymentStatus)
		}
		if filters.TrackingNo != "" {
			q = q.Where("tracking_no = ?", filters.TrackingNo)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.Order
	err := scope().
		Preload("Lines").
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.NormalizeLimit(params.Limit)).
		Offset(params.Offset()).
		Find(&orders).Error
	return orders, total, err
}
