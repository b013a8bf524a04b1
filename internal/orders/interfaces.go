package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

// Repository defines persistence operations for order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByTracking(ctx context.Context, trackingNo string) (*models.Order, error)
	FindHistory(ctx context.Context, orderID uuid.UUID) (*models.OrderStatusHistory, error)
	StampHistory(ctx context.Context, orderID uuid.UUID, column string, at any) error
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	LoadProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	LoadVariation(ctx context.Context, productID, variationID uuid.UUID) (*models.ProductVariation, error)
	ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, int64, error)
}
