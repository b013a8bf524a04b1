package returns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

// ListFilters narrows a return request listing.
type ListFilters struct {
	UserID  *uuid.UUID
	OrderID *uuid.UUID
	Status  *enums.ReturnStatus
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// LockOrder locks the order row and loads its lines.
func (r *Repository) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Preload("Lines").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Lines").First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) CreateReturn(ctx context.Context, ret *models.ReturnRequest) error {
	return r.db.WithContext(ctx).Create(ret).Error
}

func (r *Repository) FindReturn(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	if err := r.db.WithContext(ctx).Preload("Items").First(&ret, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *Repository) LockReturn(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Preload("Items").
		First(&ret, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *Repository) UpdateReturn(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.ReturnRequest{}).Where("id = ?", id).Updates(updates).Error
}

// AttachLines points lines at an open return request.
func (r *Repository) AttachLines(ctx context.Context, lineIDs []uuid.UUID, returnID uuid.UUID) error {
	if len(lineIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.OrderLine{}).
		Where("id IN ?", lineIDs).
		Update("return_request_id", returnID).Error
}

// DetachLines frees every line held by a return request.
func (r *Repository) DetachLines(ctx context.Context, returnID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.OrderLine{}).
		Where("return_request_id = ?", returnID).
		Update("return_request_id", nil).Error
}

func (r *Repository) MarkLineReturned(ctx context.Context, lineID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).Model(&models.OrderLine{}).
		Where("id = ?", lineID).
		Updates(map[string]any{"is_returned": true, "returned_qty": qty}).Error
}

func (r *Repository) ListReturns(ctx context.Context, filters ListFilters, page pagination.Params) ([]models.ReturnRequest, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.ReturnRequest{})
		if filters.UserID != nil {
			q = q.Where("user_id = ?", *filters.UserID)
		}
		if filters.OrderID != nil {
			q = q.Where("order_id = ?", *filters.OrderID)
		}
		if filters.Status != nil {
			q = q.Where("status = ?", *filters.Status)
		}
		return q
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.ReturnRequest
	err := scope().Preload("Items").
		Order("created_at DESC").
		Limit(pagination.NormalizeLimit(page.Limit)).
		Offset(page.Offset()).
		Find(&rows).Error
	return rows, total, err
}

// PendingRefunds lists approved returns whose wallet credit has not been
// booked and that were last touched before cutoff.
func (r *Repository) PendingRefunds(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.ReturnRequest{}).
		Where("status = ? AND refund_status = ? AND updated_at < ?",
			enums.ReturnStatusApproved, enums.RefundStatusPending, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
