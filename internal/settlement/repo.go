package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

// Repository persists earnings and withdrawal requests.
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

func (r *Repository) EarningExists(ctx context.Context, orderLineID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ShopEarning{}).
		Where("order_line_id = ?", orderLineID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) CreateEarning(ctx context.Context, earning *models.ShopEarning) error {
	return r.db.WithContext(ctx).Create(earning).Error
}

func (r *Repository) LockShop(ctx context.Context, shopID uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).First(&shop, "id = ?", shopID).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *Repository) FindShop(ctx context.Context, shopID uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Preload("Staff").First(&shop, "id = ?", shopID).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *Repository) UnsettledTotal(ctx context.Context, shopID uuid.UUID) (decimal.Decimal, error) {
	return r.sum(ctx, r.db.WithContext(ctx).Model(&models.ShopEarning{}).
		Where("shop_id = ? AND is_settled = ?", shopID, false), "shop_earning")
}

// PendingWithdrawals sums PENDING and APPROVED requests, optionally leaving one out.
func (r *Repository) PendingWithdrawals(ctx context.Context, shopID uuid.UUID, exclude *uuid.UUID) (decimal.Decimal, error) {
	query := r.db.WithContext(ctx).Model(&models.ShopWithdrawRequest{}).
		Where("shop_id = ? AND status IN ?", shopID, []enums.WithdrawStatus{enums.WithdrawStatusPending, enums.WithdrawStatusApproved})
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	return r.sum(ctx, query, "amount")
}

func (r *Repository) sum(ctx context.Context, query *gorm.DB, column string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	if err := query.Select("COALESCE(SUM(" + column + "), 0)").Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return types.Round2(total.Decimal), nil
}

func (r *Repository) CreateWithdrawal(ctx context.Context, req *models.ShopWithdrawRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repository) LockWithdrawal(ctx context.Context, id uuid.UUID) (*models.ShopWithdrawRequest, error) {
	var req models.ShopWithdrawRequest
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) FindWithdrawal(ctx context.Context, id uuid.UUID) (*models.ShopWithdrawRequest, error) {
	var req models.ShopWithdrawRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) UpdateWithdrawal(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.ShopWithdrawRequest{}).Where("id = ?", id).Updates(updates).Error
}

// OldestUnsettled returns unsettled earnings of the shop in creation order.
func (r *Repository) OldestUnsettled(ctx context.Context, shopID uuid.UUID) ([]models.ShopEarning, error) {
	var earnings []models.ShopEarning
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND is_settled = ?", shopID, false).
		Order("created_at ASC").
		Order("id ASC").
		Find(&earnings).Error
	return earnings, err
}

func (r *Repository) MarkSettled(ctx context.Context, ids []uuid.UUID, withdrawalID uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.ShopEarning{}).
		Where("id IN ? AND is_settled = ?", ids, false).
		Updates(map[string]any{
			"is_settled":    true,
			"settled_at":    at,
			"withdrawal_id": withdrawalID,
		}).Error
}

func (r *Repository) ListWithdrawals(ctx context.Context, shopID uuid.UUID, status *enums.WithdrawStatus, page pagination.Params) ([]models.ShopWithdrawRequest, int64, error) {
	scope := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&models.ShopWithdrawRequest{}).Where("shop_id = ?", shopID)
		if status != nil {
			query = query.Where("status = ?", *status)
		}
		return query
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.ShopWithdrawRequest
	err := scope().Order("created_at DESC").
		Limit(pagination.NormalizeLimit(page.Limit)).
		Offset(page.Offset()).
		Find(&rows).Error
	return rows, total, err
}

func (r *Repository) ListEarnings(ctx context.Context, shopID uuid.UUID, page pagination.Params) ([]models.ShopEarning, int64, error) {
	scope := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.ShopEarning{}).Where("shop_id = ?", shopID)
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.ShopEarning
	err := scope().Order("created_at DESC").
		Limit(pagination.NormalizeLimit(page.Limit)).
		Offset(page.Offset()).
		Find(&rows).Error
	return rows, total, err
}
