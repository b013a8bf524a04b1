package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

// Repository exposes persistence helpers for notifications and the recipient
// lookups the fan-out needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateMany(ctx context.Context, rows []models.Notification) error
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	ShopMembers(ctx context.Context, shopIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
	ShopOwner(ctx context.Context, shopID uuid.UUID) (uuid.UUID, error)
	RootAdmins(ctx context.Context) ([]uuid.UUID, error)
	Wishlisters(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error)
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindTemplate(ctx context.Context, key string) (*models.EmailTemplate, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listNotificationsParams struct {
	UserID     uuid.UUID
	Page       pagination.Params
	UnreadOnly bool
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateMany(ctx context.Context, rows []models.Notification) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", params.UserID)
		if params.UnreadOnly {
			q = q.Where("is_read = ?", false)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var notifications []models.Notification
	err := scope().
		Order("created_at DESC, id DESC").
		Limit(pagination.NormalizeLimit(params.Page.Limit)).
		Offset(params.Page.Offset()).
		Find(&notifications).Error
	return notifications, total, err
}

func (r *repositoryImpl) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", notificationID, userID, false).
		UpdateColumns(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return notificationMarkResult{}, result.Error
	}

	mark := notificationMarkResult{Updated: result.RowsAffected > 0}
	if result.RowsAffected > 0 {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Count(&count).Error; err != nil {
		return notificationMarkResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		UpdateColumns(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// ShopMembers maps each shop to its owner followed by its staff.
func (r *repositoryImpl) ShopMembers(ctx context.Context, shopIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	members := make(map[uuid.UUID][]uuid.UUID, len(shopIDs))
	if len(shopIDs) == 0 {
		return members, nil
	}
	var shops []models.Shop
	if err := r.db.WithContext(ctx).Preload("Staff").Where("id IN ?", shopIDs).Find(&shops).Error; err != nil {
		return nil, err
	}
	for _, shop := range shops {
		ids := []uuid.UUID{shop.OwnerID}
		for _, staff := range shop.Staff {
			ids = append(ids, staff.UserID)
		}
		members[shop.ID] = ids
	}
	return members, nil
}

func (r *repositoryImpl) ShopOwner(ctx context.Context, shopID uuid.UUID) (uuid.UUID, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Select("id", "owner_id").First(&shop, "id = ?", shopID).Error; err != nil {
		return uuid.Nil, err
	}
	return shop.OwnerID, nil
}

func (r *repositoryImpl) RootAdmins(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("is_root = ? AND is_active = ?", true, true).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repositoryImpl) Wishlisters(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.WishlistItem{}).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *repositoryImpl) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repositoryImpl) FindTemplate(ctx context.Context, key string) (*models.EmailTemplate, error) {
	var tpl models.EmailTemplate
	if err := r.db.WithContext(ctx).First(&tpl, "key = ? AND is_active = ?", key, true).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}
