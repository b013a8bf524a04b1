package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, userIDs []uuid.UUID, message string) ([]models.Notification, error)
}

type emailSender interface {
	Send(ctx context.Context, key, to, toName string, vars map[string]string) error
}

// Recipient is the contact a scheduled job writes to.
type Recipient struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

type dueWishlistItem struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	ProductID   uuid.UUID
	ProductName string
}

type dueCartItem struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

type stockAlert struct {
	ProductID uuid.UUID
	ShopID    uuid.UUID
	Name      string
	Quantity  int
}

// Repository holds the queries scheduled jobs run.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// PendingOrderEmails lists orders created since the cutoff whose shop emails
// have not gone out yet.
func (r *Repository) PendingOrderEmails(ctx context.Context, since time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("email_sent = ? AND created_at >= ?", false, since).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkOrderEmailSent(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		UpdateColumn("email_sent", true).Error
}

// ShopOwners maps each shop to its owner's contact.
func (r *Repository) ShopOwners(ctx context.Context, shopIDs []uuid.UUID) (map[uuid.UUID]Recipient, error) {
	out := make(map[uuid.UUID]Recipient, len(shopIDs))
	if len(shopIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ShopID uuid.UUID
		UserID uuid.UUID
		Name   string
		Email  string
	}
	err := r.db.WithContext(ctx).Table("shops").
		Select("shops.id AS shop_id, users.id AS user_id, users.name AS name, users.email AS email").
		Joins("JOIN users ON users.id = shops.owner_id").
		Where("shops.id IN ?", shopIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ShopID] = Recipient{UserID: row.UserID, Name: row.Name, Email: row.Email}
	}
	return out, nil
}

func (r *Repository) Users(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Recipient, error) {
	out := make(map[uuid.UUID]Recipient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ? AND is_active = ?", ids, true).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = Recipient{UserID: u.ID, Name: u.Name, Email: u.Email}
	}
	return out, nil
}

// DueWishlistItems lists wishlist entries older than the cutoff that have not
// been reminded since the cutoff.
func (r *Repository) DueWishlistItems(ctx context.Context, cutoff time.Time, limit int) ([]dueWishlistItem, error) {
	var rows []dueWishlistItem
	err := r.db.WithContext(ctx).Table("wishlist_items").
		Select("wishlist_items.id AS id, wishlist_items.user_id AS user_id, products.id AS product_id, products.name AS product_name").
		Joins("JOIN products ON products.id = wishlist_items.product_id").
		Where("products.is_active = ?", true).
		Where("wishlist_items.created_at <= ?", cutoff).
		Where("wishlist_items.last_reminded_at IS NULL OR wishlist_items.last_reminded_at <= ?", cutoff).
		Order("wishlist_items.created_at ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *Repository) StampWishlist(ctx context.Context, ids []uuid.UUID, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.WishlistItem{}).
		Where("id IN ?", ids).
		UpdateColumn("last_reminded_at", now).Error
}

// DueCartItems lists cart rows untouched since the cutoff and not reminded
// since then.
func (r *Repository) DueCartItems(ctx context.Context, cutoff time.Time, limit int) ([]dueCartItem, error) {
	var rows []dueCartItem
	err := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Select("id", "user_id").
		Where("updated_at <= ?", cutoff).
		Where("last_reminded_at IS NULL OR last_reminded_at <= ?", cutoff).
		Order("user_id ASC, created_at ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// StampCart sets last_reminded_at without touching updated_at, which the
// cutoff reads.
func (r *Repository) StampCart(ctx context.Context, ids []uuid.UUID, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("id IN ?", ids).
		UpdateColumn("last_reminded_at", now).Error
}

func (r *Repository) LowStockProducts(ctx context.Context, threshold int) ([]stockAlert, error) {
	var rows []stockAlert
	err := r.db.WithContext(ctx).Model(&models.Product{}).
		Select("id AS product_id, shop_id, name, quantity").
		Where("is_active = ? AND shop_id IS NOT NULL AND quantity <= ?", true, threshold).
		Order("shop_id ASC, quantity ASC").
		Scan(&rows).Error
	return rows, err
}

// DeleteReadNotificationsBefore prunes inbox rows already read before cutoff.
func (r *Repository) DeleteReadNotificationsBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := tx.WithContext(ctx).
		Where("is_read = ? AND read_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
