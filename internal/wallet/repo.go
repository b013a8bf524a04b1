package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

// Repository persists wallets, their movements and the refund columns of
// return requests.
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

func (r *Repository) FindWallet(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	var w models.UserWallet
	if err := r.db.WithContext(ctx).First(&w, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// EnsureWallet creates the user's wallet when missing and returns it locked.
func (r *Repository) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	fresh := models.UserWallet{UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&fresh).Error; err != nil {
		return nil, err
	}
	return r.LockWallet(ctx, userID)
}

func (r *Repository) LockWallet(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	var w models.UserWallet
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).First(&w, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) UpdateWallet(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.UserWallet{}).Where("id = ?", id).Updates(updates).Error
}

func (r *Repository) CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *Repository) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("id = ?", id).Updates(updates).Error
}

func (r *Repository) FindTransaction(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	if err := r.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindRefundCredit returns the oldest credit booked for a return, if any.
// Split residuals share the return id, so the oldest row is the original.
func (r *Repository) FindRefundCredit(ctx context.Context, returnID uuid.UUID) (*models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("return_request_id = ? AND kind = ?", returnID, enums.WalletTransactionKindCredit).
		Order("created_at ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// LockEligibleCredits returns untransferred refund credits whose lock has
// expired, oldest eligibility first.
func (r *Repository) LockEligibleCredits(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("user_id = ? AND kind = ? AND is_refund = ? AND transferred_to_bank = ?",
			userID, enums.WalletTransactionKindCredit, true, false).
		Where("transfer_eligible_at IS NOT NULL AND transfer_eligible_at <= ?", now).
		Order("transfer_eligible_at ASC").
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// OpenCredits returns every untransferred refund credit.
func (r *Repository) OpenCredits(ctx context.Context, userID uuid.UUID) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND is_refund = ? AND transferred_to_bank = ?",
			userID, enums.WalletTransactionKindCredit, true, false).
		Order("transfer_eligible_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]models.WalletTransaction, int64, error) {
	scope := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("user_id = ?", userID)
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.WalletTransaction
	err := scope().Order("created_at DESC").
		Limit(pagination.NormalizeLimit(page.Limit)).
		Offset(page.Offset()).
		Find(&rows).Error
	return rows, total, err
}

func (r *Repository) LockReturn(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).First(&ret, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *Repository) UpdateReturn(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.ReturnRequest{}).Where("id = ?", id).Updates(updates).Error
}
