package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
)

// Repository persists payment transactions and the order columns the
// orchestrator owns.
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

func (r *Repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *Repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *Repository) LockByTransactionID(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// jsonColumns hold provider payloads. Updates with a map skips the model's
// json serializer, so these are encoded before they reach the driver.
var jsonColumns = []string{"gateway_request", "gateway_response", "webhook_payload"}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	encoded, err := encodeJSONColumns(updates)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).Where("id = ?", id).Updates(encoded).Error
}

// encodeJSONColumns returns a copy of updates with payload maps marshalled to
// JSON text. A nil map clears the column.
func encodeJSONColumns(updates map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(updates))
	for k, v := range updates {
		out[k] = v
	}
	for _, col := range jsonColumns {
		payload, ok := out[col].(map[string]any)
		if !ok {
			continue
		}
		if payload == nil {
			out[col] = nil
			continue
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", col, err)
		}
		out[col] = string(raw)
	}
	return out, nil
}

func (r *Repository) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) SetOrderGateway(ctx context.Context, orderID uuid.UUID, gateway string) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("payment_gateway", gateway).Error
}
