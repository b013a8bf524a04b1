package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/marketcore-backend/pkg/redis"
)

const webhookGuardScope = "webhook"

// WebhookGuard drops redeliveries of the same (gateway, transaction, status)
// notification before they reach the database.
type WebhookGuard struct {
	guard *idempotency.Guard
}

func NewWebhookGuard(store redis.IdempotencyStore, ttl time.Duration) (*WebhookGuard, error) {
	g, err := idempotency.NewGuard(store, ttl)
	if err != nil {
		return nil, err
	}
	return &WebhookGuard{guard: g}, nil
}

// CheckAndMark reports whether the notification was already seen and marks
// it otherwise.
func (w *WebhookGuard) CheckAndMark(ctx context.Context, gateway, transactionID string, status enums.TransactionStatus) (bool, error) {
	id, err := webhookID(gateway, transactionID, status)
	if err != nil {
		return false, err
	}
	return w.guard.Seen(ctx, webhookGuardScope, id)
}

// Release forgets a notification so a redelivery is processed again.
func (w *WebhookGuard) Release(ctx context.Context, gateway, transactionID string, status enums.TransactionStatus) error {
	id, err := webhookID(gateway, transactionID, status)
	if err != nil {
		return err
	}
	return w.guard.Forget(ctx, webhookGuardScope, id)
}

// Gateway names are case-folded so a provider that changes casing between
// redeliveries still dedupes.
func webhookID(gateway, transactionID string, status enums.TransactionStatus) (string, error) {
	if gateway == "" || transactionID == "" {
		return "", errors.New("gateway and transaction id are required")
	}
	return strings.Join([]string{strings.ToLower(gateway), transactionID, string(status)}, ":"), nil
}
