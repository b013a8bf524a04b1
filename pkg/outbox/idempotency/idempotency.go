// Package idempotency remembers which deliveries were already handled so
// at-least-once inputs (bus messages, gateway webhooks) are applied once.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/redis"
)

// Guard is a SETNX-with-TTL "seen" set. Keys are built by the store as
// mc:idempotency:<scope>:<id>.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard builds a guard. A zero ttl keeps marks forever.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Seen marks (scope, id) and reports whether it had been marked before.
func (g *Guard) Seen(ctx context.Context, scope, id string) (bool, error) {
	if scope == "" || id == "" {
		return false, errors.New("idempotency scope and id are required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(scope, id), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", scope, err)
	}
	return !set, nil
}

// Forget removes a mark so the next delivery is handled again. Callers use
// it when processing failed after Seen returned false.
func (g *Guard) Forget(ctx context.Context, scope, id string) error {
	if scope == "" || id == "" {
		return errors.New("idempotency scope and id are required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(scope, id))
}

// Manager dedupes domain events per consuming service by event_id.
type Manager struct {
	guard *Guard
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	guard, err := NewGuard(store, ttl)
	if err != nil {
		return nil, err
	}
	return &Manager{guard: guard}, nil
}

// CheckAndMarkProcessed returns true when consumer already handled eventID.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	scope, err := eventScope(consumer, eventID)
	if err != nil {
		return false, err
	}
	return m.guard.Seen(ctx, scope, eventID.String())
}

func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	scope, err := eventScope(consumer, eventID)
	if err != nil {
		return err
	}
	return m.guard.Forget(ctx, scope, eventID.String())
}

func eventScope(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return "evt:processed:" + consumer, nil
}
