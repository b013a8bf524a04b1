package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	aggregateID := uuid.New()

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Data:          map[string]string{"tracking_no": "TRK-000000000001"},
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.JSONEq(t, `{"tracking_no":"TRK-000000000001"}`, string(envelope.Data))
}

func TestEmitIfNotExistsOnlyOnce(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	event := DomainEvent{
		EventType:     enums.EventPaymentCompleted,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   uuid.New(),
		Data:          map[string]string{},
	}

	require.NoError(t, svc.EmitIfNotExists(context.Background(), conn, event))
	require.NoError(t, svc.EmitIfNotExists(context.Background(), conn, event))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestEmitUsesRowIDAsEventID(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	userID := uuid.New()

	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventWalletCredited,
		AggregateType: enums.AggregateWalletTransaction,
		AggregateID:   uuid.New(),
		Actor:         &ActorRef{UserID: userID, Role: "customer"},
		Data:          map[string]string{"amount": "10.00"},
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(row.Payload, &raw))
	require.Equal(t, row.ID.String(), raw["event_id"])
	require.Contains(t, raw, "occurred_at")
	require.Equal(t, userID.String(), raw["actor"].(map[string]any)["user_id"])
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	good := DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
	}

	bad := []DomainEvent{good, good, good, good}
	bad[0].EventType = "order_shipped"
	bad[1].AggregateType = "cart"
	bad[2].AggregateID = uuid.Nil
	bad[3].Data = make(chan int)
	for i, event := range bad {
		require.Error(t, svc.Emit(context.Background(), conn, event), "case %d", i)
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}
