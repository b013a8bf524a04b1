package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/internal/analytics/types"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

type fakeWriter struct {
	inserted []types.PipelineEventRow
	err      error
}

func (f *fakeWriter) InsertPipeline(_ context.Context, row types.PipelineEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, row)
	return nil
}

func TestRouterWritesOrderPlacedRow(t *testing.T) {
	writer := &fakeWriter{}
	router, err := NewRouter(writer, logger.Nop())
	require.NoError(t, err)

	orderID := uuid.New()
	customerID := uuid.New()
	shopID := uuid.New()
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err = router.Handle(context.Background(), types.Envelope{
		EventID:       "evt-1",
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID.String(),
		OccurredAt:    occurred,
		Payload: &payloads.OrderPlacedEvent{
			OrderID:    orderID,
			TrackingNo: "TRK-1",
			CustomerID: &customerID,
			ShopIDs:    []uuid.UUID{shopID},
			Total:      "110.50",
		},
	})
	require.NoError(t, err)
	require.Len(t, writer.inserted, 1)

	row := writer.inserted[0]
	assert.Equal(t, "order_placed", row.EventType)
	assert.Equal(t, occurred, row.OccurredAt)
	require.NotNil(t, row.AmountCents)
	assert.EqualValues(t, 11050, *row.AmountCents)
	assert.Equal(t, customerID.String(), *row.UserID)
	assert.Equal(t, []string{shopID.String()}, row.ShopIDs)
	assert.True(t, row.Payload.Valid)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(row.Payload.JSONVal), &decoded))
	assert.Equal(t, "TRK-1", decoded["tracking_no"])
}

func TestBuildRowUsesRefundedAmountForRefunds(t *testing.T) {
	row, err := BuildRow(types.Envelope{
		EventType: enums.EventPaymentRefunded,
		Payload: &payloads.PaymentEvent{
			TransactionID:  "tx-1",
			OrderID:        uuid.New(),
			Gateway:        "stripe",
			Status:         enums.TransactionStatusRefunded,
			Amount:         "100.00",
			RefundedAmount: "40.00",
		},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4000, *row.AmountCents)
	assert.Equal(t, "stripe", *row.Gateway)
}

func TestBuildRowGuestOrderHasNoUser(t *testing.T) {
	row, err := BuildRow(types.Envelope{
		EventType: enums.EventOrderCancelled,
		Payload:   &payloads.OrderCancelledEvent{OrderID: uuid.New(), TrackingNo: "TRK-2"},
	})
	require.NoError(t, err)
	assert.Nil(t, row.UserID)
	assert.Nil(t, row.AmountCents)
}

func TestRouterRejectsUnknownPayload(t *testing.T) {
	router, err := NewRouter(&fakeWriter{}, logger.Nop())
	require.NoError(t, err)
	err = router.Handle(context.Background(), types.Envelope{EventType: "mystery", Payload: struct{}{}})
	assert.True(t, errors.Is(err, ErrUnsupportedEventType))
}

func TestRouterSurfacesWriterErrors(t *testing.T) {
	router, err := NewRouter(&fakeWriter{err: errors.New("quota")}, logger.Nop())
	require.NoError(t, err)
	err = router.Handle(context.Background(), types.Envelope{
		EventType: enums.EventWalletCredited,
		Payload:   &payloads.WalletEvent{UserID: uuid.New(), Kind: enums.WalletTransactionKindCredit, Amount: "25.00"},
	})
	require.Error(t, err)
}
