package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "domain-topic"})
	require.NoError(t, err)
	return reg
}

func envelope(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, ok := data.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	b, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return b
}

func TestRegistryCoversEveryEventType(t *testing.T) {
	reg := testRegistry(t)
	types := reg.EventTypes()
	assert.Len(t, types, 18)
	assert.IsNonDecreasing(t, types)
	for _, et := range types {
		d, err := reg.lookup(et)
		require.NoError(t, err)
		assert.Equal(t, "domain-topic", d.Topic)
		assert.NotNil(t, d.newPayload(), et)
	}
}

func TestResolveDecodesTypedPayload(t *testing.T) {
	reg := testRegistry(t)
	shopID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload: envelope(t, payloads.OrderPlacedEvent{
			OrderID:    uuid.New(),
			TrackingNo: "TRK-ABCDEF012345",
			ShopIDs:    []uuid.UUID{shopID},
			Total:      "110.00",
		}),
	})
	require.NoError(t, err)

	payload, ok := resolved.Payload.(*payloads.OrderPlacedEvent)
	require.True(t, ok, "got %T", resolved.Payload)
	assert.Equal(t, []uuid.UUID{shopID}, payload.ShopIDs)
	assert.Equal(t, "domain-topic", resolved.Descriptor.Topic)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestDecodeFromMessageAttributes(t *testing.T) {
	reg := testRegistry(t)
	withdrawalID := uuid.New()
	body := envelope(t, payloads.WithdrawalEvent{
		WithdrawalID: withdrawalID,
		ShopID:       uuid.New(),
		Status:       enums.WithdrawStatusPending,
		Amount:       "60.00",
	})

	resolved, err := reg.Decode(string(enums.EventWithdrawalRequested), withdrawalID.String(), body)
	require.NoError(t, err)
	assert.Equal(t, "60.00", resolved.Payload.(*payloads.WithdrawalEvent).Amount)
	assert.Equal(t, enums.AggregateWithdrawRequest, resolved.Descriptor.AggregateType)
}

func TestRejectionsAreNonRetryable(t *testing.T) {
	reg := testRegistry(t)
	valid := envelope(t, payloads.ReturnEvent{})

	cases := []struct {
		name string
		run  func() error
	}{
		{"unknown type", func() error {
			_, err := reg.Decode("license_expired", uuid.NewString(), valid)
			return err
		}},
		{"bad aggregate id", func() error {
			_, err := reg.Decode(string(enums.EventReturnApproved), "not-a-uuid", valid)
			return err
		}},
		{"aggregate mismatch", func() error {
			_, err := reg.Resolve(models.OutboxEvent{EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateWithdrawRequest, AggregateID: uuid.New(), Payload: valid})
			return err
		}},
		{"missing aggregate id", func() error {
			_, err := reg.Resolve(models.OutboxEvent{EventType: enums.EventReturnApproved, AggregateType: enums.AggregateReturnRequest, Payload: valid})
			return err
		}},
		{"null payload", func() error {
			_, err := reg.Resolve(models.OutboxEvent{EventType: enums.EventReturnApproved, AggregateType: enums.AggregateReturnRequest, AggregateID: uuid.New(), Payload: envelope(t, json.RawMessage("null"))})
			return err
		}},
		{"broken envelope", func() error {
			_, err := reg.Resolve(models.OutboxEvent{EventType: enums.EventReturnApproved, AggregateType: enums.AggregateReturnRequest, AggregateID: uuid.New(), Payload: []byte("{")})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			var nonRetry NonRetryableError
			require.Error(t, err)
			assert.True(t, errors.As(err, &nonRetry), "got %v", err)
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	require.Error(t, err)
}
