// Package registry maps outbox event types to their aggregate, topic and
// payload struct so the relay and the consumers decode rows the same way.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row or message that will never decode; the
// caller dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		newPayload:    func() any { return new(T) },
	}
}

// catalog is every event the pipeline emits.
func catalog() []EventDescriptor {
	return []EventDescriptor{
		describe[payloads.OrderPlacedEvent](enums.EventOrderPlaced, enums.AggregateOrder),
		describe[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder),
		describe[payloads.OrderCancelledEvent](enums.EventOrderCancelled, enums.AggregateOrder),

		describe[payloads.PaymentEvent](enums.EventPaymentCompleted, enums.AggregatePaymentTransaction),
		describe[payloads.PaymentEvent](enums.EventPaymentFailed, enums.AggregatePaymentTransaction),
		describe[payloads.PaymentEvent](enums.EventPaymentRefunded, enums.AggregatePaymentTransaction),

		describe[payloads.ReturnEvent](enums.EventReturnRequested, enums.AggregateReturnRequest),
		describe[payloads.ReturnEvent](enums.EventReturnApproved, enums.AggregateReturnRequest),
		describe[payloads.ReturnEvent](enums.EventReturnRejected, enums.AggregateReturnRequest),

		describe[payloads.WithdrawalEvent](enums.EventWithdrawalRequested, enums.AggregateWithdrawRequest),
		describe[payloads.WithdrawalEvent](enums.EventWithdrawalApproved, enums.AggregateWithdrawRequest),
		describe[payloads.WithdrawalEvent](enums.EventWithdrawalRejected, enums.AggregateWithdrawRequest),
		describe[payloads.WithdrawalEvent](enums.EventWithdrawalProcessed, enums.AggregateWithdrawRequest),

		describe[payloads.StockEvent](enums.EventLowStock, enums.AggregateProduct),
		describe[payloads.StockEvent](enums.EventOutOfStock, enums.AggregateProduct),
		describe[payloads.StockEvent](enums.EventBackInStock, enums.AggregateProduct),

		describe[payloads.WalletEvent](enums.EventWalletCredited, enums.AggregateWalletTransaction),
		describe[payloads.WalletEvent](enums.EventWalletTransferToBank, enums.AggregateWalletTransaction),
	}
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every event to the single domain topic. Consumers
// filter on the event_type attribute.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	descs := catalog()
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descs))}
	for _, d := range descs {
		d.Topic = cfg.DomainTopic
		reg.entries[d.EventType] = d
	}
	return reg, nil
}

// EventTypes lists the registered types in a stable order.
func (r *EventRegistry) EventTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (r *EventRegistry) lookup(t enums.OutboxEventType) (EventDescriptor, error) {
	d, ok := r.entries[t]
	if !ok {
		return EventDescriptor{}, permanent("unsupported event type %s", t)
	}
	return d, nil
}

// Decode resolves a bus message: the event type and aggregate id come from
// message attributes and body is the stored envelope.
func (r *EventRegistry) Decode(eventType string, aggregateID string, body []byte) (*ResolvedEvent, error) {
	t, err := enums.ParseOutboxEventType(eventType)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	d, err := r.lookup(t)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(aggregateID)
	if err != nil {
		return nil, permanent("invalid aggregate_id: %w", err)
	}
	return r.Resolve(models.OutboxEvent{EventType: t, AggregateType: d.AggregateType, AggregateID: id, Payload: body})
}

// Resolve checks an outbox row against its descriptor and decodes the
// typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	d, err := r.lookup(event.EventType)
	if err != nil {
		return nil, err
	}
	switch {
	case d.AggregateType != event.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", d.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("payload missing for %s", event.EventType)
	}

	payload := d.newPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: d, Envelope: envelope, Payload: payload}, nil
}
