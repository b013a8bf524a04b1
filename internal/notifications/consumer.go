package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
)

const notificationConsumer = "notifications"

type eventDecoder interface {
	Decode(eventType string, aggregateID string, body []byte) (*registry.ResolvedEvent, error)
}

type eventHandler interface {
	Handle(ctx context.Context, eventType enums.OutboxEventType, payload any) error
}

type processedStore interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer reads domain events from the bus and fans them out to inboxes.
type Consumer struct {
	subscription *pubsub.Subscriber
	decoder      eventDecoder
	handler      eventHandler
	idempotency  processedStore
	logg         *logger.Logger
}

// NewConsumer builds the notification consumer.
func NewConsumer(subscription *pubsub.Subscriber, decoder *registry.EventRegistry, handler *Fanout, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if decoder == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if handler == nil {
		return nil, fmt.Errorf("fanout handler required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		decoder:      decoder,
		handler:      handler,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked.
func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	eventType := attrs["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id":   messageID,
		"event_type":   eventType,
		"aggregate_id": attrs["aggregate_id"],
	})

	resolved, err := c.decoder.Decode(eventType, attrs["aggregate_id"], data)
	if err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			c.logg.Warn(logCtx, "dropping undecodable event: "+err.Error())
			return true
		}
		c.logg.Error(logCtx, "decode event", err)
		return false
	}

	eventID, err := uuid.Parse(resolved.Envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return true
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, notificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return true
	}

	if err := c.handler.Handle(ctx, resolved.Descriptor.EventType, resolved.Payload); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		if delErr := c.idempotency.Delete(ctx, notificationConsumer, eventID); delErr != nil {
			c.logg.Error(logCtx, "release idempotency key", delErr)
		}
		return false
	}
	return true
}
