package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketcore-backend/internal/analytics/router"
	"github.com/angelmondragon/marketcore-backend/internal/analytics/types"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
)

const (
	analyticsConsumerName = "analytics"
	finalFlushTimeout     = 30 * time.Second
)

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// Flusher is implemented by writers that buffer rows.
type Flusher interface {
	Flush(ctx context.Context) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type eventDecoder interface {
	Decode(eventType string, aggregateID string, body []byte) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Subscription *gcppubsub.Subscriber
	Registry     *registry.EventRegistry
	Handler      Handler
	Idempotency  idempotencyChecker
	Logger       *logger.Logger
	// Flusher, when set, is flushed every FlushInterval and on shutdown.
	Flusher       Flusher
	FlushInterval time.Duration
}

// Service streams domain events from the analytics subscription into
// pipeline_events, once per event id.
type Service struct {
	subscription  *gcppubsub.Subscriber
	decoder       eventDecoder
	handler       Handler
	manager       idempotencyChecker
	flusher       Flusher
	flushInterval time.Duration
	logg          *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Handler == nil:
		return nil, errors.New("analytics handler is required")
	case p.Idempotency == nil:
		return nil, errors.New("idempotency manager is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription:  p.Subscription,
		decoder:       p.Registry,
		handler:       p.Handler,
		manager:       p.Idempotency,
		flusher:       p.Flusher,
		flushInterval: p.FlushInterval,
		logg:          p.Logger,
	}, nil
}

// Run receives until ctx is cancelled, then flushes whatever is buffered.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.subscription.Receive(gctx, func(mctx context.Context, msg *gcppubsub.Message) {
			if s.process(mctx, msg) {
				msg.Ack()
				return
			}
			msg.Nack()
		})
	})
	if s.flusher != nil && s.flushInterval > 0 {
		g.Go(func() error {
			s.flushLoop(gctx)
			return nil
		})
	}
	err := g.Wait()

	if s.flusher != nil {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer cancel()
		if ferr := s.flusher.Flush(fctx); ferr != nil {
			s.logg.Error(fctx, "final analytics flush failed", ferr)
		}
	}
	return err
}

func (s *Service) flushLoop(ctx context.Context) {
	t := time.NewTicker(s.flushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.flusher.Flush(ctx); err != nil && ctx.Err() == nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "periodic analytics flush failed")
			}
		}
	}
}

// process reports whether msg should be acked. Malformed or unsupported
// events are acked so they do not redeliver forever.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) bool {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := s.buildEnvelope(msg)
	if err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "invalid analytics envelope")
			return true
		}
		s.logg.Error(ctx, "decode analytics envelope", err)
		return false
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID,
		"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(ctx, "invalid event id")
		return true
	}

	seen, err := s.manager.CheckAndMarkProcessed(ctx, analyticsConsumerName, eventID)
	if err != nil {
		s.logg.Error(ctx, "idempotency check failed", err)
		return false
	}
	if seen {
		s.logg.Debug(ctx, "event already processed")
		return true
	}

	err = s.handler.Handle(ctx, *envelope)
	switch {
	case err == nil:
		s.logg.Debug(ctx, "analytics event handled")
		return true
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(ctx, "unsupported analytics event")
		return true
	}
	s.logg.Error(ctx, "analytics handler failed", err)
	if derr := s.manager.Delete(ctx, analyticsConsumerName, eventID); derr != nil {
		s.logg.Error(ctx, "release idempotency mark", derr)
	}
	return false
}

func (s *Service) buildEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	attr := func(k string) string { return strings.TrimSpace(msg.Attributes[k]) }
	aggregateID := attr("aggregate_id")

	resolved, err := s.decoder.Decode(attr("event_type"), aggregateID, msg.Data)
	if err != nil {
		return nil, err
	}

	occurredAt := resolved.Envelope.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			occurredAt = parsed
		}
	}
	eventID := strings.TrimSpace(resolved.Envelope.EventID)
	if eventID == "" {
		eventID = attr("event_id")
	}
	if eventID == "" {
		return nil, registry.NewNonRetryableError(errors.New("event_id missing"))
	}

	return &types.Envelope{
		EventID:       eventID,
		EventType:     resolved.Descriptor.EventType,
		AggregateType: resolved.Descriptor.AggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       resolved.Payload,
	}, nil
}
