// Package relay moves committed outbox rows onto the domain topic.
//
// Each batch is claimed with FOR UPDATE SKIP LOCKED inside one transaction,
// every message of the batch is handed to the publisher before any result is
// awaited, and the outcome of every row is written back before commit. A row
// is therefore published at least once; consumers dedupe on event_id.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxIdleBackoff        = 10 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Store is the slice of the outbox repository the relay needs.
type Store interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error
}

type Resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Publisher starts an asynchronous publish. Wait blocks for the broker ack.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (Pending, error)
}

type Pending interface {
	Wait(ctx context.Context) error
}

type Params struct {
	DB        txRunner
	Store     Store
	Resolver  Resolver
	Publisher Publisher
	Logger    *logger.Logger
	Metrics   *metrics.RelayMetrics
	Config    config.OutboxConfig
}

type Relay struct {
	db        txRunner
	store     Store
	resolver  Resolver
	publisher Publisher
	logg      *logger.Logger
	metrics   *metrics.RelayMetrics

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func New(p Params) (*Relay, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("database is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Resolver == nil:
		return nil, errors.New("event registry is required")
	case p.Publisher == nil:
		return nil, errors.New("publisher is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	r := &Relay{
		db:             p.DB,
		store:          p.Store,
		resolver:       p.Resolver,
		publisher:      p.Publisher,
		logg:           p.Logger,
		metrics:        p.Metrics,
		batchSize:      p.Config.BatchSize,
		maxAttempts:    p.Config.MaxAttempts,
		pollInterval:   time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
		publishTimeout: defaultPublishTimeout,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	return r, nil
}

// Run relays until ctx is cancelled. Full batches are followed immediately
// by the next one; an empty batch waits one poll interval; a failing batch
// backs off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.pollInterval
	for {
		n, err := r.RelayBatch(ctx)
		switch {
		case ctx.Err() != nil:
			r.logg.Info(ctx, "outbox relay stopped")
			return ctx.Err()
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = nextBackoff(wait, r.pollInterval, maxIdleBackoff)
		case n >= r.batchSize:
			wait = r.pollInterval
			continue
		default:
			wait = r.pollInterval
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

type inflight struct {
	event   models.OutboxEvent
	topic   string
	pending Pending
	err     error
}

// RelayBatch publishes up to one batch and returns how many rows it claimed.
func (r *Relay) RelayBatch(ctx context.Context) (int, error) {
	var claimed int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		claimed = len(events)
		r.metrics.Batch(claimed)
		if claimed == 0 {
			return nil
		}

		pubCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
		defer cancel()

		batch := make([]inflight, 0, len(events))
		for _, event := range events {
			batch = append(batch, r.submit(pubCtx, event))
		}
		for i := range batch {
			item := &batch[i]
			if item.err == nil && item.pending != nil {
				item.err = item.pending.Wait(pubCtx)
			}
			if err := r.settle(ctx, tx, *item); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) submit(ctx context.Context, event models.OutboxEvent) inflight {
	resolved, err := r.resolver.Resolve(event)
	if err != nil {
		return inflight{event: event, err: err}
	}
	topic := resolved.Descriptor.Topic
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	pending, err := r.publisher.Publish(ctx, topic, event.Payload, attrs)
	return inflight{event: event, topic: topic, pending: pending, err: err}
}

// settle records the outcome of one row inside the batch transaction.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, item inflight) error {
	event := item.event
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount + 1,
		"topic":         item.topic,
	})

	if item.err == nil {
		if err := r.store.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.Outcome(string(event.EventType), "published")
		r.logg.Info(logCtx, "outbox event published")
		return nil
	}

	reason, terminal := classify(item.err, event.AttemptCount+1, r.maxAttempts)
	if !terminal {
		if err := r.store.MarkFailedTx(tx, event.ID, item.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		r.metrics.Outcome(string(event.EventType), "retry")
		r.logg.Warn(r.logg.WithField(logCtx, "error", item.err.Error()), "outbox publish failed; will retry")
		return nil
	}

	if err := r.store.DeadLetterTx(tx, event, reason, item.err); err != nil {
		return fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	r.metrics.Outcome(string(event.EventType), "dead_letter")
	r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
		"error":        item.err.Error(),
		"error_reason": reason,
	}), "outbox event dead-lettered")
	return nil
}

// classify decides whether a failed row goes to the DLQ now.
func classify(err error, attempt, maxAttempts int) (enums.OutboxDLQErrorReason, bool) {
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return enums.OutboxDLQErrorReasonNonRetryable, true
	}
	if attempt >= maxAttempts {
		return enums.OutboxDLQErrorReasonMaxAttempts, true
	}
	return "", false
}
