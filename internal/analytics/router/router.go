package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore-backend/internal/analytics/types"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by the router.
type Writer interface {
	InsertPipeline(ctx context.Context, row types.PipelineEventRow) error
}

// Router flattens decoded domain events into pipeline_events rows.
type Router struct {
	writer Writer
	logg   *logger.Logger
}

func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{writer: writer, logg: logg}, nil
}

// Handle builds the row for envelope and hands it to the writer.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	row, err := BuildRow(envelope)
	if err != nil {
		return err
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})
	if err := r.writer.InsertPipeline(logCtx, row); err != nil {
		r.logg.Error(logCtx, "failed to insert pipeline row", err)
		return err
	}
	return nil
}

// BuildRow maps a typed payload onto the common row shape.
func BuildRow(envelope types.Envelope) (types.PipelineEventRow, error) {
	row := types.PipelineEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		OccurredAt:    envelope.OccurredAt.UTC(),
	}

	var (
		amount string
		err    error
	)
	switch p := envelope.Payload.(type) {
	case *payloads.OrderPlacedEvent:
		row.OrderID = idPtr(p.OrderID)
		row.TrackingNo = strPtr(p.TrackingNo)
		row.UserID = optionalID(p.CustomerID)
		row.ShopIDs = idStrings(p.ShopIDs)
		amount = p.Total
	case *payloads.OrderStatusChangedEvent:
		row.OrderID = idPtr(p.OrderID)
		row.TrackingNo = strPtr(p.TrackingNo)
		row.UserID = optionalID(p.CustomerID)
		row.Status = strPtr(string(p.To))
	case *payloads.OrderCancelledEvent:
		row.OrderID = idPtr(p.OrderID)
		row.TrackingNo = strPtr(p.TrackingNo)
		row.UserID = optionalID(p.CustomerID)
		row.ShopIDs = idStrings(p.ShopIDs)
	case *payloads.PaymentEvent:
		row.OrderID = idPtr(p.OrderID)
		row.Gateway = strPtr(p.Gateway)
		row.Status = strPtr(string(p.Status))
		amount = p.Amount
		if p.RefundedAmount != "" && !isZero(p.RefundedAmount) {
			amount = p.RefundedAmount
		}
	case *payloads.ReturnEvent:
		row.OrderID = idPtr(p.OrderID)
		row.TrackingNo = strPtr(p.TrackingNo)
		row.UserID = idPtr(p.UserID)
		row.ShopIDs = idStrings(p.ShopIDs)
		row.Status = strPtr(string(p.Status))
		amount = p.RefundAmount
	case *payloads.WithdrawalEvent:
		row.ShopIDs = []string{p.ShopID.String()}
		row.Status = strPtr(string(p.Status))
		amount = p.Amount
	case *payloads.StockEvent:
		if p.ShopID != nil {
			row.ShopIDs = []string{p.ShopID.String()}
		}
	case *payloads.WalletEvent:
		row.UserID = idPtr(p.UserID)
		row.Status = strPtr(string(p.Kind))
		amount = p.Amount
	default:
		return types.PipelineEventRow{}, fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}

	if amount != "" {
		if row.AmountCents, err = cents(amount); err != nil {
			return types.PipelineEventRow{}, fmt.Errorf("%s amount: %w", envelope.EventType, err)
		}
	}
	if row.Payload, err = types.JSONColumn(envelope.Payload); err != nil {
		return types.PipelineEventRow{}, err
	}
	return row, nil
}

func cents(amount string) (*int64, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	c := value.Shift(2).Round(0).IntPart()
	return &c, nil
}

func isZero(amount string) bool {
	value, err := decimal.NewFromString(amount)
	return err == nil && value.IsZero()
}

func idPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	s := id.String()
	return &s
}

func optionalID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	return idPtr(*id)
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func strPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
