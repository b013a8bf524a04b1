package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// PipelineEventRow mirrors the pipeline_events BigQuery schema. One row is
// written per order, payment, return, withdrawal, stock or wallet event.
type PipelineEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	AggregateType string             `bigquery:"aggregate_type"`
	AggregateID   string             `bigquery:"aggregate_id"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	OrderID       *string            `bigquery:"order_id"`
	TrackingNo    *string            `bigquery:"tracking_no"`
	UserID        *string            `bigquery:"user_id"`
	ShopIDs       []string           `bigquery:"shop_ids"`
	Status        *string            `bigquery:"status"`
	Gateway       *string            `bigquery:"gateway"`
	AmountCents   *int64             `bigquery:"amount_cents"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}

// PipelineEventsSchema is the column layout of pipeline_events, used when
// the table is auto-created.
var PipelineEventsSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "aggregate_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "aggregate_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "order_id", Type: cbigquery.StringFieldType},
	{Name: "tracking_no", Type: cbigquery.StringFieldType},
	{Name: "user_id", Type: cbigquery.StringFieldType},
	{Name: "shop_ids", Type: cbigquery.StringFieldType, Repeated: true},
	{Name: "status", Type: cbigquery.StringFieldType},
	{Name: "gateway", Type: cbigquery.StringFieldType},
	{Name: "amount_cents", Type: cbigquery.IntegerFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}
