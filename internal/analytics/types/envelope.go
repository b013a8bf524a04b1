package types

import (
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// Envelope is a decoded domain event as the analytics pipeline sees it.
// Payload holds the typed struct from pkg/outbox/payloads.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Payload       any
}
