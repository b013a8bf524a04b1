package enums

import "slices"

// OutboxAggregateType identifies the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder              OutboxAggregateType = "order"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
	AggregateReturnRequest      OutboxAggregateType = "return_request"
	AggregateWithdrawRequest    OutboxAggregateType = "withdraw_request"
	AggregateProduct            OutboxAggregateType = "product"
	AggregateNotification       OutboxAggregateType = "notification"
	AggregateWalletTransaction  OutboxAggregateType = "wallet_transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePaymentTransaction,
	AggregateReturnRequest,
	AggregateWithdrawRequest,
	AggregateProduct,
	AggregateNotification,
	AggregateWalletTransaction,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseEnum(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType names a pipeline transition relayed through the outbox.
type OutboxEventType string

const (
	EventOrderPlaced          OutboxEventType = "order_placed"
	EventOrderStatusChanged   OutboxEventType = "order_status_changed"
	EventOrderCancelled       OutboxEventType = "order_cancelled"
	EventPaymentCompleted     OutboxEventType = "payment_completed"
	EventPaymentFailed        OutboxEventType = "payment_failed"
	EventPaymentRefunded      OutboxEventType = "payment_refunded"
	EventReturnRequested      OutboxEventType = "return_requested"
	EventReturnApproved       OutboxEventType = "return_approved"
	EventReturnRejected       OutboxEventType = "return_rejected"
	EventWithdrawalRequested  OutboxEventType = "withdrawal_requested"
	EventWithdrawalApproved   OutboxEventType = "withdrawal_approved"
	EventWithdrawalProcessed  OutboxEventType = "withdrawal_processed"
	EventWithdrawalRejected   OutboxEventType = "withdrawal_rejected"
	EventLowStock             OutboxEventType = "low_stock"
	EventOutOfStock           OutboxEventType = "out_of_stock"
	EventBackInStock          OutboxEventType = "back_in_stock"
	EventWalletCredited       OutboxEventType = "wallet_credited"
	EventWalletTransferToBank OutboxEventType = "wallet_transfer_to_bank"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPlaced,
	EventOrderStatusChanged,
	EventOrderCancelled,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventPaymentRefunded,
	EventReturnRequested,
	EventReturnApproved,
	EventReturnRejected,
	EventWithdrawalRequested,
	EventWithdrawalApproved,
	EventWithdrawalProcessed,
	EventWithdrawalRejected,
	EventLowStock,
	EventOutOfStock,
	EventBackInStock,
	EventWalletCredited,
	EventWalletTransferToBank,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseEnum(validOutboxEventTypes, value, "event type")
}

// OutboxDLQErrorReason classifies terminal publish failures.
type OutboxDLQErrorReason string

const (
	OutboxDLQErrorReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQErrorReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

// IsValid reports whether the reason is recognised.
func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQErrorReasonMaxAttempts || r == OutboxDLQErrorReasonNonRetryable
}
