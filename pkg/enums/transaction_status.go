package enums

import "slices"

// TransactionStatus is the lifecycle of a payment transaction.
type TransactionStatus string

const (
	TransactionStatusInitiated         TransactionStatus = "initiated"
	TransactionStatusPending           TransactionStatus = "pending"
	TransactionStatusCompleted         TransactionStatus = "completed"
	TransactionStatusFailed            TransactionStatus = "failed"
	TransactionStatusExpired           TransactionStatus = "expired"
	TransactionStatusCancelled         TransactionStatus = "cancelled"
	TransactionStatusPartiallyRefunded TransactionStatus = "partially_refunded"
	TransactionStatusRefunded          TransactionStatus = "refunded"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusInitiated,
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusFailed,
	TransactionStatusExpired,
	TransactionStatusCancelled,
	TransactionStatusPartiallyRefunded,
	TransactionStatusRefunded,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	return slices.Contains(validTransactionStatuses, t)
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	return parseEnum(validTransactionStatuses, value, "transaction status")
}
