package enums

import "slices"

// WithdrawStatus tracks a shop withdrawal request.
type WithdrawStatus string

const (
	WithdrawStatusPending   WithdrawStatus = "pending"
	WithdrawStatusApproved  WithdrawStatus = "approved"
	WithdrawStatusRejected  WithdrawStatus = "rejected"
	WithdrawStatusProcessed WithdrawStatus = "processed"
)

var validWithdrawStatuses = []WithdrawStatus{
	WithdrawStatusPending,
	WithdrawStatusApproved,
	WithdrawStatusRejected,
	WithdrawStatusProcessed,
}

// String implements fmt.Stringer.
func (w WithdrawStatus) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WithdrawStatus.
func (w WithdrawStatus) IsValid() bool {
	return slices.Contains(validWithdrawStatuses, w)
}

// ParseWithdrawStatus converts raw input into a WithdrawStatus.
func ParseWithdrawStatus(value string) (WithdrawStatus, error) {
	return parseEnum(validWithdrawStatuses, value, "withdraw status")
}
