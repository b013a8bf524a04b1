package enums

import "slices"

// ReturnStatus is the review state of a return request.
type ReturnStatus string

const (
	ReturnStatusPending  ReturnStatus = "pending"
	ReturnStatusApproved ReturnStatus = "approved"
	ReturnStatusRejected ReturnStatus = "rejected"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusPending,
	ReturnStatusApproved,
	ReturnStatusRejected,
}

// String implements fmt.Stringer.
func (r ReturnStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnStatus.
func (r ReturnStatus) IsValid() bool {
	return slices.Contains(validReturnStatuses, r)
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	return parseEnum(validReturnStatuses, value, "return status")
}

// IsActive reports whether the request still blocks new returns for its lines.
func (r ReturnStatus) IsActive() bool {
	return r == ReturnStatusPending || r == ReturnStatusApproved
}
