package enums

import "slices"

// InventoryReason explains why stock moved. Persisted on inventory_logs.
type InventoryReason string

const (
	InventoryReasonOrderPlaced    InventoryReason = "ORDER_PLACED"
	InventoryReasonOrderCancelled InventoryReason = "ORDER_CANCELLED"
	InventoryReasonOrderRefunded  InventoryReason = "ORDER_REFUNDED"
	InventoryReasonOrderReturned  InventoryReason = "ORDER_RETURNED"
	InventoryReasonOrderDeleted   InventoryReason = "ORDER_DELETED"
)

var validInventoryReasons = []InventoryReason{
	InventoryReasonOrderPlaced,
	InventoryReasonOrderCancelled,
	InventoryReasonOrderRefunded,
	InventoryReasonOrderReturned,
	InventoryReasonOrderDeleted,
}

// String implements fmt.Stringer.
func (i InventoryReason) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InventoryReason.
func (i InventoryReason) IsValid() bool {
	return slices.Contains(validInventoryReasons, i)
}

// ParseInventoryReason converts raw input into a InventoryReason.
func ParseInventoryReason(value string) (InventoryReason, error) {
	return parseEnum(validInventoryReasons, value, "inventory reason")
}
