package enums

import "slices"

// OrderStatus tracks the fulfilment lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending              OrderStatus = "pending"
	OrderStatusProcessing           OrderStatus = "processing"
	OrderStatusPacked               OrderStatus = "packed"
	OrderStatusAtDistributionCenter OrderStatus = "at_distribution_center"
	OrderStatusAtLocalFacility      OrderStatus = "at_local_facility"
	OrderStatusOutForDelivery       OrderStatus = "out_for_delivery"
	OrderStatusCompleted            OrderStatus = "completed"
	OrderStatusCancelled            OrderStatus = "cancelled"
	OrderStatusFailed               OrderStatus = "failed"
	OrderStatusRefunded             OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusPacked,
	OrderStatusAtDistributionCenter,
	OrderStatusAtLocalFacility,
	OrderStatusOutForDelivery,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusFailed,
	OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	return slices.Contains(validOrderStatuses, o)
}

// ParseOrderStatus converts raw input into a OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parseEnum(validOrderStatuses, value, "order status")
}
