package orders

import "github.com/angelmondragon/marketcore-backend/pkg/enums"

var fulfilmentRank = map[enums.OrderStatus]int{
	enums.OrderStatusPending:              0,
	enums.OrderStatusProcessing:           1,
	enums.OrderStatusPacked:               2,
	enums.OrderStatusAtDistributionCenter: 3,
	enums.OrderStatusAtLocalFacility:      4,
	enums.OrderStatusOutForDelivery:       5,
	enums.OrderStatusCompleted:            6,
}

// CanTransitionOrder reports whether from → to is an edge of the order DAG.
// Fulfilment statuses only move forward, skips allowed. CANCELLED, FAILED and
// REFUNDED are reachable from any non-terminal status; COMPLETED may only
// move on to REFUNDED.
func CanTransitionOrder(from, to enums.OrderStatus) bool {
	if from == to || !to.IsValid() {
		return false
	}
	switch from {
	case enums.OrderStatusCancelled, enums.OrderStatusFailed, enums.OrderStatusRefunded:
		return false
	case enums.OrderStatusCompleted:
		return to == enums.OrderStatusRefunded
	}
	switch to {
	case enums.OrderStatusCancelled, enums.OrderStatusFailed, enums.OrderStatusRefunded:
		return true
	}
	fromRank, ok := fulfilmentRank[from]
	if !ok {
		return false
	}
	return fulfilmentRank[to] > fromRank
}

var paymentEdges = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending:        {enums.PaymentStatusProcessing, enums.PaymentStatusSuccess, enums.PaymentStatusFailed},
	enums.PaymentStatusProcessing:     {enums.PaymentStatusSuccess, enums.PaymentStatusFailed, enums.PaymentStatusReversal},
	enums.PaymentStatusSuccess:        {enums.PaymentStatusReversal},
	enums.PaymentStatusCashOnDelivery: {enums.PaymentStatusSuccess},
}

// CanTransitionPayment reports whether from → to is an edge of the payment DAG.
func CanTransitionPayment(from, to enums.PaymentStatus) bool {
	for _, next := range paymentEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// restocks reports whether entering status returns inventory.
func restocks(status enums.OrderStatus) bool {
	return status == enums.OrderStatusCancelled || status == enums.OrderStatusRefunded
}
