package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

func TestCanTransitionOrder(t *testing.T) {
	cases := []struct {
		from, to enums.OrderStatus
		want     bool
	}{
		{enums.OrderStatusPending, enums.OrderStatusProcessing, true},
		{enums.OrderStatusPending, enums.OrderStatusOutForDelivery, true},
		{enums.OrderStatusPacked, enums.OrderStatusProcessing, false},
		{enums.OrderStatusOutForDelivery, enums.OrderStatusCompleted, true},
		{enums.OrderStatusPending, enums.OrderStatusPending, false},
		{enums.OrderStatusAtLocalFacility, enums.OrderStatusCancelled, true},
		{enums.OrderStatusProcessing, enums.OrderStatusFailed, true},
		{enums.OrderStatusPending, enums.OrderStatusRefunded, true},
		{enums.OrderStatusCompleted, enums.OrderStatusRefunded, true},
		{enums.OrderStatusCompleted, enums.OrderStatusCancelled, false},
		{enums.OrderStatusCompleted, enums.OrderStatusPending, false},
		{enums.OrderStatusCancelled, enums.OrderStatusProcessing, false},
		{enums.OrderStatusRefunded, enums.OrderStatusCompleted, false},
		{enums.OrderStatusFailed, enums.OrderStatusCancelled, false},
		{enums.OrderStatusPending, enums.OrderStatus("shipped"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransitionOrder(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCanTransitionPayment(t *testing.T) {
	cases := []struct {
		from, to enums.PaymentStatus
		want     bool
	}{
		{enums.PaymentStatusPending, enums.PaymentStatusProcessing, true},
		{enums.PaymentStatusPending, enums.PaymentStatusSuccess, true},
		{enums.PaymentStatusProcessing, enums.PaymentStatusReversal, true},
		{enums.PaymentStatusSuccess, enums.PaymentStatusReversal, true},
		{enums.PaymentStatusSuccess, enums.PaymentStatusPending, false},
		{enums.PaymentStatusFailed, enums.PaymentStatusSuccess, false},
		{enums.PaymentStatusCashOnDelivery, enums.PaymentStatusSuccess, true},
		{enums.PaymentStatusCashOnDelivery, enums.PaymentStatusFailed, false},
		{enums.PaymentStatusReversal, enums.PaymentStatusSuccess, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransitionPayment(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
