package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_AllPairs(t *testing.T) {
	allowed := map[[2]OrderStatus]bool{
		{"", OrderStatusPending}:                     true,
		{OrderStatusPending, OrderStatusConfirmed}:   true,
		{OrderStatusPending, OrderStatusCancelled}:   true,
		{OrderStatusConfirmed, OrderStatusPreparing}: true,
		{OrderStatusConfirmed, OrderStatusCancelled}: true,
		{OrderStatusPreparing, OrderStatusReady}:     true,
		{OrderStatusPreparing, OrderStatusCancelled}: true,
		{OrderStatusReady, OrderStatusDelivered}:     true,
		{OrderStatusReady, OrderStatusCancelled}:     true,
	}

	froms := append([]OrderStatus{""}, AllOrderStatuses...)
	for _, from := range froms {
		for _, to := range AllOrderStatuses {
			want := allowed[[2]OrderStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%q -> %q", from, to)
		}
	}
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	assert.False(t, CanTransition("SHIPPED", OrderStatusCancelled))
	assert.False(t, CanTransition(OrderStatusPending, "SHIPPED"))
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatusPending.Terminal())
	assert.False(t, OrderStatusReady.Terminal())
	assert.False(t, OrderStatus("").Terminal())
	assert.False(t, OrderStatus("SHIPPED").Terminal())
}

func TestParseOrderStatus(t *testing.T) {
	st, ok := ParseOrderStatus("READY")
	assert.True(t, ok)
	assert.Equal(t, OrderStatusReady, st)

	_, ok = ParseOrderStatus("")
	assert.False(t, ok)
	_, ok = ParseOrderStatus("ready")
	assert.False(t, ok)
}
