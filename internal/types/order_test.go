package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusConfirmed, OrderStatusPaid, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusPending, false},
		{OrderStatusPaid, OrderStatusCompleted, true},
		{OrderStatusPaid, OrderStatusCancelled, false},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatus_Editable(t *testing.T) {
	assert.True(t, OrderStatusPending.IsEditable())
	assert.True(t, OrderStatusConfirmed.IsEditable())
	assert.False(t, OrderStatusPaid.IsEditable())
	assert.False(t, OrderStatusCancelled.IsEditable())

	assert.True(t, OrderStatusCompleted.IsFinal())
	assert.True(t, OrderStatusCancelled.IsFinal())
	assert.False(t, OrderStatusPaid.IsFinal())
}

func TestOrderFilter_Validate(t *testing.T) {
	f := NewOrderFilter()
	assert.NoError(t, f.Validate())

	f.OrderStatus = []OrderStatus{OrderStatusPaid, "SHIPPED"}
	assert.Error(t, f.Validate())

	limit := 0
	f = NewOrderFilter()
	f.Limit = &limit
	assert.Error(t, f.Validate())

	var nilFilter *OrderFilter
	assert.NoError(t, nilFilter.Validate())
}
