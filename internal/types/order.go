package types

import (
	"fmt"

	"github.com/samber/lo"
)

// OrderStatus is the lifecycle status of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusPaid, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusCompleted},
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Validate() error {
	allowed := []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusPaid,
		OrderStatusCompleted,
		OrderStatusCancelled,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid order status: %s", s)
	}
	return nil
}

// CanTransitionTo reports whether the order may move from s to next
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return lo.Contains(orderStatusTransitions[s], next)
}

// IsEditable reports whether line items and discounts may still change
func (s OrderStatus) IsEditable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// IsFinal reports whether no further transition is possible
func (s OrderStatus) IsFinal() bool {
	return len(orderStatusTransitions[s]) == 0
}

// OrderFilter filters order listings
type OrderFilter struct {
	*QueryFilter
	OrderStatus []OrderStatus `json:"order_status,omitempty" form:"order_status"`
	PeriodKey   string        `json:"period_key,omitempty" form:"period_key"`
}

func NewOrderFilter() *OrderFilter {
	return &OrderFilter{QueryFilter: NewDefaultQueryFilter()}
}

func (f *OrderFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	for _, s := range f.OrderStatus {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
