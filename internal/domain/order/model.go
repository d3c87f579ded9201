package order

import (
	"fmt"
	"math"
	"time"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
)

// Order is a customer order inside one tenant. Amounts are integer minor units.
type Order struct {
	// Unique identifier of the order
	ID string `db:"id" json:"id"`
	// OrderNumber is drawn from the tenant's daily sequence and never changes
	OrderNumber int64 `db:"order_number" json:"order_number"`
	// PeriodKey is the business day the order number belongs to
	PeriodKey string `db:"period_key" json:"period_key"`
	// InvoiceNumber is drawn from the yearly invoice sequence on demand
	InvoiceNumber *string           `db:"invoice_number" json:"invoice_number,omitempty"`
	OrderStatus   types.OrderStatus `db:"order_status" json:"order_status"`
	Currency      string            `db:"currency" json:"currency"`
	// Subtotal is the sum of line totals
	Subtotal int64 `db:"subtotal" json:"subtotal"`
	Discount int64 `db:"discount" json:"discount"`
	// Total is max(0, Subtotal - Discount)
	Total         int64       `db:"total" json:"total"`
	CustomerName  string      `db:"customer_name" json:"customer_name,omitempty"`
	CustomerPhone string      `db:"customer_phone" json:"customer_phone,omitempty"`
	Notes         string      `db:"notes" json:"notes,omitempty"`
	CompletedAt   *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	LineItems     []*LineItem `db:"-" json:"line_items"`

	types.BaseModel
}

// LineItem is one product row of an order
type LineItem struct {
	ID        string `db:"id" json:"id"`
	OrderID   string `db:"order_id" json:"order_id"`
	ProductID string `db:"product_id" json:"product_id,omitempty"`
	Name      string `db:"name" json:"name"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
	Quantity  int64  `db:"quantity" json:"quantity"`
	// ModifiersTotal is the summed price of selected modifiers for the whole line
	ModifiersTotal int64 `db:"modifiers_total" json:"modifiers_total"`
	LineTotal      int64 `db:"line_total" json:"line_total"`

	types.BaseModel
}

// DisplayNumber renders the order number as printed on tickets, e.g. #007
func (o *Order) DisplayNumber() string {
	return fmt.Sprintf("#%03d", o.OrderNumber)
}

// ComputeLineTotal maintains LineTotal = UnitPrice * Quantity + ModifiersTotal
func (li *LineItem) ComputeLineTotal() error {
	total, err := li.lineTotal()
	if err != nil {
		return err
	}
	li.LineTotal = total
	return nil
}

func (li *LineItem) lineTotal() (int64, error) {
	gross, ok := mulAmount(li.UnitPrice, li.Quantity)
	if ok {
		gross, ok = addAmount(gross, li.ModifiersTotal)
	}
	if !ok {
		return 0, ierr.NewError("line item total overflows").
			WithHintf("Line total for %s is too large", li.Name).
			WithReportableDetails(map[string]any{
				"unit_price": li.UnitPrice,
				"quantity":   li.Quantity,
			}).
			Mark(ierr.ErrValidation)
	}
	return gross, nil
}

func (li *LineItem) Validate() error {
	if li.Name == "" {
		return ierr.NewError("line item name is required").
			WithHint("Every line item needs a name").
			Mark(ierr.ErrValidation)
	}
	if li.Quantity <= 0 {
		return ierr.NewError("line item quantity must be positive").
			WithHintf("Quantity for %s must be at least 1", li.Name).
			Mark(ierr.ErrValidation)
	}
	if li.UnitPrice < 0 {
		return ierr.NewError("line item unit price must not be negative").
			WithHintf("Unit price for %s must not be negative", li.Name).
			Mark(ierr.ErrValidation)
	}
	total, err := li.lineTotal()
	if err != nil {
		return err
	}
	if total < 0 {
		return ierr.NewError("line item total must not be negative").
			WithHintf("Modifiers for %s exceed the line price", li.Name).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// RecomputeTotals derives Subtotal and Total from the line items and discount.
// It is idempotent and never produces a negative total.
func (o *Order) RecomputeTotals() error {
	var subtotal int64
	for _, li := range o.LineItems {
		var ok bool
		if subtotal, ok = addAmount(subtotal, li.LineTotal); !ok {
			return ierr.NewError("order subtotal overflows").
				WithHint("Order total is too large").
				WithReportableDetails(map[string]any{
					"order_id": o.ID,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	o.Subtotal = subtotal
	o.Total = max(0, o.Subtotal-o.Discount)
	return nil
}

// SetLineItems replaces the line items, recomputing each line and the totals
func (o *Order) SetLineItems(items []*LineItem) error {
	for _, li := range items {
		li.OrderID = o.ID
		if err := li.ComputeLineTotal(); err != nil {
			return err
		}
	}
	o.LineItems = items
	return o.RecomputeTotals()
}

func mulAmount(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return c, true
}

func addAmount(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}

// ApplyDiscount sets the discount and recomputes the totals
func (o *Order) ApplyDiscount(discount int64) error {
	if discount < 0 {
		return ierr.NewError("discount must not be negative").
			WithHint("Discount must not be negative").
			Mark(ierr.ErrValidation)
	}
	if !o.OrderStatus.IsEditable() {
		return ierr.NewErrorf("order %s is %s", o.ID, o.OrderStatus).
			WithHintf("Discounts cannot be changed on a %s order", o.OrderStatus).
			Mark(ierr.ErrInvalidOperation)
	}
	o.Discount = discount
	return o.RecomputeTotals()
}

// TransitionTo moves the order to next, stamping CompletedAt on completion
func (o *Order) TransitionTo(next types.OrderStatus, now time.Time) error {
	if err := next.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Unknown order status").
			Mark(ierr.ErrValidation)
	}
	if !o.OrderStatus.CanTransitionTo(next) {
		return ierr.NewErrorf("cannot move order from %s to %s", o.OrderStatus, next).
			WithHintf("Order cannot move from %s to %s", o.OrderStatus, next).
			WithReportableDetails(map[string]any{
				"from": o.OrderStatus,
				"to":   next,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	o.OrderStatus = next
	if next == types.OrderStatusCompleted {
		o.CompletedAt = lo.ToPtr(now.UTC())
	}
	return nil
}

func (o *Order) Validate() error {
	if o.Currency == "" || len(o.Currency) != 3 {
		return ierr.NewError("invalid currency").
			WithHint("Currency must be a three letter ISO code").
			Mark(ierr.ErrValidation)
	}
	if o.Discount < 0 {
		return ierr.NewError("discount must not be negative").
			WithHint("Discount must not be negative").
			Mark(ierr.ErrValidation)
	}
	for _, li := range o.LineItems {
		if err := li.Validate(); err != nil {
			return err
		}
	}
	return nil
}
