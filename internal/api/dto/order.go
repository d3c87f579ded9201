package dto

import (
	"context"
	"time"

	"github.com/counterpos/counterpos/internal/domain/order"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/counterpos/counterpos/internal/validator"
	"github.com/samber/lo"
)

// LineItemRequest is one product row of an order request
type LineItemRequest struct {
	ProductID      string `json:"product_id,omitempty"`
	Name           string `json:"name" validate:"required,max=255"`
	UnitPrice      int64  `json:"unit_price" validate:"min=0,max=1000000000000"`
	Quantity       int64  `json:"quantity" validate:"required,min=1,max=1000000"`
	ModifiersTotal int64  `json:"modifiers_total" validate:"min=-1000000000000,max=1000000000000"`
}

// CreateOrderRequest represents the request to open an order
type CreateOrderRequest struct {
	Currency      string            `json:"currency" validate:"required,len=3"`
	LineItems     []LineItemRequest `json:"line_items" validate:"required,min=1,dive"`
	Discount      int64             `json:"discount" validate:"min=0,max=1000000000000000000"`
	CustomerName  string            `json:"customer_name,omitempty" validate:"omitempty,max=255"`
	CustomerPhone string            `json:"customer_phone,omitempty" validate:"omitempty,e164"`
	Notes         string            `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

func (r *CreateOrderRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	currency, err := types.NormalizeCurrency(r.Currency)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Currency must be a three letter ISO code").
			Mark(ierr.ErrValidation)
	}
	r.Currency = currency
	return nil
}

// ToOrder builds the order without a number; numbers are assigned in the
// creating transaction.
func (r *CreateOrderRequest) ToOrder(ctx context.Context) (*order.Order, error) {
	o := &order.Order{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ORDER),
		OrderStatus:   types.OrderStatusPending,
		Currency:      r.Currency,
		Discount:      r.Discount,
		CustomerName:  r.CustomerName,
		CustomerPhone: r.CustomerPhone,
		Notes:         r.Notes,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
	if err := o.SetLineItems(ToLineItems(ctx, r.LineItems)); err != nil {
		return nil, err
	}
	return o, nil
}

// ToLineItems converts request rows into line items with fresh ids
func ToLineItems(ctx context.Context, items []LineItemRequest) []*order.LineItem {
	return lo.Map(items, func(item LineItemRequest, _ int) *order.LineItem {
		return &order.LineItem{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ORDER_LINE_ITEM),
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			ModifiersTotal: item.ModifiersTotal,
			BaseModel:      types.GetDefaultBaseModel(ctx),
		}
	})
}

// ReplaceLineItemsRequest swaps the full set of line items
type ReplaceLineItemsRequest struct {
	LineItems []LineItemRequest `json:"line_items" validate:"required,min=1,dive"`
}

func (r *ReplaceLineItemsRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ApplyDiscountRequest sets the order level discount in minor units
type ApplyDiscountRequest struct {
	Discount int64 `json:"discount" validate:"min=0,max=1000000000000000000"`
}

func (r *ApplyDiscountRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// UpdateOrderStatusRequest moves an order through its lifecycle
type UpdateOrderStatusRequest struct {
	OrderStatus types.OrderStatus `json:"order_status" validate:"required"`
}

func (r *UpdateOrderStatusRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.OrderStatus.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Unknown order status").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type OrderResponse struct {
	*order.Order
	// DisplayNumber is the order number as printed on tickets
	DisplayNumber string `json:"display_number"`
}

func NewOrderResponse(o *order.Order) *OrderResponse {
	return &OrderResponse{
		Order:         o,
		DisplayNumber: o.DisplayNumber(),
	}
}

type ListOrdersResponse = types.ListResponse[*OrderResponse]

// InvoiceNumberResponse is returned by invoice number assignment
type InvoiceNumberResponse struct {
	OrderID       string    `json:"order_id"`
	InvoiceNumber string    `json:"invoice_number"`
	AssignedAt    time.Time `json:"assigned_at"`
}
