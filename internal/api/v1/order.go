package v1

import (
	"net/http"

	"github.com/counterpos/counterpos/internal/api/dto"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/service"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	service service.OrderService
	log     *logger.Logger
}

func NewOrderHandler(service service.OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{service: service, log: log}
}

// @Summary Create an order
// @Description Opens an order and assigns the next daily order number
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param order body dto.CreateOrderRequest true "Order"
// @Success 201 {object} dto.OrderResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateOrder(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get an order
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} dto.OrderResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	resp, err := h.service.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List orders
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param filter query types.OrderFilter false "Filter"
// @Success 200 {object} dto.ListOrdersResponse
// @Router /orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	var filter types.OrderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListOrders(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Replace order items
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param items body dto.ReplaceLineItemsRequest true "Line items"
// @Success 200 {object} dto.OrderResponse
// @Router /orders/{id}/items [put]
func (h *OrderHandler) ReplaceLineItems(c *gin.Context) {
	var req dto.ReplaceLineItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ReplaceLineItems(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Apply an order discount
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param discount body dto.ApplyDiscountRequest true "Discount"
// @Success 200 {object} dto.OrderResponse
// @Router /orders/{id}/discount [post]
func (h *OrderHandler) ApplyDiscount(c *gin.Context) {
	var req dto.ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ApplyDiscount(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Change order status
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param status body dto.UpdateOrderStatusRequest true "Status"
// @Success 200 {object} dto.OrderResponse
// @Failure 403 {object} ierr.ErrorResponse
// @Router /orders/{id}/status [post]
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.OrderStatus)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Assign an invoice number
// @Description Draws the next yearly invoice number; repeated calls return the same number
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} dto.InvoiceNumberResponse
// @Router /orders/{id}/invoice-number [post]
func (h *OrderHandler) AssignInvoiceNumber(c *gin.Context) {
	resp, err := h.service.AssignInvoiceNumber(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
