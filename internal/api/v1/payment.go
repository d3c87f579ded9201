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

type PaymentHandler struct {
	service service.PaymentService
	log     *logger.Logger
}

func NewPaymentHandler(service service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, log: log}
}

// @Summary Initiate a payment
// @Description Starts a payment through a provider. Repeating the idempotency key returns the same payment.
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payment body dto.InitiatePaymentRequest true "Payment"
// @Success 201 {object} dto.PaymentResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Failure 502 {object} ierr.ErrorResponse
// @Router /payments [post]
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req dto.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.InitiatePayment(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a payment
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} dto.PaymentResponse
// @Router /payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	resp, err := h.service.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List payments
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param filter query types.PaymentFilter false "Filter"
// @Success 200 {object} dto.ListPaymentsResponse
// @Router /payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var filter types.PaymentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListPayments(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Mark a payment as processing
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} dto.PaymentResponse
// @Router /payments/{id}/processing [post]
func (h *PaymentHandler) StartProcessing(c *gin.Context) {
	resp, err := h.service.StartProcessing(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Poll the provider for a payment
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} dto.PaymentResponse
// @Router /payments/{id}/check-status [post]
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	resp, err := h.service.CheckStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Refund a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Param refund body dto.RefundPaymentRequest true "Refund"
// @Success 200 {object} dto.PaymentResponse
// @Failure 403 {object} ierr.ErrorResponse
// @Router /payments/{id}/refund [post]
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req dto.RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.RefundPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
