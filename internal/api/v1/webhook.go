package v1

import (
	"io"
	"net/http"

	"github.com/counterpos/counterpos/internal/api/dto"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/service"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps provider callback payloads
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	payments service.PaymentService
	log      *logger.Logger
}

func NewWebhookHandler(payments service.PaymentService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{payments: payments, log: log}
}

// @Summary Receive a payment provider callback
// @Description Verifies the provider signature and applies the reported payment status. Duplicate deliveries are acknowledged without changes.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param provider path string true "Provider code"
// @Success 200 {object} dto.WebhookResponse
// @Failure 401 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 413 {object} ierr.ErrorResponse
// @Router /webhooks/payments/{provider} [post]
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	provider := c.Param("provider")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if ierr.As(err, &tooLarge) {
			c.Error(ierr.WithError(err).
				WithHintf("Webhook body must not exceed %d bytes", maxWebhookBody).
				Mark(ierr.ErrPayloadTooLarge))
			return
		}
		c.Error(ierr.WithError(err).
			WithHint("Failed to read webhook body").
			Mark(ierr.ErrValidation))
		return
	}

	result, err := h.payments.ReconcileWebhook(c.Request.Context(), provider, c.Request.Header, body)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.WebhookResponse{
		PaymentID:     result.Payment.ID,
		PaymentStatus: result.Payment.PaymentStatus,
		Outcome:       result.Outcome,
	})
}
