package api

import (
	v1 "github.com/counterpos/counterpos/internal/api/v1"
	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/metrics"
	"github.com/counterpos/counterpos/internal/rest/middleware"
	"github.com/counterpos/counterpos/internal/sentry"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health  *v1.HealthHandler
	Order   *v1.OrderHandler
	Payment *v1.PaymentHandler
	Webhook *v1.WebhookHandler
}

func NewRouter(
	handlers Handlers,
	cfg *config.Configuration,
	logger *logger.Logger,
	sentrySvc *sentry.Service,
	authMiddleware *middleware.AuthMiddleware,
	m *metrics.Metrics,
) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.SentryMiddleware(cfg)...)
	router.Use(middleware.ErrorHandler(logger, sentrySvc))

	router.GET("/health", handlers.Health.Health)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	public := router.Group("/v1")
	{
		// provider callbacks authenticate through their signatures
		webhooks := public.Group("/webhooks")
		webhooks.POST("/payments/:provider", handlers.Webhook.HandlePaymentWebhook)
	}

	private := router.Group("/v1", authMiddleware.Authenticate())

	orders := private.Group("/orders")
	{
		orders.POST("", handlers.Order.CreateOrder)
		orders.GET("", handlers.Order.ListOrders)
		orders.GET("/:id", handlers.Order.GetOrder)
		orders.PUT("/:id/items", handlers.Order.ReplaceLineItems)
		orders.POST("/:id/discount", handlers.Order.ApplyDiscount)
		orders.POST("/:id/status", handlers.Order.UpdateStatus)
		orders.POST("/:id/invoice-number", handlers.Order.AssignInvoiceNumber)
	}

	payments := private.Group("/payments")
	{
		payments.POST("", handlers.Payment.InitiatePayment)
		payments.GET("", handlers.Payment.ListPayments)
		payments.GET("/:id", handlers.Payment.GetPayment)
		payments.POST("/:id/processing", handlers.Payment.StartProcessing)
		payments.POST("/:id/check-status", handlers.Payment.CheckStatus)
		payments.POST("/:id/refund", handlers.Payment.RefundPayment)
	}

	return router
}
