package router

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/sentry"
)

// Router runs the event subscribers
type Router struct {
	router *message.Router
	logger *logger.Logger
	sentry *sentry.Service
}

// NewRouter creates a new message router
func NewRouter(cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) (*Router, error) {
	router, err := message.NewRouter(
		message.RouterConfig{CloseTimeout: 10 * time.Second},
		logger.Watermill(),
	)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:          cfg.Notifier.MaxRetries,
			InitialInterval:     cfg.Notifier.InitialInterval,
			MaxInterval:         cfg.Notifier.MaxInterval,
			Multiplier:          cfg.Notifier.Multiplier,
			MaxElapsedTime:      cfg.Notifier.MaxElapsedTime,
			RandomizationFactor: 0.5,
			Logger:              logger.Watermill(),
			OnRetryHook: func(retryNum int, delay time.Duration) {
				logger.Infow("retrying message",
					"retry_number", retryNum,
					"max_retries", cfg.Notifier.MaxRetries,
					"delay", delay,
				)
			},
		}.Middleware,
	)

	return &Router{
		router: router,
		logger: logger,
		sentry: sentry,
	}, nil
}

// AddNoPublishHandler adds a handler that doesn't publish messages.
// Errors that retrying cannot fix are logged and the message is acked.
func (r *Router) AddNoPublishHandler(
	handlerName string,
	topicName string,
	subscriber message.Subscriber,
	handlerFunc func(msg *message.Message) error,
	middlewares ...message.HandlerMiddleware,
) {
	handler := r.router.AddNoPublisherHandler(
		handlerName,
		topicName,
		subscriber,
		func(msg *message.Message) error {
			err := handlerFunc(msg)
			if err == nil {
				return nil
			}
			r.sentry.CaptureException(msg.Context(), err)
			r.logger.Errorw("handler failed",
				"handler", handlerName,
				"error", err,
				"correlation_id", middleware.MessageCorrelationID(msg),
				"message_uuid", msg.UUID,
			)
			if !shouldRetry(r.logger, topicName, err) {
				return nil
			}
			return err
		},
	)

	for _, m := range middlewares {
		handler.AddMiddleware(m)
	}
}

// Run starts the router and blocks until ctx is done or Close is called
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("starting event router")
	return r.router.Run(ctx)
}

// Running is closed once all handlers are subscribed
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close gracefully shuts down the router
func (r *Router) Close() error {
	r.logger.Info("closing event router")
	return r.router.Close()
}
