package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/counterpos/counterpos/internal/api"
	v1 "github.com/counterpos/counterpos/internal/api/v1"
	"github.com/counterpos/counterpos/internal/cache"
	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/integration"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/metrics"
	"github.com/counterpos/counterpos/internal/notifier"
	"github.com/counterpos/counterpos/internal/postgres"
	"github.com/counterpos/counterpos/internal/pubsub"
	"github.com/counterpos/counterpos/internal/pubsub/kafka"
	"github.com/counterpos/counterpos/internal/pubsub/memory"
	pubsubRouter "github.com/counterpos/counterpos/internal/pubsub/router"
	"github.com/counterpos/counterpos/internal/rbac"
	"github.com/counterpos/counterpos/internal/repository"
	"github.com/counterpos/counterpos/internal/rest/middleware"
	"github.com/counterpos/counterpos/internal/sentry"
	"github.com/counterpos/counterpos/internal/service"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/counterpos/counterpos/internal/validator"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		// request validation reads the package level validator
		fx.Invoke(validator.NewValidator),

		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Monitoring
			sentry.NewSentryService,
			metrics.New,

			// Cache
			cache.NewInMemoryCache,

			// Postgres
			postgres.NewDB,
			postgres.NewClient,

			// Repositories
			repository.NewTenantRepository,
			repository.NewSequenceRepository,
			repository.NewOrderRepository,
			repository.NewPaymentRepository,

			// Authorization
			rbac.NewRBACService,
			middleware.NewAuthMiddleware,

			// Payment providers
			integration.NewFactory,

			// PubSub
			providePubSub,
			provideNotifier,
			pubsubRouter.NewRouter,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewOrderService,
			service.NewPaymentService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			closeOnStop,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func providePubSub(cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	if cfg.Notifier.PubSub == types.KafkaPubSub {
		return kafka.NewPubSub(cfg, log)
	}
	return memory.NewPubSub(log), nil
}

func provideNotifier(cfg *config.Configuration, ps pubsub.PubSub, log *logger.Logger) notifier.Notifier {
	if !cfg.Notifier.Enabled {
		return notifier.NewNoop()
	}
	return notifier.New(ps, cfg.Notifier.TopicPrefix, log)
}

func provideHandlers(
	db *postgres.DB,
	logger *logger.Logger,
	orderService service.OrderService,
	paymentService service.PaymentService,
) api.Handlers {
	return api.Handlers{
		Health:  v1.NewHealthHandler(db, logger),
		Order:   v1.NewOrderHandler(orderService, logger),
		Payment: v1.NewPaymentHandler(paymentService, logger),
		Webhook: v1.NewWebhookHandler(paymentService, logger),
	}
}

// closeOnStop drains in-flight event publishes before the pubsub and the
// database go away
func closeOnStop(lc fx.Lifecycle, n notifier.Notifier, ps pubsub.PubSub, db *postgres.DB, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := n.Close(); err != nil {
				log.Errorw("failed to close notifier", "error", err)
			}
			if err := ps.Close(); err != nil {
				log.Errorw("failed to close pubsub", "error", err)
			}
			db.Close()
			return nil
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	router *pubsubRouter.Router,
	ps pubsub.PubSub,
	paymentService service.PaymentService,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startMessageRouter(lc, router, ps, cfg, log)
		startExpirySweep(lc, paymentService, cfg, log)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
	case types.ModeConsumer:
		startMessageRouter(lc, router, ps, cfg, log)
		startExpirySweep(lc, paymentService, cfg, log)
	case types.ModeAWSLambdaAPI:
		startAWSLambdaAPI(r)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting API server", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return srv.Shutdown(ctx)
		},
	})
}

// startMessageRouter delivers domain events to the inventory and
// notification subscribers
func startMessageRouter(
	lc fx.Lifecycle,
	router *pubsubRouter.Router,
	ps pubsub.PubSub,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	if !cfg.Notifier.Enabled {
		log.Info("Notifier disabled, event subscribers not started")
		return
	}

	dispatcher := notifier.NewDispatcher(ps, cfg.Notifier.TopicPrefix, log,
		notifier.NewInventorySink(log),
		notifier.NewNotificationSink(log),
	)
	dispatcher.RegisterHandlers(router)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting message router")
			go func() {
				if err := router.Run(context.Background()); err != nil {
					log.Errorw("message router stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping message router")
			return router.Close()
		},
	})
}

// startExpirySweep periodically expires payments nobody settled
func startExpirySweep(
	lc fx.Lifecycle,
	paymentService service.PaymentService,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	interval := cfg.Payment.ExpirySweepInterval
	if interval <= 0 || cfg.Payment.ExpiryTTL <= 0 {
		log.Info("Payment expiry sweep disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if _, err := paymentService.ExpireStalePayments(ctx, cfg.Payment.ExpiryTTL); err != nil {
							log.Errorw("payment expiry sweep failed", "error", err)
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func startAWSLambdaAPI(r *gin.Engine) {
	ginLambda := ginadapter.New(r)
	lambda.Start(ginLambda.ProxyWithContext)
}
