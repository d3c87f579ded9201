package sentry

import (
	"context"
	"time"

	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/getsentry/sentry-go"
	"go.uber.org/fx"
)

type Service struct {
	cfg    *config.Configuration
	logger *logger.Logger
}

// RegisterHooks initialises the SDK on start and flushes it on stop
func RegisterHooks(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !svc.enabled() {
				svc.logger.Info("Sentry is disabled")
				return nil
			}

			err := sentry.Init(sentry.ClientOptions{
				Dsn:              svc.cfg.Sentry.DSN,
				Environment:      svc.cfg.Sentry.Environment,
				EnableTracing:    true,
				TracesSampleRate: svc.cfg.Sentry.SampleRate,
				TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
					if ctx.Span.Name == "GET /health" {
						return 0.0
					}
					return svc.cfg.Sentry.SampleRate
				}),
			})
			if err != nil {
				svc.logger.Errorw("failed to initialize Sentry", "error", err)
				return err
			}
			svc.logger.Infow("Sentry initialized",
				"environment", svc.cfg.Sentry.Environment,
				"sample_rate", svc.cfg.Sentry.SampleRate,
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if svc.enabled() {
				sentry.Flush(2 * time.Second)
			}
			return nil
		},
	})
}

// NewSentryService creates a new Sentry service
func NewSentryService(cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Service) enabled() bool {
	return s != nil && s.cfg.Sentry.Enabled && s.cfg.Sentry.DSN != ""
}

// CaptureException reports err tagged with the tenant and request of ctx
func (s *Service) CaptureException(ctx context.Context, err error) {
	if !s.enabled() || err == nil {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if tenantID := types.GetTenantID(ctx); tenantID != "" {
			scope.SetTag("tenant_id", tenantID)
		}
		if requestID := types.GetRequestID(ctx); requestID != "" {
			scope.SetTag("request_id", requestID)
		}
		hub.CaptureException(err)
	})
}

// AddBreadcrumb adds a breadcrumb to the current scope
func (s *Service) AddBreadcrumb(category, message string, data map[string]interface{}) {
	if !s.enabled() {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Level:    sentry.LevelInfo,
		Data:     data,
	})
}

// StartDBSpan starts a new database span in the current transaction
func (s *Service) StartDBSpan(ctx context.Context, operation string, params map[string]interface{}) (*sentry.Span, context.Context) {
	if !s.enabled() {
		return nil, ctx
	}

	span := sentry.StartSpan(ctx, operation)
	span.Description = operation
	span.Op = "db.postgres"
	for k, v := range params {
		span.SetData(k, v)
	}

	return span, span.Context()
}

// StartProviderSpan starts a span around an outbound payment provider call
func (s *Service) StartProviderSpan(ctx context.Context, provider types.PaymentProvider, operation string) (*sentry.Span, context.Context) {
	if !s.enabled() {
		return nil, ctx
	}

	span := sentry.StartSpan(ctx, "provider."+operation)
	span.Description = string(provider) + " " + operation
	span.Op = "http.client"
	span.SetData("provider", string(provider))

	return span, span.Context()
}
