package service

import (
	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/domain/order"
	"github.com/counterpos/counterpos/internal/domain/payment"
	"github.com/counterpos/counterpos/internal/domain/sequence"
	"github.com/counterpos/counterpos/internal/domain/tenant"
	"github.com/counterpos/counterpos/internal/integration"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/metrics"
	"github.com/counterpos/counterpos/internal/notifier"
	"github.com/counterpos/counterpos/internal/postgres"
	"github.com/counterpos/counterpos/internal/rbac"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger  *logger.Logger
	Config  *config.Configuration
	DB      postgres.IClient
	Metrics *metrics.Metrics
	RBAC    *rbac.RBACService

	// Repositories
	TenantRepo   tenant.Repository
	SequenceRepo sequence.Repository
	OrderRepo    order.Repository
	PaymentRepo  payment.Repository

	// Payment providers
	Providers *integration.Factory

	// Events
	Notifier notifier.Notifier
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	metrics *metrics.Metrics,
	rbacService *rbac.RBACService,
	tenantRepo tenant.Repository,
	sequenceRepo sequence.Repository,
	orderRepo order.Repository,
	paymentRepo payment.Repository,
	providers *integration.Factory,
	notifier notifier.Notifier,
) ServiceParams {
	return ServiceParams{
		Logger:       logger,
		Config:       config,
		DB:           db,
		Metrics:      metrics,
		RBAC:         rbacService,
		TenantRepo:   tenantRepo,
		SequenceRepo: sequenceRepo,
		OrderRepo:    orderRepo,
		PaymentRepo:  paymentRepo,
		Providers:    providers,
		Notifier:     notifier,
	}
}
