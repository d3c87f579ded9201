package repository

import (
	"github.com/counterpos/counterpos/internal/cache"
	"github.com/counterpos/counterpos/internal/domain/order"
	"github.com/counterpos/counterpos/internal/domain/payment"
	"github.com/counterpos/counterpos/internal/domain/sequence"
	"github.com/counterpos/counterpos/internal/domain/tenant"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/postgres"
	postgresRepo "github.com/counterpos/counterpos/internal/repository/postgres"
)

func NewTenantRepository(client postgres.IClient, logger *logger.Logger, cache cache.Cache) tenant.Repository {
	return postgresRepo.NewTenantRepository(client, logger, cache)
}

func NewSequenceRepository(client postgres.IClient, logger *logger.Logger) sequence.Repository {
	return postgresRepo.NewSequenceRepository(client, logger)
}

func NewOrderRepository(client postgres.IClient, logger *logger.Logger) order.Repository {
	return postgresRepo.NewOrderRepository(client, logger)
}

func NewPaymentRepository(client postgres.IClient, logger *logger.Logger) payment.Repository {
	return postgresRepo.NewPaymentRepository(client, logger)
}
