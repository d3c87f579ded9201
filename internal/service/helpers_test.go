package service

import (
	"github.com/counterpos/counterpos/internal/api/dto"
	"github.com/counterpos/counterpos/internal/testutil"
)

func newTestServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return ServiceParams{
		Logger:       s.GetLogger(),
		Config:       s.GetConfig(),
		DB:           s.GetDB(),
		Metrics:      s.GetMetrics(),
		RBAC:         s.GetRBAC(),
		TenantRepo:   stores.TenantRepo,
		SequenceRepo: stores.SequenceRepo,
		OrderRepo:    stores.OrderRepo,
		PaymentRepo:  stores.PaymentRepo,
		Providers:    s.GetProviders(),
		Notifier:     s.GetNotifier(),
	}
}

func singleItemOrder(unitPrice, quantity int64) dto.CreateOrderRequest {
	return dto.CreateOrderRequest{
		Currency: "usd",
		LineItems: []dto.LineItemRequest{
			{Name: "Flat white", UnitPrice: unitPrice, Quantity: quantity},
		},
	}
}
