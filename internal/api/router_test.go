package api_test

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/counterpos/counterpos/internal/api"
	"github.com/counterpos/counterpos/internal/api/dto"
	v1 "github.com/counterpos/counterpos/internal/api/v1"
	"github.com/counterpos/counterpos/internal/auth"
	"github.com/counterpos/counterpos/internal/cache"
	"github.com/counterpos/counterpos/internal/domain/tenant"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/rest/middleware"
	"github.com/counterpos/counterpos/internal/service"
	"github.com/counterpos/counterpos/internal/testutil"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

const testSecret = "router-secret"

type fakePinger struct {
	err error
}

func (p *fakePinger) PingContext(context.Context) error { return p.err }

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router *gin.Engine
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	gin.SetMode(gin.TestMode)

	cfg := s.GetConfig()
	cfg.Auth.Secret = testSecret
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"

	stores := s.GetStores()
	params := service.ServiceParams{
		Logger:       s.GetLogger(),
		Config:       cfg,
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
	payments := service.NewPaymentService(params)

	s.router = api.NewRouter(
		api.Handlers{
			Health:  v1.NewHealthHandler(&fakePinger{}, s.GetLogger()),
			Order:   v1.NewOrderHandler(service.NewOrderService(params), s.GetLogger()),
			Payment: v1.NewPaymentHandler(payments, s.GetLogger()),
			Webhook: v1.NewWebhookHandler(payments, s.GetLogger()),
		},
		cfg,
		s.GetLogger(),
		nil,
		middleware.NewAuthMiddleware(cfg, stores.TenantRepo, cache.NewInMemoryCache(cfg), s.GetLogger()),
		s.GetMetrics(),
	)

	for userID, role := range map[string]types.Role{
		testutil.TestUserID: types.RoleOwner,
		"user_cashier":      types.RoleCashier,
	} {
		s.Require().NoError(stores.TenantRepo.UpsertMembership(s.GetContext(), &tenant.Membership{
			TenantID: testutil.TestTenantID,
			UserID:   userID,
			Roles:    []string{string(role)},
			Status:   types.StatusPublished,
		}))
	}
}

func (s *RouterSuite) do(method, path, userID string, body any, headers http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		default:
			s.Require().NoError(json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header[k] = v
	}
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, userID, testutil.TestTenantID, time.Hour)
		s.Require().NoError(err)
		req.Header.Set(types.HeaderAuthorization, "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](s *RouterSuite, w *httptest.ResponseRecorder) T {
	var v T
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *RouterSuite) createOrder(userID string) *dto.OrderResponse {
	w := s.do(http.MethodPost, "/v1/orders", userID, dto.CreateOrderRequest{
		Currency: "usd",
		LineItems: []dto.LineItemRequest{
			{Name: "Flat white", UnitPrice: 450, Quantity: 2},
		},
		Discount: 100,
	}, nil)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return decode[*dto.OrderResponse](s, w)
}

func (s *RouterSuite) TestHealthAndMetricsArePublic() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health", "", nil, nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", "", nil, nil).Code)
}

func (s *RouterSuite) TestHealthReportsDatabaseDown() {
	h := v1.NewHealthHandler(&fakePinger{err: errors.New("connection refused")}, s.GetLogger())
	r := gin.New()
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *RouterSuite) TestOrdersRequireToken() {
	w := s.do(http.MethodGet, "/v1/orders", "", nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal(ierr.ErrCodeUnauthenticated, decode[ierr.ErrorResponse](s, w).Error.Code)
}

func (s *RouterSuite) TestCreateAndGetOrder() {
	created := s.createOrder(testutil.TestUserID)
	s.Equal(int64(1), created.OrderNumber)
	s.Equal("USD", created.Currency)
	s.Equal(int64(800), created.Total)
	s.Equal(types.OrderStatusPending, created.OrderStatus)
	s.Equal(testutil.TestTenantID, created.TenantID)

	second := s.createOrder("user_cashier")
	s.Equal(int64(2), second.OrderNumber)

	w := s.do(http.MethodGet, "/v1/orders/"+created.ID, testutil.TestUserID, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(created.ID, decode[*dto.OrderResponse](s, w).ID)

	w = s.do(http.MethodGet, "/v1/orders", testutil.TestUserID, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(decode[dto.ListOrdersResponse](s, w).Items, 2)
}

func (s *RouterSuite) TestInvalidOrderRequest() {
	w := s.do(http.MethodPost, "/v1/orders", testutil.TestUserID, dto.CreateOrderRequest{Currency: "usd"}, nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(ierr.ErrCodeValidation, decode[ierr.ErrorResponse](s, w).Error.Code)

	w = s.do(http.MethodPost, "/v1/orders", testutil.TestUserID, []byte("{"), nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestUnknownOrder() {
	w := s.do(http.MethodGet, "/v1/orders/ord_missing", testutil.TestUserID, nil, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(ierr.ErrCodeNotFound, decode[ierr.ErrorResponse](s, w).Error.Code)
}

func (s *RouterSuite) TestCashierCannotCancel() {
	o := s.createOrder("user_cashier")

	w := s.do(http.MethodPost, "/v1/orders/"+o.ID+"/status", "user_cashier",
		dto.UpdateOrderStatusRequest{OrderStatus: types.OrderStatusCancelled}, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/v1/orders/"+o.ID+"/status", testutil.TestUserID,
		dto.UpdateOrderStatusRequest{OrderStatus: types.OrderStatusCancelled}, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(types.OrderStatusCancelled, decode[*dto.OrderResponse](s, w).OrderStatus)
}

func (s *RouterSuite) TestPaymentThroughWebhook() {
	o := s.createOrder(testutil.TestUserID)

	req := dto.InitiatePaymentRequest{
		OrderID:        o.ID,
		Amount:         o.Total,
		Currency:       o.Currency,
		Provider:       testutil.MockProviderCode,
		IdempotencyKey: "router-key-0001",
	}
	w := s.do(http.MethodPost, "/v1/payments", testutil.TestUserID, req, nil)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	p := decode[*dto.PaymentResponse](s, w)
	s.Equal(types.PaymentStatusPending, p.PaymentStatus)

	// the same key returns the same payment
	w = s.do(http.MethodPost, "/v1/payments", testutil.TestUserID, req, nil)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Equal(p.ID, decode[*dto.PaymentResponse](s, w).ID)
	s.Len(s.GetMockProvider().InitiateCalls(), 1)

	headers, body := s.GetMockProvider().WebhookRequest(testutil.MockWebhookPayload{
		EventID:   "evt_router_1",
		Reference: lo.FromPtr(p.ProviderReference),
		Status:    string(types.PaymentStatusSuccess),
	})

	// callbacks carry no bearer token
	w = s.do(http.MethodPost, "/v1/webhooks/payments/"+string(testutil.MockProviderCode), "", body, headers)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	ack := decode[dto.WebhookResponse](s, w)
	s.Equal(p.ID, ack.PaymentID)
	s.Equal(types.PaymentStatusSuccess, ack.PaymentStatus)
	s.Equal(types.WebhookOutcomeApplied, ack.Outcome)

	w = s.do(http.MethodPost, "/v1/webhooks/payments/"+string(testutil.MockProviderCode), "", body, headers)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(types.WebhookOutcomeReplayed, decode[dto.WebhookResponse](s, w).Outcome)

	w = s.do(http.MethodGet, "/v1/orders/"+o.ID, testutil.TestUserID, nil, nil)
	s.Equal(types.OrderStatusPaid, decode[*dto.OrderResponse](s, w).OrderStatus)
}

func (s *RouterSuite) TestWebhookWithBadSignature() {
	headers, body := s.GetMockProvider().WebhookRequest(testutil.MockWebhookPayload{
		Reference: "ref_unknown",
		Status:    string(types.PaymentStatusSuccess),
	})
	headers.Set(testutil.MockWebhookSignatureHeader, "forged")

	w := s.do(http.MethodPost, "/v1/webhooks/payments/"+string(testutil.MockProviderCode), "", body, headers)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal(ierr.ErrCodeWebhookVerification, decode[ierr.ErrorResponse](s, w).Error.Code)
}

func (s *RouterSuite) TestOversizedWebhookIsRejected() {
	headers, _ := s.GetMockProvider().WebhookRequest(testutil.MockWebhookPayload{
		Reference: "ref_unknown",
		Status:    string(types.PaymentStatusSuccess),
	})
	body := bytes.Repeat([]byte("x"), 1<<20+1)

	w := s.do(http.MethodPost, "/v1/webhooks/payments/"+string(testutil.MockProviderCode), "", body, headers)
	s.Equal(http.StatusRequestEntityTooLarge, w.Code)
	s.Equal(ierr.ErrCodePayloadTooLarge, decode[ierr.ErrorResponse](s, w).Error.Code)
}
