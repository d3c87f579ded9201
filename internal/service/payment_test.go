package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/counterpos/counterpos/internal/api/dto"
	"github.com/counterpos/counterpos/internal/domain/payment"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/idempotency"
	"github.com/counterpos/counterpos/internal/integration/gateway"
	"github.com/counterpos/counterpos/internal/notifier"
	"github.com/counterpos/counterpos/internal/testutil"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"
)

type PaymentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service PaymentService
	orders  OrderService
	order   *dto.OrderResponse
}

func TestPaymentService(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewPaymentService(params)
	s.orders = NewOrderService(params)

	o, err := s.orders.CreateOrder(s.GetContext(), singleItemOrder(2500, 2))
	s.Require().NoError(err)
	s.order = o
}

func (s *PaymentServiceSuite) request(provider types.PaymentProvider, key string) dto.InitiatePaymentRequest {
	return dto.InitiatePaymentRequest{
		OrderID:        s.order.ID,
		Amount:         s.order.Total,
		Currency:       "usd",
		Provider:       provider,
		IdempotencyKey: key,
		CustomerPhone:  "+254700000001",
	}
}

func (s *PaymentServiceSuite) initiate(provider types.PaymentProvider, key string) *dto.PaymentResponse {
	resp, err := s.service.InitiatePayment(s.GetContext(), s.request(provider, key))
	s.Require().NoError(err)
	return resp
}

func (s *PaymentServiceSuite) orderStatus() types.OrderStatus {
	o, err := s.orders.GetOrder(s.GetContext(), s.order.ID)
	s.Require().NoError(err)
	return o.OrderStatus
}

func (s *PaymentServiceSuite) TestInitiatePayment_CashSettlesImmediately() {
	resp := s.initiate(types.PaymentProviderCash, "cash-key-0001")

	s.Equal(types.PaymentStatusSuccess, resp.PaymentStatus)
	s.True(resp.HasProviderReference())
	s.NotNil(resp.SucceededAt)
	s.Equal("USD", resp.Currency)
	s.Equal(types.OrderStatusPaid, s.orderStatus())

	events := testutil.DecodePayloads[notifier.PaymentStatusChangedEvent](s.GetNotifier(), notifier.TopicPaymentStatusChanged)
	s.Require().Len(events, 1)
	s.Equal(types.PaymentStatusPending, events[0].PreviousStatus)
	s.Equal(types.PaymentStatusSuccess, events[0].PaymentStatus)
	s.Equal(testutil.TestTenantID, events[0].TenantID)
}

func (s *PaymentServiceSuite) TestInitiatePayment_PendingAtProvider() {
	resp := s.initiate(testutil.MockProviderCode, "mm-key-0001")

	s.Equal(types.PaymentStatusPending, resp.PaymentStatus)
	s.Equal("ref_"+resp.ID, lo.FromPtr(resp.ProviderReference))
	s.NotEmpty(resp.CheckoutURL)
	s.Equal(types.OrderStatusPending, s.orderStatus())

	calls := s.GetMockProvider().InitiateCalls()
	s.Require().Len(calls, 1)
	s.Equal(resp.ID, calls[0].PaymentID)
	s.Equal(int64(5000), calls[0].Amount)
	s.Equal(idempotency.NewGenerator().CheckoutKey(testutil.TestTenantID, "mm-key-0001"), calls[0].IdempotencyKey)
	s.Equal(testutil.TestTenantID, calls[0].TenantID)
	s.Empty(s.GetNotifier().Events(notifier.TopicPaymentStatusChanged))
}

func (s *PaymentServiceSuite) TestInitiatePayment_ProcessingAtProvider() {
	s.GetMockProvider().InitiateFunc = func(_ context.Context, req *gateway.InitiateRequest) (*gateway.InitiateResult, error) {
		return &gateway.InitiateResult{
			ProviderReference: "ref_processing",
			Status:            types.PaymentStatusProcessing,
		}, nil
	}

	resp := s.initiate(testutil.MockProviderCode, "mm-key-0002")
	s.Equal(types.PaymentStatusProcessing, resp.PaymentStatus)
	s.Equal("ref_processing", lo.FromPtr(resp.ProviderReference))
}

func (s *PaymentServiceSuite) TestInitiatePayment_SameKeyReturnsSamePayment() {
	first := s.initiate(testutil.MockProviderCode, "repeat-key-01")
	second := s.initiate(testutil.MockProviderCode, "repeat-key-01")

	s.Equal(first.ID, second.ID)
	s.Len(s.GetMockProvider().InitiateCalls(), 1)

	count, err := s.GetStores().PaymentRepo.Count(s.GetContext(), types.NewPaymentFilter())
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PaymentServiceSuite) TestInitiatePayment_KeyReusedWithDifferentAmount() {
	s.initiate(testutil.MockProviderCode, "reused-key-01")

	req := s.request(testutil.MockProviderCode, "reused-key-01")
	req.Amount = 100
	_, err := s.service.InitiatePayment(s.GetContext(), req)
	s.True(ierr.IsAlreadyExists(err))
	s.Len(s.GetMockProvider().InitiateCalls(), 1)
}

func (s *PaymentServiceSuite) TestInitiatePayment_SameKeyInOtherTenantIsIndependent() {
	s.initiate(testutil.MockProviderCode, "shared-key-01")

	otherCtx := testutil.TenantContext(context.Background(), testutil.OtherTestTenantID, "user_other", types.RoleCashier)
	otherOrder, err := s.orders.CreateOrder(otherCtx, singleItemOrder(2500, 2))
	s.Require().NoError(err)

	req := s.request(testutil.MockProviderCode, "shared-key-01")
	req.OrderID = otherOrder.ID
	resp, err := s.service.InitiatePayment(otherCtx, req)
	s.Require().NoError(err)
	s.Equal(testutil.OtherTestTenantID, resp.TenantID)
	s.Len(s.GetMockProvider().InitiateCalls(), 2)
}

func (s *PaymentServiceSuite) TestInitiatePayment_ConcurrentSameKeyCreatesOnePayment() {
	const callers = 10

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]struct{}{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.service.InitiatePayment(s.GetContext(), s.request(testutil.MockProviderCode, "concurrent-key"))
			if !s.NoError(err) {
				return
			}
			mu.Lock()
			ids[resp.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Len(ids, 1)
	count, err := s.GetStores().PaymentRepo.Count(s.GetContext(), types.NewPaymentFilter())
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PaymentServiceSuite) TestInitiatePayment_TemporaryFailureStaysPending() {
	mock := s.GetMockProvider()
	mock.InitiateFunc = func(context.Context, *gateway.InitiateRequest) (*gateway.InitiateResult, error) {
		return nil, gateway.NewTemporary("mobilemoney", nil)
	}

	resp, err := s.service.InitiatePayment(s.GetContext(), s.request(testutil.MockProviderCode, "temp-key-0001"))
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusPending, resp.PaymentStatus)
	s.False(resp.HasProviderReference())

	// a retry with the same key hands the payment to the provider again
	mock.InitiateFunc = nil
	retried := s.initiate(testutil.MockProviderCode, "temp-key-0001")
	s.Equal(resp.ID, retried.ID)
	s.True(retried.HasProviderReference())
	s.Len(mock.InitiateCalls(), 2)
}

func (s *PaymentServiceSuite) TestInitiatePayment_RejectionFailsWithProviderMessage() {
	s.GetMockProvider().InitiateFunc = func(context.Context, *gateway.InitiateRequest) (*gateway.InitiateResult, error) {
		return nil, gateway.NewRejection("mobilemoney", "INSUFFICIENT_FUNDS", "Insufficient balance on wallet")
	}

	_, err := s.service.InitiatePayment(s.GetContext(), s.request(testutil.MockProviderCode, "reject-key-01"))
	s.True(ierr.IsProvider(err))

	stored, err := s.GetStores().PaymentRepo.GetByIdempotencyKey(s.GetContext(), "reject-key-01")
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusFailed, stored.PaymentStatus)
	s.Equal("INSUFFICIENT_FUNDS", lo.FromPtr(stored.FailureCode))
	s.Equal("Insufficient balance on wallet", lo.FromPtr(stored.FailureMessage))
	s.NotNil(stored.FailedAt)
	s.Equal(types.OrderStatusPending, s.orderStatus())

	// the failed attempt is final; the same key keeps returning it
	again, err := s.service.InitiatePayment(s.GetContext(), s.request(testutil.MockProviderCode, "reject-key-01"))
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusFailed, again.PaymentStatus)
	s.Len(s.GetMockProvider().InitiateCalls(), 1)
}

func (s *PaymentServiceSuite) TestInitiatePayment_ProviderTimeoutStaysPending() {
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	cfg := *params.Config
	cfg.Payment.ProviderTimeout = 20 * time.Millisecond
	params.Config = &cfg
	svc := NewPaymentService(params)

	s.GetMockProvider().InitiateFunc = func(ctx context.Context, _ *gateway.InitiateRequest) (*gateway.InitiateResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	started := time.Now()
	resp, err := svc.InitiatePayment(s.GetContext(), s.request(testutil.MockProviderCode, "timeout-key-1"))
	s.Require().NoError(err)
	s.Less(time.Since(started), 2*time.Second)
	s.Equal(types.PaymentStatusPending, resp.PaymentStatus)
}

func (s *PaymentServiceSuite) TestInitiatePayment_Rejections() {
	otherCtx := testutil.TenantContext(context.Background(), testutil.OtherTestTenantID, "user_other", types.RoleOwner)

	s.Run("order of another tenant", func() {
		_, err := s.service.InitiatePayment(otherCtx, s.request(testutil.MockProviderCode, "cross-tenant-1"))
		s.True(ierr.IsNotFound(err))
	})

	s.Run("currency mismatch", func() {
		req := s.request(testutil.MockProviderCode, "currency-key-1")
		req.Currency = "EUR"
		_, err := s.service.InitiatePayment(s.GetContext(), req)
		s.True(ierr.IsValidation(err))
	})

	s.Run("unknown provider", func() {
		_, err := s.service.InitiatePayment(s.GetContext(), s.request(types.PaymentProvider("paypal"), "provider-key-1"))
		s.True(ierr.IsValidation(err))
	})

	s.Run("short idempotency key", func() {
		_, err := s.service.InitiatePayment(s.GetContext(), s.request(testutil.MockProviderCode, "k1"))
		s.True(ierr.IsValidation(err))
	})

	s.Run("zero amount", func() {
		req := s.request(testutil.MockProviderCode, "zero-amount-1")
		req.Amount = 0
		_, err := s.service.InitiatePayment(s.GetContext(), req)
		s.True(ierr.IsValidation(err))
	})

	s.Run("no tenant", func() {
		_, err := s.service.InitiatePayment(context.Background(), s.request(testutil.MockProviderCode, "no-tenant-key1"))
		s.True(ierr.IsValidation(err))
	})

	s.Empty(s.GetMockProvider().InitiateCalls())
}

func (s *PaymentServiceSuite) TestInitiatePayment_CancelledOrder() {
	_, err := s.orders.UpdateStatus(s.GetContext(), s.order.ID, types.OrderStatusCancelled)
	s.Require().NoError(err)

	_, err = s.service.InitiatePayment(s.GetContext(), s.request(testutil.MockProviderCode, "cancelled-key1"))
	s.True(ierr.IsInvalidOperation(err))
}

func (s *PaymentServiceSuite) TestStateMachine_TerminalStatesAreFinal() {
	resp := s.initiate(testutil.MockProviderCode, "machine-key-01")

	processing, err := s.service.StartProcessing(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusProcessing, processing.PaymentStatus)

	_, err = s.service.StartProcessing(s.GetContext(), resp.ID)
	s.True(ierr.IsInvalidOperation(err))

	failed, err := s.service.MarkFailed(s.GetContext(), resp.ID, "DECLINED", "Card declined", nil)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusFailed, failed.PaymentStatus)

	_, err = s.service.MarkSucceeded(s.GetContext(), resp.ID, nil)
	s.True(ierr.IsInvalidOperation(err))
	_, err = s.service.MarkExpired(s.GetContext(), resp.ID, nil)
	s.True(ierr.IsInvalidOperation(err))

	stored, err := s.service.GetPayment(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.PaymentStatusFailed, stored.PaymentStatus)
	s.Equal(types.OrderStatusPending, s.orderStatus())
}

func (s *PaymentServiceSuite) TestMarkSucceeded_PaysOrder() {
	resp := s.initiate(testutil.MockProviderCode, "succeed-key-01")

	paid, err := s.service.MarkSucceeded(s.GetContext(), resp.ID, types.RawJSON(`{"ok":true}`))
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusSuccess, paid.PaymentStatus)
	s.JSONEq(`{"ok":true}`, string(paid.ProviderResponse))
	s.Equal(types.OrderStatusPaid, s.orderStatus())
}

func (s *PaymentServiceSuite) TestCheckStatus() {
	mock := s.GetMockProvider()
	resp := s.initiate(testutil.MockProviderCode, "status-key-001")

	pending, err := s.service.CheckStatus(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusPending, pending.PaymentStatus)

	mock.StatusFunc = func(context.Context, string) (*gateway.StatusUpdate, error) {
		return nil, gateway.NewTemporary("mobilemoney", nil)
	}
	unchanged, err := s.service.CheckStatus(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusPending, unchanged.PaymentStatus)

	mock.StatusFunc = func(_ context.Context, ref string) (*gateway.StatusUpdate, error) {
		return &gateway.StatusUpdate{ProviderReference: ref, ProviderStatus: "SUCCESS", Status: types.PaymentStatusSuccess}, nil
	}
	settled, err := s.service.CheckStatus(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusSuccess, settled.PaymentStatus)
	s.Equal(types.OrderStatusPaid, s.orderStatus())

	// settled payments are not polled again
	polls := mock.StatusCalls()
	_, err = s.service.CheckStatus(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(polls, mock.StatusCalls())
}

func (s *PaymentServiceSuite) TestRefundPayment() {
	resp := s.initiate(types.PaymentProviderCash, "refund-key-001")

	s.Run("cashier cannot refund", func() {
		_, err := s.service.RefundPayment(testutil.WithRoles(s.GetContext(), types.RoleCashier), resp.ID, dto.RefundPaymentRequest{Amount: 100})
		s.True(ierr.IsPermissionDenied(err))
	})

	s.Run("amount above payment", func() {
		_, err := s.service.RefundPayment(s.GetContext(), resp.ID, dto.RefundPaymentRequest{Amount: resp.Amount + 1})
		s.True(ierr.IsValidation(err))
	})

	s.Run("partial refund", func() {
		managerCtx := testutil.WithRoles(s.GetContext(), types.RoleManager)
		refunded, err := s.service.RefundPayment(managerCtx, resp.ID, dto.RefundPaymentRequest{Amount: 1000})
		s.Require().NoError(err)
		s.Equal(types.PaymentStatusPartiallyRefunded, refunded.PaymentStatus)
		s.Equal(int64(1000), refunded.RefundedAmount)
		s.NotNil(refunded.RefundedAt)
	})

	s.Run("refund is not repeatable", func() {
		_, err := s.service.RefundPayment(s.GetContext(), resp.ID, dto.RefundPaymentRequest{Amount: 1000})
		s.True(ierr.IsInvalidOperation(err))
	})
}

func (s *PaymentServiceSuite) TestRefundPayment_FullRefundThroughProvider() {
	mock := s.GetMockProvider()
	resp := s.initiate(testutil.MockProviderCode, "refund-key-002")
	_, err := s.service.MarkSucceeded(s.GetContext(), resp.ID, nil)
	s.Require().NoError(err)

	refunded, err := s.service.RefundPayment(s.GetContext(), resp.ID, dto.RefundPaymentRequest{Amount: resp.Amount})
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusRefunded, refunded.PaymentStatus)

	calls := mock.RefundCalls()
	s.Require().Len(calls, 1)
	s.Equal("ref_"+resp.ID, calls[0].ProviderReference)
	s.Equal(resp.Amount, calls[0].Amount)
	s.NotEmpty(calls[0].IdempotencyKey)
}

func (s *PaymentServiceSuite) TestRefundPayment_ProviderFailureKeepsStatus() {
	mock := s.GetMockProvider()
	resp := s.initiate(testutil.MockProviderCode, "refund-key-003")
	_, err := s.service.MarkSucceeded(s.GetContext(), resp.ID, nil)
	s.Require().NoError(err)

	mock.RefundFunc = func(context.Context, *gateway.RefundRequest) (*gateway.RefundResult, error) {
		return nil, gateway.NewRejection("mobilemoney", "REFUND_WINDOW_CLOSED", "Refund window closed")
	}
	_, err = s.service.RefundPayment(s.GetContext(), resp.ID, dto.RefundPaymentRequest{Amount: 500})
	s.True(ierr.IsProvider(err))

	stored, err := s.service.GetPayment(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.PaymentStatusSuccess, stored.PaymentStatus)
	s.Zero(stored.RefundedAmount)
}

func (s *PaymentServiceSuite) TestRefundPayment_ConcurrentRefundsReachProviderOnce() {
	mock := s.GetMockProvider()
	resp := s.initiate(testutil.MockProviderCode, "refund-key-005")
	_, err := s.service.MarkSucceeded(s.GetContext(), resp.ID, nil)
	s.Require().NoError(err)

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	mock.RefundFunc = func(_ context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
		entered <- struct{}{}
		<-release
		return &gateway.RefundResult{RefundReference: "rf_" + req.PaymentID}, nil
	}

	results := make(chan error, 2)
	for _, amount := range []int64{1000, 2000} {
		go func(amount int64) {
			_, err := s.service.RefundPayment(s.GetContext(), resp.ID, dto.RefundPaymentRequest{Amount: amount})
			results <- err
		}(amount)
	}

	// the first refund is held at the provider while the second one is turned away
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		s.FailNow("no refund reached the provider")
	}
	var rejected error
	select {
	case rejected = <-results:
	case <-time.After(2 * time.Second):
		s.FailNow("second refund did not return")
	}
	s.True(ierr.IsInvalidOperation(rejected))

	close(release)
	s.NoError(<-results)
	s.Len(mock.RefundCalls(), 1)

	stored, err := s.service.GetPayment(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusPartiallyRefunded, stored.PaymentStatus)
	s.Equal(mock.RefundCalls()[0].Amount, stored.RefundedAmount)
	s.Nil(stored.RefundRequestedAt)
}

func (s *PaymentServiceSuite) TestRefundPayment_RejectedRefundCanBeRetried() {
	mock := s.GetMockProvider()
	resp := s.initiate(testutil.MockProviderCode, "refund-key-006")
	_, err := s.service.MarkSucceeded(s.GetContext(), resp.ID, nil)
	s.Require().NoError(err)

	mock.RefundFunc = func(context.Context, *gateway.RefundRequest) (*gateway.RefundResult, error) {
		return nil, gateway.NewRejection("mobilemoney", "INSUFFICIENT_FLOAT", "Try again later")
	}
	_, err = s.service.RefundPayment(s.GetContext(), resp.ID, dto.RefundPaymentRequest{Amount: 500})
	s.True(ierr.IsProvider(err))

	mock.RefundFunc = nil
	refunded, err := s.service.RefundPayment(s.GetContext(), resp.ID, dto.RefundPaymentRequest{Amount: 500})
	s.Require().NoError(err)
	s.Equal(int64(500), refunded.RefundedAmount)

	calls := mock.RefundCalls()
	s.Require().Len(calls, 2)
	s.Equal(calls[0].IdempotencyKey, calls[1].IdempotencyKey)
}

func (s *PaymentServiceSuite) TestRefundPayment_PendingPaymentRejected() {
	resp := s.initiate(testutil.MockProviderCode, "refund-key-004")

	_, err := s.service.RefundPayment(s.GetContext(), resp.ID, dto.RefundPaymentRequest{Amount: 100})
	s.True(ierr.IsInvalidOperation(err))
	s.Empty(s.GetMockProvider().RefundCalls())
}

func (s *PaymentServiceSuite) TestListPayments_FiltersByOrderAndTenant() {
	s.initiate(testutil.MockProviderCode, "list-key-0001")
	s.initiate(testutil.MockProviderCode, "list-key-0002")

	filter := types.NewPaymentFilter()
	filter.OrderID = s.order.ID
	list, err := s.service.ListPayments(s.GetContext(), filter)
	s.NoError(err)
	s.Len(list.Items, 2)

	otherCtx := testutil.TenantContext(context.Background(), testutil.OtherTestTenantID, "user_other", types.RoleOwner)
	list, err = s.service.ListPayments(otherCtx, types.NewPaymentFilter())
	s.NoError(err)
	s.Empty(list.Items)
}

// insertStale stores a payment created well before now
func (s *PaymentServiceSuite) insertStale(key string, status types.PaymentStatus, reference string) *payment.Payment {
	req := s.request(testutil.MockProviderCode, key)
	s.Require().NoError(req.Validate())
	p := req.ToPayment(s.GetContext())
	p.PaymentStatus = status
	if reference != "" {
		p.ProviderReference = lo.ToPtr(reference)
	}
	p.CreatedAt = time.Now().Add(-2 * time.Hour)
	s.Require().NoError(s.GetStores().PaymentRepo.Create(s.GetContext(), p))
	return p
}

func (s *PaymentServiceSuite) TestExpireStalePayments() {
	mock := s.GetMockProvider()
	stalePending := s.insertStale("stale-key-0001", types.PaymentStatusPending, "")
	staleProcessing := s.insertStale("stale-key-0002", types.PaymentStatusProcessing, "ref_stale_2")
	settledAtProvider := s.insertStale("stale-key-0003", types.PaymentStatusProcessing, "ref_stale_3")
	fresh := s.initiate(testutil.MockProviderCode, "fresh-key-0001")

	mock.StatusFunc = func(_ context.Context, ref string) (*gateway.StatusUpdate, error) {
		if ref == "ref_stale_3" {
			return &gateway.StatusUpdate{ProviderReference: ref, ProviderStatus: "SUCCESS", Status: types.PaymentStatusSuccess}, nil
		}
		return &gateway.StatusUpdate{ProviderReference: ref, ProviderStatus: "PENDING", Status: types.PaymentStatusPending}, nil
	}

	expired, err := s.service.ExpireStalePayments(context.Background(), time.Hour)
	s.Require().NoError(err)
	s.Equal(2, expired)

	status := func(id string) types.PaymentStatus {
		p, err := s.service.GetPayment(s.GetContext(), id)
		s.Require().NoError(err)
		return p.PaymentStatus
	}
	s.Equal(types.PaymentStatusExpired, status(stalePending.ID))
	s.Equal(types.PaymentStatusExpired, status(staleProcessing.ID))
	s.Equal(types.PaymentStatusSuccess, status(settledAtProvider.ID))
	s.Equal(types.PaymentStatusPending, status(fresh.ID))

	again, err := s.service.ExpireStalePayments(context.Background(), time.Hour)
	s.NoError(err)
	s.Zero(again)
}

func (s *PaymentServiceSuite) TestExpireStalePayments_OpenAtProviderIsLoggedForReconciliation() {
	log, logs := testutil.NewObservedLogger(zapcore.WarnLevel)
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	params.Logger = log
	svc := NewPaymentService(params)

	stale := s.insertStale("stale-key-0010", types.PaymentStatusProcessing, "ref_stale_10")

	expired, err := svc.ExpireStalePayments(context.Background(), time.Hour)
	s.Require().NoError(err)
	s.Equal(1, expired)

	entries := logs.FilterMessage("expiring payment still open at provider").All()
	s.Require().Len(entries, 1)
	fields := entries[0].ContextMap()
	s.Equal(stale.ID, fields["payment_id"])
	s.Equal("ref_stale_10", fields["provider_reference"])
	s.Equal("PENDING", fields["provider_status"])

	// money collected after the local expiry is flagged, not silently dropped
	headers, body := s.GetMockProvider().WebhookRequest(testutil.MockWebhookPayload{
		Reference: "ref_stale_10",
		Status:    string(types.PaymentStatusSuccess),
	})
	result, err := svc.ReconcileWebhook(context.Background(), string(testutil.MockProviderCode), headers, body)
	s.Require().NoError(err)
	s.Equal(types.WebhookOutcomeReplayed, result.Outcome)
	s.Equal(types.PaymentStatusExpired, result.Payment.PaymentStatus)

	late := logs.FilterMessage("provider reports success for a payment closed locally, reconcile manually").All()
	s.Require().Len(late, 1)
	s.Equal(zapcore.ErrorLevel, late[0].Level)
	s.Equal("ref_stale_10", late[0].ContextMap()["provider_reference"])
}
