package mobilemoney_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/counterpos/counterpos/internal/config"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/integration/gateway"
	"github.com/counterpos/counterpos/internal/integration/mobilemoney"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/testutil"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/stretchr/testify/suite"
	svix "github.com/svix/svix-webhooks/go"
)

const (
	baseURL       = "https://mm.example.test"
	webhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
)

type ProviderSuite struct {
	suite.Suite
	client   *testutil.MockHTTPClient
	provider *mobilemoney.Provider
}

func TestProvider(t *testing.T) {
	suite.Run(t, new(ProviderSuite))
}

func (s *ProviderSuite) SetupTest() {
	s.client = testutil.NewMockHTTPClient()
	p, err := mobilemoney.NewProvider(config.MobileMoneyConfig{
		Enabled:       true,
		BaseURL:       baseURL + "/",
		APIKey:        "mm_test_key",
		WebhookSecret: webhookSecret,
		CallbackURL:   "https://pos.example.test/v1/webhooks/payments/mobilemoney",
	}, s.client, logger.NewNopLogger())
	s.Require().NoError(err)
	s.provider = p
}

func (s *ProviderSuite) initiateRequest() *gateway.InitiateRequest {
	return &gateway.InitiateRequest{
		PaymentID:      "pay_1",
		OrderID:        "ord_1",
		TenantID:       "tenant_a",
		Amount:         150050,
		Currency:       "KES",
		IdempotencyKey: "checkout-abc",
		CustomerPhone:  "+254700000001",
	}
}

func (s *ProviderSuite) TestInitiatePending() {
	s.client.On(http.MethodPost, baseURL+"/v1/payments", testutil.MockResponse{
		StatusCode: http.StatusCreated,
		Body: []byte(`{"status":"success","data":{"reference":"mm_123","tx_ref":"pay_1",
			"status":"PENDING","checkout_url":"https://mm.example.test/pay/mm_123"}}`),
	})

	res, err := s.provider.InitiatePayment(context.Background(), s.initiateRequest())
	s.Require().NoError(err)
	s.Equal("mm_123", res.ProviderReference)
	s.Equal(types.PaymentStatusPending, res.Status)
	s.Equal("https://mm.example.test/pay/mm_123", res.CheckoutURL)
	s.NotEmpty(res.Raw)

	reqs := s.client.Requests()
	s.Require().Len(reqs, 1)
	s.Equal("checkout-abc", reqs[0].Headers["Idempotency-Key"])
	s.Equal("Bearer mm_test_key", reqs[0].Headers["Authorization"])

	var sent map[string]string
	s.Require().NoError(json.Unmarshal(reqs[0].Body, &sent))
	s.Equal("1500.50", sent["amount"])
	s.Equal("pay_1", sent["tx_ref"])
	s.Equal("https://pos.example.test/v1/webhooks/payments/mobilemoney", sent["callback_url"])
}

func (s *ProviderSuite) TestInitiateRejected() {
	s.client.On(http.MethodPost, baseURL+"/v1/payments", testutil.MockResponse{
		StatusCode: http.StatusUnprocessableEntity,
		Body:       []byte(`{"status":"error","code":"INVALID_MSISDN","message":"Phone number is not registered"}`),
	})

	_, err := s.provider.InitiatePayment(context.Background(), s.initiateRequest())
	perr, ok := gateway.AsProviderError(err)
	s.Require().True(ok)
	s.False(perr.Temporary)
	s.Equal("INVALID_MSISDN", perr.Code)
	s.Equal("Phone number is not registered", perr.Message)
}

func (s *ProviderSuite) TestInitiateTemporary() {
	s.client.On(http.MethodPost, baseURL+"/v1/payments", testutil.MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       []byte(`{"status":"error","message":"maintenance"}`),
	})
	_, err := s.provider.InitiatePayment(context.Background(), s.initiateRequest())
	s.True(gateway.IsTemporary(err))

	s.client.On(http.MethodPost, baseURL+"/v1/payments", testutil.MockResponse{Err: errors.New("connection reset")})
	_, err = s.provider.InitiatePayment(context.Background(), s.initiateRequest())
	s.True(gateway.IsTemporary(err))

	s.client.On(http.MethodPost, baseURL+"/v1/payments", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`<html>bad gateway</html>`),
	})
	_, err = s.provider.InitiatePayment(context.Background(), s.initiateRequest())
	s.True(gateway.IsTemporary(err))
}

func (s *ProviderSuite) TestCheckStatus() {
	s.client.On(http.MethodGet, baseURL+"/v1/payments/mm_123", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"status":"success","data":{"status":"FAILED","failure_code":"INSUFFICIENT_FUNDS","failure_message":"Insufficient balance"}}`),
	})

	update, err := s.provider.CheckStatus(context.Background(), "mm_123")
	s.Require().NoError(err)
	s.Equal("mm_123", update.ProviderReference)
	s.Equal(types.PaymentStatusFailed, update.Status)
	s.Equal("INSUFFICIENT_FUNDS", update.FailureCode)
	s.Equal("Insufficient balance", update.FailureMessage)
}

func (s *ProviderSuite) TestProcessRefund() {
	s.client.On(http.MethodPost, baseURL+"/v1/refunds", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"status":"success","data":{"refund_reference":"rf_1","status":"PENDING"}}`),
	})

	res, err := s.provider.ProcessRefund(context.Background(), &gateway.RefundRequest{
		PaymentID:         "pay_1",
		ProviderReference: "mm_123",
		Amount:            500,
		Currency:          "UGX",
		IdempotencyKey:    "refund-1",
	})
	s.Require().NoError(err)
	s.Equal("rf_1", res.RefundReference)

	var sent map[string]string
	s.Require().NoError(json.Unmarshal(s.client.Requests()[0].Body, &sent))
	s.Equal("500", sent["amount"])
}

func (s *ProviderSuite) TestThreeDecimalCurrencyAmounts() {
	s.client.On(http.MethodPost, baseURL+"/v1/payments", testutil.MockResponse{
		StatusCode: http.StatusCreated,
		Body:       []byte(`{"status":"success","data":{"reference":"mm_kwd","status":"PENDING"}}`),
	})
	s.client.On(http.MethodPost, baseURL+"/v1/refunds", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"status":"success","data":{"refund_reference":"rf_kwd","status":"PENDING"}}`),
	})

	req := s.initiateRequest()
	req.Amount = 1000
	req.Currency = "KWD"
	_, err := s.provider.InitiatePayment(context.Background(), req)
	s.Require().NoError(err)

	_, err = s.provider.ProcessRefund(context.Background(), &gateway.RefundRequest{
		PaymentID:         "pay_1",
		ProviderReference: "mm_kwd",
		Amount:            250,
		Currency:          "KWD",
		IdempotencyKey:    "refund-kwd",
	})
	s.Require().NoError(err)

	reqs := s.client.Requests()
	s.Require().Len(reqs, 2)
	var sent map[string]string
	s.Require().NoError(json.Unmarshal(reqs[0].Body, &sent))
	s.Equal("1.000", sent["amount"])
	s.Require().NoError(json.Unmarshal(reqs[1].Body, &sent))
	s.Equal("0.250", sent["amount"])
}

func (s *ProviderSuite) signedHeaders(body []byte) http.Header {
	wh, err := svix.NewWebhook(webhookSecret)
	s.Require().NoError(err)
	now := time.Now()
	sig, err := wh.Sign("msg_1", now, body)
	s.Require().NoError(err)

	h := http.Header{}
	h.Set("svix-id", "msg_1")
	h.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	h.Set("svix-signature", sig)
	return h
}

func (s *ProviderSuite) TestWebhook() {
	body := []byte(`{"id":"evt_1","type":"payment.updated","data":{"reference":"mm_123","status":"SUCCESSFUL"}}`)

	s.Require().NoError(s.provider.VerifyWebhook(s.signedHeaders(body), body))

	update, err := s.provider.ParseWebhook(body)
	s.Require().NoError(err)
	s.Equal("evt_1", update.EventID)
	s.Equal("mm_123", update.ProviderReference)
	s.Equal(types.PaymentStatusSuccess, update.Status)
	s.True(update.Known())
	s.JSONEq(string(body), string(update.Raw))
}

func (s *ProviderSuite) TestWebhookTampered() {
	body := []byte(`{"id":"evt_1","data":{"reference":"mm_123","status":"FAILED"}}`)
	headers := s.signedHeaders(body)

	tampered := []byte(`{"id":"evt_1","data":{"reference":"mm_123","status":"SUCCESSFUL"}}`)
	err := s.provider.VerifyWebhook(headers, tampered)
	s.True(ierr.Is(err, ierr.ErrWebhookVerification))

	err = s.provider.VerifyWebhook(http.Header{}, body)
	s.True(ierr.Is(err, ierr.ErrWebhookVerification))
}

func (s *ProviderSuite) TestWebhookUnknownStatus() {
	update, err := s.provider.ParseWebhook([]byte(`{"id":"evt_2","data":{"reference":"mm_123","status":"REVERSAL_REQUESTED"}}`))
	s.Require().NoError(err)
	s.False(update.Known())

	_, err = s.provider.ParseWebhook([]byte(`not json`))
	s.True(ierr.IsValidation(err))
}
