package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/integration/gateway"
	"github.com/counterpos/counterpos/internal/types"
)

// MockWebhookSignatureHeader carries the shared secret MockProvider expects
const MockWebhookSignatureHeader = "X-Mock-Signature"

// MockWebhookPayload is the callback body MockProvider parses
type MockWebhookPayload struct {
	EventID        string `json:"event_id,omitempty"`
	Reference      string `json:"reference"`
	Status         string `json:"status"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// MockProvider is a scriptable gateway.Provider. Provider statuses are the
// payment status names; anything else is reported as unknown.
type MockProvider struct {
	mu sync.Mutex

	code          types.PaymentProvider
	WebhookSecret string

	InitiateFunc func(ctx context.Context, req *gateway.InitiateRequest) (*gateway.InitiateResult, error)
	StatusFunc   func(ctx context.Context, reference string) (*gateway.StatusUpdate, error)
	RefundFunc   func(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error)

	initiateCalls []*gateway.InitiateRequest
	refundCalls   []*gateway.RefundRequest
	statusCalls   int
}

// NewMockProvider returns a provider that leaves payments pending with
// reference "ref_<payment id>"
func NewMockProvider(code types.PaymentProvider) *MockProvider {
	return &MockProvider{
		code:          code,
		WebhookSecret: "whsec_test",
	}
}

func (m *MockProvider) Code() types.PaymentProvider {
	return m.code
}

func (m *MockProvider) InitiatePayment(ctx context.Context, req *gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	m.mu.Lock()
	m.initiateCalls = append(m.initiateCalls, req)
	fn := m.InitiateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &gateway.InitiateResult{
		ProviderReference: "ref_" + req.PaymentID,
		Status:            types.PaymentStatusPending,
		CheckoutURL:       "https://pay.example.com/checkout/" + req.PaymentID,
		Raw:               types.RawJSON(`{"status":"PENDING"}`),
	}, nil
}

func (m *MockProvider) CheckStatus(ctx context.Context, reference string) (*gateway.StatusUpdate, error) {
	m.mu.Lock()
	m.statusCalls++
	fn := m.StatusFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, reference)
	}
	return &gateway.StatusUpdate{
		ProviderReference: reference,
		ProviderStatus:    "PENDING",
		Status:            types.PaymentStatusPending,
	}, nil
}

func (m *MockProvider) ProcessRefund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	m.mu.Lock()
	m.refundCalls = append(m.refundCalls, req)
	fn := m.RefundFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &gateway.RefundResult{RefundReference: "rf_" + req.PaymentID}, nil
}

func (m *MockProvider) VerifyWebhook(headers http.Header, body []byte) error {
	if headers.Get(MockWebhookSignatureHeader) != m.WebhookSecret {
		return ierr.NewError("bad mock signature").
			WithHint("Invalid webhook signature").
			Mark(ierr.ErrWebhookVerification)
	}
	return nil
}

func (m *MockProvider) ParseWebhook(body []byte) (*gateway.StatusUpdate, error) {
	var payload MockWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook payload").
			Mark(ierr.ErrValidation)
	}
	update := &gateway.StatusUpdate{
		ProviderReference: payload.Reference,
		ProviderStatus:    payload.Status,
		FailureCode:       payload.FailureCode,
		FailureMessage:    payload.FailureMessage,
		EventID:           payload.EventID,
		Raw:               types.RawJSON(body),
	}
	if types.PaymentStatus(payload.Status).Validate() == nil {
		update.Status = types.PaymentStatus(payload.Status)
	}
	return update, nil
}

// InitiateCalls returns the initiation requests received so far
func (m *MockProvider) InitiateCalls() []*gateway.InitiateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*gateway.InitiateRequest(nil), m.initiateCalls...)
}

// RefundCalls returns the refund requests received so far
func (m *MockProvider) RefundCalls() []*gateway.RefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*gateway.RefundRequest(nil), m.refundCalls...)
}

// StatusCalls returns how many status polls were made
func (m *MockProvider) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

// WebhookRequest builds signed headers and body for a mock callback
func (m *MockProvider) WebhookRequest(payload MockWebhookPayload) (http.Header, []byte) {
	body, _ := json.Marshal(payload)
	headers := http.Header{}
	headers.Set(MockWebhookSignatureHeader, m.WebhookSecret)
	return headers, body
}
