// Package mobilemoney integrates a redirect based mobile money API. The
// customer approves the payment on their phone; the outcome arrives as a
// signed webhook.
package mobilemoney

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/counterpos/counterpos/internal/config"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/httpclient"
	"github.com/counterpos/counterpos/internal/integration/gateway"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/types"
	svix "github.com/svix/svix-webhooks/go"
)

const providerName = "mobilemoney"

type Provider struct {
	cfg     config.MobileMoneyConfig
	client  httpclient.Client
	webhook *svix.Webhook
	logger  *logger.Logger
}

var _ gateway.Provider = (*Provider)(nil)

// NewProvider creates the provider. The webhook secret uses the Standard
// Webhooks format (whsec_ followed by base64).
func NewProvider(cfg config.MobileMoneyConfig, client httpclient.Client, logger *logger.Logger) (*Provider, error) {
	wh, err := svix.NewWebhook(cfg.WebhookSecret)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid mobile money webhook secret").
			Mark(ierr.ErrValidation)
	}
	return &Provider{
		cfg:     cfg,
		client:  client,
		webhook: wh,
		logger:  logger,
	}, nil
}

func (p *Provider) Code() types.PaymentProvider {
	return types.PaymentProviderMobileMoney
}

func (p *Provider) InitiatePayment(ctx context.Context, req *gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = p.cfg.CallbackURL
	}

	body, err := json.Marshal(createPaymentRequest{
		TxRef:       req.PaymentID,
		Amount:      types.MinorToMajor(req.Amount, req.Currency).StringFixed(types.CurrencyExponent(req.Currency)),
		Currency:    req.Currency,
		PhoneNumber: req.CustomerPhone,
		CallbackURL: callbackURL,
		ReturnURL:   req.RedirectURL,
		Description: req.Description,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode payment request").
			Mark(ierr.ErrSystem)
	}

	data, raw, err := p.do(ctx, http.MethodPost, "/v1/payments", body, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	var payment paymentData
	if err := json.Unmarshal(data, &payment); err != nil {
		return nil, p.malformed(err)
	}

	p.logger.Debugw("mobile money payment created",
		"payment_id", req.PaymentID,
		"reference", payment.Reference,
		"status", payment.Status,
	)

	status := types.PaymentStatusPending
	switch strings.ToUpper(payment.Status) {
	case StatusSuccessful:
		status = types.PaymentStatusSuccess
	case StatusFailed:
		return nil, gateway.NewRejection(providerName, payment.FailureCode, payment.FailureMessage)
	}

	return &gateway.InitiateResult{
		ProviderReference: payment.Reference,
		Status:            status,
		CheckoutURL:       payment.CheckoutURL,
		Raw:               raw,
	}, nil
}

func (p *Provider) CheckStatus(ctx context.Context, providerReference string) (*gateway.StatusUpdate, error) {
	data, raw, err := p.do(ctx, http.MethodGet, "/v1/payments/"+providerReference, nil, "")
	if err != nil {
		return nil, err
	}

	var payment paymentData
	if err := json.Unmarshal(data, &payment); err != nil {
		return nil, p.malformed(err)
	}
	update := toStatusUpdate(payment, raw)
	if update.ProviderReference == "" {
		update.ProviderReference = providerReference
	}
	return update, nil
}

func (p *Provider) ProcessRefund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	body, err := json.Marshal(refundRequest{
		Reference: req.ProviderReference,
		Amount:    types.MinorToMajor(req.Amount, req.Currency).StringFixed(types.CurrencyExponent(req.Currency)),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode refund request").
			Mark(ierr.ErrSystem)
	}

	data, raw, err := p.do(ctx, http.MethodPost, "/v1/refunds", body, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	var refund refundData
	if err := json.Unmarshal(data, &refund); err != nil {
		return nil, p.malformed(err)
	}
	if strings.ToUpper(refund.Status) == StatusFailed {
		return nil, gateway.NewRejection(providerName, "refund_failed", "refund was declined")
	}
	return &gateway.RefundResult{
		RefundReference: refund.RefundReference,
		Raw:             raw,
	}, nil
}

func (p *Provider) VerifyWebhook(headers http.Header, body []byte) error {
	if err := p.webhook.Verify(body, headers); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid webhook signature").
			Mark(ierr.ErrWebhookVerification)
	}
	return nil
}

func (p *Provider) ParseWebhook(body []byte) (*gateway.StatusUpdate, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook payload").
			Mark(ierr.ErrValidation)
	}
	update := toStatusUpdate(payload.Data, types.ToRawJSON(body))
	update.EventID = payload.ID
	return update, nil
}

func toStatusUpdate(payment paymentData, raw types.RawJSON) *gateway.StatusUpdate {
	return &gateway.StatusUpdate{
		ProviderReference: payment.Reference,
		ProviderStatus:    payment.Status,
		Status:            mapStatus(payment.Status),
		FailureCode:       payment.FailureCode,
		FailureMessage:    payment.FailureMessage,
		Raw:               raw,
	}
}

// mapStatus returns "" for statuses we do not act on
func mapStatus(status string) types.PaymentStatus {
	switch strings.ToUpper(status) {
	case StatusSuccessful:
		return types.PaymentStatusSuccess
	case StatusFailed:
		return types.PaymentStatusFailed
	case StatusExpired:
		return types.PaymentStatusExpired
	case StatusPending:
		return types.PaymentStatusPending
	default:
		return ""
	}
}

// do sends an API call and unwraps the response envelope
func (p *Provider) do(ctx context.Context, method, path string, body []byte, idempotencyKey string) (json.RawMessage, types.RawJSON, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
		"Accept":        "application/json",
	}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	resp, err := p.client.Send(ctx, &httpclient.Request{
		Method:  method,
		URL:     strings.TrimRight(p.cfg.BaseURL, "/") + path,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		if httpErr, ok := httpclient.IsHTTPError(err); ok && !httpErr.Temporary() {
			var env envelope
			_ = json.Unmarshal(httpErr.Response, &env)
			p.logger.Warnw("mobile money request rejected",
				"path", path,
				"status_code", httpErr.StatusCode,
				"code", env.Code,
			)
			if env.Message == "" {
				env.Message = http.StatusText(httpErr.StatusCode)
			}
			return nil, nil, gateway.NewRejection(providerName, env.Code, env.Message)
		}
		return nil, nil, gateway.NewTemporary(providerName, err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, nil, p.malformed(err)
	}
	return env.Data, types.ToRawJSON(resp.Body), nil
}

func (p *Provider) malformed(err error) error {
	return gateway.NewTemporary(providerName, ierr.WithError(err).
		WithHint("Malformed provider response").
		Mark(ierr.ErrProvider))
}
