// Package cash settles payments collected at the counter. It makes no
// network calls and never receives webhooks.
package cash

import (
	"context"
	"net/http"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/integration/gateway"
	"github.com/counterpos/counterpos/internal/types"
)

type Provider struct{}

var _ gateway.Provider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Code() types.PaymentProvider {
	return types.PaymentProviderCash
}

// InitiatePayment settles immediately with a locally generated reference
func (p *Provider) InitiatePayment(ctx context.Context, req *gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reference := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CASH_RECEIPT)
	return &gateway.InitiateResult{
		ProviderReference: reference,
		Status:            types.PaymentStatusSuccess,
		Raw: types.ToRawJSON(map[string]any{
			"reference": reference,
			"amount":    req.Amount,
			"currency":  req.Currency,
			"method":    "cash",
		}),
	}, nil
}

// CheckStatus reports cash payments as settled; they cannot be pending
func (p *Provider) CheckStatus(ctx context.Context, providerReference string) (*gateway.StatusUpdate, error) {
	return &gateway.StatusUpdate{
		ProviderReference: providerReference,
		ProviderStatus:    "settled",
		Status:            types.PaymentStatusSuccess,
	}, nil
}

// ProcessRefund hands cash back over the counter
func (p *Provider) ProcessRefund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	reference := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CASH_RECEIPT)
	return &gateway.RefundResult{
		RefundReference: reference,
		Raw: types.ToRawJSON(map[string]any{
			"refund_reference": reference,
			"amount":           req.Amount,
		}),
	}, nil
}

func (p *Provider) VerifyWebhook(headers http.Header, body []byte) error {
	return ierr.NewError("cash payments have no webhooks").
		WithHint("Cash provider does not accept webhooks").
		Mark(ierr.ErrWebhookVerification)
}

func (p *Provider) ParseWebhook(body []byte) (*gateway.StatusUpdate, error) {
	return nil, ierr.NewError("cash payments have no webhooks").
		WithHint("Cash provider does not accept webhooks").
		Mark(ierr.ErrInvalidOperation)
}
