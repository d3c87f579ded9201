package cash

import (
	"context"
	"net/http"
	"strings"
	"testing"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/integration/gateway"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateSettlesImmediately(t *testing.T) {
	p := NewProvider()

	res, err := p.InitiatePayment(context.Background(), &gateway.InitiateRequest{
		PaymentID: "pay_1",
		Amount:    1200,
		Currency:  "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusSuccess, res.Status)
	assert.True(t, strings.HasPrefix(res.ProviderReference, types.UUID_PREFIX_CASH_RECEIPT+"_"))
	assert.JSONEq(t, `{"reference":"`+res.ProviderReference+`","amount":1200,"currency":"USD","method":"cash"}`, string(res.Raw))

	other, err := p.InitiatePayment(context.Background(), &gateway.InitiateRequest{PaymentID: "pay_2", Amount: 1, Currency: "USD"})
	require.NoError(t, err)
	assert.NotEqual(t, res.ProviderReference, other.ProviderReference)
}

func TestInitiateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProvider().InitiatePayment(ctx, &gateway.InitiateRequest{Amount: 1, Currency: "USD"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoWebhooks(t *testing.T) {
	p := NewProvider()

	err := p.VerifyWebhook(http.Header{}, []byte(`{}`))
	assert.True(t, ierr.Is(err, ierr.ErrWebhookVerification))

	_, err = p.ParseWebhook([]byte(`{}`))
	assert.True(t, ierr.IsInvalidOperation(err))
}
