package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestBuilderMarks(t *testing.T) {
	err := NewErrorf("payment %s not found", "pay_1").
		WithHint("Payment not found").
		Mark(ErrNotFound)

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromErr(err))
	assert.Equal(t, ErrCodeNotFound, CodeFromErr(err))
	assert.Contains(t, errors.FlattenHints(err), "Payment not found")
}

func TestRetryableKeepsPrimarySentinel(t *testing.T) {
	err := WithError(fmt.Errorf("connection reset")).
		WithHint("Database temporarily unavailable").
		Retryable().
		Mark(ErrDatabase)

	assert.True(t, IsRetryable(err))
	assert.True(t, Is(err, ErrDatabase))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusFromErr(err))
}

func TestMarksSurviveWrapping(t *testing.T) {
	inner := NewError("refund exceeds captured amount").
		WithHint("Refund amount is too high").
		Mark(ErrValidation)
	outer := errors.Wrap(inner, "refund payment")

	assert.True(t, IsValidation(outer))
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromErr(outer))
}

func TestPayloadTooLarge(t *testing.T) {
	err := NewError("webhook body exceeds limit").
		WithHint("Request body is too large").
		Mark(ErrPayloadTooLarge)

	assert.Equal(t, http.StatusRequestEntityTooLarge, HTTPStatusFromErr(err))
	assert.Equal(t, ErrCodePayloadTooLarge, CodeFromErr(err))
}

func TestProviderErrors(t *testing.T) {
	err := NewError("insufficient funds").
		WithReportableDetails(map[string]any{"provider_code": "INSUFFICIENT_FUNDS"}).
		Mark(ErrProvider)

	assert.True(t, IsProvider(err))
	assert.Equal(t, http.StatusBadGateway, HTTPStatusFromErr(err))
	assert.Equal(t, ErrCodeProvider, CodeFromErr(err))
}

func TestUnmarkedErrors(t *testing.T) {
	err := fmt.Errorf("boom")
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromErr(err))
	assert.Equal(t, ErrCodeSystemError, CodeFromErr(err))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatusFromErr(NewError("bad signature").Mark(ErrWebhookVerification)))
	assert.Equal(t, http.StatusForbidden, HTTPStatusFromErr(NewError("cashier").Mark(ErrPermissionDenied)))
}
