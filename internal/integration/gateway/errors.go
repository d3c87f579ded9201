package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/counterpos/counterpos/internal/httpclient"
)

// ProviderError is a failure reported by a provider. A non-temporary error is
// a definitive rejection and fails the payment; a temporary one leaves it
// pending for a later webhook or status check.
type ProviderError struct {
	Provider  string
	Code      string
	Message   string
	Temporary bool
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewRejection returns a definitive provider rejection
func NewRejection(provider, code, message string) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Message: message}
}

// NewTemporary returns a transient provider failure
func NewTemporary(provider string, cause error) *ProviderError {
	msg := "temporarily unavailable"
	if cause != nil {
		msg = cause.Error()
	}
	return &ProviderError{Provider: provider, Message: msg, Temporary: true, Cause: cause}
}

// AsProviderError extracts a ProviderError from err
func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsTemporary reports whether err leaves the payment state undecided:
// timeouts, cancellations, transport failures and temporary provider errors.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if perr, ok := AsProviderError(err); ok {
		return perr.Temporary
	}
	if httpErr, ok := httpclient.IsHTTPError(err); ok {
		return httpErr.Temporary()
	}
	return true
}
