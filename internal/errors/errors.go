package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound            = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists       = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation          = new(ErrCodeValidation, "validation error")
	ErrPayloadTooLarge     = new(ErrCodePayloadTooLarge, "payload too large")
	ErrInvalidOperation    = new(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied    = new(ErrCodePermissionDenied, "permission denied")
	ErrUnauthenticated     = new(ErrCodeUnauthenticated, "unauthenticated")
	ErrWebhookVerification = new(ErrCodeWebhookVerification, "webhook verification failed")
	ErrHTTPClient          = new(ErrCodeHTTPClient, "http client error")
	ErrProvider            = new(ErrCodeProvider, "payment provider error")
	ErrDatabase            = new(ErrCodeDatabase, "database error")
	ErrSystem              = new(ErrCodeSystemError, "system error")

	// ErrRetryable is a secondary mark for transient failures. It is combined
	// with a primary sentinel, e.g. ErrDatabase, and never used alone.
	ErrRetryable = new(ErrCodeRetryable, "retryable error")

	// ordered so that the most specific sentinel wins for multi-marked errors
	statusCodes = []struct {
		err    error
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrAlreadyExists, http.StatusConflict},
		{ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{ErrValidation, http.StatusBadRequest},
		{ErrInvalidOperation, http.StatusBadRequest},
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrWebhookVerification, http.StatusUnauthorized},
		{ErrPermissionDenied, http.StatusForbidden},
		{ErrProvider, http.StatusBadGateway},
		{ErrRetryable, http.StatusServiceUnavailable},
		{ErrHTTPClient, http.StatusInternalServerError},
		{ErrDatabase, http.StatusInternalServerError},
		{ErrSystem, http.StatusInternalServerError},
	}
)

const (
	ErrCodeHTTPClient          = "http_client_error"
	ErrCodeSystemError         = "system_error"
	ErrCodeNotFound            = "not_found"
	ErrCodeAlreadyExists       = "already_exists"
	ErrCodeValidation          = "validation_error"
	ErrCodePayloadTooLarge     = "payload_too_large"
	ErrCodeInvalidOperation    = "invalid_operation"
	ErrCodePermissionDenied    = "permission_denied"
	ErrCodeUnauthenticated     = "unauthenticated"
	ErrCodeWebhookVerification = "webhook_verification_failed"
	ErrCodeProvider            = "provider_error"
	ErrCodeDatabase            = "database_error"
	ErrCodeRetryable           = "retryable"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsPermissionDenied checks if an error is a permission denied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsProvider checks if an error came from a payment provider
func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

// IsRetryable checks if an error is transient and the operation may be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

func HTTPStatusFromErr(err error) int {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.status
		}
	}
	return http.StatusInternalServerError
}
