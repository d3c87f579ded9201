package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Error is a non-2xx provider response. The body is kept so integrations can
// decode the provider's own error envelope.
type Error struct {
	StatusCode int
	Response   []byte
	// RetryAfter is the delay the provider asked for on 429 and 503 responses
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the same request may succeed later.
// 408, 429 and 5xx are temporary; any other status is a decision.
func (e *Error) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	}
	return false
}

func NewError(statusCode int, response []byte) *Error {
	return &Error{
		StatusCode: statusCode,
		Response:   response,
	}
}

// newResponseError builds the error for resp, reading Retry-After in its
// delay-seconds form
func newResponseError(resp *http.Response, body []byte) *Error {
	e := NewError(resp.StatusCode, body)
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

// IsHTTPError unwraps err to a provider response error
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
