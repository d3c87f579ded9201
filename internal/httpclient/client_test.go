package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "checkout-1", r.Header.Get("Idempotency-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"amount":"10.00"}`, string(body))

		w.Header().Set("X-Request-Id", "req_1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := NewDefaultClient(ClientConfig{Timeout: time.Second}, logger.NewNopLogger())
	resp, err := c.Send(context.Background(), &Request{
		Method:  http.MethodPost,
		URL:     srv.URL + "/v1/payments",
		Headers: map[string]string{"Idempotency-Key": "checkout-1"},
		Body:    []byte(`{"amount":"10.00"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "req_1", resp.Headers["X-Request-Id"])
	assert.JSONEq(t, `{"status":"success"}`, string(resp.Body))
}

func TestSend_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"INVALID_MSISDN"}`))
	}))
	defer srv.Close()

	c := NewDefaultClient(ClientConfig{Timeout: time.Second, RetryMax: 3}, logger.NewNopLogger())
	_, err := c.Send(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})

	httpErr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	assert.False(t, httpErr.Temporary())
	assert.JSONEq(t, `{"code":"INVALID_MSISDN"}`, string(httpErr.Response))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewDefaultClient(ClientConfig{Timeout: time.Second, RetryMax: 3}, logger.NewNopLogger())
	resp, err := c.Send(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_RetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewDefaultClient(ClientConfig{Timeout: time.Second}, logger.NewNopLogger())
	_, err := c.Send(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})

	httpErr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.True(t, httpErr.Temporary())
	assert.Equal(t, 7*time.Second, httpErr.RetryAfter)
}

func TestSend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewDefaultClient(ClientConfig{Timeout: 200 * time.Millisecond}, logger.NewNopLogger())
	_, err := c.Send(context.Background(), &Request{Method: http.MethodGet, URL: url})
	require.Error(t, err)
	assert.True(t, ierr.IsRetryable(err))
	assert.True(t, ierr.Is(err, ierr.ErrHTTPClient))
}

func TestSend_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewDefaultClient(ClientConfig{Timeout: time.Second, RateLimit: 0.001}, logger.NewNopLogger())
	_, err := c.Send(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Send(ctx, &Request{Method: http.MethodGet, URL: srv.URL})
	assert.True(t, ierr.IsRetryable(err))
}
