package httpclient

import (
	"bytes"
	"context"
	"io"
	"time"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Request represents an HTTP request
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// Client interface for making HTTP requests
type Client interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// ClientConfig holds configuration for the HTTP client
type ClientConfig struct {
	Timeout time.Duration
	// RetryMax is the number of retries on connection errors and 5xx responses
	RetryMax int
	// RateLimit caps outbound requests per second, 0 disables the limiter
	RateLimit float64
}

// DefaultClient implements the Client interface
type DefaultClient struct {
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

// NewDefaultClient creates a new DefaultClient
func NewDefaultClient(cfg ClientConfig, log *logger.Logger) Client {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = retryLogger{log: log}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	// return the last response instead of a generic "giving up" error
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &DefaultClient{
		client:  client,
		limiter: limiter,
	}
}

// Send makes an HTTP request and returns the response
func (c *DefaultClient) Send(ctx context.Context, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Request cancelled while waiting for rate limit").
				Retryable().
				Mark(ierr.ErrHTTPClient)
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Please check the request payload").
			Mark(ierr.ErrHTTPClient)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Provider is unreachable").
			Retryable().
			Mark(ierr.ErrHTTPClient)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read provider response").
			Retryable().
			Mark(ierr.ErrHTTPClient)
	}

	headers := make(map[string]string)
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	if resp.StatusCode >= 400 {
		return nil, newResponseError(resp, respBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    headers,
	}, nil
}

// retryLogger adapts the application logger to retryablehttp.LeveledLogger
type retryLogger struct {
	log *logger.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
