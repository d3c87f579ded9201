package testutil

import (
	"context"
	"net/http"
	"sync"

	"github.com/counterpos/counterpos/internal/httpclient"
)

// MockHTTPClient implements httpclient.Client with canned responses keyed by
// method and URL
type MockHTTPClient struct {
	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []*httpclient.Request
}

// MockResponse is a canned answer; Err simulates a transport failure
type MockResponse struct {
	StatusCode int
	Body       []byte
	Err        error
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{responses: make(map[string]MockResponse)}
}

// On registers the response for method and url
func (m *MockHTTPClient) On(method, url string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[method+" "+url] = resp
}

func (m *MockHTTPClient) Send(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	resp, ok := m.responses[req.Method+" "+req.URL]
	m.mu.Unlock()

	if !ok {
		resp = MockResponse{StatusCode: http.StatusNotFound, Body: []byte(`{"message":"not found"}`)}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	out := &httpclient.Response{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, httpclient.NewError(resp.StatusCode, resp.Body)
	}
	return out, nil
}

// Requests returns the requests sent so far
func (m *MockHTTPClient) Requests() []*httpclient.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*httpclient.Request(nil), m.requests...)
}
