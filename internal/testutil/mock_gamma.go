// Package testutil provides testing utilities for the market data client.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockResponse defines the behavior of one mock Gamma endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockGamma is a configurable mock of the Gamma API for testing.
type MockGamma struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]MockResponse

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockGamma creates a mock Gamma server. Paths without a configured
// response answer 404.
func NewMockGamma() *MockGamma {
	mock := &MockGamma{
		handlers: make(map[string]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		resp, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if !exists {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.Header().Set("Content-Type", "application/json")
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp.Body))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGamma) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGamma) Close() {
	m.server.Close()
}

// SetResponse configures the response for a path.
func (m *MockGamma) SetResponse(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = resp
}

// Requests returns the number of requests received so far.
func (m *MockGamma) Requests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Reset clears tracking counters.
func (m *MockGamma) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
}
