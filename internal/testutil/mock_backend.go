// Package testutil provides testing utilities for the Organized Glitter
// caching engine.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockResponse defines the behavior of a mock backend route.
type MockResponse struct {
	// StatusCode for the response. Zero means 200.
	StatusCode int

	// Body is encoded as JSON. Ignored while failures are being injected.
	Body any

	// FailCount makes the route respond with FailStatus this many times
	// before serving StatusCode/Body. Used to exercise retry paths.
	FailCount  int
	FailStatus int
}

// MockBackend is a configurable fake of the hosted backend's JSON API.
type MockBackend struct {
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]*MockResponse // "METHOD path" -> response

	// Tracking
	RequestCount int
	LastBody     []byte
}

// NewMockBackend creates a mock backend server.
func NewMockBackend() *MockBackend {
	mock := &MockBackend{
		handlers: make(map[string]*MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastBody = body
		route := r.Method + " " + r.URL.Path
		resp := mock.handlers[route]
		var failing bool
		if resp != nil && resp.FailCount > 0 {
			resp.FailCount--
			failing = true
		}
		mock.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		if resp == nil {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "no handler for " + route})
			return
		}

		if failing {
			status := resp.FailStatus
			if status == 0 {
				status = http.StatusInternalServerError
			}
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "injected failure"})
			return
		}

		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if resp.Body != nil {
			_ = json.NewEncoder(w).Encode(resp.Body)
		}
	}))

	return mock
}

// Handle registers a canned response for "METHOD path".
func (m *MockBackend) Handle(method, path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = &resp
}

// Requests returns how many requests the mock has served.
func (m *MockBackend) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// URL returns the mock server's base URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts the mock server down.
func (m *MockBackend) Close() {
	m.server.Close()
}
