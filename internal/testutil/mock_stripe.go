// Package testutil provides testing utilities for the Stripe sync client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
)

// ListEnvelope is the Stripe list response shape used by fixtures.
type ListEnvelope struct {
	Object  string           `json:"object"`
	Data    []map[string]any `json:"data"`
	HasMore bool             `json:"has_more"`
}

// MockStripe is a configurable mock Stripe API server for testing.
type MockStripe struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	PathCounts        map[string]int
	LastRequestHeader http.Header
	LastQuery         url.Values
}

// NewMockStripe creates a new mock Stripe server. Unregistered paths
// return an empty list.
func NewMockStripe() *MockStripe {
	mock := &MockStripe{
		handlers:   make(map[string]http.HandlerFunc),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = r.URL.Query()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		WriteList(w, nil, false)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockStripe) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockStripe) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockStripe) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastRequestHeader = nil
	m.LastQuery = nil
}

// Handle registers a custom handler for a path.
func (m *MockStripe) Handle(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// HandleStatus registers a handler that always responds with the given
// status and body.
func (m *MockStripe) HandleStatus(path string, status int, body string) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

// HandleList registers a paginating handler serving the given records
// as a Stripe list endpoint, honoring limit and starting_after.
func (m *MockStripe) HandleList(path string, records []map[string]any) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		start := 0
		if after := r.URL.Query().Get("starting_after"); after != "" {
			for i, rec := range records {
				if id, _ := rec["id"].(string); id == after {
					start = i + 1
					break
				}
			}
		}

		end := start + limit
		if end > len(records) {
			end = len(records)
		}

		WriteList(w, records[start:end], end < len(records))
	})
}

// PathCount returns how many requests a path received.
func (m *MockStripe) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// WriteList writes a Stripe list envelope response.
func WriteList(w http.ResponseWriter, records []map[string]any, hasMore bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if records == nil {
		records = []map[string]any{}
	}
	json.NewEncoder(w).Encode(ListEnvelope{
		Object:  "list",
		Data:    records,
		HasMore: hasMore,
	})
}
