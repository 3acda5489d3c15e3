// Package testutil provides testing utilities for the retrieval core.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/readabook/pkg/catalog"
)

// MockResponse defines the behavior for a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable stand-in for both the catalog API and the
// text archive. Handlers are matched on the request path only.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	pathCounts        map[string]int
	LastRequestHeader http.Header
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.pathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		// Default handler
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.CloseClientConnections()
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.pathCounts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// SetDocument serves doc as the metadata record at /books/{id}/.
func (m *MockUpstream) SetDocument(doc catalog.Document) {
	body, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	m.SetResponse(fmt.Sprintf("/books/%d/", doc.ID), NewJSONResponse(string(body)))
}

// SetListing serves listing for every request to /books/.
func (m *MockUpstream) SetListing(listing catalog.Listing) {
	body, err := json.Marshal(listing)
	if err != nil {
		panic(err)
	}
	m.SetResponse(catalog.BooksPath, NewJSONResponse(string(body)))
}

// SetText serves body as plain text at path.
func (m *MockUpstream) SetText(path, body string) {
	m.SetResponse(path, MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
	})
}

// TextURL returns the absolute URL of a text path on this server.
func (m *MockUpstream) TextURL(path string) string {
	return m.server.URL + "/" + strings.TrimPrefix(path, "/")
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockUpstream) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// GetPathCount returns the number of requests made to path.
func (m *MockUpstream) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// NewJSONResponse creates a standard 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"detail": "Request was throttled."}`,
		Headers: map[string]string{
			"Retry-After":  retryAfter,
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a response with the given 5xx status.
func NewServerErrorResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       `{"detail": "Upstream unavailable."}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewFlakyHandler fails the first failures requests with status, then
// delegates to next.
func NewFlakyHandler(failures, status int, next http.HandlerFunc) http.HandlerFunc {
	var (
		mu   sync.Mutex
		seen int
	)
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen++
		fail := seen <= failures
		mu.Unlock()

		if fail {
			w.WriteHeader(status)
			return
		}
		next(w, r)
	}
}

// NewDocument builds a catalog record whose plain-text formats point at the
// given URLs. Keys of formats are format names such as
// "text/plain; charset=utf-8".
func NewDocument(id int, title string, formats map[string]string) catalog.Document {
	return catalog.Document{
		ID:            id,
		Title:         title,
		Authors:       []catalog.Person{{Name: "Austen, Jane"}},
		Languages:     []string{"en"},
		Formats:       formats,
		DownloadCount: 1000,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
