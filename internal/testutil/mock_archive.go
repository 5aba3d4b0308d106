// Package testutil provides testing utilities for the archive client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock archive endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockArchive is a configurable mock PullPush server for testing.
type MockArchive struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	LastRequestQuery  map[string]string
}

// NewMockArchive creates a new mock archive server.
func NewMockArchive() *MockArchive {
	mock := &MockArchive{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastRequestQuery = make(map[string]string)
		for key := range r.URL.Query() {
			mock.LastRequestQuery[key] = r.URL.Query().Get(key)
		}
		mock.mu.Unlock()

		// Check for custom handler
		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		// Default handler: empty page
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":[]}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockArchive) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockArchive) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockArchive) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.LastRequestQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockArchive) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockArchive) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSubmissionPage configures the submission endpoint to serve one page of
// generated records starting at the given epoch second, newest first.
func (m *MockArchive) SetSubmissionPage(startEpoch int64, count int) {
	m.SetResponse("/submission/", MockResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       SubmissionPage(startEpoch, count),
	})
}

// SetCommentPage configures the comment endpoint likewise.
func (m *MockArchive) SetCommentPage(linkID string, startEpoch int64, count int) {
	m.SetResponse("/comment/", MockResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       CommentPage(linkID, startEpoch, count),
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockArchive) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastQuery returns one parameter of the most recent request's query.
func (m *MockArchive) GetLastQuery(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestQuery[key]
}

// SubmissionPage builds a wire-format page of generated submissions, one per
// second counting down from startEpoch.
func SubmissionPage(startEpoch int64, count int) string {
	docs := make([]json.RawMessage, 0, count)
	for i := 0; i < count; i++ {
		epoch := startEpoch - int64(i)
		doc := fmt.Sprintf(
			`{"id":"sub%d","author":"author%d","subreddit":"golang","title":"post %d","selftext":"body text","created_utc":%d,"score":%d,"num_comments":3,"edited":false}`,
			epoch, i, i, epoch, i*10)
		docs = append(docs, json.RawMessage(doc))
	}
	page, _ := json.Marshal(map[string]any{"data": docs})
	return string(page)
}

// CommentPage builds a wire-format page of generated comments under one
// submission.
func CommentPage(linkID string, startEpoch int64, count int) string {
	docs := make([]json.RawMessage, 0, count)
	for i := 0; i < count; i++ {
		epoch := startEpoch - int64(i)
		doc := fmt.Sprintf(
			`{"id":"cmt%s%d","author":"author%d","subreddit":"golang","body":"comment %d","link_id":"t3_%s","created_utc":%d,"score":%d,"edited":false}`,
			linkID, i, i, i, linkID, epoch, i)
		docs = append(docs, json.RawMessage(doc))
	}
	page, _ := json.Marshal(map[string]any{"data": docs})
	return string(page)
}
