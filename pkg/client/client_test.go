package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/arkivist/pullpush-archive-client/internal/testutil"
	"github.com/arkivist/pullpush-archive-client/pkg/pacer"
	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

func testPacer(t *testing.T) *pacer.Pacer {
	t.Helper()
	p, err := pacer.New(pacer.Config{
		Mode:         pacer.ModeManual,
		Delay:        time.Millisecond,
		RefillWindow: time.Minute,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("pacer.New() error = %v", err)
	}
	return p
}

func testConfig(t *testing.T, baseURL string) Config {
	cfg := DefaultConfig(testPacer(t))
	cfg.BaseURL = baseURL
	cfg.Retry = RetryConfig{MaxRetries: 3, Backoff: time.Millisecond}
	return cfg
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing pacer",
			mutate:  func(c *Config) { c.Pacer = nil },
			wantErr: true,
		},
		{
			name:    "missing user agent",
			mutate:  func(c *Config) { c.UserAgent = "" },
			wantErr: true,
		},
		{
			name:    "zero retries",
			mutate:  func(c *Config) { c.Retry.MaxRetries = 0 },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "http://example.invalid")
			tt.mutate(&cfg)
			_, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{http.StatusTooManyRequests, ErrorClassRateLimit},
		{http.StatusUnprocessableEntity, ErrorClassRateLimit},
		{http.StatusBadRequest, ErrorClassClient},
		{http.StatusNotFound, ErrorClassClient},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusBadGateway, ErrorClassServer},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{ErrorClassClient, false},
		{ErrorClassDecode, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.want {
				t.Errorf("shouldRetry(%v) = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}

func TestRetryWithBackoff_SucceedsAfterTransient(t *testing.T) {
	var calls int32
	err := retryWithBackoff(context.Background(), RetryConfig{MaxRetries: 3, Backoff: time.Millisecond}, zerolog.Nop(), func() error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return &ArchiveError{StatusCode: 502, Class: ErrorClassServer, Message: "bad gateway"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryWithBackoff() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_Exhaustion(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, Backoff: 10 * time.Millisecond}
	var calls int32
	start := time.Now()
	err := retryWithBackoff(context.Background(), cfg, zerolog.Nop(), func() error {
		atomic.AddInt32(&calls, 1)
		return &ArchiveError{StatusCode: 500, Class: ErrorClassServer, Message: "boom"}
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("retryWithBackoff() error = %v, want ErrRetryExhausted", err)
	}
	if calls != int32(cfg.MaxRetries) {
		t.Errorf("attempts = %d, want %d", calls, cfg.MaxRetries)
	}
	// Linear backoff: 1*b + 2*b between the three attempts.
	if want := 3 * cfg.Backoff; elapsed < want {
		t.Errorf("elapsed = %v, want >= %v (sum of backoffs)", elapsed, want)
	}
}

func TestRetryWithBackoff_NonRetryableFailsFast(t *testing.T) {
	var calls int32
	err := retryWithBackoff(context.Background(), RetryConfig{MaxRetries: 5, Backoff: time.Second}, zerolog.Nop(), func() error {
		atomic.AddInt32(&calls, 1)
		return &ArchiveError{StatusCode: 400, Class: ErrorClassClient, Message: "bad request"}
	})
	if errors.Is(err, ErrRetryExhausted) {
		t.Fatal("client error was retried to exhaustion")
	}
	var ae *ArchiveError
	if !errors.As(err, &ae) || ae.Class != ErrorClassClient {
		t.Fatalf("retryWithBackoff() error = %v, want client ArchiveError", err)
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := retryWithBackoff(ctx, RetryConfig{MaxRetries: 5, Backoff: time.Minute}, zerolog.Nop(), func() error {
		atomic.AddInt32(&calls, 1)
		return &ArchiveError{StatusCode: 500, Class: ErrorClassServer, Message: "boom"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("retryWithBackoff() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1 (backoff aborted)", calls)
	}
}

func TestSearch_DecodesPage(t *testing.T) {
	mock := testutil.NewMockArchive()
	defer mock.Close()
	mock.SetSubmissionPage(1700000100, 5)

	c, err := New(testConfig(t, mock.URL()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	params := url.Values{}
	params.Set("subreddit", "golang")
	records, err := c.Search(context.Background(), types.KindSubmission, params)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("len(records) = %d, want 5", len(records))
	}
	if records[0].ID == "" || records[0].CreatedUTC == 0 {
		t.Errorf("record fields not extracted: %+v", records[0])
	}
	if records[0].Raw == nil {
		t.Error("raw document not retained")
	}
	if got := mock.GetLastQuery("subreddit"); got != "golang" {
		t.Errorf("subreddit param = %q, want %q", got, "golang")
	}
	if ua := mock.LastRequestHeader.Get("User-Agent"); ua == "" {
		t.Error("User-Agent header not sent")
	}
}

func TestSearch_EmptyPageEndsRetryLoop(t *testing.T) {
	mock := testutil.NewMockArchive()
	defer mock.Close()
	// Default handler serves {"data":[]}.

	c, err := New(testConfig(t, mock.URL()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	records, err := c.Search(context.Background(), types.KindSubmission, url.Values{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1 (empty page is success)", got)
	}
}

func TestSearch_RetriesServerError(t *testing.T) {
	mock := testutil.NewMockArchive()
	defer mock.Close()
	var hits int32
	mock.SetHandler("/submission/", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testutil.SubmissionPage(1700000000, 2)))
	})

	c, err := New(testConfig(t, mock.URL()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	records, err := c.Search(context.Background(), types.KindSubmission, url.Values{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("len(records) = %d, want 2", len(records))
	}
	if hits != 3 {
		t.Errorf("server hits = %d, want 3", hits)
	}
}

func TestSearch_RetryExhaustion(t *testing.T) {
	mock := testutil.NewMockArchive()
	defer mock.Close()
	mock.SetResponse("/submission/", testutil.MockResponse{StatusCode: http.StatusServiceUnavailable})

	c, err := New(testConfig(t, mock.URL()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = c.Search(context.Background(), types.KindSubmission, url.Values{})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Search() error = %v, want ErrRetryExhausted", err)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("requests = %d, want 3 (max retries)", got)
	}
}

func TestSearch_MalformedBodyNotRetried(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>gateway error</html>"},
		{"missing data field", `{"results":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockArchive()
			defer mock.Close()
			mock.SetResponse("/submission/", testutil.MockResponse{
				StatusCode: http.StatusOK,
				Body:       tt.body,
			})

			c, err := New(testConfig(t, mock.URL()))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			_, err = c.Search(context.Background(), types.KindSubmission, url.Values{})
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("Search() error = %v, want ErrMalformedResponse", err)
			}
			if got := mock.GetRequestCount(); got != 1 {
				t.Errorf("requests = %d, want 1 (decode errors are terminal)", got)
			}
		})
	}
}

func TestSearch_ClientErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockArchive()
	defer mock.Close()
	mock.SetResponse("/submission/", testutil.MockResponse{StatusCode: http.StatusForbidden})

	c, err := New(testConfig(t, mock.URL()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = c.Search(context.Background(), types.KindSubmission, url.Values{})
	var ae *ArchiveError
	if !errors.As(err, &ae) {
		t.Fatalf("Search() error = %v, want *ArchiveError", err)
	}
	if ae.Class != ErrorClassClient || ae.StatusCode != http.StatusForbidden {
		t.Errorf("ArchiveError = {class %v, status %d}, want {client, 403}", ae.Class, ae.StatusCode)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestSignalFromHeaders(t *testing.T) {
	tests := []struct {
		name          string
		headers       map[string]string
		wantPresent   bool
		wantRemaining int
	}{
		{
			name: "both headers present",
			headers: map[string]string{
				"X-RateLimit-Remaining": "12",
				"X-RateLimit-Reset":     "30",
			},
			wantPresent:   true,
			wantRemaining: 12,
		},
		{
			name:    "headers absent",
			headers: map[string]string{},
		},
		{
			name: "unparsable remaining",
			headers: map[string]string{
				"X-RateLimit-Remaining": "soon",
				"X-RateLimit-Reset":     "30",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for key, value := range tt.headers {
				h.Set(key, value)
			}
			sig := signalFromHeaders(h)
			if sig.Present != tt.wantPresent {
				t.Errorf("Present = %v, want %v", sig.Present, tt.wantPresent)
			}
			if tt.wantPresent && sig.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", sig.Remaining, tt.wantRemaining)
			}
		})
	}
}
