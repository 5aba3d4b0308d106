// Package client provides the HTTP transport for the archive service with
// pacing, linear-backoff retry, error classification, and optional Redis
// page caching.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/arkivist/pullpush-archive-client/pkg/cache"
	"github.com/arkivist/pullpush-archive-client/pkg/logging"
	"github.com/arkivist/pullpush-archive-client/pkg/pacer"
	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

// DefaultBaseURL is the archive's search endpoint root.
const DefaultBaseURL = "https://api.pullpush.io/reddit/search"

// Prometheus metrics for archive requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pullpush_requests_total",
		Help: "Total archive requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pullpush_request_duration_seconds",
		Help:    "Archive request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pullpush_errors_total",
		Help: "Total archive request errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the archive search API.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout applies per request; the overall fetch has no deadline.
	Timeout time.Duration

	// Retry policy (linear backoff).
	Retry RetryConfig

	// Pacer gates every request. Required.
	Pacer *pacer.Pacer

	// Cache is an optional page cache; nil disables caching.
	Cache *cache.Manager
}

// DefaultConfig returns a safe default configuration around the given pacer.
func DefaultConfig(p *pacer.Pacer) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: "pullpush-archive-client/0.1.0",
		Timeout:   10 * time.Second,
		Retry:     DefaultRetryConfig(),
		Pacer:     p,
	}
}

// Client is the archive HTTP client.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger
}

// New creates a new archive client.
func New(cfg Config) (*Client, error) {
	if cfg.Pacer == nil {
		return nil, fmt.Errorf("pacer is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxRetries <= 0 || cfg.Retry.Backoff <= 0 {
		return nil, fmt.Errorf("retry config must have positive max retries and backoff")
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logging.NewLogger("archive-client"),
	}, nil
}

// page is the archive's wire envelope: an ordered list of flat records.
type page struct {
	Data []*types.Record `json:"data"`
}

// Search fetches one page from the given endpoint kind, wrapped by the retry
// policy and gated by the pacer. A successfully parsed page, even an empty
// one, ends the retry loop.
func (c *Client) Search(ctx context.Context, kind types.Kind, params url.Values) ([]*types.Record, error) {
	endpoint := string(kind)
	target := fmt.Sprintf("%s/%s/?%s", c.cfg.BaseURL, endpoint, params.Encode())

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.cfg.Cache != nil {
		if data, err := c.cfg.Cache.Get(ctx, cache.Key(target)); err == nil {
			records, derr := decodePage(data)
			if derr == nil {
				c.logger.Debug().Str("endpoint", endpoint).Msg("Page served from cache")
				requestsTotal.WithLabelValues(endpoint, "cache").Inc()
				return records, nil
			}
			// Corrupt entry; fall through to the network.
			_ = c.cfg.Cache.Delete(ctx, cache.Key(target))
		} else if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	var records []*types.Record
	err := retryWithBackoff(ctx, c.cfg.Retry, c.logger, func() error {
		var attemptErr error
		records, attemptErr = c.fetchOnce(ctx, endpoint, target)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// fetchOnce performs a single paced request attempt.
func (c *Client) fetchOnce(ctx context.Context, endpoint, target string) ([]*types.Record, error) {
	if err := c.cfg.Pacer.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire pacer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &ArchiveError{Class: ErrorClassClient, Message: "build request", Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &ArchiveError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if oerr := c.cfg.Pacer.Observe(ctx, signalFromHeaders(resp.Header)); oerr != nil {
		return nil, fmt.Errorf("observe rate signal: %w", oerr)
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Archive request error")
		return nil, &ArchiveError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &ArchiveError{Class: ErrorClassNetwork, Message: "read body", Err: err}
	}

	records, err := decodePage(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, err
	}

	if c.cfg.Cache != nil {
		if cerr := c.cfg.Cache.Set(ctx, cache.Key(target), body); cerr != nil {
			c.logger.Warn().Err(cerr).Str("endpoint", endpoint).Msg("Failed to cache page")
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("records", len(records)).
		Msg("Page fetched")

	return records, nil
}

// decodePage parses the wire envelope. A body without a data list is
// malformed, not empty.
func decodePage(body []byte) ([]*types.Record, error) {
	var p struct {
		Data *json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &ArchiveError{Class: ErrorClassDecode, Message: "decode page", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if p.Data == nil {
		return nil, &ArchiveError{Class: ErrorClassDecode, Message: "page has no data field", Err: ErrMalformedResponse}
	}

	var out page
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ArchiveError{Class: ErrorClassDecode, Message: "decode records", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return out.Data, nil
}

// classifyStatus categorizes an HTTP status for retry handling. 422 is
// grouped with 429: the archive intermittently returns it under load and
// retrying clears it.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusUnprocessableEntity:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// signalFromHeaders normalizes the archive's rate-limit headers. Either
// header missing means no signal.
func signalFromHeaders(h http.Header) pacer.Signal {
	remainStr := h.Get("X-RateLimit-Remaining")
	resetStr := h.Get("X-RateLimit-Reset")
	if remainStr == "" || resetStr == "" {
		return pacer.Signal{}
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return pacer.Signal{}
	}
	resetSeconds, err := strconv.ParseFloat(resetStr, 64)
	if err != nil {
		return pacer.Signal{}
	}

	return pacer.Signal{
		Present:   true,
		Remaining: remaining,
		Reset:     time.Duration(resetSeconds * float64(time.Second)),
	}
}
