// Package client provides the HTTP fetcher used by the sync pipeline:
// a single logical GET returning a JSON body, with rate limiting, optional
// Redis-backed conditional caching and capped exponential backoff retries.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/rickmorty-sync/pkg/cache"
	"github.com/Sternrassler/rickmorty-sync/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultUserAgent identifies the sync to the upstream API.
const DefaultUserAgent = "rickmorty-sync/0.1 (+https://github.com/Sternrassler/rickmorty-sync)"

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rmsync_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rmsync_request_duration_seconds",
		Help:    "Logical fetch duration in seconds by endpoint, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rmsync_errors_total",
		Help: "Total failed attempts by error class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	// Retry policy for transient failures.
	Retry RetryConfig

	// RateLimit paces outgoing requests.
	RateLimit ratelimit.Config

	// Redis enables the page cache and shares rate limit pauses. Optional.
	Redis *redis.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// Client fetches JSON documents from the upstream API.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "fetcher").Logger()

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: ratelimit.NewTracker(cfg.RateLimit, cfg.Redis, logger),
		cache:       cacheManager,
		config:      cfg,
		logger:      logger,
	}, nil
}

// FetchJSON performs a GET against rawURL and returns the JSON body.
// Transient failures are retried according to the retry policy; once it is
// exhausted the error wraps ErrRetryExhausted. Non-retryable HTTP failures
// are returned as *APIError.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	endpoint := u.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var cacheKey cache.CacheKey
	var cached *cache.CacheEntry
	if c.cache != nil {
		cacheKey, _ = cache.KeyForURL(rawURL)
		cached, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("cursor", rawURL).Msg("Cache get error")
		}
	}

	var body []byte
	retryErr := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		data, attemptErr := c.attempt(ctx, rawURL, endpoint, cacheKey, cached)
		if attemptErr != nil {
			return attemptErr
		}
		body = data
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return body, nil
}

// attempt performs one HTTP round trip.
func (c *Client) attempt(ctx context.Context, rawURL, endpoint string, key cache.CacheKey, cached *cache.CacheEntry) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if cache.ShouldMakeConditionalRequest(cached) {
		cache.AddConditionalHeaders(req, cached)
	}

	c.logger.Debug().Str("cursor", rawURL).Msg("Executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{
			URL:        rawURL,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("cursor", rawURL).Msg("304 Not Modified - using cache")
		if err := c.cache.Touch(ctx, key, cached, cache.ExpiresFromHeaders(resp.Header)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return cached.Data, nil

	case resp.StatusCode >= 300:
		return nil, c.statusError(rawURL, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJSON, rawURL)
	}

	if c.cache != nil && resp.StatusCode == http.StatusOK {
		if err := c.cache.Set(ctx, key, cache.ResponseToEntry(resp, data)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return data, nil
}

// statusError converts a non-success response into an *APIError.
func (c *Client) statusError(rawURL string, resp *http.Response) error {
	class := classifyStatus(resp.StatusCode)
	errorsTotal.WithLabelValues(string(class)).Inc()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := resp.Status
	if s := strings.TrimSpace(string(snippet)); s != "" {
		msg += ": " + s
	}

	apiErr := &APIError{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		Message:    msg,
	}
	if d, ok := ratelimit.ParseRetryAfter(resp.Header, time.Now()); ok {
		apiErr.RetryAfter = d
	}

	c.logger.Warn().
		Str("cursor", rawURL).
		Int("status", resp.StatusCode).
		Str("error_class", string(class)).
		Msg("Upstream request error")

	return apiErr
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the request gate (for testing).
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
