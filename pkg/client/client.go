// Package client provides the SWAPI HTTP client with request pacing,
// response caching, retries and error classification.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-loader/pkg/cache"
	"github.com/Sternrassler/swapi-loader/pkg/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public SWAPI root.
const DefaultBaseURL = "https://swapi.dev/api/"

// Client is the SWAPI client. One Client (and its connection pool) is meant
// to be shared by every request of a run.
type Client struct {
	http    *resty.Client
	cache   *cache.Manager
	limiter *ratelimit.Tracker
	retry   func(ErrorClass) RetryConfig
	baseURL *url.URL
	config  Config
	logger  zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root; people are fetched from BaseURL + "people/<id>/".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Redis enables the response cache when non-nil.
	Redis *redis.Client

	// CacheTTL is the lifetime of cached responses without an Expires header.
	CacheTTL time.Duration

	// RateLimit is the sustained requests per second (0 disables pacing).
	RateLimit float64

	// Burst is the number of requests allowed back to back.
	Burst int

	// Retry overrides the per-class retry defaults.
	Retry RetryOverrides
}

// DefaultConfig returns a safe default configuration without caching.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		CacheTTL:  cache.DefaultTTL,
		RateLimit: ratelimit.DefaultRequestsPerSecond,
		Burst:     ratelimit.DefaultBurst,
	}
}

// Response is a completed upstream response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte

	// FromCache is true when the body was served from the response cache.
	FromCache bool
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s (status %d): %w", r.URL, r.StatusCode, err)
	}
	return nil
}

// New creates a new SWAPI client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "swapi-client").Logger()

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{logger: logger})

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	return &Client{
		http:    httpClient,
		cache:   cacheManager,
		limiter: ratelimit.NewTracker(ratelimit.Config{RequestsPerSecond: cfg.RateLimit, Burst: cfg.Burst}, logger),
		retry:   cfg.Retry.Policy(),
		baseURL: base,
		config:  cfg,
		logger:  logger,
	}, nil
}

// BaseURL returns the normalised API root, always ending in "/".
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// PersonURL returns the URL of a person resource.
func (c *Client) PersonURL(id int) string {
	return c.baseURL.JoinPath("people", strconv.Itoa(id)).String() + "/"
}

// Get fetches an absolute URL. It waits for the pacer, serves fresh cache
// hits without a request, revalidates stale entries and retries server,
// rate-limit and network failures.
//
// 4xx responses other than 429 are not errors: the response is returned so
// the caller can decide, matching the upstream's {"detail": "Not found"} body.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	resource := resourceOf(rawURL)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(resource).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check cache
	cacheKey := cache.KeyFor(rawURL)
	var cached *cache.CacheEntry
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().Str("url", rawURL).Msg("Cache hit")
			requestsTotal.WithLabelValues(resource, "cache").Inc()
			return &Response{
				URL:        rawURL,
				StatusCode: entry.StatusCode,
				Header:     http.Header{},
				Body:       entry.Data,
				FromCache:  true,
			}, nil
		case errors.Is(err, cache.ErrStale):
			cached = entry
		case errors.Is(err, cache.ErrCacheMiss):
		default:
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Cache get error")
		}
	}

	conditional := cache.ConditionalHeaders(cached)
	if len(conditional) > 0 {
		c.logger.Debug().Str("url", rawURL).Str("etag", cached.ETag).Msg("Making conditional request")
	}

	// Step 2: Execute with retry
	var resp *resty.Response
	retryErr := retryWithBackoff(ctx, c.logger, c.retry, func() (ErrorClass, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		c.logger.Debug().Str("url", rawURL).Msg("Executing SWAPI request")

		var reqErr error
		resp, reqErr = c.http.R().
			SetContext(ctx).
			SetHeaders(conditional).
			Get(rawURL)
		if reqErr != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
			}
			c.logger.Warn().Err(reqErr).Str("url", rawURL).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(resource, "network_error").Inc()
			return ErrorClassNetwork, &APIError{
				URL:        rawURL,
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        reqErr,
			}
		}

		status := resp.StatusCode()
		c.limiter.Observe(status, resp.Header())
		requestsTotal.WithLabelValues(resource, strconv.Itoa(status)).Inc()

		if status < http.StatusBadRequest {
			return "", nil
		}

		errClass := ClassifyStatus(status)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Debug().
			Str("url", rawURL).
			Int("status", status).
			Str("error_class", string(errClass)).
			Msg("SWAPI request error")

		if !shouldRetry(errClass) {
			// let the caller handle the status
			return "", nil
		}

		return errClass, &APIError{
			URL:        rawURL,
			StatusCode: status,
			ErrorClass: errClass,
			Message:    resp.Status(),
		}
	})
	if retryErr != nil {
		return nil, retryErr
	}

	// Step 3: Revalidated
	if resp.StatusCode() == http.StatusNotModified && cached != nil {
		c.logger.Debug().Str("url", rawURL).Msg("304 Not Modified - using cache")
		newExpires := cache.ExpiresFrom(resp.Header(), c.cache.TTL())
		if err := c.cache.Refresh(ctx, cacheKey, cached, newExpires); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return &Response{
			URL:        rawURL,
			StatusCode: cached.StatusCode,
			Header:     resp.Header(),
			Body:       cached.Data,
			FromCache:  true,
		}, nil
	}

	// Step 4: Store successful responses
	if c.cache != nil && resp.StatusCode() == http.StatusOK {
		entry := cache.NewEntry(resp.StatusCode(), resp.Header(), resp.Body(), c.cache.TTL())
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache response")
		}
	}

	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

// RateLimitState returns a snapshot of the request pacer.
func (c *Client) RateLimitState() ratelimit.State {
	return c.limiter.State()
}

// CacheEnabled reports whether responses are cached in Redis.
func (c *Client) CacheEnabled() bool {
	return c.cache != nil
}

// Close releases idle connections. The Redis client is owned by the caller.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

// SetTransport replaces the HTTP transport (for testing).
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.http.SetTransport(rt)
}

// resourceOf returns the resource kind of a SWAPI URL, e.g. "people" for
// https://swapi.dev/api/people/1/. Unknown shapes map to "other".
func resourceOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "other"
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, s := range segments {
		if s == "api" && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1]
		}
	}
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "other"
}

// restyLogger routes resty's own diagnostics through zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) { l.logger.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...any)  { l.logger.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...any) { l.logger.Debug().Msgf(format, v...) }
