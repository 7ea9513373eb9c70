package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapi_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the request pacer",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	})

	rateLimitPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_rate_limit_pauses_total",
		Help: "Total number of throttling responses that paused requests",
	})
)

// Config holds the pacer configuration.
type Config struct {
	// RequestsPerSecond is the sustained request rate. Zero or negative disables pacing.
	RequestsPerSecond float64

	// Burst is the number of requests allowed back to back.
	Burst int
}

// DefaultConfig returns the default pacer configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
	}
}

// Tracker gates outgoing requests. It is safe for concurrent use.
type Tracker struct {
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewTracker creates a new tracker.
func NewTracker(cfg Config, logger zerolog.Logger) *Tracker {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Tracker{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// State returns a snapshot of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait blocks until a request may be sent: first until any pause set by a
// throttling response has passed, then until the pacer grants a token.
func (t *Tracker) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		rateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	if pause := t.State().TimeUntilResume(); pause > 0 {
		t.logger.Debug().Dur("pause", pause).Msg("Waiting for upstream throttle to lift")
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return t.limiter.Wait(ctx)
}

// Observe records a response. Throttling statuses pause subsequent requests
// for the Retry-After duration (DefaultPause when absent).
func (t *Tracker) Observe(status int, header http.Header) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.LastStatus = status
	if !IsThrottlingStatus(status) {
		return
	}

	now := time.Now()
	pause, ok := ParseRetryAfter(header, now)
	if !ok {
		pause = DefaultPause
	}

	resumeAt := now.Add(pause)
	if resumeAt.After(t.state.PausedUntil) {
		t.state.PausedUntil = resumeAt
	}
	t.state.Pauses++
	rateLimitPausesTotal.Inc()

	t.logger.Warn().
		Int("status", status).
		Dur("pause", pause).
		Time("resume_at", t.state.PausedUntil).
		Msg("Upstream throttling - pausing requests")
}
