// Package ratelimit paces requests to the upstream API and honours the
// Retry-After hint the upstream sends with 429 and 503 responses.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Defaults for the request pacer.
const (
	// DefaultRequestsPerSecond keeps a full 100-id run well inside the
	// public API's daily quota while leaving the fan-out useful.
	DefaultRequestsPerSecond = 10

	// DefaultBurst is the number of requests allowed back to back.
	DefaultBurst = 10

	// DefaultPause applies when a throttling response carries no Retry-After.
	DefaultPause = 5 * time.Second

	// MaxPause caps a Retry-After value sent by the upstream.
	MaxPause = 2 * time.Minute
)

// State is a snapshot of the tracker.
type State struct {
	// PausedUntil is when requests may resume after a throttling response.
	PausedUntil time.Time `json:"paused_until"`

	// LastStatus is the status code of the most recent observed response.
	LastStatus int `json:"last_status"`

	// Pauses counts throttling responses observed so far.
	Pauses int `json:"pauses"`
}

// IsPaused returns true if requests are currently held back.
func (s State) IsPaused() bool {
	return time.Now().Before(s.PausedUntil)
}

// TimeUntilResume returns the remaining pause, or 0 if not paused.
func (s State) TimeUntilResume() time.Duration {
	d := time.Until(s.PausedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// IsThrottlingStatus reports whether a status code asks the client to back off.
func IsThrottlingStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// ParseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form. ok is false when the header is absent or malformed.
func ParseRetryAfter(header http.Header, now time.Time) (d time.Duration, ok bool) {
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return clampPause(time.Duration(secs) * time.Second), true
	}

	if at, err := http.ParseTime(v); err == nil {
		return clampPause(at.Sub(now)), true
	}

	return 0, false
}

func clampPause(d time.Duration) time.Duration {
	switch {
	case d < 0:
		return 0
	case d > MaxPause:
		return MaxPause
	default:
		return d
	}
}
