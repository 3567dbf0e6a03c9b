// Package ratelimit throttles requests to the upstream API. A token bucket
// paces requests proactively and server hints (Retry-After, X-RateLimit-*)
// pause all requests reactively. The pause can be shared through Redis.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RedisKeyPausedUntil holds the shared pause deadline in Unix nanoseconds.
const RedisKeyPausedUntil = "rmsync:rate_limit:paused_until"

// Response headers understood by the tracker.
const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
	HeaderRetryAfter    = "Retry-After"
)

// State is a snapshot of what the server told us about its limits.
type State struct {
	// Remaining requests in the current window, -1 when unknown.
	Remaining int

	// Limit of the current window, -1 when unknown.
	Limit int

	// ResetAt is when the window resets; zero when unknown.
	ResetAt time.Time

	// PausedUntil blocks every request until it has passed.
	PausedUntil time.Time

	// LastUpdate is when headers were last applied.
	LastUpdate time.Time
}

// IsPaused reports whether requests must wait at now.
func (s State) IsPaused(now time.Time) bool {
	return now.Before(s.PausedUntil)
}

// TimeUntilResume returns how long requests must wait, or 0.
func (s State) TimeUntilResume(now time.Time) time.Duration {
	if !s.IsPaused(now) {
		return 0
	}
	return s.PausedUntil.Sub(now)
}

// ParseRetryAfter reads a Retry-After header given either as seconds or as
// an HTTP date.
func ParseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	raw := strings.TrimSpace(h.Get(HeaderRetryAfter))
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
