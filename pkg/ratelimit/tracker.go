package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rmsync_rate_limit_waits_total",
		Help: "Total number of requests delayed by a server-requested pause",
	})

	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rmsync_rate_limit_remaining",
		Help: "Requests remaining in the current upstream rate limit window",
	})
)

// Config controls proactive throttling.
type Config struct {
	// Rate is the steady request rate per second; <= 0 disables the bucket.
	Rate float64

	// Burst is the bucket size; defaults to 1.
	Burst int
}

// DefaultConfig returns a polite default for the public API.
func DefaultConfig() Config {
	return Config{Rate: 5, Burst: 1}
}

// Tracker gates outgoing requests. It is safe for concurrent use.
type Tracker struct {
	bucket *rate.Limiter
	redis  *redis.Client
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewTracker creates a tracker. redisClient may be nil, in which case pauses
// are only known to this process.
func NewTracker(cfg Config, redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Tracker{
		bucket: rate.NewLimiter(limit, burst),
		redis:  redisClient,
		logger: logger,
		state:  State{Remaining: -1, Limit: -1},
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	if err := t.bucket.Wait(ctx); err != nil {
		return err
	}

	now := time.Now()
	until := t.pausedUntil(ctx)
	if !now.Before(until) {
		return nil
	}

	wait := until.Sub(now)
	rateLimitWaitsTotal.Inc()
	t.logger.Warn().
		Dur("wait_duration", wait).
		Time("paused_until", until).
		Msg("Upstream requested a pause - waiting")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UpdateFromHeaders applies rate limit hints from a response.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	now := time.Now()

	t.mu.Lock()
	if v, err := strconv.Atoi(headers.Get(HeaderRateRemaining)); err == nil {
		t.state.Remaining = v
		rateLimitRemaining.Set(float64(v))
	}
	if v, err := strconv.Atoi(headers.Get(HeaderRateLimit)); err == nil {
		t.state.Limit = v
	}
	if v, err := strconv.ParseInt(headers.Get(HeaderRateReset), 10, 64); err == nil {
		t.state.ResetAt = time.Unix(v, 0)
	}
	t.state.LastUpdate = now

	var pause time.Time
	if d, ok := ParseRetryAfter(headers, now); ok && d > 0 {
		pause = now.Add(d)
	} else if t.state.Remaining == 0 && t.state.ResetAt.After(now) {
		pause = t.state.ResetAt
	}
	if pause.After(t.state.PausedUntil) {
		t.state.PausedUntil = pause
	}
	t.mu.Unlock()

	if pause.IsZero() {
		return nil
	}

	t.logger.Info().Time("paused_until", pause).Msg("Rate limit pause recorded")

	if t.redis == nil {
		return nil
	}
	if err := t.redis.Set(ctx, RedisKeyPausedUntil, pause.UnixNano(), pause.Sub(now)).Err(); err != nil {
		return fmt.Errorf("store rate limit pause in redis: %w", err)
	}
	return nil
}

// State returns a snapshot of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// pausedUntil merges the local pause with the one shared in Redis. Redis
// errors are logged and ignored so a cache outage never stalls the sync.
func (t *Tracker) pausedUntil(ctx context.Context) time.Time {
	t.mu.Lock()
	until := t.state.PausedUntil
	t.mu.Unlock()

	if t.redis == nil {
		return until
	}

	nanos, err := t.redis.Get(ctx, RedisKeyPausedUntil).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			t.logger.Debug().Err(err).Msg("Failed to read shared rate limit pause")
		}
		return until
	}
	if shared := time.Unix(0, nanos); shared.After(until) {
		return shared
	}
	return until
}
