// Package metrics exposes the Prometheus metrics of rmsync.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, pagination, storage) via promauto and registered with the
// default registry.
//
// Fetch Metrics (pkg/client):
//   - rmsync_requests_total{endpoint, status} (Counter): upstream requests by endpoint and HTTP status
//   - rmsync_request_duration_seconds{endpoint} (Histogram): logical fetch duration, retries included
//   - rmsync_errors_total{class} (Counter): failed attempts by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - rmsync_retries_total{error_class} (Counter): retry attempts by error class
//   - rmsync_retry_backoff_seconds{error_class} (Histogram): backoff waits by error class
//   - rmsync_retry_exhausted_total{error_class} (Counter): fetches that ran out of attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - rmsync_rate_limit_waits_total (Counter): waits caused by a server requested pause
//   - rmsync_rate_limit_remaining (Gauge): last X-RateLimit-Remaining seen
//
// Cache Metrics (pkg/cache):
//   - rmsync_cache_hits_total (Counter)
//   - rmsync_cache_misses_total (Counter)
//   - rmsync_304_responses_total (Counter): pages served from cache after revalidation
//   - rmsync_cache_errors_total{operation} (Counter)
//
// Pipeline Metrics (pkg/pagination, pkg/storage):
//   - rmsync_pages_fetched_total{kind} (Counter)
//   - rmsync_records_written_total{kind} (Counter)
//   - rmsync_write_errors_total{kind} (Counter)
//
// Example Prometheus Queries:
//
//	# Retry pressure per class
//	rate(rmsync_retries_total[5m])
//
//	# P95 fetch latency
//	histogram_quantile(0.95, rate(rmsync_request_duration_seconds_bucket[5m]))
//
//	# Records written per kind
//	sum by (kind) (rmsync_records_written_total)
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registry is the Prometheus registry every rmsync metric is registered with.
var Registry = prometheus.DefaultRegisterer

// NewHandler returns a mux serving /metrics and /health.
func NewHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Server exposes the metrics endpoint while a sync runs.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
	logger   zerolog.Logger
}

// Listen binds addr and starts serving in the background.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		done:     make(chan error, 1),
		logger:   log.With().Str("component", "metrics").Logger(),
	}

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics: %w", err)
	}
	return <-s.done
}
