// Package metrics serves the Prometheus metrics of a loader run.
// The metrics themselves are defined with promauto in the packages that
// record them (client, cache, ratelimit, batch, pipeline).
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
	"github.com/rs/zerolog/log"
)

// Registry is the registry every promauto metric registers with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source served on /metrics.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Server exposes Handler on an address for the duration of a run.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on addr and serves in the background until Shutdown.
func Start(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{Handler: Handler(), ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return s, nil
}

// Addr returns the bound address, useful with port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - swapi_requests_total{resource, status} (Counter): requests by resource kind and status
//   - swapi_request_duration_seconds{resource} (Histogram): request duration
//   - swapi_errors_total{class} (Counter): errors by class (client, server, rate_limit, network)
//   - swapi_retries_total{error_class}, swapi_retry_backoff_seconds{error_class},
//     swapi_retry_exhausted_total{error_class}
//
// Cache Metrics (pkg/cache):
//   - swapi_cache_hits_total, swapi_cache_misses_total, swapi_cache_stored_bytes_total,
//     swapi_cache_not_modified_total, swapi_cache_errors_total{operation}
//
// Pacing Metrics (pkg/ratelimit):
//   - swapi_rate_limit_wait_seconds (Histogram), swapi_rate_limit_pauses_total (Counter)
//
// Fan-out Metrics (pkg/batch):
//   - swapi_fanout_size (Histogram)
//
// Pipeline Metrics (internal/pipeline):
//   - swapi_pipeline_batches_total{result}, swapi_pipeline_batch_duration_seconds,
//     swapi_pipeline_rows_stored_total, swapi_pipeline_records_skipped_total,
//     swapi_pipeline_insert_failures_total
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(swapi_cache_hits_total[5m])) /
//   (sum(rate(swapi_cache_hits_total[5m])) + sum(rate(swapi_cache_misses_total[5m])))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(swapi_request_duration_seconds_bucket[5m]))
