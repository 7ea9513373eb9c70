package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var fanOutSize = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "swapi_fanout_size",
	Help:    "Number of requests per fan-out",
	Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
})

// Config holds fan-out configuration.
type Config struct {
	// MaxConcurrency is the maximum number of requests in flight.
	MaxConcurrency int

	// Timeout per item. Zero means no per-item timeout.
	Timeout time.Duration
}

// DefaultConfig returns the default fan-out configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        30 * time.Second,
	}
}

// Fetcher runs bounded fan-outs. It holds no per-call state and may be shared.
type Fetcher struct {
	config Config
}

// NewFetcher creates a new fetcher.
func NewFetcher(config Config) *Fetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	return &Fetcher{config: config}
}

// Config returns the effective configuration.
func (f *Fetcher) Config() Config {
	return f.config
}

// Map calls fn for every item with at most MaxConcurrency calls in flight
// and returns the results in input order. The first error cancels the
// remaining calls and is returned with the index of the failing item.
func Map[In, Out any](ctx context.Context, f *Fetcher, items []In, fn func(ctx context.Context, i int, item In) (Out, error)) ([]Out, error) {
	results := make([]Out, len(items))
	if len(items) == 0 {
		return results, nil
	}

	start := time.Now()
	fanOutSize.Observe(float64(len(items)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.MaxConcurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			itemCtx := gctx
			if f.config.Timeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(gctx, f.config.Timeout)
				defer cancel()
			}

			out, err := fn(itemCtx, i, item)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			// each goroutine owns its slot
			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Debug().
			Err(err).
			Int("items", len(items)).
			Dur("duration", time.Since(start)).
			Msg("Fan-out failed")
		return nil, err
	}

	log.Debug().
		Int("items", len(items)).
		Int("concurrency", f.config.MaxConcurrency).
		Dur("duration", time.Since(start)).
		Msg("Fan-out complete")

	return results, nil
}
