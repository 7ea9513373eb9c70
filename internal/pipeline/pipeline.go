// Package pipeline loads people from SWAPI into a store: fetch a batch of
// ids, resolve their references to names, flatten and insert.
//
// Batches are fetched one after another. A batch's insert runs in the
// background so the next fetch can start; at most InsertConcurrency inserts
// are in flight and all of them are joined before Run returns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/swapi-loader/internal/people"
	"github.com/Sternrassler/swapi-loader/internal/storage"
	"github.com/Sternrassler/swapi-loader/pkg/batch"
)

// Defaults of a run.
const (
	DefaultStartID           = 0
	DefaultEndID             = 100
	DefaultBatchSize         = 1
	DefaultFetchConcurrency  = 10
	DefaultInsertConcurrency = 4
)

// Config holds pipeline configuration.
type Config struct {
	// StartID and EndID bound the half-open id range [StartID, EndID).
	StartID int
	EndID   int

	// BatchSize is the number of ids fetched, resolved and inserted together.
	BatchSize int

	// FetchConcurrency bounds concurrent requests within a fan-out.
	FetchConcurrency int

	// InsertConcurrency bounds inserts in flight.
	InsertConcurrency int
}

// DefaultConfig returns the default run: ids 0..99 in batches of one.
func DefaultConfig() Config {
	return Config{
		StartID:           DefaultStartID,
		EndID:             DefaultEndID,
		BatchSize:         DefaultBatchSize,
		FetchConcurrency:  DefaultFetchConcurrency,
		InsertConcurrency: DefaultInsertConcurrency,
	}
}

// Summary reports the outcome of a run.
type Summary struct {
	Batches       int
	Fetched       int
	Stored        int64
	Skipped       int
	FailedInserts int
	Elapsed       time.Duration
}

// Pipeline wires a fetcher, a resolver and a store.
type Pipeline struct {
	fetcher  *Fetcher
	resolver *Resolver
	store    storage.Store
	config   Config
	logger   zerolog.Logger
}

// New creates a pipeline. Zero config fields take their defaults.
func New(getter Getter, store storage.Store, cfg Config, logger zerolog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = def.FetchConcurrency
	}
	if cfg.InsertConcurrency <= 0 {
		cfg.InsertConcurrency = def.InsertConcurrency
	}

	fetcher := NewFetcher(getter, cfg.FetchConcurrency)
	return &Pipeline{
		fetcher:  fetcher,
		resolver: NewResolver(fetcher, logger),
		store:    store,
		config:   cfg,
		logger:   logger,
	}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.config
}

// Run processes every batch of the id range.
//
// A fetch or resolve failure stops the run after pending inserts have
// finished; batches committed before stay committed. Insert failures do not
// stop the run and are all returned, joined, at the end.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	ranges := batch.Split(p.config.StartID, p.config.EndID, p.config.BatchSize)

	p.logger.Info().
		Int("start_id", p.config.StartID).
		Int("end_id", p.config.EndID).
		Int("batch_size", p.config.BatchSize).
		Int("batches", len(ranges)).
		Msg("Run started")

	var (
		summary Summary
		stored  atomic.Int64

		mu         sync.Mutex
		insertErrs []error
	)

	var inserts errgroup.Group
	inserts.SetLimit(p.config.InsertConcurrency)

	var fetchErr error
	for _, r := range ranges {
		rows, fetched, skipped, err := p.prepare(ctx, r)
		summary.Fetched += fetched
		summary.Skipped += skipped
		if err != nil {
			batchesTotal.WithLabelValues("fetch_error").Inc()
			p.logger.Error().Err(err).Stringer("batch", r).Msg("Batch failed")
			fetchErr = fmt.Errorf("batch %s: %w", r, err)
			break
		}
		summary.Batches++

		if len(rows) == 0 {
			batchesTotal.WithLabelValues("ok").Inc()
			continue
		}

		r := r
		inserts.Go(func() error {
			n, err := p.store.InsertPeople(ctx, rows)
			if err != nil {
				batchesTotal.WithLabelValues("insert_error").Inc()
				insertFailuresTotal.Inc()
				p.logger.Error().Err(err).Stringer("batch", r).Int("rows", len(rows)).Msg("Insert failed")

				mu.Lock()
				insertErrs = append(insertErrs, fmt.Errorf("insert batch %s: %w", r, err))
				mu.Unlock()
				return nil
			}

			batchesTotal.WithLabelValues("ok").Inc()
			rowsStoredTotal.Add(float64(n))
			stored.Add(n)
			p.logger.Info().Stringer("batch", r).Int64("rows", n).Msg("Batch stored")
			return nil
		})
	}

	// inserts never return an error to the group; failures are collected
	_ = inserts.Wait()

	summary.Stored = stored.Load()
	summary.FailedInserts = len(insertErrs)
	summary.Elapsed = time.Since(start)

	err := errors.Join(append([]error{fetchErr}, insertErrs...)...)

	event := p.logger.Info()
	if err != nil {
		event = p.logger.Warn().Err(err)
	}
	event.
		Int("batches", summary.Batches).
		Int("fetched", summary.Fetched).
		Int64("stored", summary.Stored).
		Int("skipped", summary.Skipped).
		Int("failed_inserts", summary.FailedInserts).
		Dur("elapsed", summary.Elapsed).
		Msg("Run finished")

	return summary, err
}

// prepare fetches, resolves and flattens one batch.
func (p *Pipeline) prepare(ctx context.Context, r batch.Range) (rows []people.Row, fetched, skipped int, err error) {
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	records, err := p.fetcher.FetchPeople(ctx, r.IDs())
	if err != nil {
		return nil, 0, 0, fmt.Errorf("fetch: %w", err)
	}

	resolved, err := p.resolver.Resolve(ctx, records)
	if err != nil {
		return nil, len(records), 0, fmt.Errorf("resolve: %w", err)
	}

	rows, skipped = people.BuildRows(records, resolved)
	if skipped > 0 {
		recordsSkippedTotal.Add(float64(skipped))
		p.logger.Debug().Stringer("batch", r).Int("skipped", skipped).Msg("Records without data dropped")
	}

	p.logger.Debug().
		Stringer("batch", r).
		Int("records", len(records)).
		Int("rows", len(rows)).
		Msg("Batch prepared")

	return rows, len(records), skipped, nil
}
