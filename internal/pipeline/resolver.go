package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/swapi-loader/internal/people"
	"github.com/Sternrassler/swapi-loader/pkg/batch"
)

// Resolver turns reference URLs into display names.
type Resolver struct {
	fetcher *Fetcher
	logger  zerolog.Logger
}

// NewResolver creates a resolver on top of fetcher.
func NewResolver(fetcher *Fetcher, logger zerolog.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, logger: logger}
}

// reference ties a URL to the record it came from.
type reference struct {
	record int
	url    string
}

// ResolveField fetches every reference of field across the resolvable
// records in one fan-out. The result is indexed like records; each entry
// holds that record's names in the order of its URLs.
func (r *Resolver) ResolveField(ctx context.Context, records []people.Record, field string) ([][]string, error) {
	var refs []reference
	for i, rec := range records {
		if !rec.Resolvable() {
			continue
		}
		for _, u := range rec.References(field) {
			refs = append(refs, reference{record: i, url: u})
		}
	}

	names := make([][]string, len(records))
	if len(refs) == 0 {
		return names, nil
	}

	key := people.DisplayKey(field)
	resolved, err := batch.Map(ctx, r.fetcher.fanout, refs, func(ctx context.Context, _ int, ref reference) (string, error) {
		obj, err := r.fetcher.FetchObject(ctx, ref.url)
		if err != nil {
			return "", fmt.Errorf("%s %s: %w", field, ref.url, err)
		}
		return obj.String(key), nil
	})
	if err != nil {
		return nil, err
	}

	for i, ref := range refs {
		names[ref.record] = append(names[ref.record], resolved[i])
	}

	r.logger.Debug().
		Str("field", field).
		Int("references", len(refs)).
		Msg("Field resolved")

	return names, nil
}

// Resolve resolves every reference field, fields in people.ReferenceFields
// order. The result is indexed like records.
func (r *Resolver) Resolve(ctx context.Context, records []people.Record) ([]people.Resolved, error) {
	out := make([]people.Resolved, len(records))
	for i := range out {
		out[i] = people.Resolved{}
	}

	for _, field := range people.ReferenceFields {
		names, err := r.ResolveField(ctx, records, field)
		if err != nil {
			return nil, err
		}
		for i, n := range names {
			if n != nil {
				out[i][field] = n
			}
		}
	}
	return out, nil
}
