package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Sternrassler/swapi-loader/internal/people"
	"github.com/Sternrassler/swapi-loader/pkg/batch"
	"github.com/Sternrassler/swapi-loader/pkg/client"
)

// Getter is the subset of *client.Client the pipeline uses.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*client.Response, error)
	PersonURL(id int) string
}

// Fetcher retrieves people and referenced resources.
type Fetcher struct {
	getter Getter
	fanout *batch.Fetcher
}

// NewFetcher creates a fetcher running at most concurrency requests at once.
func NewFetcher(getter Getter, concurrency int) *Fetcher {
	cfg := batch.DefaultConfig()
	if concurrency > 0 {
		cfg.MaxConcurrency = concurrency
	}
	return &Fetcher{getter: getter, fanout: batch.NewFetcher(cfg)}
}

// FetchObject retrieves an absolute resource URL.
//
// A 4xx answer is not an error: its decoded body, typically
// {"detail":"Not found"}, is returned and dropped later by the row filter.
func (f *Fetcher) FetchObject(ctx context.Context, rawURL string) (people.Record, error) {
	resp, err := f.getter.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var rec people.Record
	if err := resp.Decode(&rec); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return people.Record{"detail": http.StatusText(resp.StatusCode)}, nil
		}
		return nil, err
	}
	if rec == nil {
		rec = people.Record{}
	}
	return rec, nil
}

// FetchPeople retrieves the people with the given ids, one request each,
// concurrently. Records are returned in id order.
func (f *Fetcher) FetchPeople(ctx context.Context, ids []int) ([]people.Record, error) {
	return batch.Map(ctx, f.fanout, ids, func(ctx context.Context, _ int, id int) (people.Record, error) {
		rec, err := f.FetchObject(ctx, f.getter.PersonURL(id))
		if err != nil {
			return nil, fmt.Errorf("person %d: %w", id, err)
		}
		return rec, nil
	})
}
