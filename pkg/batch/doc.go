// Package batch splits id ranges into batches and fans out independent
// requests with a concurrency bound.
//
// Results are index-tagged: the i-th result always belongs to the i-th
// input, whatever order the requests complete in.
//
// Example usage:
//
//	fetcher := batch.NewFetcher(batch.DefaultConfig())
//	records, err := batch.Map(ctx, fetcher, urls, func(ctx context.Context, i int, url string) (Record, error) {
//		return fetch(ctx, url)
//	})
//
// Splitting a run:
//
//	for _, r := range batch.Split(0, 100, 10) {
//		// r.Start .. r.End-1
//	}
package batch
