// Package cache stores upstream SWAPI responses in Redis so that reference URLs
// shared between characters (films, planets, starships) are fetched once per TTL.
//
// The reference data is effectively static, so entries live for a configurable
// TTL (DefaultTTL when the upstream sends no Expires header). When the upstream
// does send an ETag or Last-Modified, stale entries are revalidated with a
// conditional request instead of being refetched in full.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	key := cache.KeyFor("https://swapi.dev/api/planets/1/")
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(status, header, body, manager.TTL()))
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		req.SetHeaders(cache.ConditionalHeaders(entry))
//	}
//
// # Metrics
//
//   - swapi_cache_hits_total - Cache hits
//   - swapi_cache_misses_total - Cache misses
//   - swapi_cache_stored_bytes_total - Bytes written to Redis
//   - swapi_cache_not_modified_total - 304 revalidations
//   - swapi_cache_errors_total{operation} - Cache operation errors
package cache
