package cache

import (
	"net/url"
	"sort"
	"strings"
)

// keyPrefix namespaces loader entries inside a shared Redis database.
const keyPrefix = "swapi"

// CacheKey identifies a cached upstream response.
type CacheKey struct {
	// Host is the upstream host (e.g. "swapi.dev").
	Host string

	// Path is the resource path (e.g. "/api/planets/1/").
	Path string

	// QueryParams are the query parameters, if any.
	QueryParams url.Values
}

// KeyFor builds a CacheKey from an absolute resource URL. Unparseable input is
// kept verbatim in Path so that it still yields a deterministic key.
func KeyFor(rawURL string) CacheKey {
	u, err := url.Parse(rawURL)
	if err != nil {
		return CacheKey{Path: rawURL}
	}
	return CacheKey{
		Host:        strings.ToLower(u.Host),
		Path:        u.Path,
		QueryParams: u.Query(),
	}
}

// String generates a deterministic cache key string.
// Format: swapi:host:path:query1=val1:query2=val2
//
// Example:
//
//	swapi:swapi.dev:api/planets/1
func (k CacheKey) String() string {
	parts := []string{keyPrefix}

	if k.Host != "" {
		parts = append(parts, k.Host)
	}

	// trailing slashes are insignificant upstream
	if p := strings.Trim(k.Path, "/"); p != "" {
		parts = append(parts, p)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, key+"="+k.QueryParams.Get(key))
		}
	}

	return strings.Join(parts, ":")
}
