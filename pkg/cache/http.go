package cache

import (
	"net/http"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when no expires header is present.
	// SWAPI reference data does not change between runs.
	DefaultTTL = 24 * time.Hour
)

// NewEntry builds a CacheEntry from a response. fallbackTTL applies when the
// response has no usable Expires header.
func NewEntry(statusCode int, header http.Header, body []byte, fallbackTTL time.Duration) *CacheEntry {
	now := time.Now()
	entry := &CacheEntry{
		Data:       append([]byte(nil), body...),
		ETag:       header.Get("ETag"),
		StatusCode: statusCode,
		CachedAt:   now,
		Expires:    ExpiresFrom(header, fallbackTTL),
	}

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

// ExpiresFrom parses the Expires header, falling back to now + fallbackTTL
// (DefaultTTL when fallbackTTL is zero) when absent or malformed.
func ExpiresFrom(headers http.Header, fallbackTTL time.Duration) time.Time {
	if fallbackTTL <= 0 {
		fallbackTTL = DefaultTTL
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return time.Now().Add(fallbackTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return time.Now().Add(fallbackTTL)
	}

	if expires.Before(time.Now()) {
		return time.Now()
	}

	return expires
}

// ShouldMakeConditionalRequest reports whether the entry carries a validator
// (ETag or Last-Modified) usable for revalidation.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// ConditionalHeaders returns If-None-Match or If-Modified-Since for the entry.
// ETag is preferred over Last-Modified.
func ConditionalHeaders(entry *CacheEntry) map[string]string {
	headers := map[string]string{}
	if entry == nil {
		return headers
	}

	if entry.ETag != "" {
		headers["If-None-Match"] = entry.ETag
	} else if !entry.LastModified.IsZero() {
		headers["If-Modified-Since"] = entry.LastModified.UTC().Format(http.TimeFormat)
	}
	return headers
}
