// Package cache stores fetched page bodies in Redis so repeated syncs can
// revalidate pages with conditional requests instead of downloading them.
package cache

import (
	"time"
)

// CacheEntry is a cached page body plus the validators needed to revalidate it.
type CacheEntry struct {
	// Data is the raw JSON page body.
	Data []byte `json:"data"`

	// ETag is sent back as If-None-Match.
	ETag string `json:"etag,omitempty"`

	// LastModified is sent back as If-Modified-Since when no ETag exists.
	LastModified time.Time `json:"last_modified,omitempty"`

	// Expires bounds how long Redis keeps the entry.
	Expires time.Time `json:"expires"`

	// StatusCode of the response the entry was built from.
	StatusCode int `json:"status_code"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
