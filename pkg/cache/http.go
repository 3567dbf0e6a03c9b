package cache

import (
	"net/http"
	"time"
)

// DefaultTTL is used when a response carries no usable Expires header.
const DefaultTTL = 24 * time.Hour

// ResponseToEntry builds a CacheEntry from response headers and an already
// read body.
func ResponseToEntry(resp *http.Response, body []byte) *CacheEntry {
	if resp == nil {
		return nil
	}

	entry := &CacheEntry{
		Data:       body,
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
		Expires:    parseExpires(resp.Header),
		CachedAt:   time.Now(),
	}

	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		if t, err := http.ParseTime(lastMod); err == nil {
			entry.LastModified = t
		}
	}

	return entry
}

// ExpiresFromHeaders returns the expiry a 304 response grants an entry.
func ExpiresFromHeaders(headers http.Header) time.Time {
	return parseExpires(headers)
}

// parseExpires returns the Expires header value, or now+DefaultTTL when the
// header is missing, unparseable or already in the past. The API data is
// near-static, so a stale Expires still deserves revalidation later.
func parseExpires(headers http.Header) time.Time {
	now := time.Now()

	raw := headers.Get("Expires")
	if raw == "" {
		return now.Add(DefaultTTL)
	}

	expires, err := http.ParseTime(raw)
	if err != nil || !expires.After(now) {
		return now.Add(DefaultTTL)
	}
	return expires
}

// ShouldMakeConditionalRequest reports whether entry carries a validator.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// AddConditionalHeaders adds If-None-Match, or If-Modified-Since when no
// ETag is known.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if entry == nil || req == nil {
		return
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
	}
}
