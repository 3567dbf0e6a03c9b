package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "rmsync"

// CacheKey identifies one cached page.
type CacheKey struct {
	// Endpoint is the URL path, e.g. "/api/character/".
	Endpoint string

	// QueryParams are the request query parameters, e.g. page=2.
	QueryParams url.Values
}

// KeyForURL builds the cache key for a page URL.
func KeyForURL(rawURL string) (CacheKey, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return CacheKey{}, fmt.Errorf("parse cache url: %w", err)
	}
	return CacheKey{
		Endpoint:    u.Host + u.Path,
		QueryParams: u.Query(),
	}, nil
}

// String generates a deterministic key.
// Format: rmsync:host/path:param1=val1:param2=val2
//
// Example:
//
//	rmsync:rickandmortyapi.com/api/character:page=2
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		keys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
