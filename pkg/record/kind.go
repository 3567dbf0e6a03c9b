// Package record defines the typed Rick and Morty API records and the
// schema-validated decoder that turns raw page results into them.
package record

import (
	"fmt"
	"strings"
)

// Kind identifies a record schema. It doubles as the API endpoint name and
// the output directory name.
type Kind string

const (
	// KindCharacter is the /character endpoint.
	KindCharacter Kind = "character"

	// KindLocation is the /location endpoint.
	KindLocation Kind = "location"

	// KindEpisode is the /episode endpoint.
	KindEpisode Kind = "episode"
)

// AllKinds returns every kind in the order the original sync processed them.
func AllKinds() []Kind {
	return []Kind{KindEpisode, KindLocation, KindCharacter}
}

// ParseKind converts a user supplied name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCharacter, KindLocation, KindEpisode:
		return k, nil
	default:
		return "", fmt.Errorf("unknown record kind %q", s)
	}
}

// ParseKinds parses a list of kind names, dropping duplicates while keeping
// the first occurrence order.
func ParseKinds(names []string) ([]Kind, error) {
	seen := make(map[Kind]bool, len(names))
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// requiredFields lists the JSON fields that must be present and non-null.
var requiredFields = map[Kind][]string{
	KindCharacter: {"id", "name", "status", "species", "type", "gender", "origin", "location", "image", "episode", "url", "created"},
	KindLocation:  {"id", "name", "type", "dimension", "residents", "url", "created"},
	KindEpisode:   {"id", "name", "air_date", "episode", "characters", "url", "created"},
}
