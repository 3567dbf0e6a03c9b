package pipeline

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
)

// AirDateLayout is the format of Episode.AirDate, e.g. "December 2, 2013".
const AirDateLayout = "January 2, 2006"

// Default reporting window for EpisodeAiredBetween.
var (
	DefaultAiredFrom = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	DefaultAiredTo   = time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)
)

// DefaultMinNameLen is the name length an episode must exceed to be reported.
const DefaultMinNameLen = 3

// Filter selects records for reporting.
type Filter func(rec record.Record) bool

// EpisodeAiredBetween matches episodes aired within [from, to] (by calendar
// date) whose name is longer than minNameLen characters. Episodes with an
// unparseable air date and records of other kinds never match.
func EpisodeAiredBetween(from, to time.Time, minNameLen int) Filter {
	from = truncateDay(from)
	to = truncateDay(to)

	return func(rec record.Record) bool {
		ep, ok := rec.(record.Episode)
		if !ok {
			return false
		}
		aired, err := time.Parse(AirDateLayout, strings.TrimSpace(ep.AirDate))
		if err != nil {
			return false
		}
		if aired.Before(from) || aired.After(to) {
			return false
		}
		return utf8.RuneCountInString(ep.Name) > minNameLen
	}
}

// CharacterOddEpisodes matches characters whose every episode reference ends
// in an odd digit. A character without episodes matches.
func CharacterOddEpisodes() Filter {
	return func(rec record.Record) bool {
		ch, ok := rec.(record.Character)
		if !ok {
			return false
		}
		for _, ref := range ch.Episode {
			if !endsInOddDigit(ref) {
				return false
			}
		}
		return true
	}
}

func endsInOddDigit(s string) bool {
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	if last < '0' || last > '9' {
		return false
	}
	return (last-'0')%2 == 1
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
