package pipeline

import (
	"github.com/Sternrassler/rickmorty-sync/pkg/record"
)

// Observer sees every record after it has been persisted. Observe reports
// whether the record was selected.
type Observer interface {
	Observe(rec record.Record) bool
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(rec record.Record) bool

func (f ObserverFunc) Observe(rec record.Record) bool {
	return f(rec)
}

// FilterObserver calls Emit for every record accepted by Filter.
type FilterObserver struct {
	Filter Filter
	Emit   func(rec record.Record)
}

func (o FilterObserver) Observe(rec record.Record) bool {
	if o.Filter != nil && !o.Filter(rec) {
		return false
	}
	if o.Emit != nil {
		o.Emit(rec)
	}
	return true
}

// DefaultObservers returns the reporting observers for each kind: episodes
// aired in the default window with names longer than DefaultMinNameLen, and
// characters that only appear in odd-numbered episodes.
func DefaultObservers(emit func(rec record.Record)) map[record.Kind][]Observer {
	return map[record.Kind][]Observer{
		record.KindEpisode: {
			FilterObserver{Filter: EpisodeAiredBetween(DefaultAiredFrom, DefaultAiredTo, DefaultMinNameLen), Emit: emit},
		},
		record.KindCharacter: {
			FilterObserver{Filter: CharacterOddEpisodes(), Emit: emit},
		},
	}
}
