package pipeline

import (
	"testing"
	"time"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
	"github.com/stretchr/testify/assert"
)

func TestEpisodeAiredBetween(t *testing.T) {
	filter := EpisodeAiredBetween(DefaultAiredFrom, DefaultAiredTo, DefaultMinNameLen)

	tests := []struct {
		name    string
		episode record.Episode
		want    bool
	}{
		{"inside window", record.Episode{Name: "Rickmancing the Stone", AirDate: "December 2, 2017"}, true},
		{"before window", record.Episode{Name: "Pilot", AirDate: "January 1, 2010"}, false},
		{"first day inclusive", record.Episode{Name: "Something", AirDate: "January 1, 2017"}, true},
		{"last day inclusive", record.Episode{Name: "Something", AirDate: "December 31, 2021"}, true},
		{"after window", record.Episode{Name: "Something", AirDate: "January 1, 2022"}, false},
		{"name too short", record.Episode{Name: "Abc", AirDate: "May 5, 2019"}, false},
		{"name just long enough", record.Episode{Name: "Abcd", AirDate: "May 5, 2019"}, true},
		{"unparseable date", record.Episode{Name: "Something", AirDate: "2019-05-05"}, false},
		{"empty date", record.Episode{Name: "Something"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filter(tt.episode))
		})
	}
}

func TestEpisodeAiredBetween_IgnoresTimeOfDay(t *testing.T) {
	from := time.Date(2017, 1, 1, 15, 30, 0, 0, time.UTC)
	to := time.Date(2017, 1, 1, 1, 0, 0, 0, time.UTC)
	filter := EpisodeAiredBetween(from, to, 0)

	assert.True(t, filter(record.Episode{Name: "x", AirDate: "January 1, 2017"}))
}

func TestEpisodeAiredBetween_OtherKinds(t *testing.T) {
	filter := EpisodeAiredBetween(DefaultAiredFrom, DefaultAiredTo, 0)
	assert.False(t, filter(record.Character{Name: "Rick Sanchez"}))
}

func TestCharacterOddEpisodes(t *testing.T) {
	filter := CharacterOddEpisodes()
	ep := func(n string) string { return "https://rickandmortyapi.com/api/episode/" + n }

	tests := []struct {
		name     string
		episodes []string
		want     bool
	}{
		{"all odd", []string{ep("1"), ep("3"), ep("51")}, true},
		{"one even", []string{ep("1"), ep("10")}, false},
		{"single even", []string{ep("28")}, false},
		{"no episodes", nil, true},
		{"non digit suffix", []string{ep("1/")}, false},
		{"empty reference", []string{""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filter(record.Character{Name: "x", Episode: tt.episodes}))
		})
	}

	assert.False(t, filter(record.Episode{Name: "Pilot"}))
}

func TestFilterObserver(t *testing.T) {
	var emitted []string
	obs := FilterObserver{
		Filter: CharacterOddEpisodes(),
		Emit:   func(rec record.Record) { emitted = append(emitted, rec.RecordName()) },
	}

	assert.True(t, obs.Observe(record.Character{Name: "Odd", Episode: []string{"/episode/3"}}))
	assert.False(t, obs.Observe(record.Character{Name: "Even", Episode: []string{"/episode/4"}}))
	assert.Equal(t, []string{"Odd"}, emitted)

	all := FilterObserver{}
	assert.True(t, all.Observe(record.Location{Name: "Earth"}))
}
