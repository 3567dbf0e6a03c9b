package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "Rick Sanchez", "Rick Sanchez", false},
		{"punctuation", "Mr. Poopybutthole", "Mr. Poopybutthole", false},
		{"parentheses", "Earth (C-137)", "Earth (C-137)", false},
		{"trimmed", "  Pilot \t", "Pilot", false},
		{"unicode", "Pickle Rick ü", "Pickle Rick ü", false},
		{"empty", "", "", true},
		{"whitespace only", " \n ", "", true},
		{"dot", ".", "", true},
		{"dot dot", "..", "", true},
		{"slash", "a/b", "", true},
		{"backslash", `a\b`, "", true},
		{"traversal", "../../etc/passwd", "", true},
		{"nul", "a\x00b", "", true},
		{"control", "a\x1bb", "", true},
		{"invalid utf8", "a\xffb", "", true},
		{"too long", strings.Repeat("x", 251), "", true},
		{"at limit", strings.Repeat("x", 250), strings.Repeat("x", 250), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeName(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRecordName) {
					t.Errorf("error %v does not match ErrInvalidRecordName", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPath(t *testing.T) {
	got, err := Path("/data", record.KindCharacter, "Rick Sanchez")
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	want := filepath.Join("/data", "character", "Rick Sanchez.json")
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	again, _ := Path("/data", record.KindCharacter, " Rick Sanchez ")
	if again != got {
		t.Errorf("Path() should depend only on kind and normalised name: %q vs %q", again, got)
	}

	if _, err := Path("/data", record.KindLocation, "../x"); !errors.Is(err, ErrInvalidRecordName) {
		t.Errorf("Path() error = %v, want ErrInvalidRecordName", err)
	}
}
