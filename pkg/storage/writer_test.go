package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
	"github.com/google/uuid"
)

func rick() record.Character {
	return record.Character{
		ID:       1,
		Name:     "Rick Sanchez",
		Status:   "Alive",
		Species:  "Human",
		Gender:   "Male",
		Origin:   record.NamedRef{Name: "Earth (C-137)", URL: "https://rickandmortyapi.com/api/location/1"},
		Location: record.NamedRef{Name: "Citadel of Ricks", URL: "https://rickandmortyapi.com/api/location/3"},
		Image:    "https://rickandmortyapi.com/api/character/avatar/1.jpeg",
		Episode:  []string{"https://rickandmortyapi.com/api/episode/1", "https://rickandmortyapi.com/api/episode/2"},
		URL:      "https://rickandmortyapi.com/api/character/1",
		Created:  "2017-11-04T18:48:46.250Z",
	}
}

func pilot() record.Episode {
	return record.Episode{
		ID:         1,
		Name:       "Pilot",
		AirDate:    "December 2, 2013",
		Episode:    "S01E01",
		Characters: []string{"https://rickandmortyapi.com/api/character/1"},
		URL:        "https://rickandmortyapi.com/api/episode/1",
		Created:    "2017-11-10T12:56:33.798Z",
	}
}

func TestWriter_PersistCharacter(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	in := rick()
	out, err := w.Persist(in)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if out.RecordID() != in.ID {
		t.Errorf("Persist() returned record %d, want pass-through of %d", out.RecordID(), in.ID)
	}

	path := filepath.Join(root, "character", "Rick Sanchez.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	for _, key := range []string{"Id", "Metadata", "RawData"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("envelope missing key %q", key)
		}
	}

	var id string
	json.Unmarshal(doc["Id"], &id)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Id %q is not a UUID: %v", id, err)
	}

	var metadata string
	json.Unmarshal(doc["Metadata"], &metadata)
	if metadata != "Rick Sanchez" {
		t.Errorf("Metadata = %q, want Rick Sanchez", metadata)
	}

	var raw struct {
		ID int `json:"id"`
	}
	json.Unmarshal(doc["RawData"], &raw)
	if raw.ID != 1 {
		t.Errorf("RawData.id = %d, want 1", raw.ID)
	}
}

func TestWriter_IdempotentOverwrite(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	if _, err := w.Persist(pilot()); err != nil {
		t.Fatalf("first Persist() error = %v", err)
	}
	path := filepath.Join(root, "episode", "Pilot.json")
	first, err := ReadEnvelope(path)
	if err != nil {
		t.Fatalf("ReadEnvelope() error = %v", err)
	}

	if _, err := w.Persist(pilot()); err != nil {
		t.Fatalf("second Persist() error = %v", err)
	}
	second, err := ReadEnvelope(path)
	if err != nil {
		t.Fatalf("ReadEnvelope() error = %v", err)
	}

	if first.Id == second.Id {
		t.Error("Id should be regenerated on every write")
	}
	if first.Metadata != second.Metadata {
		t.Errorf("Metadata changed: %q vs %q", first.Metadata, second.Metadata)
	}
	if string(first.RawData) != string(second.RawData) {
		t.Errorf("RawData changed:\n%s\n%s", first.RawData, second.RawData)
	}

	entries, err := os.ReadDir(filepath.Join(root, "episode"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("episode dir has %d entries, want 1 (no temp files left)", len(entries))
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	tests := []record.Record{
		rick(),
		pilot(),
		record.Location{
			ID:        1,
			Name:      "Earth (C-137)",
			Type:      "Planet",
			Dimension: "Dimension C-137",
			Residents: []string{"https://rickandmortyapi.com/api/character/38"},
			URL:       "https://rickandmortyapi.com/api/location/1",
			Created:   "2017-11-10T12:42:04.162Z",
		},
	}

	for _, in := range tests {
		t.Run(string(in.RecordKind()), func(t *testing.T) {
			if _, err := w.Persist(in); err != nil {
				t.Fatalf("Persist() error = %v", err)
			}
			path, err := w.Path(in)
			if err != nil {
				t.Fatalf("Path() error = %v", err)
			}
			env, err := ReadEnvelope(path)
			if err != nil {
				t.Fatalf("ReadEnvelope() error = %v", err)
			}
			out, err := env.Decode(in.RecordKind())
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			want, _ := json.Marshal(in)
			got, _ := json.Marshal(out)
			if string(got) != string(want) {
				t.Errorf("round trip mismatch:\n got %s\nwant %s", got, want)
			}
		})
	}
}

func TestWriter_IDGenerator(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, WithIDGenerator(func() string { return "fixed-id" }))

	if _, err := w.Persist(pilot()); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	env, err := ReadEnvelope(filepath.Join(root, "episode", "Pilot.json"))
	if err != nil {
		t.Fatalf("ReadEnvelope() error = %v", err)
	}
	if env.Id != "fixed-id" {
		t.Errorf("Id = %q, want fixed-id", env.Id)
	}
}

func TestWriter_FileMode(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, WithFileMode(0o600))

	if _, err := w.Persist(pilot()); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "episode", "Pilot.json"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestWriter_DryRun(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, WithDryRun(true))

	if _, err := w.Persist(rick()); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "character")); !os.IsNotExist(err) {
		t.Errorf("dry run created the kind directory: %v", err)
	}

	bad := rick()
	bad.Name = "../escape"
	if _, err := w.Persist(bad); !errors.Is(err, ErrInvalidRecordName) {
		t.Errorf("dry run should still validate names, got %v", err)
	}
}

func TestWriter_InvalidName(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	for _, name := range []string{"", "   ", "..", "../etc/passwd", `a\b`, "nul\x00byte"} {
		rec := pilot()
		rec.Name = name
		_, err := w.Persist(rec)
		if !errors.Is(err, ErrInvalidRecordName) {
			t.Errorf("Persist(%q) error = %v, want ErrInvalidRecordName", name, err)
			continue
		}
		var nameErr *NameError
		if errors.As(err, &nameErr) && nameErr.Kind != record.KindEpisode {
			t.Errorf("NameError.Kind = %q, want episode", nameErr.Kind)
		}
	}

	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("invalid names left %d entries in root", len(entries))
	}
}

func TestWriter_PersistenceError(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(root)
	_, err := w.Persist(pilot())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Persist() error = %v, want ErrPersistence", err)
	}

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PersistenceError, got %T", err)
	}
	if perr.Op != "mkdir" || perr.Kind != record.KindEpisode || perr.Name != "Pilot" {
		t.Errorf("PersistenceError = %+v", perr)
	}
	if !strings.Contains(err.Error(), "Pilot") {
		t.Errorf("error %q should name the record", err)
	}
}
