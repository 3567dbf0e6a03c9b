package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
)

// Envelope is the persisted wrapper around one record.
type Envelope struct {
	// Id is a random UUID generated on every write.
	Id       string          `json:"Id"`
	Metadata string          `json:"Metadata"`
	RawData  json.RawMessage `json:"RawData"`
}

// NewEnvelope wraps rec with the given id. Metadata is the record name.
func NewEnvelope(rec record.Record, id string) (Envelope, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s %d: %w", rec.RecordKind(), rec.RecordID(), err)
	}

	return Envelope{
		Id:       id,
		Metadata: rec.RecordName(),
		RawData:  raw,
	}, nil
}

// Decode turns RawData back into a typed record of kind.
func (e Envelope) Decode(kind record.Kind) (record.Record, error) {
	records, err := record.Decode(kind, []json.RawMessage{e.RawData})
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// ReadEnvelope loads an envelope file written by a Writer.
func ReadEnvelope(path string) (Envelope, error) {
	var env Envelope

	data, err := os.ReadFile(path)
	if err != nil {
		return env, fmt.Errorf("read envelope: %w", err)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode envelope %s: %w", path, err)
	}
	return env, nil
}
