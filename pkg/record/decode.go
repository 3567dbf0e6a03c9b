package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Decode converts the raw results of one page into typed records of the
// given kind, preserving their order.
func Decode(kind Kind, raws []json.RawMessage) ([]Record, error) {
	if _, ok := requiredFields[kind]; !ok {
		return nil, fmt.Errorf("decode: unknown record kind %q", kind)
	}

	records := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := decodeOne(kind, i, raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeCharacter decodes a single character object.
func DecodeCharacter(raw json.RawMessage) (Character, error) {
	var c Character
	err := decodeInto(KindCharacter, 0, raw, &c)
	if err == nil {
		err = checkID(KindCharacter, 0, c.ID)
	}
	return c, err
}

// DecodeLocation decodes a single location object.
func DecodeLocation(raw json.RawMessage) (Location, error) {
	var l Location
	err := decodeInto(KindLocation, 0, raw, &l)
	if err == nil {
		err = checkID(KindLocation, 0, l.ID)
	}
	return l, err
}

// DecodeEpisode decodes a single episode object.
func DecodeEpisode(raw json.RawMessage) (Episode, error) {
	var e Episode
	err := decodeInto(KindEpisode, 0, raw, &e)
	if err == nil {
		err = checkID(KindEpisode, 0, e.ID)
	}
	return e, err
}

func decodeOne(kind Kind, index int, raw json.RawMessage) (Record, error) {
	switch kind {
	case KindCharacter:
		var c Character
		if err := decodeInto(kind, index, raw, &c); err != nil {
			return nil, err
		}
		return c, checkID(kind, index, c.ID)
	case KindLocation:
		var l Location
		if err := decodeInto(kind, index, raw, &l); err != nil {
			return nil, err
		}
		return l, checkID(kind, index, l.ID)
	case KindEpisode:
		var e Episode
		if err := decodeInto(kind, index, raw, &e); err != nil {
			return nil, err
		}
		return e, checkID(kind, index, e.ID)
	default:
		return nil, fmt.Errorf("decode: unknown record kind %q", kind)
	}
}

// decodeInto checks that every required field is present and non-null
// before handing the object to encoding/json.
func decodeInto(kind Kind, index int, raw json.RawMessage, target any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return &SchemaError{Kind: kind, Index: index, Reason: "result is not a JSON object", Err: err}
	}

	for _, name := range requiredFields[kind] {
		value, ok := fields[name]
		if !ok {
			return &SchemaError{Kind: kind, Index: index, Field: name, Reason: "required field missing"}
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return &SchemaError{Kind: kind, Index: index, Field: name, Reason: "required field is null"}
		}
	}

	if err := json.Unmarshal(raw, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &SchemaError{
				Kind:   kind,
				Index:  index,
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("expected %s, got JSON %s", typeErr.Type, typeErr.Value),
			}
		}
		return &SchemaError{Kind: kind, Index: index, Reason: "invalid JSON", Err: err}
	}
	return nil
}

func checkID(kind Kind, index, id int) error {
	if id <= 0 {
		return &SchemaError{Kind: kind, Index: index, Field: "id", Reason: fmt.Sprintf("id must be positive, got %d", id)}
	}
	return nil
}
