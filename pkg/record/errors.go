package record

import (
	"errors"
	"fmt"
)

// ErrSchemaMismatch is matched by every *SchemaError.
var ErrSchemaMismatch = errors.New("schema mismatch")

// SchemaError reports a raw result that does not fit its kind's schema.
type SchemaError struct {
	Kind   Kind
	Index  int // position within the page results
	Field  string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("%s result %d", e.Kind, e.Index)
	if e.Field != "" {
		msg += fmt.Sprintf(" field %q", e.Field)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying decode error, if any.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSchemaMismatch.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaMismatch
}
