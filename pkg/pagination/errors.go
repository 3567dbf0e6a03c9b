package pagination

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
)

var (
	// ErrExhausted is returned by Next once the last page has been consumed.
	ErrExhausted = errors.New("pagination exhausted")

	// ErrPaginationProtocol matches every *ProtocolError.
	ErrPaginationProtocol = errors.New("pagination protocol error")
)

// ProtocolError reports a page whose pagination data cannot be followed.
type ProtocolError struct {
	Kind   record.Kind
	Cursor string
	Next   string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Next != "" {
		return fmt.Sprintf("pagination protocol error for %s at %s: %s (next %q)", e.Kind, e.Cursor, e.Reason, e.Next)
	}
	return fmt.Sprintf("pagination protocol error for %s at %s: %s", e.Kind, e.Cursor, e.Reason)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrPaginationProtocol
}

// PageError ties a failure to the kind and cursor being loaded.
type PageError struct {
	Kind   record.Kind
	Cursor string
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("load %s page %s: %v", e.Kind, e.Cursor, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}
