package storage

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
)

var (
	// ErrInvalidRecordName matches every *NameError.
	ErrInvalidRecordName = errors.New("invalid record name")

	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("persistence error")
)

// NameError reports a record name that cannot be used as a file name.
type NameError struct {
	Kind   record.Kind
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("invalid record name %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("invalid %s name %q: %s", e.Kind, e.Name, e.Reason)
}

func (e *NameError) Is(target error) bool {
	return target == ErrInvalidRecordName
}

// PersistenceError reports an I/O failure while writing an envelope. The
// record is not written when it is returned.
type PersistenceError struct {
	Kind record.Kind
	Name string
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %q: %s %s: %v", e.Kind, e.Name, e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
