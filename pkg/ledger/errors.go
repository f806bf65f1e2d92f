package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrIOFailure matches any IOError. The record involved was not committed.
	ErrIOFailure = errors.New("ledger: io failure")
	// ErrDuplicateID is returned when a retried draft id resolves to a
	// different record than the one already committed under that id.
	ErrDuplicateID = errors.New("ledger: id already committed with different content")
	// ErrCorrupt is returned when committed storage cannot be decoded.
	ErrCorrupt = errors.New("ledger: corrupt storage")
	ErrClosed  = errors.New("ledger: closed")
)

// IOError reports a failed durable operation.
type IOError struct {
	Op       string
	RecordID string
	Err      error
}

func (e *IOError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("ledger: %s %s: %v", e.Op, e.RecordID, e.Err)
	}
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIOFailure }
