package normstore

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrDuplicateID = errors.New("duplicate id")
	ErrUnknownID   = errors.New("unknown id")
	ErrIDMismatch  = errors.New("id mismatch")
	ErrIndexRange  = errors.New("index out of range")
)

// DuplicateIDError is returned when an id is inserted twice.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("normstore: duplicate id %q", e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// UnknownIDError is returned when an operation targets an id that is not stored.
type UnknownIDError struct {
	ID string
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("normstore: unknown id %q", e.ID)
}

func (e *UnknownIDError) Unwrap() error { return ErrUnknownID }

// IDMismatchError is returned by Update when the replacement carries another id.
type IDMismatchError struct {
	ID     string
	ItemID string
}

func (e *IDMismatchError) Error() string {
	return fmt.Sprintf("normstore: update of %q with item %q", e.ID, e.ItemID)
}

func (e *IDMismatchError) Unwrap() error { return ErrIDMismatch }

// IndexRangeError is returned by Reorder for positions outside the order list.
type IndexRangeError struct {
	From, To, Len int
}

func (e *IndexRangeError) Error() string {
	return fmt.Sprintf("normstore: reorder %d -> %d out of range [0,%d)", e.From, e.To, e.Len)
}

func (e *IndexRangeError) Unwrap() error { return ErrIndexRange }
