package store

import (
	"errors"
	"fmt"
)

// ErrTxClosed is returned when a transaction handle (or anything derived
// from it, such as a cursor) is used after Commit, Rollback, or Close.
var ErrTxClosed = errors.New("store: transaction closed")

// StorageError wraps an I/O, corruption, or capacity error from the
// underlying engine. It is fatal to the in-flight transaction and is
// surfaced to the caller without interpretation or retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// SchemaError reports a sub-store layout mismatch discovered at open time.
// It is fatal to the open; the file is left untouched.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("store: schema mismatch: %s", e.Reason)
}
