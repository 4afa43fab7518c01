package graph

import (
	"fmt"

	"github.com/orneryd/huginn/pkg/codec"
	"github.com/orneryd/huginn/pkg/ident"
	"github.com/orneryd/huginn/pkg/store"
)

// The full error taxonomy of the graph layer. Storage, schema, and
// encoding errors originate in the lower packages and are aliased here so
// callers only import graph:
//
//   - *StorageError: engine I/O, corruption, capacity. Fatal to the
//     transaction, surfaced unchanged, never retried internally.
//   - *SchemaError: table layout mismatch at open. Fatal to the open.
//   - *EncodingError: malformed bytes read back from storage.
//   - *NotFoundError: the target entity does not exist. Caller-recoverable.
//   - *IntegrityError: referential-integrity violation; nothing written.
//   - ErrTxClosed: use of a transaction, view, or traversal after its
//     transaction ended. Programmer error.
type (
	StorageError  = store.StorageError
	SchemaError   = store.SchemaError
	EncodingError = codec.EncodingError
)

// ErrTxClosed reports use of a handle after its transaction ended.
var ErrTxClosed = store.ErrTxClosed

// NotFoundError reports an operation targeting a nonexistent entity.
// The transaction is left unchanged; the caller may recover.
type NotFoundError struct {
	ID ident.EntityID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("graph: entity %s not found", e.ID)
}

func notFound(id ident.EntityID) error {
	return &NotFoundError{ID: id}
}

// IntegrityError reports a referential-integrity violation, such as an
// edge endpoint that does not exist. The failed mutation writes nothing.
type IntegrityError struct {
	ID     ident.EntityID
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("graph: integrity violation: %s (%s)", e.Reason, e.ID)
}
