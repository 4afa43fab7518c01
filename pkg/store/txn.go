package store

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Txn wraps one bolt transaction. All table access within one logical
// graph operation goes through a single Txn, so the operation commits or
// vanishes as a unit. Helpers take the Txn explicitly; there is no
// implicit or global transaction state.
//
// A Txn is not safe for concurrent use; it belongs to the goroutine that
// began it.
type Txn struct {
	btx      *bolt.Tx
	writable bool
	closed   bool
}

// Writable reports whether the transaction accepts writes.
func (t *Txn) Writable() bool { return t.writable }

// Closed reports whether the transaction has ended.
func (t *Txn) Closed() bool { return t.closed }

func (t *Txn) bucket(table Table) (*bolt.Bucket, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	b := t.btx.Bucket([]byte(table))
	if b == nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("table %q missing", table)}
	}
	return b, nil
}

// Get reads one key. found is false when the key is absent. The returned
// slice points into the mmap and is only valid until the transaction ends;
// callers that retain it must copy.
func (t *Txn) Get(table Table, key []byte) (value []byte, found bool, err error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, false, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

// Put writes one key/value pair.
func (t *Txn) Put(table Table, key, value []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	if err := b.Put(key, value); err != nil {
		return storageErr("put "+string(table), err)
	}
	return nil
}

// Delete removes one key. Deleting an absent key is not an error.
func (t *Txn) Delete(table Table, key []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	if err := b.Delete(key); err != nil {
		return storageErr("delete "+string(table), err)
	}
	return nil
}

// Scan calls fn for every key with the given prefix, in byte order. A nil
// prefix scans the whole table. fn returning an error stops the scan and
// propagates the error.
func (t *Txn) Scan(table Table, prefix []byte, fn func(key, value []byte) error) error {
	c, err := t.Cursor(table, prefix)
	if err != nil {
		return err
	}
	for k, v, err := c.Next(); k != nil || err != nil; k, v, err = c.Next() {
		if err != nil {
			return err
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of keys in a table. It walks the bucket
// rather than reading Stats().KeyN: stats reflect only committed pages,
// and a count taken inside a write transaction must include that
// transaction's own pending writes.
func (t *Txn) Count(table Table) (int, error) {
	b, err := t.bucket(table)
	if err != nil {
		return 0, err
	}
	n := 0
	err = b.ForEach(func(_, _ []byte) error {
		n++
		return nil
	})
	if err != nil {
		return 0, storageErr("count "+string(table), err)
	}
	return n, nil
}

// Cursor opens a pull-based prefix cursor over a table. The cursor yields
// only as many entries as the caller asks for, which is what keeps
// traversal pipelines lazy under Limit.
func (t *Txn) Cursor(table Table, prefix []byte) (*Cursor, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	return &Cursor{tx: t, c: b.Cursor(), prefix: prefix}, nil
}

// Commit atomically publishes every mutation made in the transaction.
// The handle is dead afterwards.
func (t *Txn) Commit() error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	if err := t.btx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// Rollback discards every mutation and releases the snapshot or writer
// lock. Rolling back an already-closed transaction is a no-op.
func (t *Txn) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.btx.Rollback(); err != nil {
		return storageErr("rollback", err)
	}
	return nil
}

// close ends a managed transaction: commit-less rollback for readers.
func (t *Txn) close() {
	_ = t.Rollback()
}

// Cursor iterates one table restricted to a key prefix.
type Cursor struct {
	tx      *Txn
	c       *bolt.Cursor
	prefix  []byte
	started bool
	done    bool
}

// Next returns the next key/value pair within the prefix, or (nil, nil,
// nil) when exhausted. Using a cursor after its transaction ended returns
// ErrTxClosed. Returned slices are transaction-scoped like Txn.Get's.
func (c *Cursor) Next() ([]byte, []byte, error) {
	if c.tx.closed {
		return nil, nil, ErrTxClosed
	}
	if c.done {
		return nil, nil, nil
	}

	var k, v []byte
	if !c.started {
		c.started = true
		k, v = c.c.Seek(c.prefix)
	} else {
		k, v = c.c.Next()
	}
	if k == nil || !bytes.HasPrefix(k, c.prefix) {
		c.done = true
		return nil, nil, nil
	}
	return k, v, nil
}
