// Package store adapts bbolt to the table model the graph engine works
// against: six named sub-stores inside one memory-mapped, copy-on-write
// B+tree file, with explicit transaction handles passed by reference into
// every helper.
//
// Concurrency contract (inherited from bolt and re-exported here):
//   - Begin(true) blocks until any other in-flight write transaction
//     completes; at most one writer is active system-wide.
//   - Begin(false) never blocks and pins a consistent point-in-time
//     snapshot unaffected by concurrent or later writers.
//   - Commit is atomic across all tables touched within the transaction;
//     Rollback (or losing the handle) discards everything.
//
// Example:
//
//	st, err := store.Open("./graph.db", store.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	err = st.Update(func(tx *store.Txn) error {
//		return tx.Put(store.TableNodes, key, record)
//	})
package store

import (
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Table names one of the fixed sub-stores.
type Table string

const (
	TableNodes  Table = "nodes"
	TableEdges  Table = "edges"
	TableAdjFwd Table = "adj_fwd"
	TableAdjBwd Table = "adj_bwd"
	TableLabels Table = "labels"
	TableProps  Table = "props"
)

// Tables lists every sub-store in creation order.
var Tables = []Table{TableNodes, TableEdges, TableAdjFwd, TableAdjBwd, TableLabels, TableProps}

// metaTable is an internal seventh bucket holding the format version, so a
// foreign or stale file fails the open with SchemaError instead of decode
// garbage later.
const metaTable = "meta"

// formatVersion is bumped on any incompatible change to key or record
// layouts.
const formatVersion byte = 1

var metaVersionKey = []byte("format_version")

// defaultMapSize is the initial mmap reservation when Options.MapSize is
// unset. A write transaction that outgrows the map must remap the file,
// which waits for every open read transaction; reserving address space up
// front keeps commits from ever blocking behind readers. The reservation
// is virtual memory only.
const defaultMapSize = 1 << 30

// Logger receives engine-level diagnostics. If nil, logging is off.
type Logger interface {
	Printf(format string, args ...any)
}

// Options configures how the store file is opened.
type Options struct {
	// MapSize is the initial mmap size in bytes. Zero uses
	// defaultMapSize; raise it when the file is expected to grow past
	// that, so commits never remap while readers are open.
	MapSize int

	// NoSync skips fsync on commit. Faster, but a crash can lose the
	// most recent commits. Never affects atomicity.
	NoSync bool

	// ReadOnly opens the file without write access; Begin(true) fails.
	ReadOnly bool

	// FileMode for a newly created file. Zero means 0600.
	FileMode os.FileMode

	// Timeout bounds how long open waits for the file lock held by
	// another process. Zero waits forever.
	Timeout time.Duration

	// Logger for store-level diagnostics. Nil disables logging.
	Logger Logger
}

// Store is an open database file with its table handles verified.
type Store struct {
	db     *bolt.DB
	logger Logger
}

// Open opens or creates the store file at path.
//
// On first open the six tables and the meta bucket are created and the
// format version written. On subsequent opens the layout is verified:
// a missing table, a missing meta bucket alongside existing tables, or a
// version mismatch all fail with *SchemaError.
func Open(path string, opts Options) (*Store, error) {
	mode := opts.FileMode
	if mode == 0 {
		mode = 0o600
	}
	mapSize := opts.MapSize
	if mapSize <= 0 {
		mapSize = defaultMapSize
	}

	db, err := bolt.Open(path, mode, &bolt.Options{
		Timeout:         opts.Timeout,
		ReadOnly:        opts.ReadOnly,
		InitialMmapSize: mapSize,
	})
	if err != nil {
		return nil, storageErr("open "+path, err)
	}
	db.NoSync = opts.NoSync

	s := &Store{db: db, logger: opts.Logger}
	if err := s.initSchema(opts.ReadOnly); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates the layout on first open and verifies it afterwards.
func (s *Store) initSchema(readOnly bool) error {
	if readOnly {
		return s.db.View(verifySchema)
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		meta := btx.Bucket([]byte(metaTable))
		if meta == nil {
			return createSchema(btx, s.logger)
		}
		return verifySchema(btx)
	})
}

func createSchema(btx *bolt.Tx, logger Logger) error {
	// A meta-less file that already has table buckets was not written
	// by us; refuse rather than adopt it.
	for _, tbl := range Tables {
		if btx.Bucket([]byte(tbl)) != nil {
			return &SchemaError{Reason: fmt.Sprintf("table %q exists but meta bucket is missing", tbl)}
		}
	}
	for _, tbl := range Tables {
		if _, err := btx.CreateBucket([]byte(tbl)); err != nil {
			return storageErr("create table "+string(tbl), err)
		}
	}
	meta, err := btx.CreateBucket([]byte(metaTable))
	if err != nil {
		return storageErr("create meta bucket", err)
	}
	if err := meta.Put(metaVersionKey, []byte{formatVersion}); err != nil {
		return storageErr("write format version", err)
	}
	if logger != nil {
		logger.Printf("store: initialized schema version %d", formatVersion)
	}
	return nil
}

func verifySchema(btx *bolt.Tx) error {
	meta := btx.Bucket([]byte(metaTable))
	if meta == nil {
		return &SchemaError{Reason: "meta bucket missing"}
	}
	v := meta.Get(metaVersionKey)
	if len(v) != 1 {
		return &SchemaError{Reason: "format version missing or malformed"}
	}
	if v[0] != formatVersion {
		return &SchemaError{Reason: fmt.Sprintf("format version %d, this build supports %d", v[0], formatVersion)}
	}
	for _, tbl := range Tables {
		if btx.Bucket([]byte(tbl)) == nil {
			return &SchemaError{Reason: fmt.Sprintf("table %q missing", tbl)}
		}
	}
	return nil
}

// Close releases the file lock and the mmap. In-flight transactions must
// be finished first.
func (s *Store) Close() error {
	return storageErr("close", s.db.Close())
}

// Path returns the path of the open store file.
func (s *Store) Path() string {
	return s.db.Path()
}

// Begin starts a transaction. A write transaction blocks until the
// current writer (if any) finishes; a read transaction never blocks and
// observes a fixed snapshot.
//
// The caller owns the handle: every transaction must end in Commit or
// Rollback (read transactions only Rollback).
func (s *Store) Begin(writable bool) (*Txn, error) {
	btx, err := s.db.Begin(writable)
	if err != nil {
		return nil, storageErr("begin", err)
	}
	return &Txn{btx: btx, writable: writable}, nil
}

// View runs fn inside a managed read transaction.
func (s *Store) View(fn func(*Txn) error) error {
	tx, err := s.Begin(false)
	if err != nil {
		return err
	}
	defer tx.close()
	return fn(tx)
}

// Update runs fn inside a managed write transaction, committing when fn
// returns nil and rolling back otherwise.
func (s *Store) Update(fn func(*Txn) error) error {
	tx, err := s.Begin(true)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
