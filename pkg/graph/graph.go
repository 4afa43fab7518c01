// Package graph is Huginn's core: an embedded, ACID, single-file property
// graph. Nodes and directed labeled edges carry typed properties; derived
// indexes (forward/backward adjacency, labels, properties) make traversal
// a matter of prefix scans; every mutation keeps all of them consistent
// inside one write transaction of the underlying store.
//
// Example:
//
//	db, err := graph.Open("./social.db", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	var alice, bob ident.EntityID
//	err = db.Update(func(tx *graph.Txn) error {
//		alice, _ = tx.AddNode([]string{"Person"}, map[string]codec.Value{
//			"name": codec.Text("Alice"),
//		})
//		bob, _ = tx.AddNode([]string{"Person"}, map[string]codec.Value{
//			"name": codec.Text("Bob"),
//		})
//		_, err := tx.AddEdge(alice, bob, "knows", nil)
//		return err
//	})
//
//	err = db.View(func(tx *graph.Txn) error {
//		friends, err := tx.Start(alice).Out("knows").Collect()
//		// friends[0].ID == bob
//		return err
//	})
//
// Concurrency: one writer at a time system-wide; any number of readers,
// each pinned to the snapshot current when its transaction began. A
// traversal never outlives the transaction it was built on.
package graph

import (
	"github.com/orneryd/huginn/pkg/codec"
	"github.com/orneryd/huginn/pkg/ident"
	"github.com/orneryd/huginn/pkg/store"
)

// Options configures an open database.
type Options struct {
	// MapSize is the initial mmap size in bytes (0 = engine default).
	MapSize int

	// NoSync trades commit durability for speed. Atomicity is unaffected.
	NoSync bool

	// ReadOnly opens the file without write access.
	ReadOnly bool

	// Logger receives store-level diagnostics. Nil disables logging.
	Logger store.Logger

	// IndexedProperties lists the property keys maintained in the props
	// index. Only these keys support index-accelerated equality filters;
	// everything else is still stored in the record and filterable by
	// decoding. Explicit opt-in bounds write amplification.
	IndexedProperties []string
}

// DefaultOptions returns the baseline configuration: durable commits, no
// property keys indexed.
func DefaultOptions() *Options {
	return &Options{}
}

// DB is an open graph database. Safe for concurrent use; the single-writer
// discipline is enforced by the store, not by callers.
type DB struct {
	store   *store.Store
	indexed map[string]struct{}
}

// Open opens or creates the database file at path. A nil opts uses
// DefaultOptions. Fails with *SchemaError if the file exists but its
// table layout or format version does not match this build.
func Open(path string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	st, err := store.Open(path, store.Options{
		MapSize:  opts.MapSize,
		NoSync:   opts.NoSync,
		ReadOnly: opts.ReadOnly,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	indexed := make(map[string]struct{}, len(opts.IndexedProperties))
	for _, k := range opts.IndexedProperties {
		indexed[k] = struct{}{}
	}
	return &DB{store: st, indexed: indexed}, nil
}

// Close closes the underlying store file. In-flight transactions must be
// finished first.
func (db *DB) Close() error {
	return db.store.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.store.Path()
}

// indexedKey reports whether a property key participates in the props
// index.
func (db *DB) indexedKey(key string) bool {
	_, ok := db.indexed[key]
	return ok
}

// Txn is one graph transaction. Every mutation helper hangs off it and
// takes effect atomically at Commit; multiple logical operations composed
// on the same Txn commit as one unit. A Txn is single-goroutine.
type Txn struct {
	db  *DB
	stx *store.Txn
}

// Begin starts a manual transaction. Writable transactions serialize;
// read transactions pin a snapshot and never block. The caller must end
// it with Commit or Rollback.
func (db *DB) Begin(writable bool) (*Txn, error) {
	stx, err := db.store.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &Txn{db: db, stx: stx}, nil
}

// View runs fn in a managed read transaction.
func (db *DB) View(fn func(*Txn) error) error {
	return db.store.View(func(stx *store.Txn) error {
		return fn(&Txn{db: db, stx: stx})
	})
}

// Update runs fn in a managed write transaction, committing on nil and
// rolling back on error.
func (db *DB) Update(fn func(*Txn) error) error {
	return db.store.Update(func(stx *store.Txn) error {
		return fn(&Txn{db: db, stx: stx})
	})
}

// Commit publishes the transaction atomically.
func (t *Txn) Commit() error { return t.stx.Commit() }

// Rollback discards the transaction.
func (t *Txn) Rollback() error { return t.stx.Rollback() }

// Writable reports whether the transaction accepts mutations.
func (t *Txn) Writable() bool { return t.stx.Writable() }

// ============================================================================
// One-shot convenience wrappers
// ============================================================================

// AddNode creates a node in its own transaction.
func (db *DB) AddNode(labels []string, props map[string]codec.Value) (ident.EntityID, error) {
	var id ident.EntityID
	err := db.Update(func(tx *Txn) error {
		var err error
		id, err = tx.AddNode(labels, props)
		return err
	})
	return id, err
}

// AddEdge creates an edge in its own transaction.
func (db *DB) AddEdge(from, to ident.EntityID, label string, props map[string]codec.Value) (ident.EntityID, error) {
	var id ident.EntityID
	err := db.Update(func(tx *Txn) error {
		var err error
		id, err = tx.AddEdge(from, to, label, props)
		return err
	})
	return id, err
}

// RemoveNode deletes a node and every incident edge in its own
// transaction.
func (db *DB) RemoveNode(id ident.EntityID) error {
	return db.Update(func(tx *Txn) error { return tx.RemoveNode(id) })
}

// RemoveEdge deletes an edge in its own transaction.
func (db *DB) RemoveEdge(id ident.EntityID) error {
	return db.Update(func(tx *Txn) error { return tx.RemoveEdge(id) })
}

// SetProperty sets one property in its own transaction.
func (db *DB) SetProperty(id ident.EntityID, key string, value codec.Value) error {
	return db.Update(func(tx *Txn) error { return tx.SetProperty(id, key, value) })
}

// RemoveProperty removes one property in its own transaction.
func (db *DB) RemoveProperty(id ident.EntityID, key string) error {
	return db.Update(func(tx *Txn) error { return tx.RemoveProperty(id, key) })
}

// AddLabel adds a label to a node in its own transaction.
func (db *DB) AddLabel(id ident.EntityID, label string) error {
	return db.Update(func(tx *Txn) error { return tx.AddLabel(id, label) })
}

// RemoveLabel removes a label from a node in its own transaction.
func (db *DB) RemoveLabel(id ident.EntityID, label string) error {
	return db.Update(func(tx *Txn) error { return tx.RemoveLabel(id, label) })
}

// GetNode fetches an owned copy of a node in its own read transaction.
func (db *DB) GetNode(id ident.EntityID) (*Node, error) {
	var node *Node
	err := db.View(func(tx *Txn) error {
		var err error
		node, err = tx.GetNode(id)
		return err
	})
	return node, err
}

// GetEdge fetches an owned copy of an edge in its own read transaction.
func (db *DB) GetEdge(id ident.EntityID) (*Edge, error) {
	var edge *Edge
	err := db.View(func(tx *Txn) error {
		var err error
		edge, err = tx.GetEdge(id)
		return err
	})
	return edge, err
}
