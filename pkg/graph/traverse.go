package graph

import (
	"github.com/orneryd/huginn/pkg/codec"
	"github.com/orneryd/huginn/pkg/ident"
	"github.com/orneryd/huginn/pkg/store"
)

// ============================================================================
// Traversal
// ============================================================================

// Traversal is a lazily evaluated walk over the graph. Building one does
// no work: each call to Start, Out, FilterLabel and so on only records a
// plan step. Only a terminator (Count, IDs, Collect, Each, First) pulls
// ids through the pipeline, and it stops pulling as soon as it has what
// it needs, so Limit and First never touch more of the store than they
// must.
//
// A Traversal is bound to the transaction that created it and is only
// valid while that transaction is open. Each terminator call restarts
// the walk from the source.
//
// Example:
//
//	tx, _ := db.Begin(false)
//	defer tx.Rollback()
//
//	friends, err := tx.Traverse().
//		Start(alice).
//		Out("knows").
//		FilterLabel("Person").
//		IDs()
type Traversal struct {
	tx    *Txn
	plan  []planStep
	fixed []ident.EntityID // Start ids, nil for scan sources
	scan  sourceKind
	label string // NodesWithLabel
}

type sourceKind int

const (
	sourceStart sourceKind = iota
	sourceAllNodes
	sourceLabelScan
)

type planStep func(cursor) cursor

// cursor is one stage of a running traversal. next returns the following
// id, or ok=false when exhausted.
type cursor interface {
	next() (ident.EntityID, bool, error)
}

// Traverse starts building a traversal bound to this transaction.
func (t *Txn) Traverse() *Traversal {
	return &Traversal{tx: t}
}

// ============================================================================
// Sources
// ============================================================================

// Start seeds the traversal with explicit node ids, emitted in the given
// order. Ids are not checked for existence here; steps that read the
// node (filters, Collect) surface missing ids then.
func (tr *Traversal) Start(ids ...ident.EntityID) *Traversal {
	tr.scan = sourceStart
	tr.fixed = append([]ident.EntityID(nil), ids...)
	return tr
}

// AllNodes seeds the traversal with every node, in id order.
func (tr *Traversal) AllNodes() *Traversal {
	tr.scan = sourceAllNodes
	return tr
}

// NodesWithLabel seeds the traversal with every node carrying label,
// in id order, via the labels index.
func (tr *Traversal) NodesWithLabel(label string) *Traversal {
	tr.scan = sourceLabelScan
	tr.label = label
	return tr
}

// ============================================================================
// Steps
// ============================================================================

// Out moves from each node to the targets of its outgoing edges. With
// labels given, only edges carrying one of those labels are followed.
// Targets are emitted per source node in adjacency-index order (target
// id, then edge id); a node reachable over several edges is emitted once
// per edge (use Dedup to collapse).
func (tr *Traversal) Out(labels ...string) *Traversal {
	return tr.step(func(in cursor) cursor {
		return &hopCursor{tx: tr.tx, in: in, table: store.TableAdjFwd, labels: labels}
	})
}

// In moves from each node to the sources of its incoming edges,
// mirroring Out.
func (tr *Traversal) In(labels ...string) *Traversal {
	return tr.step(func(in cursor) cursor {
		return &hopCursor{tx: tr.tx, in: in, table: store.TableAdjBwd, labels: labels}
	})
}

// FilterLabel keeps only nodes carrying label. The check is a single
// point lookup in the labels index per node.
func (tr *Traversal) FilterLabel(label string) *Traversal {
	return tr.filter(func(id ident.EntityID) (bool, error) {
		_, found, err := tr.tx.stx.Get(store.TableLabels, codec.LabelKey(label, id))
		return found, err
	})
}

// FilterProperty keeps only nodes whose property key exists and
// satisfies pred. Nodes without the key are dropped. The node record is
// decoded for each candidate.
func (tr *Traversal) FilterProperty(key string, pred func(codec.Value) bool) *Traversal {
	return tr.filter(func(id ident.EntityID) (bool, error) {
		raw, found, err := tr.tx.stx.Get(store.TableNodes, id.Bytes())
		if err != nil {
			return false, err
		}
		if !found {
			return false, notFound(id)
		}
		rec, err := codec.DecodeNode(raw)
		if err != nil {
			return false, err
		}
		v, ok := rec.Properties[key]
		if !ok {
			return false, nil
		}
		return pred(v), nil
	})
}

// FilterPropertyEquals keeps only nodes whose property key equals value.
// For keys in Options.IndexedProperties the check is a single point
// lookup in the props index; other keys fall back to decoding the node
// record like FilterProperty.
func (tr *Traversal) FilterPropertyEquals(key string, value codec.Value) *Traversal {
	if tr.tx.db.indexedKey(key) {
		return tr.filter(func(id ident.EntityID) (bool, error) {
			pk, err := codec.PropKey(key, value, id)
			if err != nil {
				return false, err
			}
			_, found, err := tr.tx.stx.Get(store.TableProps, pk)
			return found, err
		})
	}
	return tr.FilterProperty(key, func(v codec.Value) bool { return v.Equal(value) })
}

// Dedup drops ids already emitted earlier in the walk. Memory grows with
// the number of distinct ids seen.
func (tr *Traversal) Dedup() *Traversal {
	return tr.step(func(in cursor) cursor {
		return &dedupCursor{in: in, seen: make(map[ident.EntityID]struct{})}
	})
}

// Limit stops the walk after n ids. Upstream stages are not pulled past
// the limit.
func (tr *Traversal) Limit(n int) *Traversal {
	return tr.step(func(in cursor) cursor {
		return &limitCursor{in: in, left: n}
	})
}

func (tr *Traversal) step(s planStep) *Traversal {
	tr.plan = append(tr.plan, s)
	return tr
}

func (tr *Traversal) filter(keep func(ident.EntityID) (bool, error)) *Traversal {
	return tr.step(func(in cursor) cursor {
		return &filterCursor{in: in, keep: keep}
	})
}

// ============================================================================
// Terminators
// ============================================================================

// Count runs the traversal and returns how many ids it emits.
func (tr *Traversal) Count() (int, error) {
	n := 0
	err := tr.run(func(ident.EntityID) error {
		n++
		return nil
	})
	return n, err
}

// IDs runs the traversal and returns every emitted id in order.
func (tr *Traversal) IDs() ([]ident.EntityID, error) {
	var out []ident.EntityID
	err := tr.run(func(id ident.EntityID) error {
		out = append(out, id)
		return nil
	})
	return out, err
}

// Collect runs the traversal and materializes each emitted node. The
// results own their memory and stay valid after the transaction ends.
func (tr *Traversal) Collect() ([]*Node, error) {
	var out []*Node
	err := tr.run(func(id ident.EntityID) error {
		n, err := tr.tx.GetNode(id)
		if err != nil {
			return err
		}
		out = append(out, n)
		return nil
	})
	return out, err
}

// Each runs the traversal, handing each emitted node to fn as a borrowed
// view. The view is only valid during the callback. Returning an error
// from fn stops the walk.
func (tr *Traversal) Each(fn func(*NodeView) error) error {
	return tr.run(func(id ident.EntityID) error {
		v, err := tr.tx.Node(id)
		if err != nil {
			return err
		}
		return fn(v)
	})
}

// First runs the traversal until the first id and returns that node
// materialized, or *NotFoundError if the walk emits nothing. No further
// ids are pulled.
func (tr *Traversal) First() (*Node, error) {
	c, err := tr.build()
	if err != nil {
		return nil, err
	}
	id, ok, err := c.next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(ident.Zero)
	}
	return tr.tx.GetNode(id)
}

func (tr *Traversal) run(fn func(ident.EntityID) error) error {
	c, err := tr.build()
	if err != nil {
		return err
	}
	for {
		id, ok, err := c.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(id); err != nil {
			return err
		}
	}
}

// build assembles a fresh cursor chain, so every terminator invocation
// restarts the walk.
func (tr *Traversal) build() (cursor, error) {
	var c cursor
	switch tr.scan {
	case sourceStart:
		c = &sliceCursor{ids: tr.fixed}
	case sourceAllNodes:
		sc, err := tr.tx.stx.Cursor(store.TableNodes, nil)
		if err != nil {
			return nil, err
		}
		c = &keyCursor{sc: sc, parse: func(k, _ []byte) (ident.EntityID, error) {
			return ident.FromBytes(k)
		}}
	case sourceLabelScan:
		sc, err := tr.tx.stx.Cursor(store.TableLabels, codec.LabelPrefix(tr.label))
		if err != nil {
			return nil, err
		}
		c = &keyCursor{sc: sc, parse: func(k, v []byte) (ident.EntityID, error) {
			// Edges share the labels index; skip them by kind.
			kind, err := codec.DecodeKindValue(v)
			if err != nil {
				return ident.Zero, err
			}
			if kind != codec.EntityNode {
				return ident.Zero, errSkip
			}
			_, id, err := codec.SplitLabelKey(k)
			return id, err
		}}
	}
	for _, s := range tr.plan {
		c = s(c)
	}
	return c, nil
}

// ============================================================================
// Cursors
// ============================================================================

// errSkip tells keyCursor to silently drop a row.
var errSkip = &skipError{}

type skipError struct{}

func (*skipError) Error() string { return "skip" }

type sliceCursor struct {
	ids []ident.EntityID
	pos int
}

func (c *sliceCursor) next() (ident.EntityID, bool, error) {
	if c.pos >= len(c.ids) {
		return ident.Zero, false, nil
	}
	id := c.ids[c.pos]
	c.pos++
	return id, true, nil
}

// keyCursor adapts a store cursor, extracting an id from each row.
type keyCursor struct {
	sc    *store.Cursor
	parse func(k, v []byte) (ident.EntityID, error)
}

func (c *keyCursor) next() (ident.EntityID, bool, error) {
	for {
		k, v, err := c.sc.Next()
		if err != nil {
			return ident.Zero, false, err
		}
		if k == nil {
			return ident.Zero, false, nil
		}
		id, err := c.parse(k, v)
		if err == errSkip {
			continue
		}
		if err != nil {
			return ident.Zero, false, err
		}
		return id, true, nil
	}
}

// hopCursor expands each upstream node into its neighbors over one
// adjacency table. With labels set, one exact-label prefix scan per
// label is performed, in the order given; otherwise a single scan over
// the node's whole adjacency prefix.
type hopCursor struct {
	tx     *Txn
	in     cursor
	table  store.Table
	labels []string

	cur      *store.Cursor
	labelPos int
	nodeSet  bool
	node     ident.EntityID
}

func (c *hopCursor) next() (ident.EntityID, bool, error) {
	for {
		if c.cur == nil {
			ok, err := c.advance()
			if err != nil || !ok {
				return ident.Zero, false, err
			}
		}
		k, _, err := c.cur.Next()
		if err != nil {
			return ident.Zero, false, err
		}
		if k == nil {
			c.cur = nil
			continue
		}
		_, _, other, _, err := codec.SplitAdjKey(k)
		if err != nil {
			return ident.Zero, false, err
		}
		return other, true, nil
	}
}

// advance opens the next prefix scan: the following label for the
// current node, or the first scan of the next upstream node.
func (c *hopCursor) advance() (bool, error) {
	// An unlabeled hop does one scan per node.
	scansPerNode := len(c.labels)
	if scansPerNode == 0 {
		scansPerNode = 1
	}
	if !c.nodeSet || c.labelPos >= scansPerNode {
		id, ok, err := c.in.next()
		if err != nil || !ok {
			return false, err
		}
		c.node = id
		c.nodeSet = true
		c.labelPos = 0
	}
	var prefix []byte
	if len(c.labels) == 0 {
		prefix = codec.AdjPrefix(c.node)
	} else {
		prefix = codec.AdjLabelPrefix(c.node, c.labels[c.labelPos])
	}
	c.labelPos++
	sc, err := c.tx.stx.Cursor(c.table, prefix)
	if err != nil {
		return false, err
	}
	c.cur = sc
	return true, nil
}

type filterCursor struct {
	in   cursor
	keep func(ident.EntityID) (bool, error)
}

func (c *filterCursor) next() (ident.EntityID, bool, error) {
	for {
		id, ok, err := c.in.next()
		if err != nil || !ok {
			return ident.Zero, false, err
		}
		keep, err := c.keep(id)
		if err != nil {
			return ident.Zero, false, err
		}
		if keep {
			return id, true, nil
		}
	}
}

type dedupCursor struct {
	in   cursor
	seen map[ident.EntityID]struct{}
}

func (c *dedupCursor) next() (ident.EntityID, bool, error) {
	for {
		id, ok, err := c.in.next()
		if err != nil || !ok {
			return ident.Zero, false, err
		}
		if _, dup := c.seen[id]; dup {
			continue
		}
		c.seen[id] = struct{}{}
		return id, true, nil
	}
}

type limitCursor struct {
	in   cursor
	left int
}

func (c *limitCursor) next() (ident.EntityID, bool, error) {
	if c.left <= 0 {
		return ident.Zero, false, nil
	}
	id, ok, err := c.in.next()
	if err != nil || !ok {
		return ident.Zero, false, err
	}
	c.left--
	return id, true, nil
}
