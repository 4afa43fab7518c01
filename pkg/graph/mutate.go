package graph

import (
	"sort"

	"github.com/orneryd/huginn/pkg/codec"
	"github.com/orneryd/huginn/pkg/ident"
	"github.com/orneryd/huginn/pkg/store"
)

// Every mutation below runs against the caller's transaction and follows
// the same protocol: read what is needed to compute the index delta, fail
// before the first write if anything is wrong, then write the primary
// record and every affected index row. Because the store commits per
// transaction, a failed mutation inside db.Update leaves no trace; a
// mutation on a manual Txn can be composed with others and still commits
// as one unit.

// AddNode creates a node with the given labels and properties and returns
// its freshly allocated id. Duplicate labels are collapsed. Never fails
// except on storage error.
func (t *Txn) AddNode(labels []string, props map[string]codec.Value) (ident.EntityID, error) {
	id := ident.New()
	rec := codec.NodeRecord{Labels: dedupLabels(labels), Properties: props}

	// Index keys are computed before the first write so an unindexable
	// value (a list under an indexed key) fails with nothing written.
	rows, err := t.indexedPropRows(id, props)
	if err != nil {
		return ident.Zero, err
	}

	if err := t.stx.Put(store.TableNodes, id.Bytes(), codec.EncodeNode(rec)); err != nil {
		return ident.Zero, err
	}
	for _, label := range rec.Labels {
		if err := t.stx.Put(store.TableLabels, codec.LabelKey(label, id), codec.KindValue(codec.EntityNode)); err != nil {
			return ident.Zero, err
		}
	}
	if err := t.putPropRows(rows, codec.EntityNode); err != nil {
		return ident.Zero, err
	}
	return id, nil
}

// AddEdge creates a directed edge from→to. Both endpoints must exist;
// otherwise it fails with *IntegrityError before writing anything.
// Parallel edges and self-loops are legal: the edge is keyed by its own
// id, never by its endpoint pair.
func (t *Txn) AddEdge(from, to ident.EntityID, label string, props map[string]codec.Value) (ident.EntityID, error) {
	for _, endpoint := range []ident.EntityID{from, to} {
		_, found, err := t.stx.Get(store.TableNodes, endpoint.Bytes())
		if err != nil {
			return ident.Zero, err
		}
		if !found {
			return ident.Zero, &IntegrityError{ID: endpoint, Reason: "edge endpoint does not exist"}
		}
	}

	id := ident.New()
	rec := codec.EdgeRecord{From: from, To: to, Label: label, Properties: props}

	rows, err := t.indexedPropRows(id, props)
	if err != nil {
		return ident.Zero, err
	}

	if err := t.stx.Put(store.TableEdges, id.Bytes(), codec.EncodeEdge(rec)); err != nil {
		return ident.Zero, err
	}
	if err := t.stx.Put(store.TableAdjFwd, codec.AdjKey(from, label, to, id), id.Bytes()); err != nil {
		return ident.Zero, err
	}
	if err := t.stx.Put(store.TableAdjBwd, codec.AdjKey(to, label, from, id), id.Bytes()); err != nil {
		return ident.Zero, err
	}
	if err := t.stx.Put(store.TableLabels, codec.LabelKey(label, id), codec.KindValue(codec.EntityEdge)); err != nil {
		return ident.Zero, err
	}
	if err := t.putPropRows(rows, codec.EntityEdge); err != nil {
		return ident.Zero, err
	}
	return id, nil
}

// RemoveNode deletes a node, cascading to every incident edge and all of
// their index rows, in this transaction. Fails with *NotFoundError if the
// node does not exist; the cascade is all-or-nothing.
func (t *Txn) RemoveNode(id ident.EntityID) error {
	raw, found, err := t.stx.Get(store.TableNodes, id.Bytes())
	if err != nil {
		return err
	}
	if !found {
		return notFound(id)
	}
	rec, err := codec.DecodeNode(raw)
	if err != nil {
		return err
	}

	// Incident edges come from both adjacency directions; a self-loop
	// shows up in each, so collect before deleting.
	incident := make(map[ident.EntityID]struct{})
	for _, table := range []store.Table{store.TableAdjFwd, store.TableAdjBwd} {
		err := t.stx.Scan(table, codec.AdjPrefix(id), func(_, v []byte) error {
			edgeID, err := ident.FromBytes(v)
			if err != nil {
				return err
			}
			incident[edgeID] = struct{}{}
			return nil
		})
		if err != nil {
			return err
		}
	}
	// Deterministic cascade order.
	ordered := make([]ident.EntityID, 0, len(incident))
	for e := range incident {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Compare(ordered[j]) < 0 })
	for _, edgeID := range ordered {
		if err := t.RemoveEdge(edgeID); err != nil {
			return err
		}
	}

	for _, label := range rec.Labels {
		if err := t.stx.Delete(store.TableLabels, codec.LabelKey(label, id)); err != nil {
			return err
		}
	}
	if err := t.deleteIndexedProps(id, rec.Properties); err != nil {
		return err
	}
	return t.stx.Delete(store.TableNodes, id.Bytes())
}

// RemoveEdge deletes an edge and its adjacency, label, and property index
// rows. Fails with *NotFoundError if the edge does not exist.
func (t *Txn) RemoveEdge(id ident.EntityID) error {
	raw, found, err := t.stx.Get(store.TableEdges, id.Bytes())
	if err != nil {
		return err
	}
	if !found {
		return notFound(id)
	}
	rec, err := codec.DecodeEdge(raw)
	if err != nil {
		return err
	}

	if err := t.stx.Delete(store.TableAdjFwd, codec.AdjKey(rec.From, rec.Label, rec.To, id)); err != nil {
		return err
	}
	if err := t.stx.Delete(store.TableAdjBwd, codec.AdjKey(rec.To, rec.Label, rec.From, id)); err != nil {
		return err
	}
	if err := t.stx.Delete(store.TableLabels, codec.LabelKey(rec.Label, id)); err != nil {
		return err
	}
	if err := t.deleteIndexedProps(id, rec.Properties); err != nil {
		return err
	}
	return t.stx.Delete(store.TableEdges, id.Bytes())
}

// SetProperty sets one property on a node or edge, rewriting the primary
// record and, for indexed keys, replacing the affected props row.
func (t *Txn) SetProperty(id ident.EntityID, key string, value codec.Value) error {
	return t.mutateEntity(id, func(props map[string]codec.Value) {
		props[key] = value
	}, key)
}

// RemoveProperty removes one property. Removing an absent key succeeds
// without writing.
func (t *Txn) RemoveProperty(id ident.EntityID, key string) error {
	return t.mutateEntity(id, func(props map[string]codec.Value) {
		delete(props, key)
	}, key)
}

// mutateEntity applies change to the property map of whichever entity id
// resolves to (node first, then edge), rewrites the record, and keeps the
// props row for changedKey consistent.
func (t *Txn) mutateEntity(id ident.EntityID, change func(map[string]codec.Value), changedKey string) error {
	if raw, found, err := t.stx.Get(store.TableNodes, id.Bytes()); err != nil {
		return err
	} else if found {
		rec, err := codec.DecodeNode(raw)
		if err != nil {
			return err
		}
		props := copyProps(rec.Properties)
		change(props)
		if err := t.reindexProp(id, codec.EntityNode, changedKey, rec.Properties, props); err != nil {
			return err
		}
		rec.Properties = props
		return t.stx.Put(store.TableNodes, id.Bytes(), codec.EncodeNode(rec))
	}

	raw, found, err := t.stx.Get(store.TableEdges, id.Bytes())
	if err != nil {
		return err
	}
	if !found {
		return notFound(id)
	}
	rec, err := codec.DecodeEdge(raw)
	if err != nil {
		return err
	}
	props := copyProps(rec.Properties)
	change(props)
	if err := t.reindexProp(id, codec.EntityEdge, changedKey, rec.Properties, props); err != nil {
		return err
	}
	rec.Properties = props
	return t.stx.Put(store.TableEdges, id.Bytes(), codec.EncodeEdge(rec))
}

// AddLabel adds a label to a node, rewriting the record and the single
// labels row. Adding a label the node already carries is a no-op.
// Fails with *NotFoundError for edge ids: edges have exactly one label,
// fixed at creation.
func (t *Txn) AddLabel(id ident.EntityID, label string) error {
	raw, found, err := t.stx.Get(store.TableNodes, id.Bytes())
	if err != nil {
		return err
	}
	if !found {
		return notFound(id)
	}
	rec, err := codec.DecodeNode(raw)
	if err != nil {
		return err
	}
	for _, l := range rec.Labels {
		if l == label {
			return nil
		}
	}
	rec.Labels = append(rec.Labels, label)
	if err := t.stx.Put(store.TableLabels, codec.LabelKey(label, id), codec.KindValue(codec.EntityNode)); err != nil {
		return err
	}
	return t.stx.Put(store.TableNodes, id.Bytes(), codec.EncodeNode(rec))
}

// RemoveLabel removes a label from a node. Removing a label the node
// does not carry is a no-op.
func (t *Txn) RemoveLabel(id ident.EntityID, label string) error {
	raw, found, err := t.stx.Get(store.TableNodes, id.Bytes())
	if err != nil {
		return err
	}
	if !found {
		return notFound(id)
	}
	rec, err := codec.DecodeNode(raw)
	if err != nil {
		return err
	}
	kept := rec.Labels[:0]
	removed := false
	for _, l := range rec.Labels {
		if l == label {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	if !removed {
		return nil
	}
	rec.Labels = kept
	if err := t.stx.Delete(store.TableLabels, codec.LabelKey(label, id)); err != nil {
		return err
	}
	return t.stx.Put(store.TableNodes, id.Bytes(), codec.EncodeNode(rec))
}

// ============================================================================
// Props index maintenance
// ============================================================================

// indexedPropRows computes the props-index keys an entity's properties
// require, without writing anything. An unindexable value under an
// indexed key (a list) errors here, so callers can fail before their
// first write.
func (t *Txn) indexedPropRows(id ident.EntityID, props map[string]codec.Value) ([][]byte, error) {
	var rows [][]byte
	for k, v := range props {
		if !t.db.indexedKey(k) {
			continue
		}
		key, err := codec.PropKey(k, v, id)
		if err != nil {
			return nil, err
		}
		rows = append(rows, key)
	}
	return rows, nil
}

func (t *Txn) putPropRows(rows [][]byte, kind codec.EntityKind) error {
	for _, key := range rows {
		if err := t.stx.Put(store.TableProps, key, codec.KindValue(kind)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Txn) deleteIndexedProps(id ident.EntityID, props map[string]codec.Value) error {
	for k, v := range props {
		if !t.db.indexedKey(k) {
			continue
		}
		key, err := codec.PropKey(k, v, id)
		if err != nil {
			// An unindexable value never got a row; the key may have
			// been added to the indexed set after the record was
			// written. Nothing to delete.
			continue
		}
		if err := t.stx.Delete(store.TableProps, key); err != nil {
			return err
		}
	}
	return nil
}

// reindexProp replaces the props row for one key after its value changed
// from oldProps to newProps. Only the affected row is touched. Both keys
// are computed before either write, so an unindexable new value fails
// with the old row still in place.
func (t *Txn) reindexProp(id ident.EntityID, kind codec.EntityKind, key string, oldProps, newProps map[string]codec.Value) error {
	if !t.db.indexedKey(key) {
		return nil
	}
	oldVal, hadOld := oldProps[key]
	newVal, hasNew := newProps[key]
	if hadOld && hasNew && oldVal.Equal(newVal) {
		return nil
	}

	var newKey []byte
	if hasNew {
		k, err := codec.PropKey(key, newVal, id)
		if err != nil {
			return err
		}
		newKey = k
	}
	if hadOld {
		if k, err := codec.PropKey(key, oldVal, id); err == nil {
			if err := t.stx.Delete(store.TableProps, k); err != nil {
				return err
			}
		}
	}
	if hasNew {
		if err := t.stx.Put(store.TableProps, newKey, codec.KindValue(kind)); err != nil {
			return err
		}
	}
	return nil
}

func dedupLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func copyProps(props map[string]codec.Value) map[string]codec.Value {
	out := make(map[string]codec.Value, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
