package graph

import (
	"fmt"

	"github.com/orneryd/huginn/pkg/codec"
	"github.com/orneryd/huginn/pkg/ident"
	"github.com/orneryd/huginn/pkg/store"
)

// ============================================================================
// Consistency check
// ============================================================================

// Violation describes one inconsistency between the primary tables and
// the derived indexes.
type Violation struct {
	Table  store.Table    // table holding the offending or missing row
	Entity ident.EntityID // entity involved, Zero when the row is orphaned
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Table, v.Detail, v.Entity)
}

// Check cross-references every index row against the primary tables and
// every primary record against the indexes it must be mirrored in. It
// returns all violations found, so a single run reports the full damage.
// A healthy file yields an empty slice.
//
// Check reads the whole file; run it inside a read transaction.
func (t *Txn) Check() ([]Violation, error) {
	var out []Violation
	report := func(table store.Table, id ident.EntityID, format string, args ...any) {
		out = append(out, Violation{Table: table, Entity: id, Detail: fmt.Sprintf(format, args...)})
	}

	// Pass 1: primary records. Decode everything, verify edge endpoints,
	// and confirm each record's index rows exist.
	nodes := make(map[ident.EntityID]codec.NodeRecord)
	err := t.stx.Scan(store.TableNodes, nil, func(k, v []byte) error {
		id, err := ident.FromBytes(k)
		if err != nil {
			report(store.TableNodes, ident.Zero, "undecodable node key: %v", err)
			return nil
		}
		rec, err := codec.DecodeNode(v)
		if err != nil {
			report(store.TableNodes, id, "undecodable node record: %v", err)
			return nil
		}
		nodes[id] = rec
		for _, label := range rec.Labels {
			if err := t.checkIndexRow(store.TableLabels, codec.LabelKey(label, id), codec.EntityNode, id, report); err != nil {
				return err
			}
		}
		return t.checkPropRows(id, codec.EntityNode, rec.Properties, report)
	})
	if err != nil {
		return nil, err
	}

	edges := make(map[ident.EntityID]codec.EdgeRecord)
	err = t.stx.Scan(store.TableEdges, nil, func(k, v []byte) error {
		id, err := ident.FromBytes(k)
		if err != nil {
			report(store.TableEdges, ident.Zero, "undecodable edge key: %v", err)
			return nil
		}
		rec, err := codec.DecodeEdge(v)
		if err != nil {
			report(store.TableEdges, id, "undecodable edge record: %v", err)
			return nil
		}
		edges[id] = rec
		if _, ok := nodes[rec.From]; !ok {
			report(store.TableEdges, id, "edge source %s does not exist", rec.From)
		}
		if _, ok := nodes[rec.To]; !ok {
			report(store.TableEdges, id, "edge target %s does not exist", rec.To)
		}
		for table, key := range map[store.Table][]byte{
			store.TableAdjFwd: codec.AdjKey(rec.From, rec.Label, rec.To, id),
			store.TableAdjBwd: codec.AdjKey(rec.To, rec.Label, rec.From, id),
		} {
			_, found, err := t.stx.Get(table, key)
			if err != nil {
				return err
			}
			if !found {
				report(table, id, "missing adjacency row for edge")
			}
		}
		if err := t.checkIndexRow(store.TableLabels, codec.LabelKey(rec.Label, id), codec.EntityEdge, id, report); err != nil {
			return err
		}
		return t.checkPropRows(id, codec.EntityEdge, rec.Properties, report)
	})
	if err != nil {
		return nil, err
	}

	// Pass 2: index rows. Everything in a derived table must point back
	// at a live record that agrees with it.
	for _, table := range []store.Table{store.TableAdjFwd, store.TableAdjBwd} {
		tbl := table
		err = t.stx.Scan(tbl, nil, func(k, v []byte) error {
			endpoint, label, other, edgeID, err := codec.SplitAdjKey(k)
			if err != nil {
				report(tbl, ident.Zero, "undecodable adjacency key: %v", err)
				return nil
			}
			valID, err := ident.FromBytes(v)
			if err != nil || valID != edgeID {
				report(tbl, edgeID, "adjacency value disagrees with key edge id")
				return nil
			}
			rec, ok := edges[edgeID]
			if !ok {
				report(tbl, edgeID, "adjacency row for nonexistent edge")
				return nil
			}
			from, to := endpoint, other
			if tbl == store.TableAdjBwd {
				from, to = other, endpoint
			}
			if rec.From != from || rec.To != to || rec.Label != label {
				report(tbl, edgeID, "adjacency row disagrees with edge record")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	err = t.stx.Scan(store.TableLabels, nil, func(k, v []byte) error {
		label, id, err := codec.SplitLabelKey(k)
		if err != nil {
			report(store.TableLabels, ident.Zero, "undecodable label key: %v", err)
			return nil
		}
		kind, err := codec.DecodeKindValue(v)
		if err != nil {
			report(store.TableLabels, id, "undecodable label row kind: %v", err)
			return nil
		}
		switch kind {
		case codec.EntityNode:
			rec, ok := nodes[id]
			if !ok {
				report(store.TableLabels, id, "label row %q for nonexistent node", label)
				return nil
			}
			for _, l := range rec.Labels {
				if l == label {
					return nil
				}
			}
			report(store.TableLabels, id, "label row %q not on node record", label)
		case codec.EntityEdge:
			rec, ok := edges[id]
			if !ok {
				report(store.TableLabels, id, "label row %q for nonexistent edge", label)
				return nil
			}
			if rec.Label != label {
				report(store.TableLabels, id, "label row %q disagrees with edge label %q", label, rec.Label)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = t.stx.Scan(store.TableProps, nil, func(k, v []byte) error {
		key, val, id, err := codec.SplitPropKey(k)
		if err != nil {
			report(store.TableProps, ident.Zero, "undecodable props key: %v", err)
			return nil
		}
		kind, err := codec.DecodeKindValue(v)
		if err != nil {
			report(store.TableProps, id, "undecodable props row kind: %v", err)
			return nil
		}
		var props map[string]codec.Value
		switch kind {
		case codec.EntityNode:
			rec, ok := nodes[id]
			if !ok {
				report(store.TableProps, id, "props row %q for nonexistent node", key)
				return nil
			}
			props = rec.Properties
		case codec.EntityEdge:
			rec, ok := edges[id]
			if !ok {
				report(store.TableProps, id, "props row %q for nonexistent edge", key)
				return nil
			}
			props = rec.Properties
		}
		stored, ok := props[key]
		if !ok {
			report(store.TableProps, id, "props row %q not on record", key)
			return nil
		}
		if !stored.Equal(val) {
			report(store.TableProps, id, "props row %q disagrees with record value", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Txn) checkIndexRow(table store.Table, key []byte, kind codec.EntityKind, id ident.EntityID, report func(store.Table, ident.EntityID, string, ...any)) error {
	v, found, err := t.stx.Get(table, key)
	if err != nil {
		return err
	}
	if !found {
		report(table, id, "missing index row")
		return nil
	}
	got, err := codec.DecodeKindValue(v)
	if err != nil || got != kind {
		report(table, id, "index row has wrong entity kind")
	}
	return nil
}

func (t *Txn) checkPropRows(id ident.EntityID, kind codec.EntityKind, props map[string]codec.Value, report func(store.Table, ident.EntityID, string, ...any)) error {
	for key, value := range props {
		if !t.db.indexedKey(key) {
			continue
		}
		pk, err := codec.PropKey(key, value, id)
		if err != nil {
			report(store.TableProps, id, "indexed property %q holds unindexable value: %v", key, err)
			continue
		}
		if err := t.checkIndexRow(store.TableProps, pk, kind, id, report); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Export
// ============================================================================

// ExportDocument is a plain, JSON-marshalable snapshot of the whole
// graph, suitable for backups and for feeding other tools.
type ExportDocument struct {
	Nodes []ExportNode `json:"nodes"`
	Edges []ExportEdge `json:"edges"`
}

// ExportNode is one node in an ExportDocument. Property values are the
// Go-native forms produced by codec.Value.Go.
type ExportNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ExportEdge is one edge in an ExportDocument.
type ExportEdge struct {
	ID         string         `json:"id"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Export walks the primary tables and returns the full graph in id
// order. Derived indexes are not exported; they are rebuilt from the
// records on import.
func (t *Txn) Export() (*ExportDocument, error) {
	doc := &ExportDocument{}
	err := t.stx.Scan(store.TableNodes, nil, func(k, v []byte) error {
		id, err := ident.FromBytes(k)
		if err != nil {
			return err
		}
		rec, err := codec.DecodeNode(v)
		if err != nil {
			return err
		}
		doc.Nodes = append(doc.Nodes, ExportNode{
			ID:         id.String(),
			Labels:     rec.Labels,
			Properties: goProps(rec.Properties),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = t.stx.Scan(store.TableEdges, nil, func(k, v []byte) error {
		id, err := ident.FromBytes(k)
		if err != nil {
			return err
		}
		rec, err := codec.DecodeEdge(v)
		if err != nil {
			return err
		}
		doc.Edges = append(doc.Edges, ExportEdge{
			ID:         id.String(),
			From:       rec.From.String(),
			To:         rec.To.String(),
			Label:      rec.Label,
			Properties: goProps(rec.Properties),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func goProps(props map[string]codec.Value) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v.Go()
	}
	return out
}
