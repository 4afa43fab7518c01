package graph

import (
	"github.com/orneryd/huginn/pkg/codec"
	"github.com/orneryd/huginn/pkg/ident"
	"github.com/orneryd/huginn/pkg/store"
)

// Node is an owned, fully decoded node: safe to retain after its
// transaction ends.
type Node struct {
	ID         ident.EntityID
	Labels     []string
	Properties map[string]codec.Value
}

// HasLabel reports whether the node carries a label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Edge is an owned, fully decoded edge.
type Edge struct {
	ID         ident.EntityID
	From       ident.EntityID
	To         ident.EntityID
	Label      string
	Properties map[string]codec.Value
}

// NodeView is a borrowed view of a node: a handle over bytes that live
// inside the transaction's memory map. Nothing is decoded until an
// accessor asks for it, and every accessor fails with ErrTxClosed once
// the transaction has ended. Use Materialize to keep the data longer.
type NodeView struct {
	id  ident.EntityID
	raw []byte
	tx  *Txn
	rec *codec.NodeRecord
}

// ID returns the node id. Valid even after the transaction ends.
func (v *NodeView) ID() ident.EntityID { return v.id }

func (v *NodeView) decode() (*codec.NodeRecord, error) {
	if v.rec != nil {
		return v.rec, nil
	}
	if v.tx.stx.Closed() {
		return nil, ErrTxClosed
	}
	rec, err := codec.DecodeNode(v.raw)
	if err != nil {
		return nil, err
	}
	v.rec = &rec
	return v.rec, nil
}

// Labels decodes and returns the node's labels.
func (v *NodeView) Labels() ([]string, error) {
	rec, err := v.decode()
	if err != nil {
		return nil, err
	}
	return rec.Labels, nil
}

// HasLabel reports whether the node carries a label.
func (v *NodeView) HasLabel(label string) (bool, error) {
	labels, err := v.Labels()
	if err != nil {
		return false, err
	}
	for _, l := range labels {
		if l == label {
			return true, nil
		}
	}
	return false, nil
}

// Property returns one property value; ok is false when the key is
// absent.
func (v *NodeView) Property(key string) (value codec.Value, ok bool, err error) {
	rec, err := v.decode()
	if err != nil {
		return codec.Null(), false, err
	}
	value, ok = rec.Properties[key]
	return value, ok, nil
}

// Materialize upgrades the view to an owned Node, decoding everything and
// copying it out of the transaction's memory.
func (v *NodeView) Materialize() (*Node, error) {
	rec, err := v.decode()
	if err != nil {
		return nil, err
	}
	return ownedNode(v.id, rec), nil
}

// EdgeView is the borrowed counterpart of Edge; see NodeView.
type EdgeView struct {
	id  ident.EntityID
	raw []byte
	tx  *Txn
	rec *codec.EdgeRecord
}

// ID returns the edge id. Valid even after the transaction ends.
func (v *EdgeView) ID() ident.EntityID { return v.id }

func (v *EdgeView) decode() (*codec.EdgeRecord, error) {
	if v.rec != nil {
		return v.rec, nil
	}
	if v.tx.stx.Closed() {
		return nil, ErrTxClosed
	}
	rec, err := codec.DecodeEdge(v.raw)
	if err != nil {
		return nil, err
	}
	v.rec = &rec
	return v.rec, nil
}

// From returns the source node id.
func (v *EdgeView) From() (ident.EntityID, error) {
	rec, err := v.decode()
	if err != nil {
		return ident.Zero, err
	}
	return rec.From, nil
}

// To returns the target node id.
func (v *EdgeView) To() (ident.EntityID, error) {
	rec, err := v.decode()
	if err != nil {
		return ident.Zero, err
	}
	return rec.To, nil
}

// Label returns the edge label.
func (v *EdgeView) Label() (string, error) {
	rec, err := v.decode()
	if err != nil {
		return "", err
	}
	return rec.Label, nil
}

// Property returns one property value; ok is false when the key is
// absent.
func (v *EdgeView) Property(key string) (value codec.Value, ok bool, err error) {
	rec, err := v.decode()
	if err != nil {
		return codec.Null(), false, err
	}
	value, ok = rec.Properties[key]
	return value, ok, nil
}

// Materialize upgrades the view to an owned Edge.
func (v *EdgeView) Materialize() (*Edge, error) {
	rec, err := v.decode()
	if err != nil {
		return nil, err
	}
	return ownedEdge(v.id, rec), nil
}

func ownedNode(id ident.EntityID, rec *codec.NodeRecord) *Node {
	props := make(map[string]codec.Value, len(rec.Properties))
	for k, v := range rec.Properties {
		props[k] = v
	}
	return &Node{
		ID:         id,
		Labels:     append([]string(nil), rec.Labels...),
		Properties: props,
	}
}

func ownedEdge(id ident.EntityID, rec *codec.EdgeRecord) *Edge {
	props := make(map[string]codec.Value, len(rec.Properties))
	for k, v := range rec.Properties {
		props[k] = v
	}
	return &Edge{
		ID:         id,
		From:       rec.From,
		To:         rec.To,
		Label:      rec.Label,
		Properties: props,
	}
}

// ============================================================================
// Transaction-scoped accessors
// ============================================================================

// Node returns a borrowed view of a node, or *NotFoundError.
func (t *Txn) Node(id ident.EntityID) (*NodeView, error) {
	raw, found, err := t.stx.Get(store.TableNodes, id.Bytes())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound(id)
	}
	return &NodeView{id: id, raw: raw, tx: t}, nil
}

// Edge returns a borrowed view of an edge, or *NotFoundError.
func (t *Txn) Edge(id ident.EntityID) (*EdgeView, error) {
	raw, found, err := t.stx.Get(store.TableEdges, id.Bytes())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound(id)
	}
	return &EdgeView{id: id, raw: raw, tx: t}, nil
}

// GetNode returns an owned copy of a node, or *NotFoundError.
func (t *Txn) GetNode(id ident.EntityID) (*Node, error) {
	view, err := t.Node(id)
	if err != nil {
		return nil, err
	}
	return view.Materialize()
}

// GetEdge returns an owned copy of an edge, or *NotFoundError.
func (t *Txn) GetEdge(id ident.EntityID) (*Edge, error) {
	view, err := t.Edge(id)
	if err != nil {
		return nil, err
	}
	return view.Materialize()
}

// NodeCount returns the number of nodes.
func (t *Txn) NodeCount() (int, error) {
	return t.stx.Count(store.TableNodes)
}

// EdgeCount returns the number of edges.
func (t *Txn) EdgeCount() (int, error) {
	return t.stx.Count(store.TableEdges)
}
