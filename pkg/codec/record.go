package codec

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/orneryd/huginn/pkg/ident"
)

// recordVersion is the on-disk format version of entity records. Bump on
// any incompatible layout change; the store's meta table carries the same
// number so mismatches are caught at open time.
const recordVersion = 1

// NodeRecord is the decoded primary record of a node.
type NodeRecord struct {
	Labels     []string
	Properties map[string]Value
}

// EdgeRecord is the decoded primary record of an edge.
type EdgeRecord struct {
	From       ident.EntityID
	To         ident.EntityID
	Label      string
	Properties map[string]Value
}

// EncodeNode serializes a node record. The encoding is canonical: labels
// and property keys are written in sorted order, so two records with the
// same logical content encode to identical bytes regardless of how their
// maps and slices were built.
func EncodeNode(r NodeRecord) []byte {
	labels := append([]string(nil), r.Labels...)
	sort.Strings(labels)

	buf := make([]byte, 0, 64)
	buf = append(buf, recordVersion)
	buf = binary.AppendUvarint(buf, uint64(len(labels)))
	for _, l := range labels {
		buf = appendString(buf, l)
	}
	buf = appendProps(buf, r.Properties)
	return buf
}

// DecodeNode deserializes a node record produced by EncodeNode.
func DecodeNode(b []byte) (NodeRecord, error) {
	r := reader{buf: b, what: "node record"}
	if err := r.version(); err != nil {
		return NodeRecord{}, err
	}

	n, err := r.count("label count")
	if err != nil {
		return NodeRecord{}, err
	}
	labels := make([]string, 0, n)
	for i := 0; i < n; i++ {
		l, err := r.string("label")
		if err != nil {
			return NodeRecord{}, err
		}
		labels = append(labels, l)
	}

	props, err := r.props()
	if err != nil {
		return NodeRecord{}, err
	}
	if err := r.finish(); err != nil {
		return NodeRecord{}, err
	}
	return NodeRecord{Labels: labels, Properties: props}, nil
}

// EncodeEdge serializes an edge record: both endpoint ids raw, then the
// label, then the properties in canonical order.
func EncodeEdge(r EdgeRecord) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, recordVersion)
	buf = append(buf, r.From[:]...)
	buf = append(buf, r.To[:]...)
	buf = appendString(buf, r.Label)
	buf = appendProps(buf, r.Properties)
	return buf
}

// DecodeEdge deserializes an edge record produced by EncodeEdge.
func DecodeEdge(b []byte) (EdgeRecord, error) {
	r := reader{buf: b, what: "edge record"}
	if err := r.version(); err != nil {
		return EdgeRecord{}, err
	}

	from, err := r.id("from id")
	if err != nil {
		return EdgeRecord{}, err
	}
	to, err := r.id("to id")
	if err != nil {
		return EdgeRecord{}, err
	}
	label, err := r.string("label")
	if err != nil {
		return EdgeRecord{}, err
	}
	props, err := r.props()
	if err != nil {
		return EdgeRecord{}, err
	}
	if err := r.finish(); err != nil {
		return EdgeRecord{}, err
	}
	return EdgeRecord{From: from, To: to, Label: label, Properties: props}, nil
}

// ============================================================================
// Value wire format (record payloads)
// ============================================================================

func appendValue(buf []byte, v Value) []byte {
	buf = append(buf, byte(v.kind))
	switch v.kind {
	case KindNull:
	case KindBool:
		if v.b {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt, KindTimestamp:
		buf = binary.BigEndian.AppendUint64(buf, uint64(v.i))
	case KindFloat:
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v.f))
	case KindText:
		buf = appendString(buf, v.s)
	case KindBytes:
		buf = binary.AppendUvarint(buf, uint64(len(v.raw)))
		buf = append(buf, v.raw...)
	case KindList:
		buf = binary.AppendUvarint(buf, uint64(len(v.list)))
		for _, e := range v.list {
			buf = appendValue(buf, e)
		}
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendProps(buf []byte, props map[string]Value) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(props)))
	for _, k := range sortedKeys(props) {
		buf = appendString(buf, k)
		buf = appendValue(buf, props[k])
	}
	return buf
}

// ============================================================================
// Bounds-checked reader
// ============================================================================

// maxNested caps list nesting during decode so corrupt input cannot drive
// unbounded recursion.
const maxNested = 64

type reader struct {
	buf   []byte
	off   int
	what  string
	depth int
}

func (r *reader) version() error {
	b, err := r.byte("version")
	if err != nil {
		return err
	}
	if b != recordVersion {
		return encErr(r.what, "unsupported version %d (want %d)", b, recordVersion)
	}
	return nil
}

func (r *reader) byte(field string) (byte, error) {
	if r.off >= len(r.buf) {
		return 0, encErr(r.what, "truncated at %s (offset %d)", field, r.off)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *reader) take(n int, field string) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, encErr(r.what, "truncated at %s: need %d bytes at offset %d of %d", field, n, r.off, len(r.buf))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) uvarint(field string) (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, encErr(r.what, "bad varint at %s (offset %d)", field, r.off)
	}
	r.off += n
	return v, nil
}

// count reads an element count and bounds it against the bytes left:
// every element needs at least one byte, so a count beyond the remainder
// is corrupt and must be rejected before it sizes an allocation.
func (r *reader) count(field string) (int, error) {
	n, err := r.uvarint(field)
	if err != nil {
		return 0, err
	}
	if n > uint64(len(r.buf)-r.off) {
		return 0, encErr(r.what, "%s %d exceeds remaining %d bytes", field, n, len(r.buf)-r.off)
	}
	return int(n), nil
}

func (r *reader) string(field string) (string, error) {
	n, err := r.uvarint(field + " length")
	if err != nil {
		return "", err
	}
	if n > uint64(len(r.buf)-r.off) {
		return "", encErr(r.what, "truncated at %s: length %d exceeds remaining %d", field, n, len(r.buf)-r.off)
	}
	b, err := r.take(int(n), field)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) id(field string) (ident.EntityID, error) {
	b, err := r.take(ident.IDLen, field)
	if err != nil {
		return ident.Zero, err
	}
	id, _ := ident.FromBytes(b)
	return id, nil
}

func (r *reader) props() (map[string]Value, error) {
	n, err := r.count("property count")
	if err != nil {
		return nil, err
	}
	props := make(map[string]Value, n)
	for i := 0; i < n; i++ {
		k, err := r.string("property key")
		if err != nil {
			return nil, err
		}
		v, err := r.value()
		if err != nil {
			return nil, err
		}
		props[k] = v
	}
	return props, nil
}

func (r *reader) value() (Value, error) {
	if r.depth >= maxNested {
		return Value{}, encErr(r.what, "value nesting exceeds %d", maxNested)
	}
	tag, err := r.byte("value tag")
	if err != nil {
		return Value{}, err
	}
	switch Kind(tag) {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := r.byte("bool payload")
		if err != nil {
			return Value{}, err
		}
		switch b {
		case 0:
			return Bool(false), nil
		case 1:
			return Bool(true), nil
		default:
			return Value{}, encErr(r.what, "bad bool payload %d", b)
		}
	case KindInt:
		b, err := r.take(8, "int payload")
		if err != nil {
			return Value{}, err
		}
		return Int(int64(binary.BigEndian.Uint64(b))), nil
	case KindTimestamp:
		b, err := r.take(8, "timestamp payload")
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindTimestamp, i: int64(binary.BigEndian.Uint64(b))}, nil
	case KindFloat:
		b, err := r.take(8, "float payload")
		if err != nil {
			return Value{}, err
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(b))), nil
	case KindText:
		s, err := r.string("text payload")
		if err != nil {
			return Value{}, err
		}
		return Text(s), nil
	case KindBytes:
		n, err := r.uvarint("bytes length")
		if err != nil {
			return Value{}, err
		}
		if n > uint64(len(r.buf)-r.off) {
			return Value{}, encErr(r.what, "truncated bytes payload: length %d exceeds remaining %d", n, len(r.buf)-r.off)
		}
		b, err := r.take(int(n), "bytes payload")
		if err != nil {
			return Value{}, err
		}
		return Blob(b), nil
	case KindList:
		n, err := r.uvarint("list length")
		if err != nil {
			return Value{}, err
		}
		if n > uint64(len(r.buf)-r.off) {
			return Value{}, encErr(r.what, "list length %d exceeds remaining %d bytes", n, len(r.buf)-r.off)
		}
		elems := make([]Value, 0, n)
		r.depth++
		for i := uint64(0); i < n; i++ {
			e, err := r.value()
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, e)
		}
		r.depth--
		return Value{kind: KindList, list: elems}, nil
	default:
		return Value{}, encErr(r.what, "unknown value tag %d", tag)
	}
}

func (r *reader) finish() error {
	if r.off != len(r.buf) {
		return encErr(r.what, "%d trailing bytes", len(r.buf)-r.off)
	}
	return nil
}
