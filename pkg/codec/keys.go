package codec

import (
	"encoding/binary"
	"math"

	"github.com/orneryd/huginn/pkg/ident"
)

// EntityKind tags a label or property index row with the table its entity
// lives in, so one scan can serve nodes and edges and still tell them apart.
type EntityKind byte

const (
	EntityNode EntityKind = 0x00
	EntityEdge EntityKind = 0x01
)

// KindValue returns the one-byte row value for an index entry.
func KindValue(k EntityKind) []byte { return []byte{byte(k)} }

// DecodeKindValue parses an index row value.
func DecodeKindValue(b []byte) (EntityKind, error) {
	if len(b) != 1 || b[0] > byte(EntityEdge) {
		return 0, encErr("index row value", "want one kind byte, got %x", b)
	}
	return EntityKind(b[0]), nil
}

// Strings inside composite keys are escaped rather than length-prefixed:
// a length prefix would sort "b" after "ab" by length first, breaking
// lexical order. Instead 0x00 bytes are escaped to 0x00 0xFF and the string
// is closed with the terminator 0x00 0x01, which sorts below every escaped
// byte but above end-of-string. A prefix scan over an escaped string plus
// its terminator therefore matches exactly that string, never an extension
// of it.
const (
	escByte   = 0x00
	escFill   = 0xFF
	termFinal = 0x01
)

func appendEscaped(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == escByte {
			buf = append(buf, escByte, escFill)
		} else {
			buf = append(buf, s[i])
		}
	}
	return append(buf, escByte, termFinal)
}

// readEscaped consumes one escaped string and its terminator, returning the
// string and the remaining bytes.
func readEscaped(b []byte, what string) (string, []byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != escByte {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			return "", nil, encErr(what, "dangling escape byte")
		}
		switch b[i+1] {
		case escFill:
			out = append(out, escByte)
			i++
		case termFinal:
			return string(out), b[i+2:], nil
		default:
			return "", nil, encErr(what, "bad escape sequence 0x00 0x%02x", b[i+1])
		}
	}
	return "", nil, encErr(what, "missing string terminator")
}

// ============================================================================
// Order-preserving scalar encoding (props index)
// ============================================================================

// Index tags are ordered so values of different kinds group together:
// null < bool < int < float < timestamp < text < bytes.
const (
	idxNull      = 0x01
	idxBool      = 0x02
	idxInt       = 0x03
	idxFloat     = 0x04
	idxTimestamp = 0x05
	idxText      = 0x06
	idxBytes     = 0x07
)

// AppendIndexValue appends the order-preserving encoding of a scalar value:
// for any two values a, b of the same kind, a < b iff encode(a) sorts
// before encode(b). Lists are not indexable and return an *EncodingError.
func AppendIndexValue(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, idxNull), nil
	case KindBool:
		if v.b {
			return append(buf, idxBool, 1), nil
		}
		return append(buf, idxBool, 0), nil
	case KindInt:
		buf = append(buf, idxInt)
		return binary.BigEndian.AppendUint64(buf, uint64(v.i)^(1<<63)), nil
	case KindFloat:
		buf = append(buf, idxFloat)
		return binary.BigEndian.AppendUint64(buf, sortableFloatBits(v.f)), nil
	case KindTimestamp:
		buf = append(buf, idxTimestamp)
		return binary.BigEndian.AppendUint64(buf, uint64(v.i)^(1<<63)), nil
	case KindText:
		return appendEscaped(append(buf, idxText), v.s), nil
	case KindBytes:
		return appendEscaped(append(buf, idxBytes), string(v.raw)), nil
	default:
		return nil, encErr("index value", "%s values are not indexable", v.kind)
	}
}

// DecodeIndexValue parses one order-preserving scalar off the front of b
// and returns the remaining bytes.
func DecodeIndexValue(b []byte) (Value, []byte, error) {
	const what = "index value"
	if len(b) == 0 {
		return Value{}, nil, encErr(what, "empty input")
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case idxNull:
		return Null(), rest, nil
	case idxBool:
		if len(rest) < 1 || rest[0] > 1 {
			return Value{}, nil, encErr(what, "bad bool payload")
		}
		return Bool(rest[0] == 1), rest[1:], nil
	case idxInt:
		if len(rest) < 8 {
			return Value{}, nil, encErr(what, "truncated int payload")
		}
		return Int(int64(binary.BigEndian.Uint64(rest[:8]) ^ (1 << 63))), rest[8:], nil
	case idxFloat:
		if len(rest) < 8 {
			return Value{}, nil, encErr(what, "truncated float payload")
		}
		return Float(floatFromSortableBits(binary.BigEndian.Uint64(rest[:8]))), rest[8:], nil
	case idxTimestamp:
		if len(rest) < 8 {
			return Value{}, nil, encErr(what, "truncated timestamp payload")
		}
		ms := int64(binary.BigEndian.Uint64(rest[:8]) ^ (1 << 63))
		return Value{kind: KindTimestamp, i: ms}, rest[8:], nil
	case idxText:
		s, rest, err := readEscaped(rest, what)
		if err != nil {
			return Value{}, nil, err
		}
		return Text(s), rest, nil
	case idxBytes:
		s, rest, err := readEscaped(rest, what)
		if err != nil {
			return Value{}, nil, err
		}
		return Blob([]byte(s)), rest, nil
	default:
		return Value{}, nil, encErr(what, "unknown tag %d", tag)
	}
}

// sortableFloatBits maps a float64 onto a uint64 whose unsigned order
// matches the float's numeric order: positives get the sign bit set,
// negatives are bit-flipped.
func sortableFloatBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func floatFromSortableBits(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

// ============================================================================
// Composite index keys
// ============================================================================

// Adjacency rows live in adj_fwd keyed (from, label, to, edge) and in
// adj_bwd keyed (to, label, from, edge). The trailing edge id keeps
// parallel edges from colliding; the row value repeats the edge id so a
// scan resolves the edge without re-parsing the key.

// AdjKey builds a full adjacency key.
func AdjKey(endpoint ident.EntityID, label string, other, edge ident.EntityID) []byte {
	buf := make([]byte, 0, 2*ident.IDLen+len(label)+2+ident.IDLen)
	buf = append(buf, endpoint[:]...)
	buf = appendEscaped(buf, label)
	buf = append(buf, other[:]...)
	return append(buf, edge[:]...)
}

// AdjPrefix scans every adjacency row of one endpoint, all labels.
func AdjPrefix(endpoint ident.EntityID) []byte {
	return endpoint.Bytes()
}

// AdjLabelPrefix scans the adjacency rows of one endpoint under one label.
func AdjLabelPrefix(endpoint ident.EntityID, label string) []byte {
	buf := make([]byte, 0, ident.IDLen+len(label)+2)
	buf = append(buf, endpoint[:]...)
	return appendEscaped(buf, label)
}

// SplitAdjKey decomposes an adjacency key into its parts.
func SplitAdjKey(key []byte) (endpoint ident.EntityID, label string, other, edge ident.EntityID, err error) {
	const what = "adjacency key"
	if len(key) < ident.IDLen {
		err = encErr(what, "shorter than one id")
		return
	}
	endpoint, _ = ident.FromBytes(key[:ident.IDLen])
	label, rest, err := readEscaped(key[ident.IDLen:], what)
	if err != nil {
		return
	}
	if len(rest) != 2*ident.IDLen {
		err = encErr(what, "want %d trailing id bytes, got %d", 2*ident.IDLen, len(rest))
		return
	}
	other, _ = ident.FromBytes(rest[:ident.IDLen])
	edge, _ = ident.FromBytes(rest[ident.IDLen:])
	return
}

// LabelKey builds a label index key (label, entity).
func LabelKey(label string, id ident.EntityID) []byte {
	buf := make([]byte, 0, len(label)+2+ident.IDLen)
	buf = appendEscaped(buf, label)
	return append(buf, id[:]...)
}

// LabelPrefix scans every entity carrying one label.
func LabelPrefix(label string) []byte {
	return appendEscaped(make([]byte, 0, len(label)+2), label)
}

// SplitLabelKey decomposes a label index key.
func SplitLabelKey(key []byte) (string, ident.EntityID, error) {
	const what = "label key"
	label, rest, err := readEscaped(key, what)
	if err != nil {
		return "", ident.Zero, err
	}
	if len(rest) != ident.IDLen {
		return "", ident.Zero, encErr(what, "want %d trailing id bytes, got %d", ident.IDLen, len(rest))
	}
	id, _ := ident.FromBytes(rest)
	return label, id, nil
}

// PropKey builds a property index key (key, value, entity). Fails for
// non-indexable values.
func PropKey(key string, v Value, id ident.EntityID) ([]byte, error) {
	buf := appendEscaped(make([]byte, 0, len(key)+24+ident.IDLen), key)
	buf, err := AppendIndexValue(buf, v)
	if err != nil {
		return nil, err
	}
	return append(buf, id[:]...), nil
}

// PropPrefix scans every entity carrying the exact (key, value) pair.
func PropPrefix(key string, v Value) ([]byte, error) {
	buf := appendEscaped(make([]byte, 0, len(key)+24), key)
	return AppendIndexValue(buf, v)
}

// PropKeyPrefix scans every indexed value of one property key.
func PropKeyPrefix(key string) []byte {
	return appendEscaped(make([]byte, 0, len(key)+2), key)
}

// SplitPropKey decomposes a property index key.
func SplitPropKey(b []byte) (key string, v Value, id ident.EntityID, err error) {
	const what = "property key"
	key, rest, err := readEscaped(b, what)
	if err != nil {
		return
	}
	v, rest, err = DecodeIndexValue(rest)
	if err != nil {
		return
	}
	if len(rest) != ident.IDLen {
		err = encErr(what, "want %d trailing id bytes, got %d", ident.IDLen, len(rest))
		return
	}
	id, _ = ident.FromBytes(rest)
	return
}
