// Package codec defines the canonical byte layouts for Huginn: property
// values, node/edge records, and the composite keys of every derived index.
//
// Two distinct encodings live here and must not be confused:
//
//   - Record encoding (record.go): self-describing, length-prefixed, used
//     for the payloads stored in the nodes/edges tables. Compact, not
//     order-preserving.
//   - Index-key encoding (keys.go): order-preserving concatenation of
//     fixed-width or terminator-escaped parts, used for every key in the
//     adj_fwd/adj_bwd/labels/props tables. A byte-range scan over a key
//     prefix yields exactly the matching logical set.
//
// Both encodings share the Value type, so an index entry and a record decode
// to bit-identical values. All decoders are total: malformed or truncated
// input returns an *EncodingError, never a panic or an out-of-range read.
package codec

import (
	"bytes"
	"fmt"
	"sort"
	"time"
)

// Kind discriminates the variants of a Value.
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindTimestamp
	KindText
	KindBytes
	KindList
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTimestamp:
		return "timestamp"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Value is a typed property value: a tagged union over null, bool, int64,
// float64, millisecond timestamps, UTF-8 text, raw bytes, and lists of
// values. The zero Value is null.
//
// Values are immutable once constructed; the accessors return copies of any
// mutable payload.
//
// Example:
//
//	props := map[string]codec.Value{
//		"name":   codec.Text("Alice"),
//		"age":    codec.Int(30),
//		"scores": codec.List(codec.Float(9.5), codec.Float(8.1)),
//	}
type Value struct {
	kind Kind
	b    bool
	i    int64 // int payload, or timestamp in unix milliseconds
	f    float64
	s    string
	raw  []byte
	list []Value
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating-point Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Timestamp returns a time Value, truncated to millisecond precision.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, i: t.UnixMilli()}
}

// Text returns a UTF-8 string Value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Blob returns a raw-bytes Value. The slice is copied.
func Blob(b []byte) Value {
	return Value{kind: KindBytes, raw: append([]byte(nil), b...)}
}

// List returns a list Value over the given elements.
func List(elems ...Value) Value {
	return Value{kind: KindList, list: append([]Value(nil), elems...)}
}

// Kind returns the variant tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload, or false for other kinds.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the integer payload, or 0 for other kinds.
func (v Value) AsInt() int64 {
	if v.kind != KindInt {
		return 0
	}
	return v.i
}

// AsFloat returns the float payload, or 0 for other kinds.
func (v Value) AsFloat() float64 { return v.f }

// AsTime returns the timestamp payload, or the zero time for other kinds.
func (v Value) AsTime() time.Time {
	if v.kind != KindTimestamp {
		return time.Time{}
	}
	return time.UnixMilli(v.i).UTC()
}

// AsText returns the string payload, or "" for other kinds.
func (v Value) AsText() string { return v.s }

// AsBytes returns a copy of the bytes payload, or nil for other kinds.
func (v Value) AsBytes() []byte {
	if v.kind != KindBytes {
		return nil
	}
	return append([]byte(nil), v.raw...)
}

// AsList returns a copy of the list payload, or nil for other kinds.
func (v Value) AsList() []Value {
	if v.kind != KindList {
		return nil
	}
	return append([]Value(nil), v.list...)
}

// Go converts v to its nearest Go representation: nil, bool, int64,
// float64, time.Time, string, []byte, or []any.
func (v Value) Go() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindTimestamp:
		return v.AsTime()
	case KindText:
		return v.s
	case KindBytes:
		return v.AsBytes()
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Go()
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep equality of two values, including kind. Float NaN is
// not equal to itself, matching Go semantics.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt, KindTimestamp:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindText:
		return v.s == other.s
	case KindBytes:
		return bytes.Equal(v.raw, other.raw)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders v for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindTimestamp:
		return v.AsTime().Format(time.RFC3339Nano)
	case KindText:
		return fmt.Sprintf("%q", v.s)
	case KindBytes:
		return fmt.Sprintf("0x%x", v.raw)
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + joinStrings(parts, ", ") + "]"
	default:
		return v.kind.String()
	}
}

func joinStrings(parts []string, sep string) string {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteString(sep)
		}
		buf.WriteString(p)
	}
	return buf.String()
}

// sortedKeys returns the property keys in canonical (bytewise) order, so
// that record encoding does not depend on map insertion order.
func sortedKeys(props map[string]Value) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
