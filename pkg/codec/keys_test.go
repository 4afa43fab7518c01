package codec

import (
	"bytes"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/huginn/pkg/ident"
)

func encIndex(t *testing.T, v Value) []byte {
	t.Helper()
	b, err := AppendIndexValue(nil, v)
	require.NoError(t, err)
	return b
}

func TestIndexValue_OrderPreserving(t *testing.T) {
	// Logical order within each kind, plus the documented cross-kind
	// grouping null < bool < int < float < timestamp < text < bytes.
	ordered := []Value{
		Null(),
		Bool(false), Bool(true),
		Int(math.MinInt64), Int(-1000), Int(-1), Int(0), Int(1), Int(42), Int(math.MaxInt64),
		Float(math.Inf(-1)), Float(-2.5), Float(-0.0001), Float(0), Float(0.0001), Float(2.5), Float(math.Inf(1)),
		Timestamp(time.UnixMilli(0)), Timestamp(time.UnixMilli(1_700_000_000_000)),
		Text(""), Text("\x00"), Text("\x00x"), Text("a"), Text("ab"), Text("b"),
		Blob(nil), Blob([]byte{0x00}), Blob([]byte{0x01}), Blob([]byte{0x01, 0x00}),
	}

	encoded := make([][]byte, len(ordered))
	for i, v := range ordered {
		encoded[i] = encIndex(t, v)
	}

	for i := 1; i < len(encoded); i++ {
		assert.Equal(t, -1, bytes.Compare(encoded[i-1], encoded[i]),
			"%s should sort before %s", ordered[i-1], ordered[i])
	}
}

func TestIndexValue_SortMatchesLogical(t *testing.T) {
	ints := []int64{55, -3, 0, 999999, -999999, 1, math.MaxInt64, math.MinInt64}
	enc := make([][]byte, len(ints))
	for i, n := range ints {
		enc[i] = encIndex(t, Int(n))
	}
	sort.Slice(enc, func(i, j int) bool { return bytes.Compare(enc[i], enc[j]) < 0 })
	sort.Slice(ints, func(i, j int) bool { return ints[i] < ints[j] })
	for i := range ints {
		v, rest, err := DecodeIndexValue(enc[i])
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, ints[i], v.AsInt())
	}
}

func TestIndexValue_RoundTrip(t *testing.T) {
	values := []Value{
		Null(), Bool(true), Bool(false),
		Int(-42), Int(0), Int(42),
		Float(-1.5), Float(0), Float(12345.678),
		Timestamp(time.UnixMilli(1_700_000_000_123)),
		Text(""), Text("hello"), Text("with\x00nul"),
		Blob(nil), Blob([]byte{0, 1, 2, 0xff, 0}),
	}
	for _, v := range values {
		got, rest, err := DecodeIndexValue(encIndex(t, v))
		require.NoError(t, err, "value %s", v)
		assert.Empty(t, rest)
		assert.True(t, v.Equal(got), "want %s, got %s", v, got)
	}
}

func TestIndexValue_ListRejected(t *testing.T) {
	_, err := AppendIndexValue(nil, List(Int(1)))
	var encErr *EncodingError
	assert.ErrorAs(t, err, &encErr)
}

func TestIndexValue_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":               nil,
		"unknown_tag":         {0x7F},
		"truncated_int":       {idxInt, 1, 2, 3},
		"truncated_float":     {idxFloat, 1},
		"bad_bool":            {idxBool, 9},
		"unterminated_text":   {idxText, 'a', 'b'},
		"dangling_escape":     {idxText, 'a', 0x00},
		"bad_escape_sequence": {idxText, 0x00, 0x55},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeIndexValue(b)
			var encErr *EncodingError
			assert.ErrorAs(t, err, &encErr)
		})
	}
}

func TestAdjKey_SplitRoundTrip(t *testing.T) {
	a, b, e := ident.New(), ident.New(), ident.New()
	key := AdjKey(a, "knows", b, e)

	gotA, label, gotB, gotE, err := SplitAdjKey(key)
	require.NoError(t, err)
	assert.Equal(t, a, gotA)
	assert.Equal(t, "knows", label)
	assert.Equal(t, b, gotB)
	assert.Equal(t, e, gotE)
}

func TestAdjKey_Prefixes(t *testing.T) {
	a, b, e := ident.New(), ident.New(), ident.New()
	key := AdjKey(a, "knows", b, e)

	assert.True(t, bytes.HasPrefix(key, AdjPrefix(a)))
	assert.True(t, bytes.HasPrefix(key, AdjLabelPrefix(a, "knows")))

	// The label prefix of "know" must not match rows labeled "knows".
	assert.False(t, bytes.HasPrefix(key, AdjLabelPrefix(a, "know")))
	// Nor the other way around.
	assert.False(t, bytes.HasPrefix(AdjKey(a, "know", b, e), AdjLabelPrefix(a, "knows")))
}

func TestLabelKey_SplitRoundTrip(t *testing.T) {
	id := ident.New()
	key := LabelKey("Person", id)

	label, gotID, err := SplitLabelKey(key)
	require.NoError(t, err)
	assert.Equal(t, "Person", label)
	assert.Equal(t, id, gotID)

	assert.True(t, bytes.HasPrefix(key, LabelPrefix("Person")))
	assert.False(t, bytes.HasPrefix(key, LabelPrefix("Person2")))
	assert.False(t, bytes.HasPrefix(LabelKey("PersonX", id), LabelPrefix("Person")))
}

func TestPropKey_SplitRoundTrip(t *testing.T) {
	id := ident.New()
	key, err := PropKey("age", Int(30), id)
	require.NoError(t, err)

	gotKey, gotVal, gotID, err := SplitPropKey(key)
	require.NoError(t, err)
	assert.Equal(t, "age", gotKey)
	assert.True(t, Int(30).Equal(gotVal))
	assert.Equal(t, id, gotID)

	prefix, err := PropPrefix("age", Int(30))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(key, prefix))
	assert.True(t, bytes.HasPrefix(key, PropKeyPrefix("age")))

	other, err := PropPrefix("age", Int(31))
	require.NoError(t, err)
	assert.False(t, bytes.HasPrefix(key, other))
}

func TestPropKey_ListRejected(t *testing.T) {
	_, err := PropKey("xs", List(Int(1)), ident.New())
	var encErr *EncodingError
	assert.ErrorAs(t, err, &encErr)
}

func TestSplitKeys_Malformed(t *testing.T) {
	var encErr *EncodingError

	_, _, _, _, err := SplitAdjKey([]byte{1, 2, 3})
	assert.ErrorAs(t, err, &encErr)

	_, _, err = SplitLabelKey([]byte{'a', 'b'})
	assert.ErrorAs(t, err, &encErr)

	_, _, _, err = SplitPropKey([]byte{'a', 0x00, 0x01, 0x7F})
	assert.ErrorAs(t, err, &encErr)

	_, err = DecodeKindValue([]byte{5})
	assert.ErrorAs(t, err, &encErr)
}

func TestKindValue_RoundTrip(t *testing.T) {
	for _, k := range []EntityKind{EntityNode, EntityEdge} {
		got, err := DecodeKindValue(KindValue(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
}
