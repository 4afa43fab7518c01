// Package ident allocates time-sortable entity identifiers for Huginn.
//
// Every node and edge in the graph is keyed by an EntityID: a 128-bit ULID
// combining a 48-bit millisecond timestamp with 80 bits of entropy. The raw
// byte order of an EntityID equals its creation order, which is what makes
// id-keyed range scans over the store come back in chronological order.
//
// Example:
//
//	id := ident.New()
//	fmt.Println(id)           // 01J9ZK3V7R8Y2Q4W6E8T0N5M7C
//	later := ident.New()
//	fmt.Println(id.Compare(later) < 0) // true
package ident

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDLen is the raw byte length of an EntityID.
const IDLen = 16

// EntityID uniquely identifies a node or an edge.
//
// The first 6 bytes are a big-endian millisecond timestamp, the remaining
// 10 bytes are entropy. Two ids allocated by the same process within the
// same millisecond are strictly increasing.
type EntityID ulid.ULID

// Zero is the all-zero EntityID, used as the low bound of range scans.
var Zero EntityID

// Max is the all-ones EntityID, used as the high bound of range scans.
var Max = EntityID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

var (
	genMu   sync.Mutex
	entropy *ulid.MonotonicEntropy
)

// New allocates a fresh EntityID. It never fails: if the monotonic entropy
// for the current millisecond overflows, allocation retries on the next
// millisecond.
//
// Safe for concurrent use; the generator state is guarded by a single mutex
// and lazily initialized on first call.
func New() EntityID {
	genMu.Lock()
	defer genMu.Unlock()

	if entropy == nil {
		entropy = ulid.Monotonic(rand.Reader, 0)
	}

	for {
		id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
		if err == nil {
			return EntityID(id)
		}
		// ulid.ErrMonotonicOverflow: the 80-bit counter for this
		// millisecond is exhausted. Wait for the clock to advance.
		time.Sleep(time.Millisecond)
	}
}

// Parse decodes an EntityID from its canonical 26-character ULID string.
func Parse(s string) (EntityID, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return Zero, fmt.Errorf("ident: parse %q: %w", s, err)
	}
	return EntityID(id), nil
}

// FromBytes decodes an EntityID from its raw 16-byte form.
func FromBytes(b []byte) (EntityID, error) {
	if len(b) != IDLen {
		return Zero, fmt.Errorf("ident: want %d bytes, got %d", IDLen, len(b))
	}
	var id EntityID
	copy(id[:], b)
	return id, nil
}

// Bytes returns the raw 16-byte form. Byte-lexicographic order of the raw
// form equals chronological order of allocation.
func (id EntityID) Bytes() []byte {
	out := make([]byte, IDLen)
	copy(out, id[:])
	return out
}

// String returns the canonical 26-character ULID representation.
func (id EntityID) String() string {
	return ulid.ULID(id).String()
}

// Time returns the embedded creation timestamp, millisecond precision.
func (id EntityID) Time() time.Time {
	return ulid.Time(ulid.ULID(id).Time())
}

// Compare returns -1, 0, or 1 ordering ids by their raw bytes.
func (id EntityID) Compare(other EntityID) int {
	return bytes.Compare(id[:], other[:])
}

// IsZero reports whether id is the zero EntityID.
func (id EntityID) IsZero() bool {
	return id == Zero
}
