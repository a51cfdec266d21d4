// ABOUTME: Timestamped 12-byte identifiers used as signature nonces and session ids
// ABOUTME: Wire format is 24 hex characters with an embedded unix-seconds timestamp

package nonce

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sync/atomic"
	"time"
)

// ErrMalformed is returned when a hex string does not decode to a valid ID.
var ErrMalformed = errors.New("malformed nonce")

// EncodedLen is the length of the canonical hex representation.
const EncodedLen = 24

// ID is a 12-byte identifier: a 4-byte big-endian unix-seconds timestamp,
// a 5-byte per-process random value, and a 3-byte counter. The layout is
// wire-compatible with the ids existing clients pre-generate and sign.
type ID [12]byte

var (
	processUnique = mustRandomBytes(5)
	counter       = mustRandomUint32()
)

// New returns a fresh ID stamped with the current time.
func New() ID {
	return NewAt(time.Now())
}

// NewAt returns a fresh ID stamped with the given time.
func NewAt(t time.Time) ID {
	var id ID
	binary.BigEndian.PutUint32(id[0:4], uint32(t.Unix()))
	copy(id[4:9], processUnique)
	n := atomic.AddUint32(&counter, 1)
	id[9] = byte(n >> 16)
	id[10] = byte(n >> 8)
	id[11] = byte(n)
	return id
}

// Parse decodes the canonical 24-character hex representation.
func Parse(s string) (ID, error) {
	var id ID
	if len(s) != EncodedLen {
		return id, ErrMalformed
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, ErrMalformed
	}
	copy(id[:], raw)
	return id, nil
}

// Hex returns the canonical lowercase hex representation. This is the exact
// text clients sign in the signature challenge flow.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Timestamp recovers the creation time embedded in the ID, at second
// precision.
func (id ID) Timestamp() time.Time {
	secs := binary.BigEndian.Uint32(id[0:4])
	return time.Unix(int64(secs), 0)
}

func (id ID) String() string {
	return id.Hex()
}

func mustRandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("nonce: reading random bytes: " + err.Error())
	}
	return b
}

func mustRandomUint32() uint32 {
	b := mustRandomBytes(4)
	return binary.BigEndian.Uint32(b)
}
