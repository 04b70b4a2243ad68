package entity

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// IDSize is the width of an ID's durable encoding in bytes.
const IDSize = 16

// ID is an unsigned 128-bit identifier.
//
// The durable encoding is 16 big-endian bytes, so byte-wise comparison
// (SQLite BLOB ordering) matches numeric ordering. The text form is decimal.
type ID struct {
	hi uint64
	lo uint64
}

// FirstID is the value every allocator starts from.
var FirstID = ID{lo: 1}

// MaxID is the largest representable ID.
var MaxID = ID{hi: ^uint64(0), lo: ^uint64(0)}

// NewID returns the ID with the given low 64 bits.
func NewID(v uint64) ID {
	return ID{lo: v}
}

// Next returns id+1. The second result is false if the increment would
// overflow 128 bits.
func (id ID) Next() (ID, bool) {
	if id == MaxID {
		return ID{}, false
	}
	lo := id.lo + 1
	hi := id.hi
	if lo == 0 {
		hi++
	}
	return ID{hi: hi, lo: lo}, true
}

// IsZero reports whether id is the zero value. Zero is never allocated.
func (id ID) IsZero() bool {
	return id.hi == 0 && id.lo == 0
}

// Compare returns -1, 0 or +1.
func (id ID) Compare(other ID) int {
	switch {
	case id.hi < other.hi:
		return -1
	case id.hi > other.hi:
		return 1
	case id.lo < other.lo:
		return -1
	case id.lo > other.lo:
		return 1
	}
	return 0
}

// Bytes returns the 16-byte big-endian encoding.
func (id ID) Bytes() []byte {
	b := make([]byte, IDSize)
	binary.BigEndian.PutUint64(b[:8], id.hi)
	binary.BigEndian.PutUint64(b[8:], id.lo)
	return b
}

// IDFromBytes decodes a 16-byte big-endian ID.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) != IDSize {
		return ID{}, fmt.Errorf("id: want %d bytes, got %d", IDSize, len(b))
	}
	return ID{
		hi: binary.BigEndian.Uint64(b[:8]),
		lo: binary.BigEndian.Uint64(b[8:]),
	}, nil
}

// String returns the decimal form.
func (id ID) String() string {
	if id.hi == 0 {
		return fmt.Sprintf("%d", id.lo)
	}
	return id.big().String()
}

// ParseID parses a decimal ID.
func ParseID(s string) (ID, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 128 {
		return ID{}, InvalidArgument(fmt.Sprintf("invalid id %q", s))
	}
	var buf [IDSize]byte
	n.FillBytes(buf[:])
	return IDFromBytes(buf[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ID) big() *big.Int {
	return new(big.Int).SetBytes(id.Bytes())
}
