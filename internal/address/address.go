// Package address defines the fixed-width node identity used both as a
// network endpoint and as the hash input for ring placement.
package address

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Size is the encoded width of an Address: 4-byte id followed by 2-byte port.
const Size = 6

// ErrInvalid is returned when an address string cannot be parsed.
var ErrInvalid = errors.New("invalid address")

// Address identifies a node. Bytes 0-3 hold the id and bytes 4-5 the port,
// both little endian.
type Address [Size]byte

// New builds an Address from its id and port.
func New(id uint32, port uint16) Address {
	var a Address
	binary.LittleEndian.PutUint32(a[0:4], id)
	binary.LittleEndian.PutUint16(a[4:6], port)
	return a
}

// ID returns the numeric node id.
func (a Address) ID() uint32 {
	return binary.LittleEndian.Uint32(a[0:4])
}

// Port returns the port component.
func (a Address) Port() uint16 {
	return binary.LittleEndian.Uint16(a[4:6])
}

// IsZero reports whether a is the null address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns a copy of the raw encoding.
func (a Address) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, a[:])
	return b
}

// String returns the "id:port" form.
func (a Address) String() string {
	return fmt.Sprintf("%d:%d", a.ID(), a.Port())
}

// Less orders addresses by their raw bytes.
func (a Address) Less(b Address) bool {
	for i := 0; i < Size; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// FromBytes decodes a raw 6-byte address.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalid, Size, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Parse parses the "id:port" form.
func Parse(s string) (Address, error) {
	idStr, portStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Address{}, fmt.Errorf("%w: %q (expected id:port)", ErrInvalid, s)
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("%w: id %q: %v", ErrInvalid, idStr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: port %q: %v", ErrInvalid, portStr, err)
	}
	return New(uint32(id), uint16(port)), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}
