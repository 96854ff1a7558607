package ring

import (
	"fmt"
	"hash/fnv"

	"github.com/cespare/xxhash/v2"
)

// Hasher maps bytes to a ring position.
type Hasher func([]byte) uint32

// FNV32a is the default ring hash.
func FNV32a(b []byte) uint32 {
	h := fnv.New32a()
	h.Write(b)
	return h.Sum32()
}

// XXHash folds xxhash64 to 32 bits.
func XXHash(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}

// HasherByName resolves a configured hash name.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", "fnv":
		return FNV32a, nil
	case "xxhash":
		return XXHash, nil
	default:
		return nil, fmt.Errorf("unknown ring hash %q", name)
	}
}
