package ring

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"ringkv/internal/address"
	"ringkv/internal/config"
)

// Node is a member placed on the ring.
type Node struct {
	Addr address.Address
	Hash uint32
}

// Ring is an immutable, sorted set of nodes. Build a new one to change it.
type Ring struct {
	nodes []Node
	hash  Hasher
}

// New builds a ring from addrs. Duplicates are dropped; nodes are sorted by
// hash and then by address so equal member sets give equal rings.
func New(addrs []address.Address, hash Hasher) *Ring {
	if hash == nil {
		hash = FNV32a
	}

	seen := make(map[address.Address]bool, len(addrs))
	nodes := make([]Node, 0, len(addrs))
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		nodes = append(nodes, Node{Addr: a, Hash: hash(a[:])})
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Hash != nodes[j].Hash {
			return nodes[i].Hash < nodes[j].Hash
		}
		return nodes[i].Addr.Less(nodes[j].Addr)
	})

	return &Ring{nodes: nodes, hash: hash}
}

// Len returns the number of nodes on the ring.
func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	return len(r.nodes)
}

// Nodes returns a copy of the ring in order.
func (r *Ring) Nodes() []Node {
	if r == nil {
		return nil
	}
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Contains reports whether addr is on the ring.
func (r *Ring) Contains(addr address.Address) bool {
	if r == nil {
		return false
	}
	for _, n := range r.nodes {
		if n.Addr == addr {
			return true
		}
	}
	return false
}

// HashKey returns the ring position of key.
func (r *Ring) HashKey(key string) uint32 {
	return r.hash([]byte(key))
}

// FindNodes returns the replicas for key: primary, secondary, tertiary.
// A ring with fewer than ReplicationFactor nodes yields none.
func (r *Ring) FindNodes(key string) []address.Address {
	n := r.Len()
	if n < config.ReplicationFactor {
		return nil
	}

	h := r.HashKey(key)
	idx := 0
	// Keys at or below the lowest node, or past the highest, wrap to the start.
	if h > r.nodes[0].Hash && h <= r.nodes[n-1].Hash {
		idx = sort.Search(n, func(i int) bool {
			return r.nodes[i].Hash >= h
		})
	}

	out := make([]address.Address, 0, config.ReplicationFactor)
	for i := 0; i < config.ReplicationFactor; i++ {
		out = append(out, r.nodes[(idx+i)%n].Addr)
	}
	return out
}

// Fingerprint identifies a member set independent of order and duplicates.
func Fingerprint(addrs []address.Address) uint64 {
	sorted := make([]address.Address, 0, len(addrs))
	seen := make(map[address.Address]bool, len(addrs))
	for _, a := range addrs {
		if !seen[a] {
			seen[a] = true
			sorted = append(sorted, a)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	d := xxhash.New()
	for _, a := range sorted {
		d.Write(a[:])
	}
	return d.Sum64()
}
