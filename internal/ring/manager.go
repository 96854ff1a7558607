package ring

import (
	"sync"

	"ringkv/internal/address"
	"ringkv/internal/telemetry"
)

// Manager owns the current ring and rebuilds it from membership snapshots.
type Manager struct {
	mu          sync.RWMutex
	hash        Hasher
	current     *Ring
	fingerprint uint64
	built       bool

	onChange func(*Ring)
}

// NewManager creates a manager. onChange runs after every ring change except
// the first build.
func NewManager(hash Hasher, onChange func(*Ring)) *Manager {
	if hash == nil {
		hash = FNV32a
	}
	return &Manager{hash: hash, onChange: onChange}
}

// Update rebuilds the ring from members and reports whether its member set
// changed since the previous build.
func (m *Manager) Update(members []address.Address) bool {
	fp := Fingerprint(members)

	m.mu.Lock()
	if m.built && fp == m.fingerprint {
		m.mu.Unlock()
		return false
	}
	first := !m.built
	r := New(members, m.hash)
	m.current = r
	m.fingerprint = fp
	m.built = true
	m.mu.Unlock()

	if first {
		return false
	}

	telemetry.RingChanges.Inc()
	if m.onChange != nil {
		m.onChange(r)
	}
	return true
}

// Current returns the latest ring, or nil before the first Update.
func (m *Manager) Current() *Ring {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// FindNodes places key on the current ring.
func (m *Manager) FindNodes(key string) []address.Address {
	return m.Current().FindNodes(key)
}
