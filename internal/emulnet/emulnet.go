// Package emulnet is an in-process network for simulations. Delivery is
// synchronous into the receiver's inbox; messages can be dropped at random
// or because either end has been marked failed.
package emulnet

import (
	"errors"
	"math/rand"
	"sync"

	"ringkv/internal/address"
	"ringkv/internal/telemetry"
)

// ErrUnknownAddress is returned when sending to an unregistered address.
var ErrUnknownAddress = errors.New("unknown address")

// Receiver accepts raw payloads. Implementations must not block.
type Receiver interface {
	Deliver(payload []byte)
}

// Stats counts traffic through the network.
type Stats struct {
	Sent      int
	Delivered int
	Dropped   int
}

// Network routes payloads between registered receivers.
type Network struct {
	mu     sync.RWMutex
	boxes  map[address.Address]Receiver
	failed map[address.Address]bool
	drop   float64

	rngMu sync.Mutex
	rng   *rand.Rand

	statsMu sync.Mutex
	stats   Stats
}

// New creates a network that drops each message with probability drop.
func New(drop float64, seed int64) *Network {
	return &Network{
		boxes:  make(map[address.Address]Receiver),
		failed: make(map[address.Address]bool),
		drop:   drop,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Register attaches r at addr, replacing any previous receiver.
func (n *Network) Register(addr address.Address, r Receiver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.boxes[addr] = r
	delete(n.failed, addr)
}

// Unregister detaches addr.
func (n *Network) Unregister(addr address.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.boxes, addr)
}

// Fail marks addr as crashed: everything to or from it is dropped.
func (n *Network) Fail(addr address.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed[addr] = true
}

// SetDropProbability changes the random loss rate.
func (n *Network) SetDropProbability(p float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drop = p
}

// Send delivers a copy of payload to to. Lost messages are not errors.
func (n *Network) Send(from, to address.Address, payload []byte) error {
	n.mu.RLock()
	r, ok := n.boxes[to]
	failed := n.failed[from] || n.failed[to]
	drop := n.drop
	n.mu.RUnlock()

	if !ok {
		telemetry.MessagesDropped.WithLabelValues("unknown").Inc()
		return ErrUnknownAddress
	}

	n.count(func(s *Stats) { s.Sent++ })
	if failed {
		n.dropped("failed")
		return nil
	}
	if drop > 0 && n.roll() < drop {
		n.dropped("random")
		return nil
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	r.Deliver(buf)

	n.count(func(s *Stats) { s.Delivered++ })
	return nil
}

func (n *Network) roll() float64 {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Float64()
}

func (n *Network) dropped(reason string) {
	telemetry.MessagesDropped.WithLabelValues(reason).Inc()
	n.count(func(s *Stats) { s.Dropped++ })
}

func (n *Network) count(f func(*Stats)) {
	n.statsMu.Lock()
	f(&n.stats)
	n.statsMu.Unlock()
}

// Stats returns traffic counters.
func (n *Network) Stats() Stats {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()
	return n.stats
}
