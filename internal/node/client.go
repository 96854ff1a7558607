package node

import (
	"ringkv/internal/address"
	"ringkv/internal/gossip"
	"ringkv/internal/ring"
	"ringkv/internal/storage"
)

// ClientCreate starts a quorum CREATE coordinated by this node.
func (n *Node) ClientCreate(key, value string) (uint32, error) {
	return n.client(func() (uint32, error) { return n.repl.ClientCreate(key, value) })
}

// ClientRead starts a quorum READ coordinated by this node.
func (n *Node) ClientRead(key string) (uint32, error) {
	return n.client(func() (uint32, error) { return n.repl.ClientRead(key) })
}

// ClientUpdate starts a quorum UPDATE coordinated by this node.
func (n *Node) ClientUpdate(key, value string) (uint32, error) {
	return n.client(func() (uint32, error) { return n.repl.ClientUpdate(key, value) })
}

// ClientDelete starts a quorum DELETE coordinated by this node.
func (n *Node) ClientDelete(key string) (uint32, error) {
	return n.client(func() (uint32, error) { return n.repl.ClientDelete(key) })
}

func (n *Node) client(op func() (uint32, error)) (uint32, error) {
	if n.failed.Load() {
		return 0, ErrFailed
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return op()
}

// Addr returns the node's address.
func (n *Node) Addr() address.Address {
	return n.self
}

// State returns the membership join state.
func (n *Node) State() gossip.State {
	return n.members.State()
}

// Members returns the addresses in the membership table, self first.
func (n *Node) Members() []address.Address {
	return n.members.Snapshot()
}

// Entries returns a copy of the membership table.
func (n *Node) Entries() []gossip.Entry {
	return n.members.Entries()
}

// Ring returns the current ring, or nil before the node joined.
func (n *Node) Ring() *ring.Ring {
	return n.ring.Current()
}

// FindNodes returns the replicas for key on the current ring.
func (n *Node) FindNodes(key string) []address.Address {
	return n.ring.FindNodes(key)
}

// Store returns the node's local store.
func (n *Node) Store() storage.Store {
	return n.store
}

// Pending returns the number of open coordinator transactions.
func (n *Node) Pending() int {
	return n.repl.Pending()
}
