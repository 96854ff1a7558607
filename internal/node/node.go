package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ringkv/internal/address"
	"ringkv/internal/audit"
	"ringkv/internal/config"
	"ringkv/internal/gossip"
	"ringkv/internal/logging"
	"ringkv/internal/replication"
	"ringkv/internal/ring"
	"ringkv/internal/storage"
	"ringkv/internal/telemetry"
	"ringkv/internal/wire"
)

// ErrFailed is returned by client operations on a failed node.
var ErrFailed = errors.New("node has failed")

// Sender is the network a node sends through.
type Sender interface {
	Send(from, to address.Address, payload []byte) error
}

// Node represents a single member of the cluster: membership, ring and
// replication layers over one local store.
type Node struct {
	// mu serializes Step and client operations.
	mu sync.Mutex

	self  address.Address
	net   Sender
	store storage.Store

	inboxMu     sync.Mutex
	memberInbox [][]byte
	kvInbox     [][]byte

	failed atomic.Bool

	members *gossip.Engine
	ring    *ring.Manager
	repl    *replication.Engine

	log *zap.Logger
}

// New creates a node instance. events receives protocol outcomes and may be
// nil; logger may be nil.
func New(cfg config.Config, net Sender, events audit.Logger, logger *zap.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if net == nil {
		return nil, fmt.Errorf("network must be provided")
	}
	hasher, err := ring.HasherByName(cfg.Hash)
	if err != nil {
		return nil, err
	}

	log := logging.ForNode(logger, cfg.Self)
	n := &Node{
		self:  cfg.Self,
		net:   net,
		store: storage.NewInMemoryStore(),
		log:   log,
	}

	n.ring = ring.NewManager(hasher, n.onRingChange)
	n.members = gossip.NewEngine(cfg, n.sendMembership, events, log)
	n.repl = replication.NewEngine(cfg, n.store, n.ring, n.sendReplication, events, log)

	return n, nil
}

// Start joins the group, or boots it if this node is the introducer.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.members.Start()
}

// Deliver queues an inbound payload. Safe for concurrent use.
func (n *Node) Deliver(payload []byte) {
	if n.failed.Load() {
		return
	}

	p, err := wire.PeekProtocol(payload)
	if err != nil {
		n.log.Warn("dropping undecodable message", zap.Error(err))
		return
	}

	n.inboxMu.Lock()
	switch p {
	case wire.Membership:
		n.memberInbox = append(n.memberInbox, payload)
	case wire.Replication:
		n.kvInbox = append(n.kvInbox, payload)
	}
	n.inboxMu.Unlock()
}

// Step advances the node by one tick: drain both inboxes, then run the
// periodic membership, ring and replication work once the node is in the
// group.
func (n *Node) Step() {
	if n.failed.Load() {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.inboxMu.Lock()
	memberMsgs, kvMsgs := n.memberInbox, n.kvInbox
	n.memberInbox, n.kvInbox = nil, nil
	n.inboxMu.Unlock()

	for _, b := range memberMsgs {
		msg, err := wire.DecodeMembership(b)
		if err != nil {
			n.log.Warn("dropping membership message", zap.Error(err))
			continue
		}
		telemetry.MessagesReceived.WithLabelValues(wire.Membership.String(), msg.Kind.String()).Inc()
		n.members.HandleMessage(msg)
	}

	for _, b := range kvMsgs {
		msg, err := wire.DecodeReplication(b)
		if err != nil {
			n.log.Warn("dropping replication message", zap.Error(err))
			continue
		}
		telemetry.MessagesReceived.WithLabelValues(wire.Replication.String(), msg.Kind.String()).Inc()
		n.repl.HandleMessage(msg)
	}

	switch n.members.State() {
	case gossip.InGroup:
		n.members.Tick()
		n.ring.Update(n.members.Snapshot())
		n.repl.Tick()
	case gossip.Joining:
		n.members.RetryJoin()
	}
}

// Run steps the node every interval until ctx is done.
func (n *Node) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.Step()
		}
	}
}

// Fail crashes the node: it stops stepping and drops all input.
func (n *Node) Fail() {
	n.failed.Store(true)

	n.inboxMu.Lock()
	n.memberInbox, n.kvInbox = nil, nil
	n.inboxMu.Unlock()

	n.log.Info("node failed")
}

// Failed reports whether Fail was called.
func (n *Node) Failed() bool {
	return n.failed.Load()
}

func (n *Node) onRingChange(r *ring.Ring) {
	n.log.Info("ring changed", zap.Int("nodes", r.Len()))
	n.repl.Stabilize(r)
}

func (n *Node) sendMembership(to address.Address, msg gossip.Message) {
	b, err := wire.EncodeMembership(msg)
	if err != nil {
		n.log.Warn("encode membership message", zap.Error(err))
		return
	}
	n.send(to, b, wire.Membership, msg.Kind.String())
}

func (n *Node) sendReplication(to address.Address, msg replication.Message) {
	b, err := wire.EncodeReplication(msg)
	if err != nil {
		n.log.Warn("encode replication message", zap.Error(err))
		return
	}
	n.send(to, b, wire.Replication, msg.Kind.String())
}

func (n *Node) send(to address.Address, b []byte, p wire.Protocol, kind string) {
	if n.failed.Load() {
		return
	}
	if err := n.net.Send(n.self, to, b); err != nil {
		n.log.Warn("send failed", zap.Stringer("to", to), zap.String("kind", kind), zap.Error(err))
		return
	}
	telemetry.MessagesSent.WithLabelValues(p.String(), kind).Inc()
}
