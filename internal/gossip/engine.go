package gossip

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"ringkv/internal/address"
	"ringkv/internal/audit"
	"ringkv/internal/config"
	"ringkv/internal/telemetry"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("membership already started")

type outgoing struct {
	to  address.Address
	msg Message
}

// Engine runs the membership protocol for one node. It never blocks: all
// outbound messages go through the SendFunc after the engine lock is
// released.
type Engine struct {
	mu sync.Mutex

	self       address.Address
	introducer address.Address
	tFail      int64
	tRemove    int64
	fanout     int
	optimistic bool
	joinRetry  int64

	state     State
	heartbeat int64
	tick      int64
	joinWait  int64
	table     table

	rng    *rand.Rand
	send   SendFunc
	events audit.Logger
	log    *zap.Logger
}

// NewEngine creates an engine from cfg. events and logger may be nil.
func NewEngine(cfg config.Config, send SendFunc, events audit.Logger, logger *zap.Logger) *Engine {
	if events == nil {
		events = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano() ^ int64(cfg.Self.ID())
	}

	return &Engine{
		self:       cfg.Self,
		introducer: cfg.Introducer,
		tFail:      cfg.TFail,
		tRemove:    cfg.TRemove,
		fanout:     cfg.Fanout,
		optimistic: cfg.OptimisticJoin,
		joinRetry:  cfg.JoinRetry,
		rng:        rand.New(rand.NewSource(seed)),
		send:       send,
		events:     events,
		log:        logger.Named("gossip"),
	}
}

// Start inserts the self entry and either boots the group or asks the
// introducer to join.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state != Uninitialized {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}

	e.table.entries = []Entry{EntryFor(e.self, 0, e.tick)}

	var out []outgoing
	if e.self == e.introducer {
		e.state = InGroup
		e.log.Info("booted group as introducer")
	} else {
		e.state = Joining
		out = append(out, e.messageTo(e.introducer, JoinReq))
		e.log.Info("sent join request", zap.Stringer("introducer", e.introducer))
	}
	e.mu.Unlock()

	e.flush(out)
	return nil
}

// HandleMessage applies one inbound membership message.
func (e *Engine) HandleMessage(msg Message) {
	var out []outgoing

	e.mu.Lock()
	switch msg.Kind {
	case JoinReq:
		out = e.handleJoinReq(msg)
	case JoinRep:
		e.handleJoinRep(msg)
	case Gossip:
		e.handleGossip(msg)
	default:
		e.log.Warn("unknown membership message", zap.Int("kind", int(msg.Kind)))
	}
	e.mu.Unlock()

	e.flush(out)
}

func (e *Engine) handleJoinReq(msg Message) []outgoing {
	if e.state != InGroup {
		e.log.Debug("ignoring join request while not in group", zap.Stringer("from", msg.From))
		return nil
	}

	for _, entry := range msg.Entries {
		e.merge(entry)
	}
	e.log.Debug("accepted join request", zap.Stringer("from", msg.From))

	return []outgoing{e.messageTo(msg.From, JoinRep)}
}

func (e *Engine) handleJoinRep(msg Message) {
	if e.state == Uninitialized {
		return
	}

	for _, entry := range msg.Entries {
		if entry.ID == e.self.ID() {
			continue
		}
		e.merge(entry)
	}

	if e.state != InGroup {
		e.state = InGroup
		e.log.Info("joined group", zap.Int("members", len(e.table.entries)))
	}
}

func (e *Engine) handleGossip(msg Message) {
	if e.state != InGroup {
		return
	}

	for _, entry := range msg.Entries {
		// Only entries the sender itself refreshed recently.
		if msg.Tick-entry.Timestamp > e.tFail {
			continue
		}
		if entry.ID == e.self.ID() {
			continue
		}

		if i := e.table.find(entry.ID); i >= 0 {
			local := &e.table.entries[i]
			if entry.Heartbeat > local.Heartbeat {
				local.Heartbeat = entry.Heartbeat
				local.Timestamp = e.tick
			}
			continue
		}

		if e.optimistic || entry.Addr() == msg.From {
			e.insert(entry)
		}
	}
}

// merge inserts an unknown entry or advances a known one's heartbeat.
func (e *Engine) merge(entry Entry) {
	if i := e.table.find(entry.ID); i >= 0 {
		local := &e.table.entries[i]
		if entry.Heartbeat > local.Heartbeat {
			local.Heartbeat = entry.Heartbeat
			local.Timestamp = e.tick
		}
		return
	}
	e.insert(entry)
}

func (e *Engine) insert(entry Entry) {
	entry.Timestamp = e.tick
	e.table.entries = append(e.table.entries, entry)
	e.events.NodeAdded(e.self, entry.Addr())
	e.log.Debug("member added", zap.Stringer("member", entry.Addr()), zap.Int64("heartbeat", entry.Heartbeat))
}

// Tick runs one protocol period: bump heartbeat, gossip, expire members.
// It does nothing until the node is in the group.
func (e *Engine) Tick() {
	e.mu.Lock()
	if e.state != InGroup {
		e.mu.Unlock()
		return
	}

	self := &e.table.entries[0]
	self.Timestamp = e.tick
	e.heartbeat++
	self.Heartbeat = e.heartbeat

	var out []outgoing
	for _, i := range e.pickTargets() {
		out = append(out, e.messageTo(e.table.entries[i].Addr(), Gossip))
	}

	for _, removed := range e.table.removeStale(e.tick, e.tRemove) {
		e.events.NodeRemoved(e.self, removed.Addr())
		e.log.Info("member removed", zap.Stringer("member", removed.Addr()),
			zap.Int64("last_seen", removed.Timestamp), zap.Int64("tick", e.tick))
	}

	e.tick++
	telemetry.MembershipSize.WithLabelValues(e.self.String()).Set(float64(len(e.table.entries)))
	e.mu.Unlock()

	e.flush(out)
}

// RetryJoin resends JOINREQ after JoinRetry calls while still joining.
func (e *Engine) RetryJoin() {
	e.mu.Lock()
	if e.state != Joining || e.joinRetry == 0 {
		e.mu.Unlock()
		return
	}
	e.joinWait++
	if e.joinWait < e.joinRetry {
		e.mu.Unlock()
		return
	}
	e.joinWait = 0
	out := []outgoing{e.messageTo(e.introducer, JoinReq)}
	e.mu.Unlock()

	e.log.Debug("retrying join", zap.Stringer("introducer", e.introducer))
	e.flush(out)
}

// pickTargets returns up to fanout distinct non-self table indices.
func (e *Engine) pickTargets() []int {
	n := len(e.table.entries) - 1
	if n <= 0 {
		return nil
	}
	perm := e.rng.Perm(n)
	if e.fanout < n {
		perm = perm[:e.fanout]
	}
	for i := range perm {
		perm[i]++
	}
	return perm
}

func (e *Engine) messageTo(to address.Address, kind Kind) outgoing {
	return outgoing{
		to: to,
		msg: Message{
			Kind:    kind,
			From:    e.self,
			Tick:    e.tick,
			Entries: e.table.snapshot(),
		},
	}
}

func (e *Engine) flush(out []outgoing) {
	if e.send == nil {
		return
	}
	for _, o := range out {
		e.send(o.to, o.msg)
	}
}

// Snapshot returns the addresses of all current members, self first.
func (e *Engine) Snapshot() []address.Address {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]address.Address, len(e.table.entries))
	for i, entry := range e.table.entries {
		out[i] = entry.Addr()
	}
	return out
}

// Entries returns a copy of the membership table.
func (e *Engine) Entries() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.snapshot()
}

// State returns the join state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Now returns the local logical tick.
func (e *Engine) Now() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Heartbeat returns the node's own heartbeat.
func (e *Engine) Heartbeat() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heartbeat
}
