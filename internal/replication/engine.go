package replication

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"ringkv/internal/address"
	"ringkv/internal/audit"
	"ringkv/internal/config"
	"ringkv/internal/quorum"
	"ringkv/internal/storage"
	"ringkv/internal/telemetry"
)

// ErrNoReplicas is returned for client operations while the ring has fewer
// than three nodes. Nothing is sent or recorded.
var ErrNoReplicas = errors.New("not enough nodes on the ring")

// StabilizeTxn is the transaction id of stabilization pushes.
const StabilizeTxn uint32 = 0

// Placement maps a key to its replicas.
type Placement interface {
	FindNodes(key string) []address.Address
}

// request is what the coordinator remembers about an open transaction.
type request struct {
	op    audit.Op
	key   string
	value string
}

type outgoing struct {
	to  address.Address
	msg Message
}

// Engine is the replication layer of one node: coordinator for the client
// operations it issues and replica for the keys placed on it.
type Engine struct {
	mu sync.Mutex

	self      address.Address
	store     storage.Store
	placement Placement
	txns      *quorum.Table[request]
	timeout   int64

	nextTxn uint32
	tick    int64
	// leader is the open READ or UPDATE transaction, or 0.
	leader uint32

	send   SendFunc
	events audit.Logger
	log    *zap.Logger
}

// NewEngine creates the replication engine. events and logger may be nil.
func NewEngine(cfg config.Config, store storage.Store, placement Placement, send SendFunc, events audit.Logger, logger *zap.Logger) *Engine {
	if events == nil {
		events = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.TxnTimeout
	if timeout <= 0 {
		timeout = config.DefaultTxnTimeout
	}

	return &Engine{
		self:      cfg.Self,
		store:     store,
		placement: placement,
		txns:      quorum.NewTable[request](config.Quorum),
		timeout:   timeout,
		send:      send,
		events:    events,
		log:       logger.Named("replication"),
	}
}

// ClientCreate starts a quorum CREATE and returns its transaction id.
func (e *Engine) ClientCreate(key, value string) (uint32, error) {
	return e.client(request{op: audit.OpCreate, key: key, value: value})
}

// ClientRead starts a quorum READ and returns its transaction id.
func (e *Engine) ClientRead(key string) (uint32, error) {
	return e.client(request{op: audit.OpRead, key: key})
}

// ClientUpdate starts a quorum UPDATE and returns its transaction id.
func (e *Engine) ClientUpdate(key, value string) (uint32, error) {
	return e.client(request{op: audit.OpUpdate, key: key, value: value})
}

// ClientDelete starts a quorum DELETE and returns its transaction id.
func (e *Engine) ClientDelete(key string) (uint32, error) {
	return e.client(request{op: audit.OpDelete, key: key})
}

func (e *Engine) client(req request) (uint32, error) {
	replicas := e.placement.FindNodes(req.key)
	if len(replicas) == 0 {
		return 0, ErrNoReplicas
	}

	e.mu.Lock()
	e.nextTxn++
	if e.nextTxn == StabilizeTxn {
		e.nextTxn++
	}
	id := e.nextTxn
	if err := e.txns.Open(id, req, len(replicas), e.tick); err != nil {
		e.mu.Unlock()
		return 0, err
	}
	if req.op == audit.OpRead || req.op == audit.OpUpdate {
		e.leader = id
	}
	e.mu.Unlock()

	msg := Message{Kind: requestKind(req.op), From: e.self, Txn: id, Key: req.key, Value: req.value}
	out := make([]outgoing, 0, len(replicas))
	for _, r := range replicas {
		out = append(out, outgoing{to: r, msg: msg})
	}

	e.log.Debug("transaction opened", zap.Uint32("txn", id), zap.String("op", req.op.String()),
		zap.String("key", req.key), zap.Stringers("replicas", replicas))
	e.flush(out)
	return id, nil
}

// HandleMessage applies one inbound replication message.
func (e *Engine) HandleMessage(msg Message) {
	switch {
	case !msg.Kind.Valid():
		e.log.Warn("unknown replication message", zap.Int("kind", int(msg.Kind)))
	case msg.Kind.IsRequest():
		e.serve(msg)
	default:
		e.coordinate(msg)
	}
}

// serve applies a request to the local store and answers the coordinator.
func (e *Engine) serve(msg Message) {
	op := msg.Kind.Op()
	value := msg.Value

	var err error
	switch op {
	case audit.OpCreate:
		err = e.store.Create(msg.Key, msg.Value)
	case audit.OpRead:
		value, err = e.store.Read(msg.Key)
	case audit.OpUpdate:
		err = e.store.Update(msg.Key, msg.Value)
	case audit.OpDelete:
		err = e.store.Delete(msg.Key)
	}
	success := err == nil

	if msg.Txn == StabilizeTxn {
		// Pushes of keys the replica already holds are expected to fail.
		if success {
			e.events.CreateSuccess(e.self, false, msg.Txn, msg.Key, msg.Value)
		}
		return
	}

	audit.Outcome(e.events, op, success, e.self, false, msg.Txn, msg.Key, value)
	if !success {
		e.log.Debug("request failed", zap.Stringer("kind", msg.Kind), zap.String("key", msg.Key), zap.Error(err))
	}

	e.flush([]outgoing{{
		to:  msg.From,
		msg: Message{Kind: replyKind(op, success), From: e.self, Txn: msg.Txn, Key: msg.Key, Value: value},
	}})
}

// coordinate tallies a reply against its open transaction.
func (e *Engine) coordinate(msg Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	open, ok := e.txns.Get(msg.Txn)
	if !ok {
		e.log.Debug("reply for unknown transaction", zap.Uint32("txn", msg.Txn), zap.Stringer("from", msg.From))
		return
	}
	if open.Info.op != msg.Kind.Op() {
		e.log.Warn("reply does not match transaction", zap.Uint32("txn", msg.Txn),
			zap.Stringer("kind", msg.Kind), zap.String("op", open.Info.op.String()))
		return
	}

	txn, d, _ := e.txns.Record(msg.Txn, msg.Kind.Success())
	if d == quorum.Pending {
		return
	}

	value := txn.Info.value
	if txn.Info.op == audit.OpRead {
		value = msg.Value
	}
	e.resolve(txn, d == quorum.Succeeded, value)
}

// resolve audits a coordinator outcome. Callers hold e.mu.
func (e *Engine) resolve(txn quorum.Txn[request], success bool, value string) {
	if e.leader == txn.ID {
		e.leader = 0
	}
	audit.Outcome(e.events, txn.Info.op, success, e.self, true, txn.ID, txn.Info.key, value)
}

// Tick expires transactions that have waited too long, then advances the
// engine clock.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, txn := range e.txns.Expire(e.tick, e.timeout) {
		e.log.Info("transaction timed out", zap.Uint32("txn", txn.ID), zap.String("op", txn.Info.op.String()),
			zap.String("key", txn.Info.key), zap.Int("acks", txn.Acks), zap.Int("fails", txn.Fails))
		e.resolve(txn, false, txn.Info.value)
	}
	e.tick++
}

// Stabilize re-pushes every local key to its replicas on the new placement,
// then fails the open leader transaction, whose replies may never come.
func (e *Engine) Stabilize(placement Placement) {
	records := e.store.Snapshot()

	var out []outgoing
	for _, rec := range records {
		for _, r := range placement.FindNodes(rec.Key) {
			out = append(out, outgoing{
				to:  r,
				msg: Message{Kind: Create, From: e.self, Txn: StabilizeTxn, Key: rec.Key, Value: rec.Value},
			})
		}
	}
	telemetry.StabilizedKeys.Add(float64(len(out)))

	e.mu.Lock()
	if e.leader != 0 {
		if txn, ok := e.txns.Remove(e.leader); ok {
			e.resolve(txn, false, txn.Info.value)
		}
		e.leader = 0
	}
	e.mu.Unlock()

	e.log.Info("stabilized", zap.Int("keys", len(records)), zap.Int("pushes", len(out)))
	e.flush(out)
}

func (e *Engine) flush(out []outgoing) {
	if e.send == nil {
		return
	}
	for _, o := range out {
		e.send(o.to, o.msg)
	}
}

// Pending returns the number of open transactions.
func (e *Engine) Pending() int {
	return e.txns.Len()
}

// Leader returns the open leader transaction, if any.
func (e *Engine) Leader() (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leader, e.leader != 0
}

// Store returns the local store.
func (e *Engine) Store() storage.Store {
	return e.store
}
