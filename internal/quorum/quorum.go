package quorum

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicate is returned when a transaction id is already open.
var ErrDuplicate = errors.New("transaction already open")

// Decision is the state of a transaction after a reply.
type Decision int

const (
	Pending Decision = iota
	Succeeded
	Failed
)

// String returns the string representation of Decision.
func (d Decision) String() string {
	switch d {
	case Pending:
		return "PENDING"
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Decide resolves a tally. Success needs required acks; failure is declared
// once the remaining replicas can no longer reach required.
func Decide(acks, fails, required, total int) Decision {
	if acks >= required {
		return Succeeded
	}
	if fails > total-required {
		return Failed
	}
	return Pending
}

// Txn is one open transaction. Info carries the caller's request.
type Txn[T any] struct {
	ID       uint32
	Info     T
	Acks     int
	Fails    int
	Replicas int
	Opened   int64
}

// Counter is acks minus fails.
func (t Txn[T]) Counter() int {
	return t.Acks - t.Fails
}

// Table holds open transactions keyed by id.
type Table[T any] struct {
	mu       sync.Mutex
	required int
	txns     map[uint32]*Txn[T]
}

// NewTable creates a table resolving at required acks.
func NewTable[T any](required int) *Table[T] {
	if required <= 0 {
		required = 1
	}
	return &Table[T]{
		required: required,
		txns:     make(map[uint32]*Txn[T]),
	}
}

// Required returns the quorum size.
func (t *Table[T]) Required() int {
	return t.required
}

// Open registers a transaction sent to replicas nodes at tick now.
func (t *Table[T]) Open(id uint32, info T, replicas int, now int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.txns[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicate, id)
	}
	t.txns[id] = &Txn[T]{ID: id, Info: info, Replicas: replicas, Opened: now}
	return nil
}

// Record tallies one reply. found is false for unknown or already resolved
// ids. A resolved transaction is removed before returning.
func (t *Table[T]) Record(id uint32, success bool) (txn Txn[T], d Decision, found bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, exists := t.txns[id]
	if !exists {
		return Txn[T]{}, Pending, false
	}

	if success {
		p.Acks++
	} else {
		p.Fails++
	}

	d = Decide(p.Acks, p.Fails, t.required, p.Replicas)
	if d != Pending {
		delete(t.txns, id)
	}
	return *p, d, true
}

// Get returns a copy of an open transaction.
func (t *Table[T]) Get(id uint32) (Txn[T], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, exists := t.txns[id]
	if !exists {
		return Txn[T]{}, false
	}
	return *p, true
}

// Remove drops an open transaction and returns it.
func (t *Table[T]) Remove(id uint32) (Txn[T], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, exists := t.txns[id]
	if !exists {
		return Txn[T]{}, false
	}
	delete(t.txns, id)
	return *p, true
}

// Expire removes and returns, ordered by id, every transaction open for at
// least timeout ticks at now.
func (t *Table[T]) Expire(now, timeout int64) []Txn[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []Txn[T]
	for id, p := range t.txns {
		if now-p.Opened >= timeout {
			expired = append(expired, *p)
			delete(t.txns, id)
		}
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired
}

// Len returns the number of open transactions.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.txns)
}
