package audit

import (
	"sync"

	"ringkv/internal/address"
)

// Kind distinguishes data outcomes from membership events.
type Kind int

const (
	KindOutcome Kind = iota
	KindNodeAdded
	KindNodeRemoved
)

// Event is one recorded call.
type Event struct {
	Kind        Kind
	Node        address.Address
	Op          Op
	Success     bool
	Coordinator bool
	Txn         uint32
	Key         string
	Value       string
	Member      address.Address
}

// Recorder keeps every call in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) outcome(op Op, success bool, n address.Address, c bool, txn uint32, k, v string) {
	r.add(Event{Kind: KindOutcome, Node: n, Op: op, Success: success, Coordinator: c, Txn: txn, Key: k, Value: v})
}

func (r *Recorder) CreateSuccess(n address.Address, c bool, txn uint32, k, v string) {
	r.outcome(OpCreate, true, n, c, txn, k, v)
}

func (r *Recorder) CreateFail(n address.Address, c bool, txn uint32, k, v string) {
	r.outcome(OpCreate, false, n, c, txn, k, v)
}

func (r *Recorder) ReadSuccess(n address.Address, c bool, txn uint32, k, v string) {
	r.outcome(OpRead, true, n, c, txn, k, v)
}

func (r *Recorder) ReadFail(n address.Address, c bool, txn uint32, k string) {
	r.outcome(OpRead, false, n, c, txn, k, "")
}

func (r *Recorder) UpdateSuccess(n address.Address, c bool, txn uint32, k, v string) {
	r.outcome(OpUpdate, true, n, c, txn, k, v)
}

func (r *Recorder) UpdateFail(n address.Address, c bool, txn uint32, k, v string) {
	r.outcome(OpUpdate, false, n, c, txn, k, v)
}

func (r *Recorder) DeleteSuccess(n address.Address, c bool, txn uint32, k string) {
	r.outcome(OpDelete, true, n, c, txn, k, "")
}

func (r *Recorder) DeleteFail(n address.Address, c bool, txn uint32, k string) {
	r.outcome(OpDelete, false, n, c, txn, k, "")
}

func (r *Recorder) NodeAdded(n, added address.Address) {
	r.add(Event{Kind: KindNodeAdded, Node: n, Member: added})
}

func (r *Recorder) NodeRemoved(n, removed address.Address) {
	r.add(Event{Kind: KindNodeRemoved, Node: n, Member: removed})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the recorded events matching keep.
func (r *Recorder) Filter(keep func(Event) bool) []Event {
	var out []Event
	for _, e := range r.Events() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Outcomes returns data outcomes for op on key, at replicas or at the
// coordinator.
func (r *Recorder) Outcomes(op Op, key string, coordinator bool) []Event {
	return r.Filter(func(e Event) bool {
		return e.Kind == KindOutcome && e.Op == op && e.Key == key && e.Coordinator == coordinator
	})
}

// Count returns how many outcomes match op, key, coordinator and success.
func (r *Recorder) Count(op Op, key string, coordinator, success bool) int {
	n := 0
	for _, e := range r.Outcomes(op, key, coordinator) {
		if e.Success == success {
			n++
		}
	}
	return n
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
