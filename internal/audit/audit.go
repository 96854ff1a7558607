// Package audit records protocol outcomes: every CRUD success or failure, at
// replicas and at coordinators, and every membership insertion or removal.
//
// Tests assert on the Recorder; running nodes write through the Zap sink.
package audit

import (
	"ringkv/internal/address"
)

// Op names a client operation.
type Op int

const (
	OpCreate Op = iota
	OpRead
	OpUpdate
	OpDelete
)

// String returns the lower-case operation name.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpRead:
		return "read"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Logger receives protocol outcomes. node is the reporting node; coordinator
// is true when the outcome is the quorum result rather than a local one.
type Logger interface {
	CreateSuccess(node address.Address, coordinator bool, txn uint32, key, value string)
	CreateFail(node address.Address, coordinator bool, txn uint32, key, value string)
	ReadSuccess(node address.Address, coordinator bool, txn uint32, key, value string)
	ReadFail(node address.Address, coordinator bool, txn uint32, key string)
	UpdateSuccess(node address.Address, coordinator bool, txn uint32, key, value string)
	UpdateFail(node address.Address, coordinator bool, txn uint32, key, value string)
	DeleteSuccess(node address.Address, coordinator bool, txn uint32, key string)
	DeleteFail(node address.Address, coordinator bool, txn uint32, key string)

	NodeAdded(node, added address.Address)
	NodeRemoved(node, removed address.Address)
}

// Outcome dispatches to the Logger method for op and success.
func Outcome(l Logger, op Op, success bool, node address.Address, coordinator bool, txn uint32, key, value string) {
	switch op {
	case OpCreate:
		if success {
			l.CreateSuccess(node, coordinator, txn, key, value)
		} else {
			l.CreateFail(node, coordinator, txn, key, value)
		}
	case OpRead:
		if success {
			l.ReadSuccess(node, coordinator, txn, key, value)
		} else {
			l.ReadFail(node, coordinator, txn, key)
		}
	case OpUpdate:
		if success {
			l.UpdateSuccess(node, coordinator, txn, key, value)
		} else {
			l.UpdateFail(node, coordinator, txn, key, value)
		}
	case OpDelete:
		if success {
			l.DeleteSuccess(node, coordinator, txn, key)
		} else {
			l.DeleteFail(node, coordinator, txn, key)
		}
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) CreateSuccess(address.Address, bool, uint32, string, string) {}
func (Nop) CreateFail(address.Address, bool, uint32, string, string)    {}
func (Nop) ReadSuccess(address.Address, bool, uint32, string, string)   {}
func (Nop) ReadFail(address.Address, bool, uint32, string)              {}
func (Nop) UpdateSuccess(address.Address, bool, uint32, string, string) {}
func (Nop) UpdateFail(address.Address, bool, uint32, string, string)    {}
func (Nop) DeleteSuccess(address.Address, bool, uint32, string)         {}
func (Nop) DeleteFail(address.Address, bool, uint32, string)            {}
func (Nop) NodeAdded(address.Address, address.Address)                  {}
func (Nop) NodeRemoved(address.Address, address.Address)                {}

// Tee fans every call out to each logger in order.
type Tee []Logger

func (t Tee) CreateSuccess(n address.Address, c bool, txn uint32, k, v string) {
	for _, l := range t {
		l.CreateSuccess(n, c, txn, k, v)
	}
}

func (t Tee) CreateFail(n address.Address, c bool, txn uint32, k, v string) {
	for _, l := range t {
		l.CreateFail(n, c, txn, k, v)
	}
}

func (t Tee) ReadSuccess(n address.Address, c bool, txn uint32, k, v string) {
	for _, l := range t {
		l.ReadSuccess(n, c, txn, k, v)
	}
}

func (t Tee) ReadFail(n address.Address, c bool, txn uint32, k string) {
	for _, l := range t {
		l.ReadFail(n, c, txn, k)
	}
}

func (t Tee) UpdateSuccess(n address.Address, c bool, txn uint32, k, v string) {
	for _, l := range t {
		l.UpdateSuccess(n, c, txn, k, v)
	}
}

func (t Tee) UpdateFail(n address.Address, c bool, txn uint32, k, v string) {
	for _, l := range t {
		l.UpdateFail(n, c, txn, k, v)
	}
}

func (t Tee) DeleteSuccess(n address.Address, c bool, txn uint32, k string) {
	for _, l := range t {
		l.DeleteSuccess(n, c, txn, k)
	}
}

func (t Tee) DeleteFail(n address.Address, c bool, txn uint32, k string) {
	for _, l := range t {
		l.DeleteFail(n, c, txn, k)
	}
}

func (t Tee) NodeAdded(n, added address.Address) {
	for _, l := range t {
		l.NodeAdded(n, added)
	}
}

func (t Tee) NodeRemoved(n, removed address.Address) {
	for _, l := range t {
		l.NodeRemoved(n, removed)
	}
}
