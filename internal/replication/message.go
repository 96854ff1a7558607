package replication

import (
	"ringkv/internal/address"
	"ringkv/internal/audit"
)

// Kind identifies a replication message.
type Kind int

const (
	Create Kind = iota
	Read
	Update
	Delete
	CreateReply
	ReadReply
	UpdateReply
	DeleteReply
	CreateFail
	ReadFail
	UpdateFail
	DeleteFail
)

var kindNames = [...]string{
	Create:      "CREATE",
	Read:        "READ",
	Update:      "UPDATE",
	Delete:      "DELETE",
	CreateReply: "CREATEREPLY",
	ReadReply:   "READREPLY",
	UpdateReply: "UPDATEREPLY",
	DeleteReply: "DELETEREPLY",
	CreateFail:  "CREATEFAIL",
	ReadFail:    "READFAIL",
	UpdateFail:  "UPDATEFAIL",
	DeleteFail:  "DELETEFAIL",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= Create && k <= DeleteFail
}

// IsRequest reports whether k is sent by a coordinator to a replica.
func (k Kind) IsRequest() bool {
	return k >= Create && k <= Delete
}

// Op returns the client operation k belongs to.
func (k Kind) Op() audit.Op {
	switch k {
	case Create, CreateReply, CreateFail:
		return audit.OpCreate
	case Read, ReadReply, ReadFail:
		return audit.OpRead
	case Update, UpdateReply, UpdateFail:
		return audit.OpUpdate
	default:
		return audit.OpDelete
	}
}

// Success reports whether a reply kind acknowledges the request.
func (k Kind) Success() bool {
	return k >= CreateReply && k <= DeleteReply
}

func requestKind(op audit.Op) Kind {
	switch op {
	case audit.OpCreate:
		return Create
	case audit.OpRead:
		return Read
	case audit.OpUpdate:
		return Update
	default:
		return Delete
	}
}

func replyKind(op audit.Op, success bool) Kind {
	k := Kind(op) + CreateReply
	if !success {
		k = Kind(op) + CreateFail
	}
	return k
}

// Message is one replication request or reply. Txn 0 marks a stabilization
// push, which gets no reply.
type Message struct {
	Kind  Kind
	From  address.Address
	Txn   uint32
	Key   string
	Value string
}

// SendFunc hands a message to the network. Delivery is best effort.
type SendFunc func(to address.Address, msg Message)
