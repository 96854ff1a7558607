package gossip

import (
	"ringkv/internal/address"
)

// Kind identifies a membership message.
type Kind int

const (
	JoinReq Kind = iota
	JoinRep
	Gossip
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case JoinReq:
		return "JOINREQ"
	case JoinRep:
		return "JOINREP"
	case Gossip:
		return "GOSSIP"
	default:
		return "UNKNOWN"
	}
}

// Message carries a membership table. Tick is the sender's logical clock
// when it was sent, which gives meaning to the entry timestamps.
type Message struct {
	Kind    Kind
	From    address.Address
	Tick    int64
	Entries []Entry
}

// SendFunc hands a message to the network. Delivery is best effort.
type SendFunc func(to address.Address, msg Message)
