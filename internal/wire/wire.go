// Package wire encodes protocol messages for the network. Every payload is a
// canonical CBOR envelope tagging the protocol, so a node can split its inbox
// before decoding the body.
package wire

import (
	"errors"
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"

	"ringkv/internal/address"
	"ringkv/internal/gossip"
	"ringkv/internal/replication"
)

// Protocol tags the envelope body.
type Protocol uint8

const (
	Membership Protocol = iota + 1
	Replication
)

// String returns the protocol label used in logs and metrics.
func (p Protocol) String() string {
	switch p {
	case Membership:
		return "membership"
	case Replication:
		return "replication"
	default:
		return "unknown"
	}
}

var (
	// ErrUnknownProtocol is returned for an envelope with an unrecognized
	// protocol tag.
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrMalformed is returned when a payload cannot be decoded.
	ErrMalformed = errors.New("malformed message")
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	em, _ := cbor.CanonicalEncOptions().EncMode()
	dm, _ := (cbor.DecOptions{}).DecMode()
	cborEnc, cborDec = em, dm
}

type envelope struct {
	P Protocol        `cbor:"p"`
	B cbor.RawMessage `cbor:"b"`
}

type memberDTO struct {
	ID   uint32 `cbor:"i"`
	Port uint16 `cbor:"p"`
	HB   int64  `cbor:"h"`
	TS   int64  `cbor:"s"`
}

type membershipDTO struct {
	K    uint8       `cbor:"k"`
	From []byte      `cbor:"f"`
	Tick int64       `cbor:"t"`
	E    []memberDTO `cbor:"e"`
}

type replicationDTO struct {
	K     uint8  `cbor:"k"`
	From  []byte `cbor:"f"`
	Txn   uint32 `cbor:"x"`
	Key   string `cbor:"key"`
	Value string `cbor:"val,omitempty"`
}

func seal(p Protocol, body any) ([]byte, error) {
	raw, err := cborEnc.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", p, err)
	}
	out, err := cborEnc.Marshal(envelope{P: p, B: raw})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return out, nil
}

func open(b []byte) (envelope, error) {
	var env envelope
	if err := cborDec.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.P != Membership && env.P != Replication {
		return env, fmt.Errorf("%w: %d", ErrUnknownProtocol, env.P)
	}
	return env, nil
}

// PeekProtocol returns the protocol of an encoded message.
func PeekProtocol(b []byte) (Protocol, error) {
	env, err := open(b)
	if err != nil {
		return 0, err
	}
	return env.P, nil
}

// EncodeMembership encodes a membership message.
func EncodeMembership(msg gossip.Message) ([]byte, error) {
	dto := membershipDTO{
		K:    uint8(msg.Kind),
		From: msg.From.Bytes(),
		Tick: msg.Tick,
		E:    make([]memberDTO, len(msg.Entries)),
	}
	for i, e := range msg.Entries {
		dto.E[i] = memberDTO{ID: e.ID, Port: e.Port, HB: e.Heartbeat, TS: e.Timestamp}
	}
	return seal(Membership, dto)
}

// DecodeMembership decodes a membership message.
func DecodeMembership(b []byte) (gossip.Message, error) {
	env, err := open(b)
	if err != nil {
		return gossip.Message{}, err
	}
	if env.P != Membership {
		return gossip.Message{}, fmt.Errorf("%w: want %s, got %s", ErrUnknownProtocol, Membership, env.P)
	}

	var dto membershipDTO
	if err := cborDec.Unmarshal(env.B, &dto); err != nil {
		return gossip.Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind := gossip.Kind(dto.K)
	if kind != gossip.JoinReq && kind != gossip.JoinRep && kind != gossip.Gossip {
		return gossip.Message{}, fmt.Errorf("%w: membership kind %d", ErrMalformed, dto.K)
	}
	from, err := address.FromBytes(dto.From)
	if err != nil {
		return gossip.Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	msg := gossip.Message{
		Kind:    kind,
		From:    from,
		Tick:    dto.Tick,
		Entries: make([]gossip.Entry, len(dto.E)),
	}
	for i, e := range dto.E {
		msg.Entries[i] = gossip.Entry{ID: e.ID, Port: e.Port, Heartbeat: e.HB, Timestamp: e.TS}
	}
	return msg, nil
}

// EncodeReplication encodes a replication message.
func EncodeReplication(msg replication.Message) ([]byte, error) {
	return seal(Replication, replicationDTO{
		K:     uint8(msg.Kind),
		From:  msg.From.Bytes(),
		Txn:   msg.Txn,
		Key:   msg.Key,
		Value: msg.Value,
	})
}

// DecodeReplication decodes a replication message.
func DecodeReplication(b []byte) (replication.Message, error) {
	env, err := open(b)
	if err != nil {
		return replication.Message{}, err
	}
	if env.P != Replication {
		return replication.Message{}, fmt.Errorf("%w: want %s, got %s", ErrUnknownProtocol, Replication, env.P)
	}

	var dto replicationDTO
	if err := cborDec.Unmarshal(env.B, &dto); err != nil {
		return replication.Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind := replication.Kind(dto.K)
	if !kind.Valid() {
		return replication.Message{}, fmt.Errorf("%w: replication kind %d", ErrMalformed, dto.K)
	}
	from, err := address.FromBytes(dto.From)
	if err != nil {
		return replication.Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return replication.Message{
		Kind:  kind,
		From:  from,
		Txn:   dto.Txn,
		Key:   dto.Key,
		Value: dto.Value,
	}, nil
}
