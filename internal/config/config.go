package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ringkv/internal/address"
)

// Protocol constants. The replication factor is fixed.
const (
	ReplicationFactor = 3
	Quorum            = 2
)

// Protocol defaults. Windows are in logical ticks.
const (
	DefaultTFail        = 5
	DefaultTRemove      = 20
	DefaultFanout       = 2
	DefaultTxnTimeout   = 10
	DefaultJoinRetry    = 10
	DefaultHash         = "fnv"
	DefaultIntroducer   = "1:0"
	DefaultTickInterval = 100 * time.Millisecond
)

var (
	ErrSelfRequired       = errors.New("self address is required")
	ErrIntroducerRequired = errors.New("introducer address is required")
	ErrInvalidWindows     = errors.New("TREMOVE must be greater than TFAIL")
	ErrInvalidFanout      = errors.New("gossip fanout must be positive")
	ErrInvalidTxnTimeout  = errors.New("transaction timeout must be positive")
	ErrUnknownHash        = errors.New("unknown ring hash")
	ErrInvalidJoinRetry   = errors.New("join retry must not be negative")
)

// Config holds the node configuration.
type Config struct {
	Self       address.Address
	Introducer address.Address

	// Failure detection windows, in logical ticks.
	TFail   int64
	TRemove int64

	Fanout int
	// JoinRetry resends JOINREQ after this many steps without a JOINREP.
	// Zero disables retries.
	JoinRetry int64
	// OptimisticJoin inserts unseen gossip entries without liveness proof.
	OptimisticJoin bool

	// TxnTimeout is how many ticks a client transaction may stay open.
	TxnTimeout int64

	// Hash selects the ring hash: "fnv" or "xxhash".
	Hash string

	// Seed for gossip target selection; zero means time-derived.
	Seed int64
}

// Default returns a config with the protocol defaults for self.
func Default(self address.Address) Config {
	return Config{
		Self:           self,
		Introducer:     address.MustParse(DefaultIntroducer),
		TFail:          DefaultTFail,
		TRemove:        DefaultTRemove,
		Fanout:         DefaultFanout,
		JoinRetry:      DefaultJoinRetry,
		OptimisticJoin: true,
		TxnTimeout:     DefaultTxnTimeout,
		Hash:           DefaultHash,
	}
}

// Validate checks if the config is usable.
func (c *Config) Validate() error {
	if c.Self.IsZero() {
		return ErrSelfRequired
	}
	if c.Introducer.IsZero() {
		return ErrIntroducerRequired
	}
	if c.TFail < 0 || c.TRemove <= c.TFail {
		return ErrInvalidWindows
	}
	if c.Fanout <= 0 {
		return ErrInvalidFanout
	}
	if c.JoinRetry < 0 {
		return ErrInvalidJoinRetry
	}
	if c.TxnTimeout <= 0 {
		return ErrInvalidTxnTimeout
	}
	switch c.Hash {
	case "fnv", "xxhash":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownHash, c.Hash)
	}
	return nil
}

// IsIntroducer reports whether this node is the group's seed.
func (c *Config) IsIntroducer() bool {
	return c.Self == c.Introducer
}

// ParseAddresses parses a comma-separated list of addresses in the format:
// "id1:port1,id2:port2"
func ParseAddresses(s string) ([]address.Address, error) {
	if s == "" {
		return []address.Address{}, nil
	}

	parts := strings.Split(s, ",")
	addrs := make([]address.Address, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		a, err := address.Parse(part)
		if err != nil {
			return nil, err
		}
		if a.IsZero() {
			return nil, fmt.Errorf("address cannot be zero: %s", part)
		}
		addrs = append(addrs, a)
	}

	return addrs, nil
}
