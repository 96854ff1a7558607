// Package sim runs a whole cluster in one process. A Cluster owns an
// emulated network and a set of nodes and advances them in rounds: each
// round starts the nodes scheduled to join, then steps every live node once
// in address order.
package sim

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ringkv/internal/address"
	"ringkv/internal/audit"
	"ringkv/internal/config"
	"ringkv/internal/emulnet"
	"ringkv/internal/node"
)

// ErrNoLiveNodes is returned when no started node is still alive.
var ErrNoLiveNodes = errors.New("no live nodes")

// Options configures a simulated cluster.
type Options struct {
	Nodes int

	// JoinEvery staggers starts: node i starts in round i*JoinEvery.
	JoinEvery int

	// Drop is the probability that the network loses a message.
	Drop float64
	Seed int64

	// Configure adjusts each node's config after defaults are applied.
	Configure func(*config.Config)
	// Events receives protocol outcomes in addition to the recorder.
	Events audit.Logger
	Logger *zap.Logger
}

// Cluster is a set of nodes on an emulated network.
type Cluster struct {
	net     *emulnet.Network
	nodes   []*node.Node
	startAt []int
	started []bool
	rec     *audit.Recorder
	round   int
	log     *zap.Logger
}

// NewCluster creates the nodes. Node i gets address (i+1):0, so node 0 is
// the introducer.
func NewCluster(opts Options) (*Cluster, error) {
	if opts.Nodes <= 0 {
		return nil, fmt.Errorf("cluster needs at least one node, got %d", opts.Nodes)
	}
	if opts.JoinEvery < 0 {
		return nil, fmt.Errorf("join interval must not be negative, got %d", opts.JoinEvery)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cluster{
		net:     emulnet.New(opts.Drop, opts.Seed),
		nodes:   make([]*node.Node, opts.Nodes),
		startAt: make([]int, opts.Nodes),
		started: make([]bool, opts.Nodes),
		rec:     audit.NewRecorder(),
		log:     logger,
	}

	var events audit.Logger = c.rec
	if opts.Events != nil {
		events = audit.Tee{c.rec, opts.Events}
	}

	for i := range c.nodes {
		cfg := config.Default(address.New(uint32(i+1), 0))
		cfg.Seed = opts.Seed + int64(i) + 1
		if opts.Configure != nil {
			opts.Configure(&cfg)
		}

		n, err := node.New(cfg, c.net, events, logger)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		c.net.Register(n.Addr(), n)
		c.nodes[i] = n
		c.startAt[i] = i * opts.JoinEvery
	}

	return c, nil
}

// Step runs one round.
func (c *Cluster) Step() error {
	for i, n := range c.nodes {
		if c.started[i] || c.startAt[i] > c.round {
			continue
		}
		if err := n.Start(); err != nil {
			return fmt.Errorf("start %s: %w", n.Addr(), err)
		}
		c.started[i] = true
		c.log.Debug("node started", zap.Stringer("node", n.Addr()), zap.Int("round", c.round))
	}

	for i, n := range c.nodes {
		if c.started[i] && !n.Failed() {
			n.Step()
		}
	}
	c.round++
	return nil
}

// Run executes rounds steps.
func (c *Cluster) Run(rounds int) error {
	for i := 0; i < rounds; i++ {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunUntil steps until done reports true or max rounds have passed. It
// returns whether done was reached.
func (c *Cluster) RunUntil(done func() bool, max int) (bool, error) {
	for i := 0; i < max; i++ {
		if done() {
			return true, nil
		}
		if err := c.Step(); err != nil {
			return false, err
		}
	}
	return done(), nil
}

// Fail crashes node i at the node and on the network.
func (c *Cluster) Fail(i int) {
	n := c.nodes[i]
	n.Fail()
	c.net.Fail(n.Addr())
	c.log.Info("node crashed", zap.Stringer("node", n.Addr()), zap.Int("round", c.round))
}

// Node returns node i.
func (c *Cluster) Node(i int) *node.Node {
	return c.nodes[i]
}

// Nodes returns every node, failed or not.
func (c *Cluster) Nodes() []*node.Node {
	return c.nodes
}

// Live returns the started nodes that have not failed.
func (c *Cluster) Live() []*node.Node {
	var out []*node.Node
	for i, n := range c.nodes {
		if c.started[i] && !n.Failed() {
			out = append(out, n)
		}
	}
	return out
}

// Recorder returns the audit events of every node.
func (c *Cluster) Recorder() *audit.Recorder {
	return c.rec
}

// Network returns the emulated network.
func (c *Cluster) Network() *emulnet.Network {
	return c.net
}

// Round returns how many rounds have run.
func (c *Cluster) Round() int {
	return c.round
}

// Converged reports whether every node has started and every live node sees
// exactly the live set in both its membership table and its ring.
func (c *Cluster) Converged() bool {
	for _, s := range c.started {
		if !s {
			return false
		}
	}
	live := c.Live()
	if len(live) == 0 {
		return false
	}

	want := make(map[address.Address]bool, len(live))
	for _, n := range live {
		want[n.Addr()] = true
	}
	for _, n := range live {
		members := n.Members()
		if len(members) != len(want) {
			return false
		}
		for _, m := range members {
			if !want[m] {
				return false
			}
		}
		r := n.Ring()
		if r == nil || r.Len() != len(want) {
			return false
		}
	}
	return true
}

// Holders returns the live nodes whose store has key.
func (c *Cluster) Holders(key string) []address.Address {
	var out []address.Address
	for _, n := range c.Live() {
		if _, err := n.Store().Read(key); err == nil {
			out = append(out, n.Addr())
		}
	}
	return out
}

// Replicas returns key's replicas as seen by the first live node.
func (c *Cluster) Replicas(key string) ([]address.Address, error) {
	live := c.Live()
	if len(live) == 0 {
		return nil, ErrNoLiveNodes
	}
	return live[0].FindNodes(key), nil
}
