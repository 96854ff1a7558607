package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringkv/internal/address"
	"ringkv/internal/audit"
	"ringkv/internal/config"
	"ringkv/internal/gossip"
)

func newConverged(t *testing.T, nodes int) *Cluster {
	t.Helper()
	c, err := NewCluster(Options{Nodes: nodes, JoinEvery: 1, Seed: 7})
	require.NoError(t, err)

	ok, err := c.RunUntil(c.Converged, 60)
	require.NoError(t, err)
	require.True(t, ok, "cluster did not converge after %d rounds", c.Round())
	return c
}

func TestNewCluster_Invalid(t *testing.T) {
	_, err := NewCluster(Options{Nodes: 0})
	assert.Error(t, err)

	_, err = NewCluster(Options{Nodes: 2, JoinEvery: -1})
	assert.Error(t, err)

	_, err = NewCluster(Options{Nodes: 2, Configure: func(c *config.Config) { c.Hash = "md5" }})
	assert.ErrorIs(t, err, config.ErrUnknownHash)
}

func TestCluster_StaggeredStart(t *testing.T) {
	c, err := NewCluster(Options{Nodes: 3, JoinEvery: 2, Seed: 1})
	require.NoError(t, err)

	require.NoError(t, c.Step())
	assert.Len(t, c.Live(), 1)
	assert.Equal(t, gossip.InGroup, c.Node(0).State())
	assert.Equal(t, gossip.Uninitialized, c.Node(1).State())

	require.NoError(t, c.Run(2))
	assert.Len(t, c.Live(), 2)
	assert.False(t, c.Converged(), "node 3 has not started")
}

func TestCluster_FiveNodesConverge(t *testing.T) {
	c := newConverged(t, 5)

	for _, n := range c.Nodes() {
		assert.Len(t, n.Members(), 5, "node %s", n.Addr())
		assert.Equal(t, 5, n.Ring().Len(), "node %s", n.Addr())
	}

	// Every node reported each other node joining at least once.
	added := c.Recorder().Filter(func(e audit.Event) bool { return e.Kind == audit.KindNodeAdded })
	seen := make(map[[2]address.Address]bool)
	for _, e := range added {
		seen[[2]address.Address{e.Node, e.Member}] = true
	}
	assert.Len(t, seen, 5*4)

	// Stays converged with no failures.
	require.NoError(t, c.Run(40))
	assert.True(t, c.Converged())
	assert.Empty(t, c.Recorder().Filter(func(e audit.Event) bool { return e.Kind == audit.KindNodeRemoved }))
}

func TestCluster_CreateLandsOnThreeReplicas(t *testing.T) {
	c := newConverged(t, 5)

	_, err := c.Node(1).ClientCreate("alpha", "1")
	require.NoError(t, err)
	require.NoError(t, c.Run(3))

	replicas, err := c.Replicas("alpha")
	require.NoError(t, err)
	require.Len(t, replicas, 3)
	assert.ElementsMatch(t, replicas, c.Holders("alpha"))

	rec := c.Recorder()
	assert.Equal(t, 1, rec.Count(audit.OpCreate, "alpha", true, true))
	assert.Equal(t, 3, rec.Count(audit.OpCreate, "alpha", false, true))
	assert.Zero(t, c.Node(1).Pending())
}

func TestCluster_CRUD(t *testing.T) {
	c := newConverged(t, 5)
	rec := c.Recorder()

	_, err := c.Node(0).ClientCreate("k", "v1")
	require.NoError(t, err)
	require.NoError(t, c.Run(3))

	_, err = c.Node(2).ClientUpdate("k", "v2")
	require.NoError(t, err)
	require.NoError(t, c.Run(3))
	assert.Equal(t, 1, rec.Count(audit.OpUpdate, "k", true, true))

	_, err = c.Node(3).ClientRead("k")
	require.NoError(t, err)
	require.NoError(t, c.Run(3))
	reads := rec.Outcomes(audit.OpRead, "k", true)
	require.Len(t, reads, 1)
	assert.True(t, reads[0].Success)
	assert.Equal(t, "v2", reads[0].Value)

	_, err = c.Node(4).ClientDelete("k")
	require.NoError(t, err)
	require.NoError(t, c.Run(3))
	assert.Equal(t, 1, rec.Count(audit.OpDelete, "k", true, true))
	assert.Empty(t, c.Holders("k"))

	_, err = c.Node(4).ClientRead("k")
	require.NoError(t, err)
	require.NoError(t, c.Run(3))
	assert.Equal(t, 1, rec.Count(audit.OpRead, "k", true, false))
}

func TestCluster_StabilizeAfterReplicaFailure(t *testing.T) {
	c := newConverged(t, 5)

	_, err := c.Node(0).ClientCreate("beta", "b")
	require.NoError(t, err)
	require.NoError(t, c.Run(3))

	before, err := c.Replicas("beta")
	require.NoError(t, err)
	require.Len(t, before, 3)

	// Crash the primary, or the secondary if node 0 is the primary.
	victim := before[0]
	if victim == c.Node(0).Addr() {
		victim = before[1]
	}
	for i, n := range c.Nodes() {
		if n.Addr() == victim {
			c.Fail(i)
		}
	}

	ok, err := c.RunUntil(c.Converged, 3*config.DefaultTRemove)
	require.NoError(t, err)
	require.True(t, ok, "live nodes did not drop the failed member")
	require.NoError(t, c.Run(3))

	after, err := c.Replicas("beta")
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.NotContains(t, after, victim)
	assert.ElementsMatch(t, after, c.Holders("beta"))

	for _, n := range c.Live() {
		if v, err := n.Store().Read("beta"); err == nil {
			assert.Equal(t, "b", v)
		}
	}
}

func TestCluster_SurvivesMessageLoss(t *testing.T) {
	c, err := NewCluster(Options{Nodes: 4, JoinEvery: 1, Drop: 0.1, Seed: 3})
	require.NoError(t, err)

	ok, err := c.RunUntil(c.Converged, 200)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Positive(t, c.Network().Stats().Dropped)
}
