package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringkv/internal/audit"
)

func TestWorkload_AllOpsSucceedOnStableRing(t *testing.T) {
	c := newConverged(t, 6)
	w := NewWorkload(11)

	for i := 0; i < 40; i++ {
		_, _, err := w.Issue(c)
		require.NoError(t, err)
		require.NoError(t, c.Run(3))
	}

	assert.Equal(t, 40, w.Issued)
	assert.Zero(t, w.Skipped)

	s := c.Summarize()
	assert.Equal(t, 6, s.Live)
	total := 0
	for op, tally := range s.Ops {
		assert.Zero(t, tally.Fail, "op %s", op)
		total += tally.Success
	}
	assert.Equal(t, 40, total)
	assert.Positive(t, s.Ops[audit.OpCreate].Success)

	for _, n := range c.Live() {
		assert.Zero(t, n.Pending(), "node %s", n.Addr())
	}
}

func TestWorkload_SkipsBeforeRingExists(t *testing.T) {
	c, err := NewCluster(Options{Nodes: 2})
	require.NoError(t, err)
	require.NoError(t, c.Step())

	w := NewWorkload(1)
	op, _, err := w.Issue(c)
	require.NoError(t, err)
	assert.Equal(t, audit.OpCreate, op)
	assert.Equal(t, 1, w.Skipped)
	assert.Zero(t, w.Issued)
}

func TestWorkload_NoLiveNodes(t *testing.T) {
	c, err := NewCluster(Options{Nodes: 1})
	require.NoError(t, err)

	_, _, err = NewWorkload(1).Issue(c)
	assert.ErrorIs(t, err, ErrNoLiveNodes)
}

func TestSummary_NodeNames(t *testing.T) {
	s := Summary{Members: map[string]int{"2:0": 3, "1:0": 3}}
	assert.Equal(t, []string{"1:0", "2:0"}, s.NodeNames())
}
