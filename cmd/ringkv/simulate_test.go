package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"simulate", "--nodes=4", "--rounds=60", "--ops=5", "--seed=2", "--log-level=error"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())

	s := out.String()
	assert.Contains(t, s, "converged at end  true")
	assert.Contains(t, s, "5 issued, 0 skipped")
	assert.Contains(t, s, "OP")
	for _, node := range []string{"1:0", "2:0", "3:0", "4:0"} {
		assert.Contains(t, s, node)
	}
}

func TestSimulateCommand_BadHash(t *testing.T) {
	rootCmd.SetArgs([]string{"simulate", "--nodes=3", "--hash=md5", "--log-level=error"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetErr(nil) })

	assert.Error(t, rootCmd.Execute())
	simOpts.hash = "fnv"
}
