package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ringkv/internal/audit"
	"ringkv/internal/config"
	"ringkv/internal/sim"
)

var simOpts struct {
	nodes     int
	rounds    int
	ops       int
	drop      float64
	failAt    int
	seed      int64
	joinEvery int
	hash      string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a cluster over an emulated network",
	Long: `Run a cluster of nodes in one process over an emulated network.

Nodes join one after another. Once membership converges, one random client
operation is issued per round until --ops have been issued. With --fail-at,
the last node crashes in that round.

Examples:
  # Ten nodes, a hundred operations
  ringkv simulate --nodes=10 --ops=100

  # Lossy network with a crash
  ringkv simulate --nodes=8 --drop=0.05 --fail-at=150`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	f := simulateCmd.Flags()
	f.IntVar(&simOpts.nodes, "nodes", 10, "Number of nodes")
	f.IntVar(&simOpts.rounds, "rounds", 300, "Rounds to run")
	f.IntVar(&simOpts.ops, "ops", 50, "Client operations to issue")
	f.Float64Var(&simOpts.drop, "drop", 0, "Probability that a message is lost")
	f.IntVar(&simOpts.failAt, "fail-at", -1, "Round in which the last node crashes (-1 for never)")
	f.Int64Var(&simOpts.seed, "seed", 1, "Random seed")
	f.IntVar(&simOpts.joinEvery, "join-every", 1, "Rounds between consecutive node starts")
	f.StringVar(&simOpts.hash, "hash", config.DefaultHash, "Ring hash (fnv, xxhash)")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c, err := sim.NewCluster(sim.Options{
		Nodes:     simOpts.nodes,
		JoinEvery: simOpts.joinEvery,
		Drop:      simOpts.drop,
		Seed:      simOpts.seed,
		Configure: func(cfg *config.Config) { cfg.Hash = simOpts.hash },
		Events:    audit.NewZap(logger),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	w := sim.NewWorkload(simOpts.seed)
	opsFrom := -1
	for r := 0; r < simOpts.rounds; r++ {
		if r == simOpts.failAt {
			c.Fail(simOpts.nodes - 1)
		}
		if opsFrom < 0 && c.Converged() {
			opsFrom = r
			logger.Info("membership converged", zap.Int("round", r))
		}
		if opsFrom >= 0 && w.Issued+w.Skipped < simOpts.ops {
			if _, _, err := w.Issue(c); err != nil {
				return err
			}
		}
		if err := c.Step(); err != nil {
			return err
		}
	}

	printSummary(cmd.OutOrStdout(), c.Summarize(), w, opsFrom, c.Converged())
	return nil
}

func printSummary(out io.Writer, s sim.Summary, w *sim.Workload, convergedAt int, converged bool) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "rounds\t%d\n", s.Rounds)
	fmt.Fprintf(tw, "nodes\t%d (%d live)\n", s.Nodes, s.Live)
	if convergedAt >= 0 {
		fmt.Fprintf(tw, "first converged\tround %d\n", convergedAt)
	} else {
		fmt.Fprintf(tw, "first converged\tnever\n")
	}
	fmt.Fprintf(tw, "converged at end\t%t\n", converged)
	fmt.Fprintf(tw, "messages\t%d sent, %d delivered, %d dropped\n", s.Net.Sent, s.Net.Delivered, s.Net.Dropped)
	fmt.Fprintf(tw, "operations\t%d issued, %d skipped\n", w.Issued, w.Skipped)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "OP\tSUCCESS\tFAIL")
	for _, op := range []audit.Op{audit.OpCreate, audit.OpRead, audit.OpUpdate, audit.OpDelete} {
		t := s.Ops[op]
		fmt.Fprintf(tw, "%s\t%d\t%d\n", op, t.Success, t.Fail)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "NODE\tMEMBERS\tKEYS")
	for _, name := range s.NodeNames() {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", name, s.Members[name], s.Keys[name])
	}
}
