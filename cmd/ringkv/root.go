package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ringkv/internal/logging"
)

var (
	logLevel string
	devLog   bool
)

var rootCmd = &cobra.Command{
	Use:   "ringkv",
	Short: "Gossip membership and a quorum-replicated key-value ring",
	Long: `ringkv runs nodes that agree on group membership by gossip, place keys
on a consistent-hash ring with three replicas each, and answer client
operations once two of the three replicas agree.

Use "simulate" to run a whole cluster over an emulated network, or "serve"
to run a single node over gRPC.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev", false, "Human-readable console logs")
}

func newLogger() (*zap.Logger, error) {
	return logging.New(logLevel, devLog)
}
