package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ringkv/internal/address"
	"ringkv/internal/audit"
	"ringkv/internal/config"
	"ringkv/internal/discovery"
	"ringkv/internal/logging"
	"ringkv/internal/node"
	"ringkv/internal/transport"
)

var serveOpts struct {
	id         uint32
	port       uint16
	introducer string
	host       string
	http       string
	tick       time.Duration
	etcd       string

	tFail      int64
	tRemove    int64
	fanout     int
	txnTimeout int64
	hash       string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run one node over gRPC",
	Long: `Run a single node. The node's address is id:port; the gRPC transport
listens on that port and peers are dialed at --host unless etcd knows a
better endpoint.

Examples:
  # Introducer
  ringkv serve --id=1 --port=7001 --http=:8081

  # Second node
  ringkv serve --id=2 --port=7002 --introducer=1:7001 --http=:8082

  # With etcd discovery
  ringkv serve --id=3 --port=7003 --introducer=1:7001 --etcd=http://127.0.0.1:2379`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.Uint32Var(&serveOpts.id, "id", 1, "Node id")
	f.Uint16Var(&serveOpts.port, "port", 7001, "Node port; the gRPC transport listens here")
	f.StringVar(&serveOpts.introducer, "introducer", "1:7001", "Introducer address (id:port)")
	f.StringVar(&serveOpts.host, "host", "127.0.0.1", "Host used to dial peers not found in etcd")
	f.StringVar(&serveOpts.http, "http", ":8080", "HTTP listen address for the client API and metrics")
	f.DurationVar(&serveOpts.tick, "tick", config.DefaultTickInterval, "Protocol tick interval")
	f.StringVar(&serveOpts.etcd, "etcd", "", "Comma-separated etcd endpoints; empty disables discovery")

	f.Int64Var(&serveOpts.tFail, "tfail", config.DefaultTFail, "Ticks before a silent member stops being gossiped")
	f.Int64Var(&serveOpts.tRemove, "tremove", config.DefaultTRemove, "Ticks before a silent member is removed")
	f.IntVar(&serveOpts.fanout, "fanout", config.DefaultFanout, "Gossip targets per tick")
	f.Int64Var(&serveOpts.txnTimeout, "txn-timeout", config.DefaultTxnTimeout, "Ticks before an open transaction fails")
	f.StringVar(&serveOpts.hash, "hash", config.DefaultHash, "Ring hash (fnv, xxhash)")
}

func serveConfig() (config.Config, error) {
	intro, err := address.Parse(serveOpts.introducer)
	if err != nil {
		return config.Config{}, fmt.Errorf("--introducer: %w", err)
	}

	cfg := config.Default(address.New(serveOpts.id, serveOpts.port))
	cfg.Introducer = intro
	cfg.TFail = serveOpts.tFail
	cfg.TRemove = serveOpts.tRemove
	cfg.Fanout = serveOpts.fanout
	cfg.TxnTimeout = serveOpts.txnTimeout
	cfg.Hash = serveOpts.hash

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	base, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = base.Sync() }()

	cfg, err := serveConfig()
	if err != nil {
		return err
	}
	logger := logging.ForNode(base, cfg.Self)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir := discovery.NewDirectory(transport.HostResolver(serveOpts.host))
	client := transport.NewClient(dir.Resolve, transport.DefaultQueueSize, base)
	defer client.Close()

	n, err := node.New(cfg, client, audit.NewZap(base), base)
	if err != nil {
		return err
	}

	srv, err := transport.NewServer(fmt.Sprintf(":%d", cfg.Self.Port()), n, base)
	if err != nil {
		return err
	}
	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start() }()
	defer srv.Stop()

	if serveOpts.etcd != "" {
		cleanup, err := register(ctx, cfg.Self, dir, logger)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	go n.Run(ctx, serveOpts.tick)

	httpSrv := &http.Server{
		Addr:              serveOpts.http,
		Handler:           (&api{node: n}).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("node serving",
		zap.String("http", serveOpts.http),
		zap.Stringer("introducer", cfg.Introducer),
		zap.Duration("tick", serveOpts.tick))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", zap.Error(serr))
	}
	return err
}

// register publishes this node in etcd and keeps dir in sync with the
// registered peers until ctx is done.
func register(ctx context.Context, self address.Address, dir *discovery.Directory, logger *zap.Logger) (func(), error) {
	cli, err := discovery.NewClient(strings.Split(serveOpts.etcd, ","))
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}

	peers, err := discovery.GetPeers(ctx, cli)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("bootstrap peers: %w", err)
	}
	dir.Set(peers)

	endpoint := fmt.Sprintf("%s:%d", serveOpts.host, self.Port())
	leaseID, cancel, err := discovery.RegisterNode(ctx, cli, self, endpoint, discovery.DefaultTTL)
	if err != nil {
		cli.Close()
		return nil, err
	}
	logger.Info("registered with etcd", zap.String("endpoint", endpoint), zap.Int("peers", len(peers)))

	go discovery.WatchPeers(ctx, cli, dir.Set, logger)

	return func() {
		cancel()
		revokeCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		if _, err := cli.Revoke(revokeCtx, leaseID); err != nil {
			logger.Warn("revoke lease", zap.Error(err))
		}
		cli.Close()
	}, nil
}
