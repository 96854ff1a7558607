package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ringkv/internal/address"
	"ringkv/internal/telemetry"
)

const (
	// DefaultQueueSize bounds the per-peer outbound queue.
	DefaultQueueSize = 256
	// Per-call deadline for Deliver.
	sendTimeout = 2 * time.Second
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Resolver maps a node address to a gRPC dial target.
type Resolver func(address.Address) string

// HostResolver dials every node on host at the node's port.
func HostResolver(host string) Resolver {
	return func(a address.Address) string {
		return fmt.Sprintf("%s:%d", host, a.Port())
	}
}

type peer struct {
	target string
	conn   *grpc.ClientConn
	queue  chan []byte
}

// Client sends payloads to peers, one connection and queue per peer.
type Client struct {
	mu     sync.Mutex
	peers  map[address.Address]*peer
	closed bool
	wg     sync.WaitGroup

	resolve   Resolver
	queueSize int
	dialOpts  []grpc.DialOption
	log       *zap.Logger
}

// NewClient creates a client. Extra dial options are appended to the
// insecure transport credentials.
func NewClient(resolve Resolver, queueSize int, logger *zap.Logger, opts ...grpc.DialOption) *Client {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	return &Client{
		peers:     make(map[address.Address]*peer),
		resolve:   resolve,
		queueSize: queueSize,
		dialOpts:  dialOpts,
		log:       logger.Named("transport"),
	}
}

// Send queues payload for to. A full queue drops the payload.
func (c *Client) Send(_, to address.Address, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	p, err := c.peerLocked(to)
	if err != nil {
		return err
	}

	select {
	case p.queue <- payload:
	default:
		telemetry.MessagesDropped.WithLabelValues("queue_full").Inc()
		c.log.Debug("outbound queue full, dropping", zap.Stringer("peer", to))
	}
	return nil
}

// peerLocked returns the peer for to, dialing it on first use. A peer whose
// resolved target changed is retired: its queue drains to the old target
// and a new connection is dialed. Callers hold c.mu.
func (c *Client) peerLocked(to address.Address) (*peer, error) {
	target := c.resolve(to)
	if p, exists := c.peers[to]; exists {
		if p.target == target {
			return p, nil
		}
		c.log.Info("peer moved, redialing", zap.Stringer("peer", to),
			zap.String("from", p.target), zap.String("to", target))
		delete(c.peers, to)
		close(p.queue)
	}

	conn, err := grpc.NewClient(target, c.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", target, err)
	}

	p := &peer{target: target, conn: conn, queue: make(chan []byte, c.queueSize)}
	c.peers[to] = p

	c.wg.Add(1)
	go c.drain(to, p)
	return p, nil
}

func (c *Client) drain(to address.Address, p *peer) {
	defer c.wg.Done()

	for payload := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := p.conn.Invoke(ctx, deliverFullMethod, &wrapperspb.BytesValue{Value: payload}, &emptypb.Empty{})
		cancel()
		if err != nil {
			telemetry.MessagesDropped.WithLabelValues("transport").Inc()
			c.log.Debug("deliver failed", zap.Stringer("peer", to), zap.Error(err))
		}
	}

	if err := p.conn.Close(); err != nil {
		c.log.Debug("close connection", zap.Stringer("peer", to), zap.String("target", p.target), zap.Error(err))
	}
}

// Close stops all peer goroutines after their queues drain. Each goroutine
// closes its own connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, p := range c.peers {
		close(p.queue)
	}
	c.peers = nil
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}
