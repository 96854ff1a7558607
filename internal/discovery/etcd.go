// Package discovery publishes node endpoints in etcd. Protocol addresses
// are "id:port" pairs; etcd maps each one to the host:port its transport
// listens on, so nodes on different hosts can find each other.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"ringkv/internal/address"
)

// Prefix is the etcd key prefix for node registrations.
const Prefix = "/ringkv/nodes/"

// DefaultTTL is the lease TTL in seconds for a registration.
const DefaultTTL = 10

// ErrNotNodeKey is returned for keys outside the node prefix.
var ErrNotNodeKey = errors.New("not a node key")

// NewClient connects to the etcd cluster at endpoints.
func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// NodeKey returns the registration key for a.
func NodeKey(a address.Address) string {
	return Prefix + a.String()
}

// ParseNodeKey is the inverse of NodeKey.
func ParseNodeKey(key string) (address.Address, error) {
	rest, ok := strings.CutPrefix(key, Prefix)
	if !ok {
		return address.Address{}, fmt.Errorf("%w: %q", ErrNotNodeKey, key)
	}
	return address.Parse(rest)
}

// RegisterNode writes a's endpoint under a lease and keeps the lease alive
// until the returned cancel func is called.
func RegisterNode(ctx context.Context, cli *clientv3.Client, a address.Address, endpoint string, ttl int64) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, nil, fmt.Errorf("grant lease: %w", err)
	}
	if _, err := cli.Put(ctx, NodeKey(a), endpoint, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, fmt.Errorf("put %s: %w", NodeKey(a), err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()

	return lease.ID, cancel, nil
}

// GetPeers returns every registered node endpoint.
func GetPeers(ctx context.Context, cli *clientv3.Client) (map[address.Address]string, error) {
	resp, err := cli.Get(ctx, Prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	return decodePeers(resp.Kvs), nil
}

// WatchPeers calls fn with the full peer set after every change under
// Prefix. It returns when ctx is done.
func WatchPeers(ctx context.Context, cli *clientv3.Client, fn func(map[address.Address]string), logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for wresp := range cli.Watch(ctx, Prefix, clientv3.WithPrefix()) {
		if err := wresp.Err(); err != nil {
			logger.Warn("peer watch error", zap.Error(err))
			continue
		}
		peers, err := GetPeers(ctx, cli)
		if err != nil {
			logger.Warn("refresh peers", zap.Error(err))
			continue
		}
		fn(peers)
	}
}

func decodePeers(kvs []*mvccpb.KeyValue) map[address.Address]string {
	peers := make(map[address.Address]string, len(kvs))
	for _, kv := range kvs {
		a, err := ParseNodeKey(string(kv.Key))
		if err != nil {
			continue
		}
		peers[a] = string(kv.Value)
	}
	return peers
}

// Directory resolves node addresses to dial targets from the last known
// peer set, falling back to a static resolver for unknown nodes.
type Directory struct {
	mu        sync.RWMutex
	endpoints map[address.Address]string
	fallback  func(address.Address) string
}

// NewDirectory creates an empty directory.
func NewDirectory(fallback func(address.Address) string) *Directory {
	return &Directory{
		endpoints: make(map[address.Address]string),
		fallback:  fallback,
	}
}

// Set replaces the known peer set.
func (d *Directory) Set(peers map[address.Address]string) {
	m := make(map[address.Address]string, len(peers))
	for a, ep := range peers {
		m[a] = ep
	}
	d.mu.Lock()
	d.endpoints = m
	d.mu.Unlock()
}

// Resolve returns the dial target for a.
func (d *Directory) Resolve(a address.Address) string {
	d.mu.RLock()
	ep, ok := d.endpoints[a]
	d.mu.RUnlock()
	if ok {
		return ep
	}
	if d.fallback != nil {
		return d.fallback(a)
	}
	return ""
}

// Len returns the number of known peers.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.endpoints)
}
