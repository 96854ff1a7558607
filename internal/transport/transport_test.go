package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"ringkv/internal/address"
)

type inbox struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (i *inbox) Deliver(p []byte) {
	i.mu.Lock()
	i.msgs = append(i.msgs, p)
	i.mu.Unlock()
}

func (i *inbox) snapshot() [][]byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([][]byte(nil), i.msgs...)
}

func startServer(t *testing.T, recv Receiver) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, err := NewServer("bufnet", recv, nil)
	require.NoError(t, err)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func bufDialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestClientServer_Deliver(t *testing.T) {
	box := &inbox{}
	lis := startServer(t, box)

	client := NewClient(func(address.Address) string { return "passthrough:///bufnet" }, 0, nil, bufDialer(lis))
	defer client.Close()

	to := address.New(2, 7002)
	for _, p := range []string{"one", "two", "three"} {
		require.NoError(t, client.Send(address.New(1, 7001), to, []byte(p)))
	}

	require.Eventually(t, func() bool { return len(box.snapshot()) == 3 }, 5*time.Second, 10*time.Millisecond)

	// One queue per peer keeps order
	got := box.snapshot()
	assert.Equal(t, "one", string(got[0]))
	assert.Equal(t, "three", string(got[2]))
}

func TestClient_RedialsWhenTargetChanges(t *testing.T) {
	oldBox, newBox := &inbox{}, &inbox{}
	listeners := map[string]*bufconn.Listener{
		"old": startServer(t, oldBox),
		"new": startServer(t, newBox),
	}
	dialer := grpc.WithContextDialer(func(ctx context.Context, target string) (net.Conn, error) {
		return listeners[target].DialContext(ctx)
	})

	var mu sync.Mutex
	target := "old"
	resolve := func(address.Address) string {
		mu.Lock()
		defer mu.Unlock()
		return "passthrough:///" + target
	}

	client := NewClient(resolve, 0, nil, dialer)
	defer client.Close()

	from, to := address.New(1, 7001), address.New(2, 7002)
	require.NoError(t, client.Send(from, to, []byte("before")))
	require.Eventually(t, func() bool { return len(oldBox.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	target = "new"
	mu.Unlock()

	require.NoError(t, client.Send(from, to, []byte("after")))
	require.Eventually(t, func() bool { return len(newBox.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "before", string(oldBox.snapshot()[0]))
	assert.Equal(t, "after", string(newBox.snapshot()[0]))
	assert.Len(t, oldBox.snapshot(), 1)
}

func TestServer_Health(t *testing.T) {
	lis := startServer(t, &inbox{})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()), bufDialer(lis))
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClient_SendAfterClose(t *testing.T) {
	client := NewClient(HostResolver("127.0.0.1"), 1, nil)
	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Send(address.New(1, 0), address.New(2, 7002), []byte("x")), ErrClosed)
	assert.NoError(t, client.Close())
}

func TestNewServer_RequiresReceiver(t *testing.T) {
	_, err := NewServer(":0", nil, nil)
	assert.Error(t, err)
}

func TestHostResolver(t *testing.T) {
	assert.Equal(t, "10.0.0.5:7003", HostResolver("10.0.0.5")(address.New(3, 7003)))
}
