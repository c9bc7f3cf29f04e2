package api

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kutluhann/xordht/dht"
	"github.com/kutluhann/xordht/id_tools"
	"github.com/kutluhann/xordht/metrics"
)

type fakeBackend struct {
	mu   sync.Mutex
	gets []dht.NodeID
	sets map[dht.NodeID][]byte
}

func (b *fakeBackend) Get(key dht.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets = append(b.gets, key)
}

func (b *fakeBackend) Set(key dht.NodeID, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sets == nil {
		b.sets = make(map[dht.NodeID][]byte)
	}
	b.sets[key] = value
	return nil
}

func (b *fakeBackend) getCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.gets)
}

func (b *fakeBackend) stored(key dht.NodeID) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.sets[key]
	return v, ok
}

func startClientServer(t *testing.T, backend Backend, rateLimit float64, burst int) *ClientServer {
	t.Helper()
	s, err := NewClientServer(ClientServerConfig{
		ListenAddr: "127.0.0.1:0",
		RateLimit:  rateLimit,
		Burst:      burst,
	}, backend, zaptest.NewLogger(t), metrics.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Serve(ctx)
	t.Cleanup(cancel)
	return s
}

func dialServer(t *testing.T, s *ClientServer) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResponse(t *testing.T, conn *net.UDPConn) Response {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	resp, err := DecodeResponse(buf[:n])
	require.NoError(t, err)
	return resp
}

func TestClientServerResolvesAllPendingRequesters(t *testing.T) {
	backend := &fakeBackend{}
	s := startClientServer(t, backend, 100, 100)

	first := dialServer(t, s)
	second := dialServer(t, s)
	_, err := first.Write(EncodeGet([]byte("color")))
	require.NoError(t, err)
	_, err = second.Write(EncodeGet([]byte("color")))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return backend.getCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	key := id_tools.HashKey([]byte("color"))
	s.Resolve(key, []byte("blue"))

	for _, conn := range []*net.UDPConn{first, second} {
		resp := readResponse(t, conn)
		assert.True(t, resp.Found())
		assert.Equal(t, key, resp.Key)
		assert.Equal(t, []byte("blue"), resp.Value)
	}

	assert.Empty(t, s.takePending(key), "pending requesters are cleared once answered")
}

func TestClientServerNotFound(t *testing.T) {
	backend := &fakeBackend{}
	s := startClientServer(t, backend, 100, 100)
	conn := dialServer(t, s)

	_, err := conn.Write(EncodeGet([]byte("absent")))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return backend.getCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.NotFound(id_tools.HashKey([]byte("absent")))
	resp := readResponse(t, conn)
	assert.False(t, resp.Found())
}

func TestClientServerForwardsSet(t *testing.T) {
	backend := &fakeBackend{}
	s := startClientServer(t, backend, 100, 100)
	conn := dialServer(t, s)

	_, err := conn.Write(EncodeSet([]byte("k"), []byte("v")))
	require.NoError(t, err)

	key := id_tools.HashKey([]byte("k"))
	assert.Eventually(t, func() bool {
		v, ok := backend.stored(key)
		return ok && string(v) == "v"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientServerRateLimit(t *testing.T) {
	backend := &fakeBackend{}
	s := startClientServer(t, backend, 0.001, 2)

	for i := 0; i < 5; i++ {
		s.handle(EncodeGet([]byte("k")), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1000 + i})
	}
	assert.Equal(t, 2, backend.getCount())

	s.handle(EncodeGet([]byte("k")), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 1000})
	assert.Equal(t, 3, backend.getCount(), "limits are per source")
}

func TestClientRoundTrip(t *testing.T) {
	backend := &fakeBackend{}
	s := startClientServer(t, backend, 100, 100)

	client, err := NewClient(s.Addr().String())
	require.NoError(t, err)

	go func() {
		key := id_tools.HashKey([]byte("k"))
		for i := 0; i < 100 && backend.getCount() == 0; i++ {
			time.Sleep(10 * time.Millisecond)
		}
		s.Resolve(key, []byte("v"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := client.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, resp.Found())
	assert.Equal(t, []byte("v"), resp.Value)
}
