package dht

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kutluhann/xordht/id_tools"
	"github.com/kutluhann/xordht/metrics"
)

func startMachine(t *testing.T, cb ClientCallbacks) *Machine {
	t.Helper()
	cfg := DefaultMachineConfig()
	cfg.WakeInterval = 20 * time.Millisecond
	cfg.RequestTimeout = 200 * time.Millisecond
	cfg.LookupTimeout = 2 * time.Second

	m, err := NewMachine(cfg, zaptest.NewLogger(t), metrics.New())
	require.NoError(t, err)
	if cb != nil {
		m.SetClientCallbacks(cb)
	}
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func contactCount(t *testing.T, m *Machine) int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := m.Status(ctx)
	require.NoError(t, err)
	return st.Contacts
}

func TestMachineBindFailure(t *testing.T) {
	first := startMachine(t, nil)

	cfg := DefaultMachineConfig()
	cfg.ListenAddr = first.Addr().String()
	_, err := NewMachine(cfg, zaptest.NewLogger(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind")
}

func TestMachineBootstrap(t *testing.T) {
	a := startMachine(t, nil)
	b := startMachine(t, nil)

	require.NoError(t, b.Bootstrap([]string{a.Addr().String()}, 0))

	assert.Eventually(t, func() bool {
		return contactCount(t, a) == 1 && contactCount(t, b) == 1
	}, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID().String(), st.ID)
	assert.Equal(t, a.Addr().String(), st.Address)
	require.Len(t, st.Buckets, 1)
	assert.Equal(t, b.ID(), st.Buckets[0].Contacts[0].ID)
}

func TestMachineBootstrapRejectsBadPeer(t *testing.T) {
	a := startMachine(t, nil)
	assert.Error(t, a.Bootstrap([]string{"not-an-address"}, 0))
}

func TestMachineSetThenGetAcrossNodes(t *testing.T) {
	a := startMachine(t, nil)
	b := startMachine(t, nil)
	reader := newCallbackRecorder()
	c := startMachine(t, reader)

	require.NoError(t, b.Bootstrap([]string{a.Addr().String()}, 50*time.Millisecond))
	require.NoError(t, c.Bootstrap([]string{a.Addr().String()}, 50*time.Millisecond))

	require.Eventually(t, func() bool {
		return contactCount(t, a) == 2
	}, 3*time.Second, 20*time.Millisecond)

	key := id_tools.HashKey([]byte("greeting"))
	require.NoError(t, b.Set(key, []byte("hello")))

	assert.Eventually(t, func() bool {
		if _, ok := reader.value(key); ok {
			return true
		}
		c.Get(key)
		return false
	}, 5*time.Second, 100*time.Millisecond)

	value, _ := reader.value(key)
	assert.Equal(t, []byte("hello"), value)
}

func TestMachineGetUnknownKey(t *testing.T) {
	a := startMachine(t, nil)
	reader := newCallbackRecorder()
	b := startMachine(t, reader)
	require.NoError(t, b.Bootstrap([]string{a.Addr().String()}, 0))

	require.Eventually(t, func() bool {
		return contactCount(t, b) == 1
	}, 3*time.Second, 20*time.Millisecond)

	key := id_tools.HashKey([]byte("missing"))
	b.Get(key)

	assert.Eventually(t, func() bool {
		return reader.missing(key)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestMachineRejectsOversizedValue(t *testing.T) {
	a := startMachine(t, nil)
	err := a.Set(NodeID{}, make([]byte, 70000))
	assert.ErrorIs(t, err, ErrValueTooLarge)
}

func TestMachineStopIsIdempotent(t *testing.T) {
	a := startMachine(t, nil)
	a.Stop()
	a.Stop()

	_, err := a.Status(context.Background())
	assert.Error(t, err)
}
