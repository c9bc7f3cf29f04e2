package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kutluhann/xordht/id_tools"
)

func newTestStore(t *testing.T) *CacheStore {
	t.Helper()
	s, err := NewCacheStore(context.Background(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCacheStorePutGet(t *testing.T) {
	s := newTestStore(t)
	key := id_tools.PeerID{10, 10, 10}

	_, ok := s.Get(key)
	assert.False(t, ok)

	require.NoError(t, s.Put(key, []byte{1, 2, 3}))
	value, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, value)
	assert.Equal(t, 1, s.Len())
}

func TestCacheStoreLastWriterWins(t *testing.T) {
	s := newTestStore(t)
	key := id_tools.HashKey([]byte("k"))

	require.NoError(t, s.Put(key, []byte("first")))
	require.NoError(t, s.Put(key, []byte("second")))

	value, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), value)
}

func TestCacheStoreExactKey(t *testing.T) {
	s := newTestStore(t)
	a := id_tools.PeerID{1}
	b := id_tools.PeerID{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}

	require.NoError(t, s.Put(a, []byte("a")))
	_, ok := s.Get(b)
	assert.False(t, ok)
}
