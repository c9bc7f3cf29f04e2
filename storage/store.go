package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/kutluhann/xordht/constants"
	"github.com/kutluhann/xordht/id_tools"
)

// ValueStore is the key/value map served to peers. Put overwrites, so the
// last writer wins.
type ValueStore interface {
	Put(key id_tools.PeerID, value []byte) error
	Get(key id_tools.PeerID) ([]byte, bool)
	Len() int
	Close() error
}

// CacheStore keeps values in memory until they outlive their TTL.
type CacheStore struct {
	cache *bigcache.BigCache
}

// NewCacheStore creates a store whose entries expire ttl after their last
// write. A non-positive ttl falls back to constants.ValueTTL.
func NewCacheStore(ctx context.Context, ttl time.Duration) (*CacheStore, error) {
	if ttl <= 0 {
		ttl = constants.ValueTTL
	}

	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 64
	cfg.MaxEntrySize = 1024
	cfg.Verbose = false
	if ttl < cfg.CleanWindow {
		cfg.CleanWindow = ttl
	}

	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create value cache: %w", err)
	}
	return &CacheStore{cache: cache}, nil
}

func (s *CacheStore) Put(key id_tools.PeerID, value []byte) error {
	return s.cache.Set(string(key[:]), value)
}

func (s *CacheStore) Get(key id_tools.PeerID) ([]byte, bool) {
	value, err := s.cache.Get(string(key[:]))
	if err != nil {
		// Misses surface as bigcache.ErrEntryNotFound.
		return nil, false
	}
	return value, true
}

func (s *CacheStore) Len() int {
	return s.cache.Len()
}

func (s *CacheStore) Close() error {
	return s.cache.Close()
}
