package storage

import (
	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoStorage keeps encoded variants in memory in front of the disk cache.
type RistrettoStorage struct {
	cache *ristretto.Cache[string, []byte]
}

type Options struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// NewRistrettoStorage creates the cache. Zero options fall back to defaults
// sized for a few hundred megabytes of thumbnails.
func NewRistrettoStorage(opts Options) (*RistrettoStorage, error) {
	cfg := &ristretto.Config[string, []byte]{
		NumCounters: 1e6,       // number of keys to track frequency of (1M).
		MaxCost:     256 << 20, // maximum cost of cache (256MB).
		BufferItems: 64,        // number of keys per Get buffer.
	}

	if opts.NumCounters > 0 {
		cfg.NumCounters = opts.NumCounters
	}

	if opts.MaxCost > 0 {
		cfg.MaxCost = opts.MaxCost
	}

	if opts.BufferItems > 0 {
		cfg.BufferItems = opts.BufferItems
	}

	cache, err := ristretto.NewCache(cfg)
	if err != nil {
		return nil, err
	}
	return &RistrettoStorage{cache: cache}, nil
}

// Get retrieves data from cache, nil when absent
func (r *RistrettoStorage) Get(key string) []byte {
	if value, found := r.cache.Get(key); found {
		return value
	}
	return nil
}

// Set stores data in cache weighted by its size. Entries carry no TTL.
func (r *RistrettoStorage) Set(key string, val []byte) bool {
	return r.cache.Set(key, val, int64(len(val)))
}

// Wait blocks until pending sets are applied
func (r *RistrettoStorage) Wait() {
	r.cache.Wait()
}

// Close releases the cache's goroutines
func (r *RistrettoStorage) Close() error {
	r.cache.Close()
	return nil
}
