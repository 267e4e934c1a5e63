package imaging

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
)

// OutlineCache provides thread-safe caching of outline results.
//
// Outlines are deterministic, so a result can be reused for any request with
// the same input bytes and options. Entries are keyed by a SHA-256 digest of
// both; the cache never holds the input itself.
//
// When the cache is full the oldest entry is evicted first.
//
// Example:
//
//	cache := NewOutlineCache(32)
//	res, err := cache.Extract(data, DefaultOutlineOptions())
type OutlineCache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]*OutlineResult
	order    []string
	hits     uint64
	misses   uint64
}

// NewOutlineCache creates a cache holding up to capacity results.
// A capacity of zero or less disables caching.
func NewOutlineCache(capacity int) *OutlineCache {
	if capacity < 0 {
		capacity = 0
	}
	return &OutlineCache{
		capacity: capacity,
		entries:  make(map[string]*OutlineResult),
	}
}

// Extract returns the cached outline for data and opts, running
// ExtractOutline on a miss. Errors are not cached.
//
// The returned result is shared between callers and must be treated as
// read-only.
func (c *OutlineCache) Extract(data []byte, opts OutlineOptions) (*OutlineResult, error) {
	key := outlineKey(data, opts)

	c.mu.RLock()
	res, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return res, nil
	}

	res, err := ExtractOutline(data, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
	if c.capacity == 0 {
		return res, nil
	}
	if existing, ok := c.entries[key]; ok {
		return existing, nil
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = res
	c.order = append(c.order, key)
	return res, nil
}

// Len returns the number of cached results.
func (c *OutlineCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *OutlineCache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Clear removes all results from the cache.
func (c *OutlineCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*OutlineResult)
	c.order = nil
	c.mu.Unlock()
}

func outlineKey(data []byte, opts OutlineOptions) string {
	h := sha256.New()
	h.Write(data)

	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(opts.MaxDimension))
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(opts.LowThreshold))
	binary.BigEndian.PutUint64(buf[16:24], math.Float64bits(opts.HighThreshold))
	h.Write(buf[:])

	return hex.EncodeToString(h.Sum(nil))
}
