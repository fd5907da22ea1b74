package data

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultCacheTTL = time.Hour

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory TTL cache keyed by content hash. Concurrent Do calls
// for the same key share one computation.
//
// A nil *Cache is valid and caches nothing.
type Cache[V any] struct {
	mu    sync.RWMutex
	store map[string]cacheEntry[V]
	ttl   time.Duration
	group singleflight.Group

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCache returns a cache whose entries live for ttl (DefaultCacheTTL when
// ttl <= 0). Call Close to stop the background sweep.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache[V]{
		store: make(map[string]cacheEntry[V]),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go c.cleanup(sweepInterval(ttl))
	return c
}

// CacheFromEnv builds a cache unless SUMMARY_CACHE is "false".
// SUMMARY_CACHE_TTL overrides the TTL with a Go duration string.
func CacheFromEnv[V any]() *Cache[V] {
	if os.Getenv("SUMMARY_CACHE") == "false" {
		return nil
	}
	ttl := DefaultCacheTTL
	if s := os.Getenv("SUMMARY_CACHE_TTL"); s != "" {
		if parsed, err := time.ParseDuration(s); err == nil {
			ttl = parsed
		}
	}
	return NewCache[V](ttl)
}

// Get returns a cached value if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.store[key]
	if !ok || time.Now().After(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Set(key string, v V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = cacheEntry[V]{value: v, expiresAt: time.Now().Add(c.ttl)}
}

// Do returns the cached value for key or computes, stores and returns it.
// hit is true only when the value came from the cache. Errors are not cached.
func (c *Cache[V]) Do(key string, fn func() (V, error)) (v V, hit bool, err error) {
	if c == nil {
		v, err = fn()
		return v, false, err
	}
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	res, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]cacheEntry[V])
}

// Close stops the background sweep. The cache stays usable.
func (c *Cache[V]) Close() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

func (c *Cache[V]) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.store {
		if now.After(e.expiresAt) {
			delete(c.store, key)
		}
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl < 5*time.Minute {
		return ttl
	}
	return 5 * time.Minute
}

// Key hashes the given parts into a cache key. Parts are length-prefixed so
// that ("ab","c") and ("a","bc") differ.
func Key(parts ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
