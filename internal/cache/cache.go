// Package cache provides bounded get/set caches behind a small interface
// so the eviction backend stays an implementation detail.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Arena is a bounded key/value cache. Entries beyond the configured
// capacity are evicted; implementations may also expire entries.
type Arena[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Len() int
}

// NewLRU returns a size-bounded cache with no expiry.
func NewLRU[K comparable, V any](size int) Arena[K, V] {
	if size <= 0 {
		size = 128
	}
	// Error is only possible for size <= 0, which is guarded above.
	c, _ := lru.New[K, V](size)
	return &lruArena[K, V]{c: c}
}

// NewExpiring returns a size-bounded cache whose entries expire after ttl.
func NewExpiring[K comparable, V any](size int, ttl time.Duration) Arena[K, V] {
	if size <= 0 {
		size = 128
	}
	return &expiringArena[K, V]{c: expirable.NewLRU[K, V](size, nil, ttl)}
}

type lruArena[K comparable, V any] struct {
	c *lru.Cache[K, V]
}

func (a *lruArena[K, V]) Get(key K) (V, bool) { return a.c.Get(key) }
func (a *lruArena[K, V]) Set(key K, value V)  { a.c.Add(key, value) }
func (a *lruArena[K, V]) Len() int            { return a.c.Len() }

type expiringArena[K comparable, V any] struct {
	c *expirable.LRU[K, V]
}

func (a *expiringArena[K, V]) Get(key K) (V, bool) { return a.c.Get(key) }
func (a *expiringArena[K, V]) Set(key K, value V)  { a.c.Add(key, value) }
func (a *expiringArena[K, V]) Len() int            { return a.c.Len() }
