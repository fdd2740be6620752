// Package memory implements an in-process cache.
package memory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tarancss/safesave/lib/cache"
)

// DefaultSize is the number of entries kept when New is given no size.
const DefaultSize = 4096

type entry struct {
	val []byte
	exp time.Time
}

// Memory is an expirable LRU of entries. Entries leave it when the cache is full, when the cache ttl has elapsed
// since they were set, or on read once their own shorter ttl has passed.
type Memory struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

// New returns an empty cache holding up to size entries for at most ttl. A ttl of zero keeps entries until they are
// evicted or deleted.
func New(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = DefaultSize
	}

	return &Memory{lru: expirable.NewLRU[string, entry](size, nil, ttl), now: time.Now}
}

// Get returns a copy of the value stored under key or cache.ErrMiss.
func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, cache.ErrMiss
	}

	if !e.exp.IsZero() && !c.now().Before(e.exp) {
		c.lru.Remove(key)

		return nil, cache.ErrMiss
	}

	return append([]byte(nil), e.val...), nil
}

// Set stores val under key. A ttl of zero lasts as long as the cache ttl.
func (c *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = c.now().Add(ttl)
	}

	c.lru.Add(key, e)

	return nil
}

// Del removes keys.
func (c *Memory) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.lru.Remove(k)
	}

	return nil
}

// Close empties the cache.
func (c *Memory) Close() error {
	c.lru.Purge()

	return nil
}
