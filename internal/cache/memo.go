package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mir00r/telemetry-demo/internal/domain"
	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

const (
	// DefaultCapacity is the entry bound used when none is configured
	DefaultCapacity = 1000
	// DefaultTTL is the entry lifetime used when none is configured
	DefaultTTL = 5 * time.Minute
)

// ComputeFunc produces the value for a missing key
type ComputeFunc func(ctx context.Context) (string, error)

// Entry is one memoized computation result
type Entry struct {
	Key       string
	Value     string
	CreatedAt time.Time
}

// Stats is a point-in-time snapshot of cache counters
type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Computations int64 `json:"computations"`
	Failures     int64 `json:"failures"`
	Evictions    int64 `json:"evictions"`
	Expirations  int64 `json:"expirations"`
	Size         int   `json:"size"`
	Capacity     int   `json:"capacity"`
}

// MemoCache is a bounded, time-expiring, single-flight string cache.
//
// The map and recency list are guarded by one mutex that is only held for
// O(1) bookkeeping; computations always run outside it. Concurrent misses on
// one key are coalesced by a singleflight.Group, so readers of other keys never
// wait on a computation they did not ask for.
type MemoCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List // front is most recently used

	flights singleflight.Group
	now     func() time.Time
	logger  *logger.Logger

	hits         atomic.Int64
	misses       atomic.Int64
	computations atomic.Int64
	failures     atomic.Int64
	evictions    atomic.Int64
	expirations  atomic.Int64
}

// Option customises a MemoCache
type Option func(*MemoCache)

// WithClock replaces the wall clock used for entry ages
func WithClock(now func() time.Time) Option {
	return func(c *MemoCache) {
		c.now = now
	}
}

// WithLogger attaches a logger for eviction and failure events
func WithLogger(log *logger.Logger) Option {
	return func(c *MemoCache) {
		c.logger = log.CacheLogger()
	}
}

// New creates a cache bounded by cfg. A non-positive capacity falls back to
// DefaultCapacity; a non-positive TTL disables expiry.
func New(cfg domain.CacheConfig, opts ...Option) *MemoCache {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	c := &MemoCache{
		capacity: capacity,
		ttl:      cfg.TTL,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key, computing it when absent or expired.
//
// Among all callers that miss on the same key at the same time exactly one
// runs compute; the rest wait for it and receive the same value or the same
// error. A failed computation is not cached, so the next Get retries. A caller
// whose ctx ends stops waiting, but the computation itself keeps running for
// the benefit of the other waiters.
func (c *MemoCache) Get(ctx context.Context, key string, compute ComputeFunc) (string, error) {
	if value, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return value, nil
	}
	c.misses.Add(1)

	computeCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (interface{}, error) {
		// a previous flight may have published between our lookup and now
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		return c.run(computeCtx, key, compute)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *MemoCache) run(ctx context.Context, key string, compute ComputeFunc) (value interface{}, err error) {
	c.computations.Add(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compute panicked: %v", r)
		}
		if err != nil {
			c.failures.Add(1)
			err = apperrors.NewComputeError(key, err)
			if c.logger != nil {
				c.logger.WithField("key", key).WithError(err).Warn("Cache computation failed")
			}
		}
	}()

	result, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	c.store(key, result)
	return result, nil
}

// lookup returns an unexpired value and marks it most recently used
func (c *MemoCache) lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return "", false
	}

	entry := elem.Value.(*Entry)
	if c.expired(entry) {
		c.order.Remove(elem)
		delete(c.items, key)
		c.expirations.Add(1)
		return "", false
	}

	c.order.MoveToFront(elem)
	return entry.Value, true
}

func (c *MemoCache) store(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*Entry)
		entry.Value = value
		entry.CreatedAt = now
		c.order.MoveToFront(elem)
		return
	}

	for len(c.items) >= c.capacity {
		c.evictOldest()
	}

	c.items[key] = c.order.PushFront(&Entry{Key: key, Value: value, CreatedAt: now})
}

// evictOldest drops the least recently used entry; callers hold c.mu
func (c *MemoCache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}

	entry := elem.Value.(*Entry)
	c.order.Remove(elem)
	delete(c.items, entry.Key)
	c.evictions.Add(1)

	if c.logger != nil {
		c.logger.WithField("key", entry.Key).Debug("Evicted least recently used entry")
	}
}

func (c *MemoCache) expired(entry *Entry) bool {
	if c.ttl <= 0 {
		return false
	}
	return !c.now().Before(entry.CreatedAt.Add(c.ttl))
}

// Peek returns an unexpired entry without touching recency or counters
func (c *MemoCache) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	entry := elem.Value.(*Entry)
	if c.expired(entry) {
		return Entry{}, false
	}
	return *entry, true
}

// Keys returns the stored keys from most to least recently used
func (c *MemoCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*Entry).Key)
	}
	return keys
}

// Len returns the number of stored entries, expired ones included until touched
func (c *MemoCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge drops every entry. In-flight computations still publish their result.
func (c *MemoCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	return n
}

// Capacity returns the entry bound
func (c *MemoCache) Capacity() int {
	return c.capacity
}

// TTL returns the configured entry lifetime
func (c *MemoCache) TTL() time.Duration {
	return c.ttl
}

// Stats returns a snapshot of the cache counters
func (c *MemoCache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
		Failures:     c.failures.Load(),
		Evictions:    c.evictions.Load(),
		Expirations:  c.expirations.Load(),
		Size:         c.Len(),
		Capacity:     c.capacity,
	}
}
