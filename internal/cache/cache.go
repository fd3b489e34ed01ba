// Package cache implements the candle cache of §4.3: an in-memory,
// TTL + LRU + byte-budget store guarded by a single mutex, with a
// background janitor.
package cache

import (
	"container/list"
	"sync"
	"time"

	"spartan-core/internal/candle"
	"spartan-core/internal/metrics"
)

// entry wraps a candle.Series with the bookkeeping described in §3.
type entry struct {
	key          string
	series       candle.Series
	createdAt    time.Time
	expiresAt    time.Time
	accessCount  int64
	lastAccessed time.Time
	sizeBytes    int64
	elem         *list.Element // position in the LRU list
}

func (e *entry) isExpired(now time.Time) bool { return now.After(e.expiresAt) }

func (e *entry) isStale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(e.createdAt) > maxAge
}

// estimateSize approximates the resident size of a cached series: a fixed
// per-candle cost plus a small fixed overhead, avoiding a reflection-based
// or serialize-then-measure approach.
func estimateSize(s candle.Series) int64 {
	const perCandleBytes = 96
	const overheadBytes = 128
	return int64(len(s.Candles))*perCandleBytes + overheadBytes
}

// Stats reports read-only cache statistics (§4.3).
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	Bytes     int64
}

// Cache is the thread-safe candle cache.
type Cache struct {
	mu            sync.Mutex
	items         map[string]*entry
	order         *list.List // front = LRU, back = MRU
	maxBytes      int64
	defaultTTL    time.Duration
	totalBytes    int64
	hits, misses  int64
	evictions     int64
	metrics       *metrics.Collector

	stopJanitor chan struct{}
	janitorOnce sync.Once
}

// New constructs a Cache bounded to maxSizeMB megabytes, with the given
// default TTL, and starts its background janitor.
func New(maxSizeMB int, defaultTTL time.Duration, m *metrics.Collector) *Cache {
	if m == nil {
		m = metrics.NewNoop()
	}
	c := &Cache{
		items:       make(map[string]*entry),
		order:       list.New(),
		maxBytes:    int64(maxSizeMB) * 1024 * 1024,
		defaultTTL:  defaultTTL,
		metrics:     m,
		stopJanitor: make(chan struct{}),
	}
	go c.runJanitor(60 * time.Second)
	return c
}

// Close stops the background janitor. Safe to call more than once.
func (c *Cache) Close() {
	c.janitorOnce.Do(func() { close(c.stopJanitor) })
}

func (c *Cache) runJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopJanitor:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, e := range c.items {
		if e.isExpired(now) {
			c.removeLocked(key)
		}
	}
}

// Get looks up a request's series. It misses when the key is absent, the
// entry has expired, the request forces a refresh, or the entry is older
// than the request's cache-staleness budget. On hit it moves the key to
// the MRU end and returns the cached series (callers must not mutate it).
func (c *Cache) Get(req candle.Request) (candle.Series, bool) {
	if req.ForceRefresh {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		c.metrics.RecordCacheMiss()
		return candle.Series{}, false
	}

	key := req.Key()
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		c.metrics.RecordCacheMiss()
		return candle.Series{}, false
	}
	if e.isExpired(now) {
		c.removeLocked(key)
		c.misses++
		c.metrics.RecordCacheMiss()
		return candle.Series{}, false
	}
	if req.CacheStaleness > 0 && e.isStale(now, req.CacheStaleness) {
		c.misses++
		c.metrics.RecordCacheMiss()
		return candle.Series{}, false
	}

	e.accessCount++
	e.lastAccessed = now
	c.order.MoveToBack(e.elem)
	c.hits++
	c.metrics.RecordCacheHit()
	return e.series, true
}

// Put stores series under req's key, replacing any prior entry, evicting
// LRU entries first if needed to keep the resident set within budget.
func (c *Cache) Put(req candle.Request, series candle.Series, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	key := req.Key()
	size := estimateSize(series)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.items[key]; ok {
		c.removeLocked(old.key)
	}

	c.evictUntilFits(size)

	e := &entry{
		key:          key,
		series:       series,
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
		sizeBytes:    size,
	}
	e.elem = c.order.PushBack(key)
	c.items[key] = e
	c.totalBytes += size
}

// evictUntilFits evicts LRU entries until adding `incoming` bytes would
// keep the resident set at or below 80% of the budget. Caller holds mu.
func (c *Cache) evictUntilFits(incoming int64) {
	if c.maxBytes <= 0 {
		return
	}
	threshold := (c.maxBytes * 80) / 100
	for c.totalBytes+incoming > threshold && c.order.Len() > 0 {
		front := c.order.Front()
		key := front.Value.(string)
		c.removeLocked(key)
		c.evictions++
		c.metrics.RecordCacheEviction()
	}
}

// removeLocked deletes key from both the map and the LRU list. Caller
// holds mu.
func (c *Cache) removeLocked(key string) {
	e, ok := c.items[key]
	if !ok {
		return
	}
	c.order.Remove(e.elem)
	delete(c.items, key)
	c.totalBytes -= e.sizeBytes
}

// Invalidate drops every cached entry for a symbol, optionally scoped to
// one interval.
func (c *Cache) Invalidate(symbol string, interval string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.items {
		if e.series.Symbol != symbol {
			continue
		}
		if interval != "" && e.series.Interval != interval {
			continue
		}
		c.removeLocked(key)
	}
}

// Stats returns a snapshot of the cache's statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.items),
		Bytes:     c.totalBytes,
	}
}
