// Package cache provides an in-memory response cache with expiry and a
// byte budget.
package cache

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSweepInterval is how often expired entries are dropped.
const DefaultSweepInterval = 5 * time.Second

// Metrics holds cache statistics for observability.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
	Entries   atomic.Int64
	SizeBytes atomic.Int64
}

// Stats is a point-in-time copy of Metrics.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int64 `json:"entries"`
	SizeBytes int64 `json:"size_bytes"`
}

// Entry is one cached response body.
type Entry struct {
	Data        []byte
	SizeBytes   int64
	ExpiresAt   int64 // Unix nanos
	LastAccess  atomic.Int64
	AccessCount atomic.Int64
}

// ResponseCache keeps response bodies keyed by request identity until
// they expire or the byte budget forces them out.
type ResponseCache struct {
	maxBytes int64
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  Metrics

	index     sync.Map // key → *Entry
	evictChan chan struct{}
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) {
		c.now = now
	}
}

// WithLogger sets the logger used for eviction messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ResponseCache) {
		c.logger = logger
	}
}

// New creates a cache holding at most maxBytes whose entries live for ttl.
// A background worker drops expired entries until Close is called.
func New(maxBytes int64, ttl time.Duration, opts ...Option) (*ResponseCache, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("maxBytes must be positive, got %d", maxBytes)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	c := &ResponseCache{
		maxBytes:  maxBytes,
		ttl:       ttl,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		evictChan: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(1)
	go c.evictionWorker()
	return c, nil
}

// Close stops the background worker.
func (c *ResponseCache) Close() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
}

// Get returns the cached body for key. Expired entries count as misses
// and are removed.
func (c *ResponseCache) Get(key string) ([]byte, bool) {
	v, ok := c.index.Load(key)
	if !ok {
		c.metrics.Misses.Add(1)
		return nil, false
	}
	entry := v.(*Entry)
	now := c.now().UnixNano()
	if now >= entry.ExpiresAt {
		c.remove(key, entry)
		c.metrics.Misses.Add(1)
		return nil, false
	}

	c.metrics.Hits.Add(1)
	entry.LastAccess.Store(now)
	entry.AccessCount.Add(1)
	return entry.Data, true
}

// Put stores data under key, replacing any previous entry. Bodies larger
// than the whole budget are rejected.
func (c *ResponseCache) Put(key string, data []byte) error {
	size := int64(len(data))
	if size > c.maxBytes {
		return fmt.Errorf("entry of %d bytes exceeds cache capacity %d", size, c.maxBytes)
	}

	now := c.now()
	entry := &Entry{
		Data:      data,
		SizeBytes: size,
		ExpiresAt: now.Add(c.ttl).UnixNano(),
	}
	entry.LastAccess.Store(now.UnixNano())
	entry.AccessCount.Store(1)

	if old, loaded := c.index.Swap(key, entry); loaded {
		prev := old.(*Entry)
		c.metrics.SizeBytes.Add(-prev.SizeBytes)
		c.metrics.Entries.Add(-1)
	}
	c.metrics.SizeBytes.Add(size)
	c.metrics.Entries.Add(1)

	if c.metrics.SizeBytes.Load() > c.maxBytes {
		select {
		case c.evictChan <- struct{}{}:
		default:
		}
	}
	return nil
}

// Remove deletes key from the cache.
func (c *ResponseCache) Remove(key string) bool {
	v, ok := c.index.Load(key)
	if !ok {
		return false
	}
	return c.remove(key, v.(*Entry))
}

// remove deletes key only while it still maps to entry, so a concurrent
// Put is never undone.
func (c *ResponseCache) remove(key string, entry *Entry) bool {
	if !c.index.CompareAndDelete(key, entry) {
		return false
	}
	c.metrics.SizeBytes.Add(-entry.SizeBytes)
	c.metrics.Entries.Add(-1)
	return true
}

// Clear removes all entries.
func (c *ResponseCache) Clear() {
	c.index.Range(func(key, value interface{}) bool {
		c.remove(key.(string), value.(*Entry))
		return true
	})
}

func (c *ResponseCache) evictionWorker() {
	defer c.wg.Done()

	ticker := time.NewTicker(DefaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-c.evictChan:
			c.Sweep()
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep drops expired entries, then evicts the least used entries until
// the cache is at or below 90% of its budget.
func (c *ResponseCache) Sweep() {
	now := c.now().UnixNano()

	type evictCandidate struct {
		key        string
		entry      *Entry
		accessTime int64
		count      int64
	}
	var candidates []evictCandidate

	c.index.Range(func(key, value interface{}) bool {
		entry := value.(*Entry)
		if now >= entry.ExpiresAt {
			c.remove(key.(string), entry)
			return true
		}
		candidates = append(candidates, evictCandidate{
			key:        key.(string),
			entry:      entry,
			accessTime: entry.LastAccess.Load(),
			count:      entry.AccessCount.Load(),
		})
		return true
	})

	if c.metrics.SizeBytes.Load() <= c.maxBytes {
		return
	}
	targetSize := int64(float64(c.maxBytes) * 0.9)

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count < candidates[j].count
		}
		return candidates[i].accessTime < candidates[j].accessTime
	})

	for _, cand := range candidates {
		if c.metrics.SizeBytes.Load() <= targetSize {
			break
		}
		if c.remove(cand.key, cand.entry) {
			c.metrics.Evictions.Add(1)
			c.logger.Debug("cache entry evicted", "key", cand.key, "freed_bytes", cand.entry.SizeBytes)
		}
	}
}

// Stats returns a snapshot of the cache counters.
func (c *ResponseCache) Stats() Stats {
	return Stats{
		Hits:      c.metrics.Hits.Load(),
		Misses:    c.metrics.Misses.Load(),
		Evictions: c.metrics.Evictions.Load(),
		Entries:   c.metrics.Entries.Load(),
		SizeBytes: c.metrics.SizeBytes.Load(),
	}
}

// HitRate returns the cache hit rate as a percentage.
func (c *ResponseCache) HitRate() float64 {
	hits := c.metrics.Hits.Load()
	total := hits + c.metrics.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Size returns the current cache size in bytes.
func (c *ResponseCache) Size() int64 {
	return c.metrics.SizeBytes.Load()
}

// Count returns the number of entries in the cache.
func (c *ResponseCache) Count() int64 {
	return c.metrics.Entries.Load()
}

// TTL returns the entry lifetime.
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}
