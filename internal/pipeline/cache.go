package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/storm-data-radar/internal/domain"
	"github.com/couchcryptid/storm-data-radar/internal/observability"
)

// VolumeVersioner reports a token that changes whenever the volume stored
// at path is rewritten.
type VolumeVersioner interface {
	Version(ctx context.Context, path string) (string, error)
}

// CachedSummarizer wraps a Summarizer with an in-memory LRU cache keyed by
// the volume identity in the notice and the stored volume's version.
// Concurrent misses on the same volume share one underlying summarize call.
type CachedSummarizer struct {
	inner    Summarizer
	versions VolumeVersioner
	cache    *lruCache[string, domain.VolumeSummary]
	group    singleflight.Group
	metrics  *observability.Metrics
}

// NewCachedSummarizer creates a cache decorator around a summarizer. With a
// nil versioner entries never go stale.
func NewCachedSummarizer(inner Summarizer, versions VolumeVersioner, maxEntries int, metrics *observability.Metrics) *CachedSummarizer {
	return &CachedSummarizer{
		inner:    inner,
		versions: versions,
		cache:    newLRUCache[string, domain.VolumeSummary](maxEntries),
		metrics:  metrics,
	}
}

func (c *CachedSummarizer) Summarize(ctx context.Context, n domain.VolumeNotice) (domain.VolumeSummary, error) {
	key, cacheable := c.key(ctx, n)
	if !cacheable {
		// The inner summarizer reports why the volume cannot be read.
		c.metrics.SummaryCacheLookup(false)
		return c.inner.Summarize(ctx, n)
	}
	if s, ok := c.cache.get(key); ok {
		c.metrics.SummaryCacheLookup(true)
		return restamp(s, n), nil
	}
	c.metrics.SummaryCacheLookup(false)

	v, err, shared := c.group.Do(key, func() (any, error) {
		s, err := c.inner.Summarize(ctx, n)
		if err != nil {
			return nil, err
		}
		// Failures are not cached so a volume still being copied can be retried.
		c.cache.put(key, s)
		return s, nil
	})
	if err != nil {
		return domain.VolumeSummary{}, err
	}
	s := v.(domain.VolumeSummary)
	if shared {
		s = restamp(s, n)
	}
	return s, nil
}

func (c *CachedSummarizer) key(ctx context.Context, n domain.VolumeNotice) (string, bool) {
	version := ""
	if c.versions != nil {
		v, err := c.versions.Version(ctx, n.Path)
		if err != nil {
			return "", false
		}
		version = v
	}
	return fmt.Sprintf("%s|%s|%s|%s", n.Path, n.Station, n.Convention, version), true
}

// restamp gives a reused summary the notice's observation time and a fresh
// processing time.
func restamp(s domain.VolumeSummary, n domain.VolumeNotice) domain.VolumeSummary {
	if !n.ObservedAt.IsZero() {
		s.ObservedAt = n.ObservedAt
	}
	s.ProcessedAt = domain.Now()
	return s
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[K comparable, V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[K]*entry[K, V]
	head       *entry[K, V] // most recently used
	tail       *entry[K, V] // least recently used
}

type entry[K comparable, V any] struct {
	key   K
	value V
	prev  *entry[K, V]
	next  *entry[K, V]
}

func newLRUCache[K comparable, V any](maxEntries int) *lruCache[K, V] {
	return &lruCache[K, V]{
		maxEntries: maxEntries,
		entries:    make(map[K]*entry[K, V]),
	}
}

func (c *lruCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[K, V]) put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[K, V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[K, V]) moveToFront(e *entry[K, V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[K, V]) addToFront(e *entry[K, V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[K, V]) remove(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[K, V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
