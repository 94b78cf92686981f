package bbl

import (
	"errors"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

type binCacheKey struct {
	scope     Scope
	structure string
}

func (k binCacheKey) String() string {
	return k.scope.String() + "#" + k.structure
}

type cacheMetrics struct {
	hits    *prometheus.CounterVec
	misses  *prometheus.CounterVec
	inserts *prometheus.CounterVec
}

func newCacheMetrics() *cacheMetrics {
	return &cacheMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bbl_bin_cache_hits_total",
			Help: "Bin buffer lookups served from the cache",
		}, []string{"scope"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bbl_bin_cache_misses_total",
			Help: "Bin buffer lookups that ran the computation",
		}, []string{"scope"}),
		inserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bbl_bin_cache_inserts_total",
			Help: "Bin buffers published directly with Insert",
		}, []string{"scope"}),
	}
}

//register registers the counters, adopting collectors that are already registered under the
//same names so several caches can share one registry.
func (m *cacheMetrics) register(registerer prometheus.Registerer) error {
	for _, counter := range []**prometheus.CounterVec{&m.hits, &m.misses, &m.inserts} {
		err := registerer.Register(*counter)
		if err == nil {
			continue
		}
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return err
		}
		*counter = existing
	}
	return nil
}

//CacheOption configures a BinCache.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	registerer prometheus.Registerer
}

//WithRegisterer registers the cache counters in registerer.
func WithRegisterer(registerer prometheus.Registerer) CacheOption {
	return func(c *cacheConfig) { c.registerer = registerer }
}

//BinCache memoizes bin buffers by (Scope, TreeStructure). Entries are written once and live as
//long as the cache. Published buffers are shared with every caller and must not be modified.
type BinCache struct {
	mu      sync.RWMutex
	entries map[binCacheKey][]uint32
	flight  singleflight.Group
	metrics *cacheMetrics
}

//NewBinCache creates an empty cache.
func NewBinCache(options ...CacheOption) (*BinCache, error) {
	var config cacheConfig
	for _, option := range options {
		option(&config)
	}
	metrics := newCacheMetrics()
	if config.registerer != nil {
		if err := metrics.register(config.registerer); err != nil {
			return nil, err
		}
	}
	return &BinCache{
		entries: make(map[binCacheKey][]uint32),
		metrics: metrics,
	}, nil
}

func (c *BinCache) lookup(key binCacheKey) ([]uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bins, ok := c.entries[key]
	return bins, ok
}

//Get returns the buffer of (scope, structure), running compute and publishing its result on a
//miss. compute runs at most once per key, concurrent callers of the same key wait for it.
//A failed computation publishes nothing.
func (c *BinCache) Get(scope Scope, structure TreeStructure, compute func() ([]uint32, error)) ([]uint32, error) {
	key := binCacheKey{scope: scope, structure: structure.Key()}
	label := scope.Kind.String()
	if bins, ok := c.lookup(key); ok {
		c.metrics.hits.WithLabelValues(label).Inc()
		return bins, nil
	}

	result, err, _ := c.flight.Do(key.String(), func() (any, error) {
		if bins, ok := c.lookup(key); ok {
			c.metrics.hits.WithLabelValues(label).Inc()
			return bins, nil
		}
		c.metrics.misses.WithLabelValues(label).Inc()
		bins, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.entries[key]; ok {
			return existing, nil
		}
		c.entries[key] = bins
		return bins, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]uint32), nil
}

//Insert publishes a precomputed buffer. Inserting under a key that is already present is a
//no-op when the contents are equal and a ConsistencyError otherwise; the first buffer is kept.
func (c *BinCache) Insert(scope Scope, structure TreeStructure, bins []uint32) error {
	key := binCacheKey{scope: scope, structure: structure.Key()}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		if slices.Equal(existing, bins) {
			return nil
		}
		return consistencyErrorf("bin cache already holds a different buffer for %s", key)
	}
	c.entries[key] = bins
	c.metrics.inserts.WithLabelValues(scope.Kind.String()).Inc()
	return nil
}

//Has reports whether (scope, structure) is published.
func (c *BinCache) Has(scope Scope, structure TreeStructure) bool {
	_, ok := c.lookup(binCacheKey{scope: scope, structure: structure.Key()})
	return ok
}

func (c *BinCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

//Reset drops every entry. Buffers already handed out stay valid.
func (c *BinCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[binCacheKey][]uint32)
}
