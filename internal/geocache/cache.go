// Package geocache memoizes provider lookups for a short time.
//
// The cache is best-effort: it never reports errors, and anything it cannot
// serve is a miss.
package geocache

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"

	"github.com/example/companion-matching/internal/models"
	"github.com/example/companion-matching/internal/observability"
)

const (
	DefaultTTL           = 300 * time.Second
	DefaultSweepInterval = 60 * time.Second

	// geohash precision 9 is a ~4.8m x 4.8m cell
	coordPrecision = 9
)

type entry struct {
	v      any
	expiry time.Time
}

// Cache is an in-memory TTL map safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	store map[string]entry
	ttl   time.Duration
	sweep time.Duration
	now   func() time.Time
}

// New creates a cache. Non-positive durations select the defaults.
func New(ttl, sweepInterval time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Cache{store: make(map[string]entry), ttl: ttl, sweep: sweepInterval, now: time.Now}
}

// Get returns the cached value if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	now := c.now()
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		observability.CacheMisses.Inc()
		return nil, false
	}
	if !now.Before(e.expiry) {
		c.mu.Lock()
		// a writer may have refreshed the key since the read lock was dropped
		if cur, ok := c.store[key]; ok && !c.now().Before(cur.expiry) {
			delete(c.store, key)
		}
		c.mu.Unlock()
		observability.CacheMisses.Inc()
		return nil, false
	}
	observability.CacheHits.Inc()
	return e.v, true
}

// Set stores v under key. ttl <= 0 uses the cache default.
func (c *Cache) Set(key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	c.store[key] = entry{v: v, expiry: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Len reports the number of held entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Sweep removes every expired entry and returns how many were evicted.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.store {
		if !now.Before(e.expiry) {
			delete(c.store, k)
			n++
		}
	}
	observability.CacheEntries.Set(float64(len(c.store)))
	return n
}

// Run sweeps on the configured interval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	t := time.NewTicker(c.sweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Sweep()
		}
	}
}

// Float returns a cached float64; any other stored type is a miss.
func (c *Cache) Float(key string) (float64, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// String returns a cached string; any other stored type is a miss.
func (c *Cache) String(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Param is one named component of a cache key.
type Param struct {
	Name  string
	Value string
}

func P(name, value string) Param { return Param{Name: name, Value: value} }

// CoordParam encodes c as a geohash so nearly identical coordinates share a key.
func CoordParam(name string, c models.Coord) Param {
	return Param{Name: name, Value: geohash.EncodeWithPrecision(c.Lat, c.Lng, coordPrecision)}
}

func FloatParam(name string, f float64) Param {
	return Param{Name: name, Value: strconv.FormatFloat(f, 'f', 1, 64)}
}

// Key builds "kind|a=..|b=.." with params sorted by name, so the order the
// caller lists them in does not change the key.
func Key(kind string, params ...Param) string {
	ps := make([]Param, len(params))
	copy(ps, params)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Name != ps[j].Name {
			return ps[i].Name < ps[j].Name
		}
		return ps[i].Value < ps[j].Value
	})
	var b strings.Builder
	b.WriteString(kind)
	for _, p := range ps {
		b.WriteByte('|')
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}
