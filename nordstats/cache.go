package nordstats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// CacheClass identifies an independently expiring class of cached data.
type CacheClass int

const (
	CacheClassStats CacheClass = iota + 1
	CacheClassProfiles
	CacheClassLeaderboards
	CacheClassAchievements
)

var cacheClasses = []CacheClass{CacheClassStats, CacheClassProfiles, CacheClassLeaderboards, CacheClassAchievements}

func (c CacheClass) String() string {
	switch c {
	case CacheClassStats:
		return "stats"
	case CacheClassProfiles:
		return "profiles"
	case CacheClassLeaderboards:
		return "leaderboards"
	case CacheClassAchievements:
		return "achievements"
	default:
		return "unknown"
	}
}

func (c CacheClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CacheClass) UnmarshalText(text []byte) error {
	for _, class := range cacheClasses {
		if class.String() == string(text) {
			*c = class
			return nil
		}
	}
	return fmt.Errorf("unknown cache class %q", text)
}

const (
	DefaultStatsTTL        = 5 * time.Minute
	DefaultProfilesTTL     = 10 * time.Minute
	DefaultLeaderboardsTTL = 15 * time.Minute
	DefaultAchievementsTTL = 30 * time.Minute

	defaultPreloadConcurrency = 20

	// Fixed per-entry bookkeeping: map slot, entry struct and timestamps.
	cacheEntryOverhead = 64
)

// CacheConfig is the data definition for the CacheManager.
type CacheConfig struct {
	StatsTTLSec        int64 `json:"stats_ttl_sec,omitempty" yaml:"stats_ttl_sec,omitempty"`
	ProfilesTTLSec     int64 `json:"profiles_ttl_sec,omitempty" yaml:"profiles_ttl_sec,omitempty"`
	LeaderboardsTTLSec int64 `json:"leaderboards_ttl_sec,omitempty" yaml:"leaderboards_ttl_sec,omitempty"`
	AchievementsTTLSec int64 `json:"achievements_ttl_sec,omitempty" yaml:"achievements_ttl_sec,omitempty"`

	PreloadConcurrency int    `json:"preload_concurrency,omitempty" yaml:"preload_concurrency,omitempty"`
	PreloadCron        string `json:"preload_cron,omitempty" yaml:"preload_cron,omitempty"`

	Redis *RedisCacheConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// TTL returns the configured time-to-live of a class, falling back to its default.
func (c *CacheConfig) TTL(class CacheClass) time.Duration {
	var sec int64
	var fallback time.Duration
	switch class {
	case CacheClassStats:
		sec, fallback = c.StatsTTLSec, DefaultStatsTTL
	case CacheClassProfiles:
		sec, fallback = c.ProfilesTTLSec, DefaultProfilesTTL
	case CacheClassLeaderboards:
		sec, fallback = c.LeaderboardsTTLSec, DefaultLeaderboardsTTL
	case CacheClassAchievements:
		sec, fallback = c.AchievementsTTLSec, DefaultAchievementsTTL
	}
	if sec <= 0 {
		return fallback
	}
	return time.Duration(sec) * time.Second
}

// CacheClassStatistics describes a single cache class.
type CacheClassStatistics struct {
	EntryCount           int     `json:"entry_count"`
	EstimatedMemoryBytes int64   `json:"estimated_memory_bytes"`
	Hits                 uint64  `json:"hits"`
	Misses               uint64  `json:"misses"`
	HitRate              float64 `json:"hit_rate"`
	TTLSec               int64   `json:"ttl_sec"`
}

type cacheEntry[V any] struct {
	value      V
	insertedAt time.Time
	size       int64
}

// loadToken records the generation of a key and the epoch of the cache when a load started.
type loadToken struct {
	epoch      uint64
	generation uint64
}

// ttlCache is a read-through cache with lazy expiry and per-key single-flight loading.
type ttlCache[V any] struct {
	class  CacheClass
	ttl    time.Duration
	now    func() time.Time
	sizeOf func(V) int64

	mu      sync.RWMutex
	entries map[string]*cacheEntry[V]
	// generations advance per key on invalidate and epoch advances on clear. A load is stored only
	// when neither moved while it ran.
	generations map[string]uint64
	epoch       uint64
	flights     *singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newTTLCache[V any](class CacheClass, ttl time.Duration, now func() time.Time, sizeOf func(V) int64) *ttlCache[V] {
	return &ttlCache[V]{
		class:       class,
		ttl:         ttl,
		now:         now,
		sizeOf:      sizeOf,
		entries:     make(map[string]*cacheEntry[V]),
		generations: make(map[string]uint64),
		flights:     &singleflight.Group{},
	}
}

// lookup returns the entry for key if it is younger than the TTL.
func (c *ttlCache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(entry.insertedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// get returns the cached value for key or loads it, stamping a loaded value with the current time.
func (c *ttlCache[V]) get(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	return c.getStamped(ctx, key, func(ctx context.Context) (V, time.Time, error) {
		value, err := load(ctx)
		return value, time.Time{}, err
	})
}

// getStamped returns the cached value for key or loads it. The load reports when its value was first
// produced, or the zero time for now, and the entry ages from that instant. Concurrent misses for the
// same key share one load. The load runs detached from the caller's cancellation so other waiters still
// receive its result; a cancelled caller stops waiting. A failed load leaves any existing entry in place.
func (c *ttlCache[V]) getStamped(ctx context.Context, key string, load func(context.Context) (V, time.Time, error)) (V, error) {
	if value, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return value, nil
	}
	c.misses.Add(1)

	c.mu.RLock()
	flights := c.flights
	c.mu.RUnlock()

	loadCtx := context.WithoutCancel(ctx)
	ch := flights.DoChan(key, func() (any, error) {
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		c.mu.RLock()
		token := loadToken{epoch: c.epoch, generation: c.generations[key]}
		c.mu.RUnlock()

		value, insertedAt, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.store(key, value, insertedAt, token)
		return value, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

func (c *ttlCache[V]) store(key string, value V, insertedAt time.Time, token loadToken) {
	now := c.now()
	if insertedAt.IsZero() || insertedAt.After(now) {
		insertedAt = now
	}
	if now.Sub(insertedAt) >= c.ttl {
		return
	}
	var size int64
	if c.sizeOf != nil {
		size = c.sizeOf(value)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != token.epoch || c.generations[key] != token.generation {
		return
	}
	c.entries[key] = &cacheEntry[V]{value: value, insertedAt: insertedAt, size: size}
}

// invalidate drops key and detaches its in-flight load, so the next get starts a fresh one while the
// detached load still answers its own waiters without being stored.
func (c *ttlCache[V]) invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.generations[key]++
	flights := c.flights
	c.mu.Unlock()
	flights.Forget(key)
}

// clear drops every entry and detaches every in-flight load.
func (c *ttlCache[V]) clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry[V])
	c.generations = make(map[string]uint64)
	c.epoch++
	c.flights = &singleflight.Group{}
	c.mu.Unlock()
}

func (c *ttlCache[V]) resetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// stats reports every stored entry, expired or not; expiry is only applied on read.
func (c *ttlCache[V]) stats() *CacheClassStatistics {
	c.mu.RLock()
	count := len(c.entries)
	var memory int64
	for key, entry := range c.entries {
		memory += cacheEntryOverhead + int64(len(key)) + entry.size
	}
	c.mu.RUnlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	return &CacheClassStatistics{
		EntryCount:           count,
		EstimatedMemoryBytes: memory,
		Hits:                 hits,
		Misses:               misses,
		HitRate:              hitRate(hits, misses),
		TTLSec:               int64(c.ttl / time.Second),
	}
}

func hitRate(hits, misses uint64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
