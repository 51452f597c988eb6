package nordstats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(provider RecordProvider, clock *fakeClock, opts ...CacheOption) *CacheManager {
	opts = append([]CacheOption{WithCacheClock(clock.Now)}, opts...)
	return NewCacheManager(&CacheConfig{}, &mockLogger{}, provider, opts...)
}

func TestCacheManager_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 10})
	cache := newTestCache(provider, clock)

	stats, err := cache.GetStats(ctx, playerA)
	require.NoError(t, err)
	assert.EqualValues(t, 10, stats.Get(StatBlocksPlaced))
	assert.EqualValues(t, 1, provider.calls.Load())

	clock.Advance(DefaultStatsTTL - time.Millisecond)
	provider.set(playerA, RawStatRecord{"use_dirt": 20})
	stats, err = cache.GetStats(ctx, playerA)
	require.NoError(t, err)
	assert.EqualValues(t, 10, stats.Get(StatBlocksPlaced), "entry younger than the TTL is served from cache")
	assert.EqualValues(t, 1, provider.calls.Load())

	clock.Advance(2 * time.Millisecond)
	stats, err = cache.GetStats(ctx, playerA)
	require.NoError(t, err)
	assert.EqualValues(t, 20, stats.Get(StatBlocksPlaced))
	assert.EqualValues(t, 2, provider.calls.Load())
}

func TestCacheManager_ConfiguredTTL(t *testing.T) {
	config := &CacheConfig{StatsTTLSec: 30, LeaderboardsTTLSec: -1}
	assert.Equal(t, 30*time.Second, config.TTL(CacheClassStats))
	assert.Equal(t, DefaultProfilesTTL, config.TTL(CacheClassProfiles))
	assert.Equal(t, DefaultLeaderboardsTTL, config.TTL(CacheClassLeaderboards))
	assert.Equal(t, DefaultAchievementsTTL, config.TTL(CacheClassAchievements))
}

func TestCacheManager_SingleFlight(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 5})
	provider.gate = make(chan struct{})
	provider.started = make(chan string, 4)
	cache := newTestCache(provider, newFakeClock())

	var wg sync.WaitGroup
	results := make([]StatVector, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetStats(ctx, playerA)
		}(i)
	}

	<-provider.started
	require.Eventually(t, func() bool {
		return cache.Stats().Misses == 2
	}, time.Second, time.Millisecond)
	close(provider.gate)
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		assert.EqualValues(t, 5, results[i].Get(StatBlocksPlaced))
	}
	assert.EqualValues(t, 1, provider.calls.Load())
}

func TestCacheManager_ReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 5})
	cache := newTestCache(provider, newFakeClock())

	first, err := cache.GetStats(ctx, playerA)
	require.NoError(t, err)
	first[StatBlocksPlaced] = 999

	second, err := cache.GetStats(ctx, playerA)
	require.NoError(t, err)
	assert.EqualValues(t, 5, second.Get(StatBlocksPlaced))
}

func TestCacheManager_FetchFailedKeepsStaleEntry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 10})
	cache := newTestCache(provider, clock)

	_, err := cache.GetStats(ctx, playerA)
	require.NoError(t, err)

	clock.Advance(DefaultStatsTTL + time.Second)
	upstream := errors.New("connection refused")
	provider.setError(playerA, upstream)

	_, err = cache.GetStats(ctx, playerA)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, upstream)
	var fetchErr *FetchFailedError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, playerA, fetchErr.PlayerID)
	assert.Equal(t, 1, cache.Stats().Classes[CacheClassStats].EntryCount, "stale entry is not evicted")

	provider.setError(playerA, nil)
	stats, err := cache.GetStats(ctx, playerA)
	require.NoError(t, err)
	assert.EqualValues(t, 10, stats.Get(StatBlocksPlaced))
}

func TestCacheManager_InvalidateDuringFlightIsNotStored(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 5})
	provider.gate = make(chan struct{})
	provider.started = make(chan string, 1)
	cache := newTestCache(provider, newFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := cache.GetStats(ctx, playerA)
		done <- err
	}()
	<-provider.started
	cache.Invalidate(ctx, playerA)
	close(provider.gate)

	require.NoError(t, <-done)
	assert.Zero(t, cache.Stats().Classes[CacheClassStats].EntryCount)
}

func TestCacheManager_CancelledCallerStopsWaiting(t *testing.T) {
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 5})
	provider.gate = make(chan struct{})
	provider.started = make(chan string, 1)
	cache := newTestCache(provider, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.GetStats(ctx, playerA)
		done <- err
	}()
	<-provider.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The load itself runs to completion and is cached.
	close(provider.gate)
	require.Eventually(t, func() bool {
		return cache.Stats().Classes[CacheClassStats].EntryCount == 1
	}, time.Second, time.Millisecond)
}

func TestCacheManager_RejectsEmptyPlayerID(t *testing.T) {
	cache := newTestCache(newFakeProvider(), newFakeClock())
	_, err := cache.GetStats(context.Background(), "")
	assert.ErrorIs(t, err, ErrBadInput)
}

func TestCacheManager_StatsAndClear(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 1})
	provider.set(playerB, RawStatRecord{"use_dirt": 2})
	cache := newTestCache(provider, newFakeClock())

	assert.Zero(t, cache.Stats().HitRate)

	for _, id := range []string{playerA, playerB, playerA, playerA} {
		_, err := cache.GetStats(ctx, id)
		require.NoError(t, err)
	}

	stats := cache.Stats()
	assert.Equal(t, 2, stats.EntryCount)
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 2, stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Greater(t, stats.EstimatedMemoryBytes, int64(0))
	assert.EqualValues(t, 300, stats.Classes[CacheClassStats].TTLSec)

	cache.Invalidate(ctx, playerB)
	assert.Equal(t, 1, cache.Stats().EntryCount)

	cache.ClearAll(ctx)
	stats = cache.Stats()
	assert.Zero(t, stats.EntryCount)
	assert.Zero(t, stats.EstimatedMemoryBytes)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9, "hit rate is lifetime and survives ClearAll")

	cache.ResetStats()
	stats = cache.Stats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
	assert.Zero(t, stats.HitRate)
}

func TestCacheManager_StatsJSONUsesClassNames(t *testing.T) {
	cache := newTestCache(newFakeProvider(), newFakeClock())
	data, err := json.Marshal(cache.Stats())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stats":`)
	assert.Contains(t, string(data), `"leaderboards":`)
}

func TestCacheManager_PreloadPartialFailure(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 1})
	provider.setError(playerB, errors.New("boom"))
	provider.set(playerC, RawStatRecord{"use_dirt": 3})
	cache := newTestCache(provider, newFakeClock())

	result := cache.Preload(ctx, []string{playerA, playerB, playerC, playerA, " "})
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Loaded)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, playerB, result.Errors[0].PlayerID)
	assert.Equal(t, 2, cache.Stats().Classes[CacheClassStats].EntryCount)
}

func TestCacheManager_PreloadCancelledSkipsRemaining(t *testing.T) {
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 1})
	cache := newTestCache(provider, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := cache.Preload(ctx, []string{playerA, playerB})
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Skipped)
	assert.Zero(t, result.Loaded)
	assert.Zero(t, provider.calls.Load())
}

// memorySharedCache is an in-process SharedCache. With a clock, entries expire after their TTL.
type memorySharedCache struct {
	mu      sync.Mutex
	now     func() time.Time
	values  map[string][]byte
	expires map[string]time.Time
}

func newMemorySharedCache(now func() time.Time) *memorySharedCache {
	return &memorySharedCache{
		now:     now,
		values:  make(map[string][]byte),
		expires: make(map[string]time.Time),
	}
}

func (c *memorySharedCache) Get(ctx context.Context, class CacheClass, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := class.String() + ":" + key
	if expiresAt, ok := c.expires[k]; ok && !c.now().Before(expiresAt) {
		return nil, false, nil
	}
	v, ok := c.values[k]
	return v, ok, nil
}

func (c *memorySharedCache) Set(ctx context.Context, class CacheClass, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := class.String() + ":" + key
	c.values[k] = value
	if c.now != nil {
		c.expires[k] = c.now().Add(ttl)
	}
	return nil
}

func (c *memorySharedCache) Delete(ctx context.Context, class CacheClass, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, class.String()+":"+key)
	delete(c.expires, class.String()+":"+key)
	return nil
}

func (c *memorySharedCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string][]byte)
	c.expires = make(map[string]time.Time)
	return nil
}

func (c *memorySharedCache) Close() error {
	return nil
}

func TestCacheManager_SharedLayer(t *testing.T) {
	ctx := context.Background()
	shared := newMemorySharedCache(nil)
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 7})

	nodeOne := newTestCache(provider, newFakeClock(), WithSharedCache(shared))
	_, err := nodeOne.GetStats(ctx, playerA)
	require.NoError(t, err)
	assert.EqualValues(t, 1, provider.calls.Load())

	nodeTwo := newTestCache(provider, newFakeClock(), WithSharedCache(shared))
	stats, err := nodeTwo.GetStats(ctx, playerA)
	require.NoError(t, err)
	assert.EqualValues(t, 7, stats.Get(StatBlocksPlaced))
	assert.EqualValues(t, 1, provider.calls.Load(), "second node reads the shared layer")

	nodeTwo.Invalidate(ctx, playerA)
	_, ok, err := shared.Get(ctx, CacheClassStats, playerA)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheManager_SharedEntryAgesFromUpstreamFetch(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	shared := newMemorySharedCache(clock.Now)
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 7})

	nodeOne := newTestCache(provider, clock, WithSharedCache(shared))
	_, err := nodeOne.GetStats(ctx, playerA)
	require.NoError(t, err)

	clock.Advance(DefaultStatsTTL - time.Second)
	nodeTwo := newTestCache(provider, clock, WithSharedCache(shared))
	stats, err := nodeTwo.GetStats(ctx, playerA)
	require.NoError(t, err)
	assert.EqualValues(t, 7, stats.Get(StatBlocksPlaced))
	assert.EqualValues(t, 1, provider.calls.Load())

	provider.set(playerA, RawStatRecord{"use_dirt": 99})
	clock.Advance(2 * time.Second)
	stats, err = nodeTwo.GetStats(ctx, playerA)
	require.NoError(t, err)
	assert.EqualValues(t, 99, stats.Get(StatBlocksPlaced), "the copy expires one TTL after the upstream fetch")
	assert.EqualValues(t, 2, provider.calls.Load())
}

func TestCacheManager_SharedEntryOlderThanTTLIsRefetched(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	// No expiry in the shared layer, so only the stored timestamp ages the entry.
	shared := newMemorySharedCache(nil)
	provider := newFakeProvider()
	provider.set(playerA, RawStatRecord{"use_dirt": 7})

	_, err := newTestCache(provider, clock, WithSharedCache(shared)).GetStats(ctx, playerA)
	require.NoError(t, err)

	clock.Advance(DefaultStatsTTL)
	provider.set(playerA, RawStatRecord{"use_dirt": 8})
	stats, err := newTestCache(provider, clock, WithSharedCache(shared)).GetStats(ctx, playerA)
	require.NoError(t, err)
	assert.EqualValues(t, 8, stats.Get(StatBlocksPlaced))
	assert.EqualValues(t, 2, provider.calls.Load())

	// Entries without a fetch timestamp are discarded.
	require.NoError(t, shared.Set(ctx, CacheClassStats, playerB, []byte(`{"blocksPlaced":1}`), time.Minute))
	provider.set(playerB, RawStatRecord{"use_dirt": 3})
	stats, err = newTestCache(provider, clock, WithSharedCache(shared)).GetStats(ctx, playerB)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Get(StatBlocksPlaced))
}

func TestCacheManager_InvalidateKeepsOtherPlayersLoads(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	provider.set(playerB, RawStatRecord{"use_dirt": 5})
	provider.gate = make(chan struct{})
	provider.started = make(chan string, 1)
	cache := newTestCache(provider, newFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := cache.GetStats(ctx, playerB)
		done <- err
	}()
	<-provider.started
	cache.Invalidate(ctx, playerA)
	close(provider.gate)
	require.NoError(t, <-done)

	assert.Equal(t, 1, cache.Stats().Classes[CacheClassStats].EntryCount)
	_, err := cache.GetStats(ctx, playerB)
	require.NoError(t, err)
	assert.EqualValues(t, 1, provider.calls.Load())
}

func TestCacheManager_InvalidateDetachesInFlightLoad(t *testing.T) {
	ctx := context.Background()
	for name, detach := range map[string]func(*CacheManager){
		"invalidate": func(c *CacheManager) { c.Invalidate(ctx, playerA) },
		"clear":      func(c *CacheManager) { c.ClearAll(ctx) },
	} {
		t.Run(name, func(t *testing.T) {
			provider := newFakeProvider()
			provider.set(playerA, RawStatRecord{"use_dirt": 5})
			provider.gate = make(chan struct{})
			provider.started = make(chan string, 2)
			cache := newTestCache(provider, newFakeClock())

			get := func() chan error {
				done := make(chan error, 1)
				go func() {
					_, err := cache.GetStats(ctx, playerA)
					done <- err
				}()
				return done
			}

			first := get()
			<-provider.started
			detach(cache)
			// A read after the detach starts its own load instead of joining the older one.
			second := get()
			<-provider.started
			close(provider.gate)

			require.NoError(t, <-first)
			require.NoError(t, <-second)
			assert.EqualValues(t, 2, provider.calls.Load())
			require.Eventually(t, func() bool {
				return cache.Stats().Classes[CacheClassStats].EntryCount == 1
			}, time.Second, time.Millisecond)
		})
	}
}

func TestCacheClass_TextRoundTrip(t *testing.T) {
	data, err := json.Marshal(NewCacheStatsResponse(newTestCache(newFakeProvider(), newFakeClock()).Stats()))
	require.NoError(t, err)

	var decoded CacheStatsResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded.Classes, len(cacheClasses))
	for _, class := range cacheClasses {
		assert.Contains(t, decoded.Classes, class)
	}
	assert.EqualValues(t, DefaultAchievementsTTL/time.Second, decoded.Classes[CacheClassAchievements].TTLSec)
	var statsClass *CacheClassStatistics = decoded.Classes[CacheClassStats]
	require.NotNil(t, statsClass)
	assert.EqualValues(t, DefaultStatsTTL/time.Second, statsClass.TTLSec)

	var class CacheClass
	assert.Error(t, class.UnmarshalText([]byte("sessions")))
}
