package nordstats

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"golang.org/x/sync/errgroup"
)

// CacheStats summarizes every cache class. HitRate counts lifetime lookups; ClearAll keeps the
// counters, ResetStats zeroes them.
type CacheStats struct {
	EntryCount           int                                  `json:"entry_count"`
	EstimatedMemoryBytes int64                                `json:"estimated_memory_bytes"`
	Hits                 uint64                               `json:"hits"`
	Misses               uint64                               `json:"misses"`
	HitRate              float64                              `json:"hit_rate"`
	Classes              map[CacheClass]*CacheClassStatistics `json:"classes"`
}

// PreloadResult reports the outcome of a bulk Preload.
type PreloadResult struct {
	Total   int          `json:"total"`
	Loaded  int          `json:"loaded"`
	Failed  int          `json:"failed"`
	Skipped int          `json:"skipped"`
	Errors  []*SyncError `json:"errors,omitempty"`
}

type CacheOption func(*CacheManager)

// WithCacheClock replaces the clock used to stamp and expire entries.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(m *CacheManager) {
		m.now = now
	}
}

// WithSharedCache adds a cross-node layer consulted on local stats misses.
func WithSharedCache(shared SharedCache) CacheOption {
	return func(m *CacheManager) {
		m.shared = shared
	}
}

// CacheManager owns the player data caches. It is constructed by the platform owner and passed to every
// component that reads player stats.
type CacheManager struct {
	config   *CacheConfig
	logger   runtime.Logger
	provider RecordProvider
	shared   SharedCache
	now      func() time.Time

	stats        *ttlCache[StatVector]
	profiles     *ttlCache[*PlayerProfile]
	leaderboards *ttlCache[*Leaderboard]
	achievements *ttlCache[[]*UnlockedAchievement]
}

func NewCacheManager(config *CacheConfig, logger runtime.Logger, provider RecordProvider, opts ...CacheOption) *CacheManager {
	if config == nil {
		config = &CacheConfig{}
	}
	m := &CacheManager{
		config:   config,
		logger:   logger,
		provider: provider,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.stats = newTTLCache(CacheClassStats, config.TTL(CacheClassStats), m.now, statVectorSize)
	m.profiles = newTTLCache(CacheClassProfiles, config.TTL(CacheClassProfiles), m.now, profileSize)
	m.leaderboards = newTTLCache(CacheClassLeaderboards, config.TTL(CacheClassLeaderboards), m.now, leaderboardSize)
	m.achievements = newTTLCache(CacheClassAchievements, config.TTL(CacheClassAchievements), m.now, unlockedSize)
	return m
}

func (m *CacheManager) GetType() SystemType {
	return SystemTypeCache
}

func (m *CacheManager) GetConfig() any {
	return m.config
}

// GetStats returns the normalized stats of a player, loading them on a miss. Provider failures are
// returned as *FetchFailedError and leave any previously cached value in place.
func (m *CacheManager) GetStats(ctx context.Context, playerID string) (StatVector, error) {
	if playerID == "" {
		return nil, ErrBadInput
	}
	stats, err := m.stats.getStamped(ctx, playerID, func(ctx context.Context) (StatVector, time.Time, error) {
		return m.loadStats(ctx, playerID)
	})
	if err != nil {
		return nil, err
	}
	return stats.Clone(), nil
}

// sharedStats is the shared layer encoding of a stats entry. StoredAt lets every node age the entry
// from the upstream fetch rather than from its own read.
type sharedStats struct {
	StoredAt int64      `json:"stored_at"`
	Stats    StatVector `json:"stats"`
}

func (m *CacheManager) loadStats(ctx context.Context, playerID string) (StatVector, time.Time, error) {
	ttl := m.config.TTL(CacheClassStats)
	if m.shared != nil {
		data, ok, err := m.shared.Get(ctx, CacheClassStats, playerID)
		if err != nil {
			m.logger.Warn("Shared cache read failed for player %s: %v", playerID, err)
		} else if ok {
			var entry sharedStats
			if err := json.Unmarshal(data, &entry); err != nil || entry.StoredAt == 0 {
				m.logger.Warn("Discarding undecodable shared cache entry for player %s", playerID)
			} else if storedAt := time.UnixMilli(entry.StoredAt); m.now().Sub(storedAt) < ttl {
				return entry.Stats, storedAt, nil
			}
		}
	}

	raw, err := m.provider.FetchRawStats(ctx, playerID)
	if err != nil {
		return nil, time.Time{}, &FetchFailedError{PlayerID: playerID, Err: err}
	}
	stats := Normalize(raw)
	fetchedAt := m.now()

	if m.shared != nil {
		if data, err := json.Marshal(&sharedStats{StoredAt: fetchedAt.UnixMilli(), Stats: stats}); err == nil {
			if err := m.shared.Set(ctx, CacheClassStats, playerID, data, ttl); err != nil {
				m.logger.Warn("Shared cache write failed for player %s: %v", playerID, err)
			}
		}
	}
	return stats, fetchedAt, nil
}

// Preload populates the stats cache for many players with bounded concurrency. Individual failures are
// collected. Once ctx is done no further players are started; players already loading finish.
func (m *CacheManager) Preload(ctx context.Context, playerIDs []string) *PreloadResult {
	ids := normalizePlayerIDs(playerIDs)
	result := &PreloadResult{Total: len(ids)}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(m.preloadConcurrency())
	itemCtx := context.WithoutCancel(ctx)
	for i, id := range ids {
		if ctx.Err() != nil {
			mu.Lock()
			result.Skipped = len(ids) - i
			mu.Unlock()
			break
		}
		g.Go(func() error {
			_, err := m.GetStats(itemCtx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, &SyncError{PlayerID: id, Error: err.Error()})
				return nil
			}
			result.Loaded++
			return nil
		})
	}
	_ = g.Wait()

	if result.Failed > 0 {
		m.logger.Warn("Preloaded %d/%d players, %d failed", result.Loaded, result.Total, result.Failed)
	}
	return result
}

func (m *CacheManager) preloadConcurrency() int {
	if m.config.PreloadConcurrency <= 0 {
		return defaultPreloadConcurrency
	}
	return m.config.PreloadConcurrency
}

// Invalidate removes a player from every per-player cache class and from the shared layer.
func (m *CacheManager) Invalidate(ctx context.Context, playerID string) {
	m.stats.invalidate(playerID)
	m.profiles.invalidate(playerID)
	m.achievements.invalidate(playerID)
	if m.shared != nil {
		if err := m.shared.Delete(ctx, CacheClassStats, playerID); err != nil {
			m.logger.Warn("Shared cache delete failed for player %s: %v", playerID, err)
		}
	}
}

// ClearAll empties every cache class. Hit and miss counters are kept.
func (m *CacheManager) ClearAll(ctx context.Context) {
	m.stats.clear()
	m.profiles.clear()
	m.leaderboards.clear()
	m.achievements.clear()
	if m.shared != nil {
		if err := m.shared.Clear(ctx); err != nil {
			m.logger.Warn("Shared cache clear failed: %v", err)
		}
	}
}

// ResetStats zeroes the hit and miss counters of every class.
func (m *CacheManager) ResetStats() {
	m.stats.resetStats()
	m.profiles.resetStats()
	m.leaderboards.resetStats()
	m.achievements.resetStats()
}

func (m *CacheManager) Stats() *CacheStats {
	out := &CacheStats{Classes: make(map[CacheClass]*CacheClassStatistics, len(cacheClasses))}
	for _, class := range cacheClasses {
		var s *CacheClassStatistics
		switch class {
		case CacheClassStats:
			s = m.stats.stats()
		case CacheClassProfiles:
			s = m.profiles.stats()
		case CacheClassLeaderboards:
			s = m.leaderboards.stats()
		case CacheClassAchievements:
			s = m.achievements.stats()
		}
		out.Classes[class] = s
		out.EntryCount += s.EntryCount
		out.EstimatedMemoryBytes += s.EstimatedMemoryBytes
		out.Hits += s.Hits
		out.Misses += s.Misses
	}
	out.HitRate = hitRate(out.Hits, out.Misses)
	return out
}

// Close releases the shared layer, if any.
func (m *CacheManager) Close() error {
	if m.shared == nil {
		return nil
	}
	return m.shared.Close()
}

func statVectorSize(v StatVector) int64 {
	var size int64
	for key := range v {
		// key bytes, string header, int64 value
		size += int64(len(key)) + 16 + 8
	}
	return size
}

func unlockedSize(unlocked []*UnlockedAchievement) int64 {
	var size int64
	for _, u := range unlocked {
		size += int64(len(u.DefinitionID)) + 48
	}
	return size
}

func profileSize(p *PlayerProfile) int64 {
	if p == nil {
		return 0
	}
	return int64(len(p.PlayerID)) + statVectorSize(p.Stats) + unlockedSize(p.Achievements) + 64
}

func leaderboardSize(l *Leaderboard) int64 {
	if l == nil {
		return 0
	}
	var size int64
	for _, e := range l.Entries {
		size += int64(len(e.PlayerID)) + 40
	}
	return size
}
