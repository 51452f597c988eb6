package nordstats

import (
	"context"
	"database/sql"

	"github.com/dustin/go-humanize"
	"github.com/heroiclabs/nakama-common/runtime"
)

// CacheStatsResponse is the admin view of the cache.
type CacheStatsResponse struct {
	MemoryUsage string                               `json:"memoryUsage"`
	MemoryBytes int64                                `json:"memoryBytes"`
	CacheSize   int                                  `json:"cacheSize"`
	HitRate     float64                              `json:"hitRate"`
	Hits        uint64                               `json:"hits"`
	Misses      uint64                               `json:"misses"`
	Classes     map[CacheClass]*CacheClassStatistics `json:"classes"`
}

func NewCacheStatsResponse(stats *CacheStats) *CacheStatsResponse {
	return &CacheStatsResponse{
		MemoryUsage: humanize.Bytes(uint64(stats.EstimatedMemoryBytes)),
		MemoryBytes: stats.EstimatedMemoryBytes,
		CacheSize:   stats.EntryCount,
		HitRate:     stats.HitRate,
		Hits:        stats.Hits,
		Misses:      stats.Misses,
		Classes:     stats.Classes,
	}
}

type CacheClearRequest struct {
	ResetStats bool `json:"reset_stats,omitempty"`
}

func rpcCacheStats(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if p.cache == nil {
			return "", ErrSystemNotAvailable
		}
		return encodeResponse(logger, NewCacheStatsResponse(p.cache.Stats()))
	}
}

func rpcCacheInvalidate(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if p.cache == nil {
			return "", ErrSystemNotAvailable
		}

		var req PlayerRequest
		if err := decodePayload(logger, payload, &req); err != nil {
			return "", err
		}
		if req.PlayerID == "" {
			return "", ErrBadInput
		}
		playerID, err := resolvePlayerID(ctx, req.PlayerID)
		if err != nil {
			return "", err
		}

		p.cache.Invalidate(ctx, playerID)
		return encodeResponse(logger, map[string]string{"invalidated": playerID})
	}
}

func rpcCacheClear(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if p.cache == nil {
			return "", ErrSystemNotAvailable
		}

		var req CacheClearRequest
		if err := decodePayload(logger, payload, &req); err != nil {
			return "", err
		}
		p.cache.ClearAll(ctx)
		if req.ResetStats {
			p.cache.ResetStats()
		}
		logger.Info("Cache cleared, reset stats: %v", req.ResetStats)
		return encodeResponse(logger, NewCacheStatsResponse(p.cache.Stats()))
	}
}

func rpcCachePreload(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if p.cache == nil {
			return "", ErrSystemNotAvailable
		}

		var req PlayersRequest
		if err := decodePayload(logger, payload, &req); err != nil {
			return "", err
		}
		ids := req.PlayerIDs
		if len(ids) == 0 {
			lister := p.playerLister()
			if lister == nil {
				return "", ErrBadInput
			}
			listed, err := lister.ListPlayerIDs(ctx)
			if err != nil {
				logger.Error("Failed to list players for preload: %v", err)
				return "", ErrInternal
			}
			ids = listed
		}
		return encodeResponse(logger, p.cache.Preload(ctx, ids))
	}
}
