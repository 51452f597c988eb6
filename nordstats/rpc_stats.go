package nordstats

import (
	"context"
	"database/sql"
	"errors"

	"github.com/heroiclabs/nakama-common/runtime"
)

type StatsGetResponse struct {
	PlayerID string        `json:"player_id"`
	Stats    StatVector    `json:"stats"`
	Raw      RawStatRecord `json:"raw,omitempty"`
}

func rpcStatsGet(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		statsSystem := p.GetStatsSystem()
		if statsSystem == nil || p.cache == nil {
			return "", ErrSystemNotAvailable
		}

		var req PlayerRequest
		if err := decodePayload(logger, payload, &req); err != nil {
			return "", err
		}
		playerID, err := resolvePlayerID(ctx, req.PlayerID)
		if err != nil {
			return "", err
		}

		stats, err := p.cache.GetStats(ctx, playerID)
		if err != nil {
			logger.Error("Failed to get stats for %s: %v", playerID, err)
			if errors.Is(err, ErrFetchFailed) {
				return "", ErrFetchFailed
			}
			return "", err
		}
		raw, err := statsSystem.List(ctx, logger, []string{playerID})
		if err != nil {
			return "", ErrInternal
		}
		return encodeResponse(logger, &StatsGetResponse{PlayerID: playerID, Stats: stats, Raw: raw[playerID]})
	}
}

func rpcStatsUpdate(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		statsSystem := p.GetStatsSystem()
		if statsSystem == nil {
			return "", ErrSystemNotAvailable
		}

		var req StatUpdateRequest
		if err := decodePayload(logger, payload, &req); err != nil {
			return "", err
		}
		if len(req.Updates) == 0 {
			return "", ErrBadInput
		}
		playerID, err := resolvePlayerID(ctx, req.PlayerID)
		if err != nil {
			return "", err
		}

		raw, err := statsSystem.Update(ctx, logger, playerID, req.Updates)
		if err != nil {
			return "", ErrInternal
		}
		stats := Normalize(raw)
		if p.cache != nil {
			p.cache.Invalidate(ctx, playerID)
			// Reload so the response reflects every merged source.
			if merged, err := p.cache.GetStats(ctx, playerID); err == nil {
				stats = merged
			} else {
				logger.Warn("Failed to reload stats for %s after update: %v", playerID, err)
			}
		}
		return encodeResponse(logger, &StatsGetResponse{PlayerID: playerID, Stats: stats, Raw: raw})
	}
}
