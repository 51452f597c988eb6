package nordstats

import (
	"context"
	"database/sql"

	"github.com/heroiclabs/nakama-common/runtime"
)

type AchievementsGetResponse struct {
	PlayerID     string                 `json:"player_id"`
	Achievements []*UnlockedAchievement `json:"achievements"`
	Points       int64                  `json:"points"`
}

type LeaderboardRequest struct {
	StatKey StatKey `json:"stat_key"`
	Limit   int     `json:"limit,omitempty"`
}

type LevelRequest struct {
	PlayerID string `json:"player_id,omitempty"`
	// XP, when set, is converted directly instead of the player's achievement points.
	XP *int64 `json:"xp,omitempty"`
}

func rpcAchievementsGet(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		achievements, ok := p.GetAchievementsSystem().(*NakamaAchievementsSystem)
		if !ok {
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

		unlocked, err := achievements.GetAchievements(ctx, logger, playerID)
		if err != nil {
			logger.Error("Failed to get achievements for %s: %v", playerID, err)
			return "", err
		}
		return encodeResponse(logger, &AchievementsGetResponse{
			PlayerID:     playerID,
			Achievements: unlocked,
			Points:       achievements.Evaluator().AchievementPoints(unlocked),
		})
	}
}

func rpcAchievementsSync(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		achievements := p.GetAchievementsSystem()
		if achievements == nil {
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

		result, err := achievements.SyncPlayer(ctx, logger, playerID)
		if err != nil {
			logger.Error("Failed to sync achievements for %s: %v", playerID, err)
			return "", err
		}
		return encodeResponse(logger, result)
	}
}

func rpcAchievementsSyncAll(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		achievements := p.GetAchievementsSystem()
		if achievements == nil {
			return "", ErrSystemNotAvailable
		}

		var req PlayersRequest
		if err := decodePayload(logger, payload, &req); err != nil {
			return "", err
		}
		return encodeResponse(logger, achievements.SyncAll(ctx, logger, req.PlayerIDs))
	}
}

func rpcProfileGet(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		achievements := p.GetAchievementsSystem()
		if achievements == nil {
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

		profile, err := achievements.GetProfile(ctx, logger, playerID)
		if err != nil {
			logger.Error("Failed to get profile for %s: %v", playerID, err)
			return "", err
		}
		return encodeResponse(logger, profile)
	}
}

func rpcLeaderboardGet(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		achievements := p.GetAchievementsSystem()
		if achievements == nil {
			return "", ErrSystemNotAvailable
		}

		var req LeaderboardRequest
		if err := decodePayload(logger, payload, &req); err != nil {
			return "", err
		}
		if req.StatKey == "" {
			return "", ErrBadInput
		}

		board, err := achievements.GetLeaderboard(ctx, logger, req.StatKey, req.Limit)
		if err != nil {
			logger.Error("Failed to build leaderboard %s: %v", req.StatKey, err)
			return "", err
		}
		return encodeResponse(logger, board)
	}
}

func rpcLevelGet(p *platformImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		leveling := p.GetLevelingSystem()
		if leveling == nil {
			return "", ErrSystemNotAvailable
		}

		var req LevelRequest
		if err := decodePayload(logger, payload, &req); err != nil {
			return "", err
		}
		if req.XP != nil {
			return encodeResponse(logger, leveling.CalculateLevelInfo(*req.XP))
		}

		achievements := p.GetAchievementsSystem()
		if achievements == nil {
			return "", ErrBadInput
		}
		playerID, err := resolvePlayerID(ctx, req.PlayerID)
		if err != nil {
			return "", err
		}
		profile, err := achievements.GetProfile(ctx, logger, playerID)
		if err != nil {
			logger.Error("Failed to get profile for %s: %v", playerID, err)
			return "", err
		}
		return encodeResponse(logger, leveling.CalculateLevelInfo(profile.Points))
	}
}
