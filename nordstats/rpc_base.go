package nordstats

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	RpcIdStatsGet            = "stats_get"
	RpcIdStatsUpdate         = "stats_update"
	RpcIdAchievementsGet     = "achievements_get"
	RpcIdAchievementsSync    = "achievements_sync"
	RpcIdAchievementsSyncAll = "achievements_sync_all"
	RpcIdProfileGet          = "profile_get"
	RpcIdLeaderboardGet      = "leaderboard_get"
	RpcIdLevelGet            = "level_get"
	RpcIdCacheStats          = "cache_stats"
	RpcIdCacheInvalidate     = "cache_invalidate"
	RpcIdCacheClear          = "cache_clear"
	RpcIdCachePreload        = "cache_preload"
)

type PlayerRequest struct {
	PlayerID string `json:"player_id,omitempty"`
}

type PlayersRequest struct {
	PlayerIDs []string `json:"player_ids,omitempty"`
}

// resolvePlayerID returns the requested player, or the session user when none is requested.
func resolvePlayerID(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		if err := validatePlayerID(requested); err != nil {
			return "", err
		}
		return requested, nil
	}
	userID, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if !ok || userID == "" {
		return "", ErrNoSessionUser
	}
	return userID, nil
}

// decodePayload unmarshals an RPC payload. An empty payload leaves out at its zero value.
func decodePayload(logger runtime.Logger, payload string, out any) error {
	if strings.TrimSpace(payload) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		logger.Error("Failed to unmarshal %T: %v", out, err)
		return ErrPayloadDecode
	}
	return nil
}

func encodeResponse(logger runtime.Logger, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to marshal %T: %v", v, err)
		return "", ErrPayloadEncode
	}
	return string(data), nil
}
