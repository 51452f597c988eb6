package nordstats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// PlayerProfile joins a player's stats, achievements and level. Level is nil when no leveling system is
// configured.
type PlayerProfile struct {
	PlayerID     string                 `json:"player_id"`
	Stats        StatVector             `json:"stats"`
	Achievements []*UnlockedAchievement `json:"achievements"`
	Points       int64                  `json:"points"`
	Level        *LevelInfo             `json:"level,omitempty"`
}

type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Value    int64  `json:"value"`
}

type Leaderboard struct {
	StatKey     StatKey             `json:"stat_key"`
	Entries     []*LeaderboardEntry `json:"entries"`
	GeneratedAt int64               `json:"generated_at"`
}

// limited returns a copy holding at most limit entries.
func (l *Leaderboard) limited(limit int) *Leaderboard {
	entries := l.Entries
	if limit < len(entries) {
		entries = entries[:limit]
	}
	return &Leaderboard{
		StatKey:     l.StatKey,
		Entries:     append([]*LeaderboardEntry(nil), entries...),
		GeneratedAt: l.GeneratedAt,
	}
}

// clone copies the profile deep enough that callers cannot reach the cached entry.
func (p *PlayerProfile) clone() *PlayerProfile {
	out := *p
	out.Stats = p.Stats.Clone()
	out.Achievements = cloneUnlocked(p.Achievements)
	if p.Level != nil {
		level := *p.Level
		out.Level = &level
	}
	return &out
}

func cloneUnlocked(unlocked []*UnlockedAchievement) []*UnlockedAchievement {
	if unlocked == nil {
		return nil
	}
	out := make([]*UnlockedAchievement, len(unlocked))
	for i, u := range unlocked {
		c := *u
		if u.Tier != nil {
			tier := *u.Tier
			c.Tier = &tier
		}
		out[i] = &c
	}
	return out
}

// GetAchievements returns the achievements a player qualifies for, cached under the achievements class.
func (a *NakamaAchievementsSystem) GetAchievements(ctx context.Context, logger runtime.Logger, playerID string) ([]*UnlockedAchievement, error) {
	if playerID == "" {
		return nil, ErrBadInput
	}
	unlocked, err := a.cache.achievements.get(ctx, playerID, func(ctx context.Context) ([]*UnlockedAchievement, error) {
		stats, err := a.cache.GetStats(ctx, playerID)
		if err != nil {
			return nil, err
		}
		return a.evaluator.Evaluate(stats), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneUnlocked(unlocked), nil
}

// GetProfile returns a player's profile, cached under the profiles class.
func (a *NakamaAchievementsSystem) GetProfile(ctx context.Context, logger runtime.Logger, playerID string) (*PlayerProfile, error) {
	if playerID == "" {
		return nil, ErrBadInput
	}
	profile, err := a.cache.profiles.get(ctx, playerID, func(ctx context.Context) (*PlayerProfile, error) {
		stats, err := a.cache.GetStats(ctx, playerID)
		if err != nil {
			return nil, err
		}
		unlocked, err := a.GetAchievements(ctx, logger, playerID)
		if err != nil {
			return nil, err
		}
		profile := &PlayerProfile{
			PlayerID:     playerID,
			Stats:        stats,
			Achievements: unlocked,
			Points:       a.evaluator.AchievementPoints(unlocked),
		}
		if a.leveling != nil {
			profile.Level = a.leveling.CalculateLevelInfo(profile.Points)
		}
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return profile.clone(), nil
}

// GetLeaderboard ranks every listed player by a stat, highest first with ties ordered by player id.
// Players with no progress on the stat are left out, as are players whose stats cannot be fetched.
func (a *NakamaAchievementsSystem) GetLeaderboard(ctx context.Context, logger runtime.Logger, statKey StatKey, limit int) (*Leaderboard, error) {
	if statKey == "" {
		return nil, ErrBadInput
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	if a.lister == nil {
		return nil, ErrSystemNotAvailable
	}

	board, err := a.cache.leaderboards.get(ctx, string(statKey), func(ctx context.Context) (*Leaderboard, error) {
		return a.buildLeaderboard(ctx, logger, statKey)
	})
	if err != nil {
		return nil, err
	}
	return board.limited(limit), nil
}

func (a *NakamaAchievementsSystem) buildLeaderboard(ctx context.Context, logger runtime.Logger, statKey StatKey) (*Leaderboard, error) {
	ids, err := a.lister.ListPlayerIDs(ctx)
	if err != nil {
		logger.Error("Failed to list players for leaderboard %s: %v", statKey, err)
		return nil, err
	}

	var mu sync.Mutex
	entries := make([]*LeaderboardEntry, 0, len(ids))
	var g errgroup.Group
	g.SetLimit(a.cache.preloadConcurrency())
	for _, id := range ids {
		g.Go(func() error {
			stats, err := a.cache.GetStats(ctx, id)
			if err != nil {
				logger.Warn("Leaderboard %s skipping player %s: %v", statKey, id, err)
				return nil
			}
			value := stats.Get(statKey)
			if value <= 0 {
				return nil
			}
			mu.Lock()
			entries = append(entries, &LeaderboardEntry{PlayerID: id, Value: value})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	for i, entry := range entries {
		entry.Rank = i + 1
	}
	return &Leaderboard{StatKey: statKey, Entries: entries, GeneratedAt: time.Now().Unix()}, nil
}
