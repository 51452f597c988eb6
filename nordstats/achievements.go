package nordstats

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Tier is one threshold rung of an achievement. A player qualifies when the tracked stat is at least Threshold.
type Tier struct {
	TierNumber  int    `json:"tier_number" yaml:"tier_number"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Threshold   int64  `json:"threshold" yaml:"threshold"`
	Points      int64  `json:"points" yaml:"points"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// AchievementDefinition is an immutable, tiered achievement tracking a single stat.
type AchievementDefinition struct {
	ID          string  `json:"id" yaml:"id"`
	DisplayName string  `json:"display_name" yaml:"display_name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	StatKey     StatKey `json:"stat_key" yaml:"stat_key"`
	ColorTag    string  `json:"color_tag,omitempty" yaml:"color_tag,omitempty"`
	Tiers       []*Tier `json:"tiers" yaml:"tiers"`
}

// UnlockedAchievement is the highest tier a player currently qualifies for. Lower tiers are implied.
type UnlockedAchievement struct {
	DefinitionID string `json:"definition_id"`
	Tier         *Tier  `json:"tier"`
	StatValue    int64  `json:"stat_value"`
}

// AchievementsConfig is the data definition for an AchievementsSystem type.
type AchievementsConfig struct {
	// Definitions replaces the built-in achievement set when non-empty.
	Definitions []*AchievementDefinition `json:"definitions,omitempty" yaml:"definitions,omitempty"`

	SyncConcurrency int `json:"sync_concurrency,omitempty" yaml:"sync_concurrency,omitempty"`
	// SyncCron schedules a sync of every known player. Empty disables it.
	SyncCron string `json:"sync_cron,omitempty" yaml:"sync_cron,omitempty"`
}

// An AchievementsSystem evaluates player stats against tiered achievements and persists unlocks.
type AchievementsSystem interface {
	System

	// Definitions returns the loaded achievement definitions in evaluation order.
	Definitions() []*AchievementDefinition

	// GetAchievements returns the achievements a player currently qualifies for.
	GetAchievements(ctx context.Context, logger runtime.Logger, playerID string) (unlocked []*UnlockedAchievement, err error)

	// GetProfile returns a player's stats, achievements and level.
	GetProfile(ctx context.Context, logger runtime.Logger, playerID string) (profile *PlayerProfile, err error)

	// GetLeaderboard ranks every known player by a stat.
	GetLeaderboard(ctx context.Context, logger runtime.Logger, statKey StatKey, limit int) (leaderboard *Leaderboard, err error)

	// SyncPlayer persists any achievement the player qualifies for but has no record of.
	SyncPlayer(ctx context.Context, logger runtime.Logger, playerID string) (result *PlayerSyncResult, err error)

	// SyncAll runs SyncPlayer for every player, continuing past individual failures.
	SyncAll(ctx context.Context, logger runtime.Logger, playerIDs []string) (result *SyncResult)
}
