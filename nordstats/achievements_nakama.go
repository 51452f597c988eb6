package nordstats

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

var _ AchievementsSystem = &NakamaAchievementsSystem{}

// NakamaAchievementsSystem implements the AchievementsSystem interface.
type NakamaAchievementsSystem struct {
	config    *AchievementsConfig
	evaluator *AchievementEvaluator
	engine    *SyncEngine
	cache     *CacheManager
	lister    PlayerLister
	leveling  LevelingSystem
}

// NewNakamaAchievementsSystem validates the configured definitions, or the built-in set when none are
// configured. The lister and leveling system may be nil.
func NewNakamaAchievementsSystem(config *AchievementsConfig, cache *CacheManager, store TierStore, lister PlayerLister, leveling LevelingSystem) (*NakamaAchievementsSystem, error) {
	if config == nil {
		config = &AchievementsConfig{}
	}
	definitions := config.Definitions
	if len(definitions) == 0 {
		definitions = DefaultAchievementDefinitions()
	}
	evaluator, err := NewAchievementEvaluator(definitions)
	if err != nil {
		return nil, err
	}

	a := &NakamaAchievementsSystem{
		config:    config,
		evaluator: evaluator,
		cache:     cache,
		lister:    lister,
		leveling:  leveling,
	}
	a.engine = NewSyncEngine(a, cache, evaluator, store, config.SyncConcurrency)
	return a, nil
}

func (a *NakamaAchievementsSystem) GetType() SystemType {
	return SystemTypeAchievements
}

func (a *NakamaAchievementsSystem) GetConfig() any {
	return a.config
}

func (a *NakamaAchievementsSystem) Definitions() []*AchievementDefinition {
	return a.evaluator.Definitions()
}

func (a *NakamaAchievementsSystem) Evaluator() *AchievementEvaluator {
	return a.evaluator
}

func (a *NakamaAchievementsSystem) AddPublisher(publisher Publisher) {
	a.engine.AddPublisher(publisher)
}

func (a *NakamaAchievementsSystem) SyncPlayer(ctx context.Context, logger runtime.Logger, playerID string) (*PlayerSyncResult, error) {
	return a.engine.SyncPlayer(ctx, logger, playerID)
}

// SyncAll syncs the given players, or every listed player when none are given.
func (a *NakamaAchievementsSystem) SyncAll(ctx context.Context, logger runtime.Logger, playerIDs []string) *SyncResult {
	if len(playerIDs) == 0 && a.lister != nil {
		ids, err := a.lister.ListPlayerIDs(ctx)
		if err != nil {
			logger.Error("Failed to list players for sync: %v", err)
			return &SyncResult{Errors: []*SyncError{{Error: err.Error()}}}
		}
		playerIDs = ids
	}
	return a.engine.SyncAll(ctx, logger, playerIDs)
}
