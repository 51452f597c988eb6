package nordstats

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/heroiclabs/nakama-common/runtime"
	"gorm.io/gorm"
)

var _ Platform = &platformImpl{}

// platformImpl implements the Platform interface
type platformImpl struct {
	systems map[SystemType]System

	provider  RecordProvider
	cache     *CacheManager
	scheduler *Scheduler
	store     TierStore
}

// tierSeeder is implemented by stores that manage their own schema.
type tierSeeder interface {
	Migrate(ctx context.Context) error
	SeedTiers(ctx context.Context, definitions []*AchievementDefinition) error
}

// initOrder builds systems after the systems they depend on.
var initOrder = map[SystemType]int{
	SystemTypeStats:        0,
	SystemTypeCache:        1,
	SystemTypeLeveling:     2,
	SystemTypeAchievements: 3,
}

// Init initializes the platform with the configurations provided. The game server database holds the
// achievement tier tables and is used to enumerate players with stored stats.
func Init(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer, configs ...SystemConfig) (Platform, error) {
	var gormDB *gorm.DB
	var store TierStore
	if db != nil {
		tierStore, err := OpenPostgresTierStore(db)
		if err != nil {
			logger.Error("Failed to open achievement tier store: %v", err)
			return nil, err
		}
		gormDB = tierStore.DB()
		store = tierStore
	}
	return initPlatform(ctx, logger, nk, gormDB, store, initializer, configs...)
}

func initPlatform(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, db *gorm.DB, store TierStore, initializer runtime.Initializer, configs ...SystemConfig) (*platformImpl, error) {
	p := &platformImpl{
		systems:   make(map[SystemType]System),
		store:     store,
		scheduler: NewScheduler(logger),
	}

	byType := make(map[SystemType]SystemConfig, len(configs))
	for _, config := range configs {
		if _, ok := initOrder[config.GetType()]; !ok {
			logger.Error("Unknown system type: %v", config.GetType())
			return nil, runtime.NewError("unknown system type", INVALID_ARGUMENT_ERROR_CODE)
		}
		if _, ok := byType[config.GetType()]; ok {
			logger.Error("System type %v configured twice", config.GetType())
			return nil, runtime.NewError("system configured twice", INVALID_ARGUMENT_ERROR_CODE)
		}
		byType[config.GetType()] = config
	}
	ordered := make([]SystemConfig, 0, len(byType))
	for _, config := range byType {
		ordered = append(ordered, config)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return initOrder[ordered[i].GetType()] < initOrder[ordered[j].GetType()]
	})

	for _, config := range ordered {
		if err := p.initSystem(ctx, logger, nk, db, config); err != nil {
			return nil, err
		}
		if config.GetRegister() {
			if err := p.registerSystemRpcs(initializer, config.GetType()); err != nil {
				return nil, err
			}
		}
	}

	if p.scheduler.Jobs() > 0 {
		p.scheduler.Start()
	}
	return p, nil
}

// initSystem initializes a specific system based on its type
func (p *platformImpl) initSystem(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, db *gorm.DB, config SystemConfig) error {
	logger.Info("Initializing system type: %v, config file: %s", config.GetType(), config.GetConfigFile())

	switch config.GetType() {
	case SystemTypeStats:
		statsConfig := &StatsConfig{}
		if err := readSystemConfig(logger, nk, config, statsConfig); err != nil {
			return err
		}
		stats := NewNakamaStatsSystem(statsConfig, logger, nk, db)
		p.systems[SystemTypeStats] = stats
		p.provider = stats
		if statsConfig.StatsDir != "" {
			logger.Info("Merging stats files from %s", statsConfig.StatsDir)
			p.provider = NewMergedRecordProvider(stats, NewFileRecordProvider(statsConfig.StatsDir))
		}

	case SystemTypeCache:
		cacheConfig := &CacheConfig{}
		if err := readSystemConfig(logger, nk, config, cacheConfig); err != nil {
			return err
		}
		if err := p.initCache(ctx, logger, cacheConfig); err != nil {
			return err
		}
		if cacheConfig.PreloadCron != "" {
			lister, ok := p.provider.(PlayerLister)
			if !ok {
				return runtime.NewError("cache preload requires a player listing", FAILED_PRECONDITION_ERROR_CODE)
			}
			if err := p.scheduler.SchedulePreload(cacheConfig.PreloadCron, p.cache, lister); err != nil {
				logger.Error("Failed to schedule cache preload: %v", err)
				return err
			}
		}

	case SystemTypeLeveling:
		levelingConfig := &LevelingConfig{}
		if err := readSystemConfig(logger, nk, config, levelingConfig); err != nil {
			return err
		}
		leveling, err := NewNakamaLevelingSystem(levelingConfig)
		if err != nil {
			logger.Error("Invalid leveling config: %v", err)
			return err
		}
		p.systems[SystemTypeLeveling] = leveling

	case SystemTypeAchievements:
		achievementsConfig := &AchievementsConfig{}
		if err := readSystemConfig(logger, nk, config, achievementsConfig); err != nil {
			return err
		}
		if p.store == nil {
			logger.Error("Achievements system requires a tier store")
			return ErrSystemNotAvailable
		}
		if p.cache == nil {
			if err := p.initCache(ctx, logger, &CacheConfig{}); err != nil {
				return err
			}
		}
		lister, _ := p.provider.(PlayerLister)
		achievements, err := NewNakamaAchievementsSystem(achievementsConfig, p.cache, p.store, lister, p.GetLevelingSystem())
		if err != nil {
			logger.Error("Invalid achievement definitions: %v", err)
			return err
		}
		if seeder, ok := p.store.(tierSeeder); ok {
			if err := seeder.Migrate(ctx); err != nil {
				logger.Error("Failed to migrate achievement tier store: %v", err)
				return err
			}
			if err := seeder.SeedTiers(ctx, achievements.Definitions()); err != nil {
				logger.Error("Failed to seed achievement tiers: %v", err)
				return err
			}
		}
		p.systems[SystemTypeAchievements] = achievements
		if achievementsConfig.SyncCron != "" {
			if err := p.scheduler.ScheduleSync(achievementsConfig.SyncCron, achievements); err != nil {
				logger.Error("Failed to schedule achievement sync: %v", err)
				return err
			}
		}
	}
	return nil
}

// initCache builds the cache over the stats provider, with an optional Redis layer. An unreachable
// Redis is logged and the cache runs local only.
func (p *platformImpl) initCache(ctx context.Context, logger runtime.Logger, config *CacheConfig) error {
	if p.provider == nil {
		logger.Error("Cache requires the stats system")
		return ErrSystemNotAvailable
	}
	opts := make([]CacheOption, 0, 1)
	if config.Redis != nil && config.Redis.Addr != "" {
		shared, err := NewRedisSharedCache(ctx, config.Redis)
		if err != nil {
			logger.Warn("Shared cache unavailable, continuing with local cache only: %v", err)
		} else {
			opts = append(opts, WithSharedCache(shared))
		}
	}
	p.cache = NewCacheManager(config, logger, p.provider, opts...)
	p.systems[SystemTypeCache] = p.cache
	return nil
}

// registerSystemRpcs registers the appropriate RPCs for a given system type
func (p *platformImpl) registerSystemRpcs(initializer runtime.Initializer, systemType SystemType) error {
	var rpcs map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error)
	switch systemType {
	case SystemTypeStats:
		rpcs = map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){
			RpcIdStatsGet:    rpcStatsGet(p),
			RpcIdStatsUpdate: rpcStatsUpdate(p),
		}
	case SystemTypeAchievements:
		rpcs = map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){
			RpcIdAchievementsGet:     rpcAchievementsGet(p),
			RpcIdAchievementsSync:    rpcAchievementsSync(p),
			RpcIdAchievementsSyncAll: rpcAchievementsSyncAll(p),
			RpcIdProfileGet:          rpcProfileGet(p),
			RpcIdLeaderboardGet:      rpcLeaderboardGet(p),
		}
	case SystemTypeLeveling:
		rpcs = map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){
			RpcIdLevelGet: rpcLevelGet(p),
		}
	case SystemTypeCache:
		rpcs = map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){
			RpcIdCacheStats:      rpcCacheStats(p),
			RpcIdCacheInvalidate: rpcCacheInvalidate(p),
			RpcIdCacheClear:      rpcCacheClear(p),
			RpcIdCachePreload:    rpcCachePreload(p),
		}
	}

	ids := make([]string, 0, len(rpcs))
	for id := range rpcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := initializer.RegisterRpc(id, rpcs[id]); err != nil {
			return err
		}
	}
	return nil
}

func (p *platformImpl) AddPublisher(publisher Publisher) {
	if achievements, ok := p.systems[SystemTypeAchievements].(*NakamaAchievementsSystem); ok {
		achievements.AddPublisher(publisher)
	}
}

func (p *platformImpl) GetStatsSystem() StatsSystem {
	if sys, ok := p.systems[SystemTypeStats].(StatsSystem); ok {
		return sys
	}
	return nil
}

func (p *platformImpl) GetAchievementsSystem() AchievementsSystem {
	if sys, ok := p.systems[SystemTypeAchievements].(AchievementsSystem); ok {
		return sys
	}
	return nil
}

func (p *platformImpl) GetLevelingSystem() LevelingSystem {
	if sys, ok := p.systems[SystemTypeLeveling].(LevelingSystem); ok {
		return sys
	}
	return nil
}

func (p *platformImpl) GetCacheManager() *CacheManager {
	return p.cache
}

func (p *platformImpl) GetScheduler() *Scheduler {
	return p.scheduler
}

// playerLister returns the listing side of the stats provider, if it has one.
func (p *platformImpl) playerLister() PlayerLister {
	lister, _ := p.provider.(PlayerLister)
	return lister
}

func (p *platformImpl) Close() error {
	p.scheduler.Stop()
	var errs []error
	if p.cache != nil {
		errs = append(errs, p.cache.Close())
	}
	return errors.Join(errs...)
}
