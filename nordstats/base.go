package nordstats

import (
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
)

var (
	ErrInternal           = runtime.NewError("internal error occurred", INTERNAL_ERROR_CODE)
	ErrBadInput           = runtime.NewError("bad input", INVALID_ARGUMENT_ERROR_CODE)
	ErrNoSessionUser      = runtime.NewError("no user ID in session", INVALID_ARGUMENT_ERROR_CODE)
	ErrInvalidPlayerID    = runtime.NewError("player id is not a valid uuid", INVALID_ARGUMENT_ERROR_CODE)
	ErrPayloadDecode      = runtime.NewError("cannot decode json", INTERNAL_ERROR_CODE)
	ErrPayloadEncode      = runtime.NewError("cannot encode json", INTERNAL_ERROR_CODE)
	ErrSystemNotAvailable = runtime.NewError("system not available", UNIMPLEMENTED_ERROR_CODE)
	ErrSystemNotFound     = runtime.NewError("system not found", INTERNAL_ERROR_CODE)

	// ErrFetchFailed is matched by every error returned when the player record provider fails.
	ErrFetchFailed = runtime.NewError("player stats fetch failed", UNAVAILABLE_ERROR_CODE)
	// ErrMappingNotFound marks an evaluated tier that has no persisted tier row.
	ErrMappingNotFound = runtime.NewError("achievement tier row not found", NOT_FOUND_ERROR_CODE)
	// ErrDuplicateRecord is returned by tier stores when the unlock record already exists.
	ErrDuplicateRecord = runtime.NewError("achievement already unlocked", ALREADY_EXISTS_ERROR_CODE)
)

// FetchFailedError wraps an upstream provider failure for a single player.
type FetchFailedError struct {
	PlayerID string
	Err      error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch stats for player %s: %v", e.PlayerID, e.Err)
}

func (e *FetchFailedError) Unwrap() error {
	return e.Err
}

func (e *FetchFailedError) Is(target error) bool {
	return target == ErrFetchFailed
}

// Platform provides a type which combines the player statistics systems.
type Platform interface {
	AddPublisher(publisher Publisher)

	GetStatsSystem() StatsSystem
	GetAchievementsSystem() AchievementsSystem
	GetLevelingSystem() LevelingSystem
	GetCacheManager() *CacheManager
	GetScheduler() *Scheduler

	// Close stops background jobs and releases shared cache connections.
	Close() error
}

// The SystemType identifies each of the systems.
type SystemType uint

const (
	SystemTypeUnknown SystemType = iota
	SystemTypeStats
	SystemTypeAchievements
	SystemTypeLeveling
	SystemTypeCache
)

func (t SystemType) String() string {
	switch t {
	case SystemTypeStats:
		return "stats"
	case SystemTypeAchievements:
		return "achievements"
	case SystemTypeLeveling:
		return "leveling"
	case SystemTypeCache:
		return "cache"
	default:
		return "unknown"
	}
}

// A System is a base type for a player statistics system.
type System interface {
	// GetType provides the runtime type of the system.
	GetType() SystemType

	// GetConfig returns the configuration type of the system.
	GetConfig() any
}

// The SystemConfig describes the configuration that each system must use to configure itself.
type SystemConfig interface {
	// GetType returns the runtime type of the system.
	GetType() SystemType

	// GetConfigFile returns the configuration file used for the data definitions in the system.
	// An empty name selects the built-in defaults.
	GetConfigFile() string

	// GetRegister returns true if the system's RPCs should be registered with the game server.
	GetRegister() bool
}

var _ SystemConfig = &systemConfig{}

type systemConfig struct {
	systemType SystemType
	configFile string
	register   bool
}

func (sc *systemConfig) GetType() SystemType {
	return sc.systemType
}
func (sc *systemConfig) GetConfigFile() string {
	return sc.configFile
}
func (sc *systemConfig) GetRegister() bool {
	return sc.register
}

// WithStatsSystem configures a StatsSystem type and optionally registers its RPCs with the game server.
func WithStatsSystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeStats,
		configFile: configFile,
		register:   register,
	}
}

// WithAchievementsSystem configures an AchievementsSystem type and optionally registers its RPCs with the game server.
func WithAchievementsSystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeAchievements,
		configFile: configFile,
		register:   register,
	}
}

// WithLevelingSystem configures a LevelingSystem type and optionally registers its RPCs with the game server.
func WithLevelingSystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeLeveling,
		configFile: configFile,
		register:   register,
	}
}

// WithCacheSystem configures the CacheManager and optionally registers its admin RPCs with the game server.
func WithCacheSystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeCache,
		configFile: configFile,
		register:   register,
	}
}
