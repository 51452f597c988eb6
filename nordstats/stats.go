package nordstats

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

// StatKey is a canonical, source-independent name for a gameplay metric.
type StatKey string

const (
	StatPlaytimeHours      StatKey = "playtimeHours"
	StatBlocksPlaced       StatKey = "blocksPlaced"
	StatBlocksBroken       StatKey = "blocksBroken"
	StatMobKills           StatKey = "mobKills"
	StatPlayerKills        StatKey = "playerKills"
	StatDeaths             StatKey = "deaths"
	StatDiamondsFound      StatKey = "diamondsFound"
	StatAncientDebrisFound StatKey = "ancientDebrisFound"
	StatJumps              StatKey = "jumps"
	StatBoatDistance       StatKey = "boatDistance"
	StatMinecartDistance   StatKey = "minecartDistance"
	StatFishCaught         StatKey = "fishCaught"
	StatVillagerTrades     StatKey = "villagerTrades"
	StatItemsEnchanted     StatKey = "itemsEnchanted"
	StatAnimalsBred        StatKey = "animalsBred"
	StatRaidsWon           StatKey = "raidsWon"
)

// CanonicalStatKeys is the exhaustive canonical vocabulary. Normalize always emits every key in it.
var CanonicalStatKeys = []StatKey{
	StatPlaytimeHours,
	StatBlocksPlaced,
	StatBlocksBroken,
	StatMobKills,
	StatPlayerKills,
	StatDeaths,
	StatDiamondsFound,
	StatAncientDebrisFound,
	StatJumps,
	StatBoatDistance,
	StatMinecartDistance,
	StatFishCaught,
	StatVillagerTrades,
	StatItemsEnchanted,
	StatAnimalsBred,
	StatRaidsWon,
}

// IsCanonical reports whether key belongs to the canonical vocabulary.
func (k StatKey) IsCanonical() bool {
	_, ok := canonicalKeySet[k]
	return ok
}

var canonicalKeySet = func() map[StatKey]struct{} {
	set := make(map[StatKey]struct{}, len(CanonicalStatKeys))
	for _, key := range CanonicalStatKeys {
		set[key] = struct{}{}
	}
	return set
}()

// RawStatRecord maps raw counter names, as produced by the game server, to their values.
type RawStatRecord map[string]int64

// StatVector is the normalized form of a RawStatRecord.
type StatVector map[StatKey]int64

// Get returns the value for key, or 0 when absent.
func (v StatVector) Get(key StatKey) int64 {
	return v[key]
}

// Clone returns an independent copy of the vector.
func (v StatVector) Clone() StatVector {
	if v == nil {
		return nil
	}
	out := make(StatVector, len(v))
	for key, value := range v {
		out[key] = value
	}
	return out
}

// StatsConfig is the data definition for a StatsSystem type.
type StatsConfig struct {
	// StatsDir points at the game server's world/stats directory. Empty disables file sourced stats.
	StatsDir string `json:"stats_dir,omitempty" yaml:"stats_dir,omitempty"`
	// ListPageSize bounds a single player listing query.
	ListPageSize int `json:"list_page_size,omitempty" yaml:"list_page_size,omitempty"`
}

// StatUpdateOperator selects how a StatUpdate is applied to the stored counter.
type StatUpdateOperator int

const (
	StatUpdateOperatorSet StatUpdateOperator = iota
	StatUpdateOperatorDelta
	StatUpdateOperatorMin
	StatUpdateOperatorMax
)

type StatUpdate struct {
	Name     string             `json:"name"`
	Value    int64              `json:"value"`
	Operator StatUpdateOperator `json:"operator"`
}

type StatUpdateRequest struct {
	PlayerID string        `json:"player_id,omitempty"`
	Updates  []*StatUpdate `json:"updates"`
}

// RecordProvider returns the raw stat counters for a player. A player without data yields an empty record.
type RecordProvider interface {
	FetchRawStats(ctx context.Context, playerID string) (RawStatRecord, error)
}

// PlayerLister enumerates the players a provider holds data for.
type PlayerLister interface {
	ListPlayerIDs(ctx context.Context) ([]string, error)
}

// A StatsSystem stores raw counters reported by the game server.
type StatsSystem interface {
	System
	RecordProvider
	PlayerLister

	// List the raw counters for one or more players.
	List(ctx context.Context, logger runtime.Logger, playerIDs []string) (stats map[string]RawStatRecord, err error)

	// Update raw counters for a player.
	Update(ctx context.Context, logger runtime.Logger, playerID string, updates []*StatUpdate) (stats RawStatRecord, err error)
}
