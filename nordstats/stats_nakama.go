package nordstats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"gorm.io/gorm"
)

const (
	statsStorageCollection = "stats"
	rawStatsStorageKey     = "raw_stats"

	defaultListPageSize = 1000
)

// storedRawStats is the storage object layout of a player's raw counters.
type storedRawStats struct {
	Counters      RawStatRecord `json:"counters"`
	UpdateTimeSec int64         `json:"update_time_sec"`
}

// NakamaStatsSystem implements the StatsSystem interface using Nakama storage as the backend.
type NakamaStatsSystem struct {
	config *StatsConfig
	nk     runtime.NakamaModule
	db     *gorm.DB
	logger runtime.Logger
}

// NewNakamaStatsSystem creates a new instance of the stats system with the given configuration. The db
// handle is only used to enumerate players that have stored counters and may be nil.
func NewNakamaStatsSystem(config *StatsConfig, logger runtime.Logger, nk runtime.NakamaModule, db *gorm.DB) *NakamaStatsSystem {
	if config == nil {
		config = &StatsConfig{}
	}
	return &NakamaStatsSystem{
		config: config,
		nk:     nk,
		db:     db,
		logger: logger,
	}
}

// GetType returns the system type for the stats system.
func (s *NakamaStatsSystem) GetType() SystemType {
	return SystemTypeStats
}

// GetConfig returns the configuration for the stats system.
func (s *NakamaStatsSystem) GetConfig() any {
	return s.config
}

// FetchRawStats returns the stored counters for a player, or an empty record.
func (s *NakamaStatsSystem) FetchRawStats(ctx context.Context, playerID string) (RawStatRecord, error) {
	stored, _, err := s.getRawStats(ctx, s.logger, playerID)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.Counters == nil {
		return RawStatRecord{}, nil
	}
	return stored.Counters, nil
}

// ListPlayerIDs returns every player with stored counters.
func (s *NakamaStatsSystem) ListPlayerIDs(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return []string{}, nil
	}
	limit := s.config.ListPageSize
	if limit <= 0 {
		limit = defaultListPageSize
	}

	ids := make([]string, 0)
	for offset := 0; ; offset += limit {
		var page []string
		err := s.db.WithContext(ctx).
			Table("storage").
			Where("collection = ? AND key = ?", statsStorageCollection, rawStatsStorageKey).
			Distinct("user_id").
			Order("user_id").
			Offset(offset).
			Limit(limit).
			Pluck("user_id", &page).Error
		if err != nil {
			s.logger.Error("Failed to list players with stored stats: %v", err)
			return nil, err
		}
		ids = append(ids, page...)
		if len(page) < limit {
			return ids, nil
		}
	}
}

// List raw counters for one or more players.
func (s *NakamaStatsSystem) List(ctx context.Context, logger runtime.Logger, playerIDs []string) (map[string]RawStatRecord, error) {
	result := make(map[string]RawStatRecord, len(playerIDs))
	for _, playerID := range playerIDs {
		stored, _, err := s.getRawStats(ctx, logger, playerID)
		if err != nil {
			logger.Error("Failed to get stats for user %s: %v", playerID, err)
			return nil, err
		}
		if stored == nil || stored.Counters == nil {
			result[playerID] = RawStatRecord{}
			continue
		}
		result[playerID] = stored.Counters
	}
	return result, nil
}

// Update raw counters for a player.
func (s *NakamaStatsSystem) Update(ctx context.Context, logger runtime.Logger, playerID string, updates []*StatUpdate) (RawStatRecord, error) {
	stored, version, err := s.getRawStats(ctx, logger, playerID)
	if err != nil {
		logger.Error("Failed to get stats for user %s: %v", playerID, err)
		return nil, err
	}
	if stored == nil {
		stored = &storedRawStats{}
	}
	if stored.Counters == nil {
		stored.Counters = make(RawStatRecord)
	}

	// Applied in request order so a SET followed by a DELTA on the same counter is meaningful.
	for _, upd := range updates {
		if upd == nil || upd.Name == "" {
			continue
		}
		current, exists := stored.Counters[upd.Name]
		switch upd.Operator {
		case StatUpdateOperatorDelta:
			stored.Counters[upd.Name] = current + upd.Value
		case StatUpdateOperatorMin:
			if !exists || upd.Value < current {
				stored.Counters[upd.Name] = upd.Value
			}
		case StatUpdateOperatorMax:
			if !exists || upd.Value > current {
				stored.Counters[upd.Name] = upd.Value
			}
		default:
			stored.Counters[upd.Name] = upd.Value
		}
	}
	stored.UpdateTimeSec = time.Now().Unix()

	if err := s.saveRawStats(ctx, logger, playerID, stored, version); err != nil {
		logger.Error("Failed to save stats for user %s: %v", playerID, err)
		return nil, err
	}
	return stored.Counters, nil
}

// Helper: getRawStats fetches the stored counters and their storage version for a player.
func (s *NakamaStatsSystem) getRawStats(ctx context.Context, logger runtime.Logger, playerID string) (*storedRawStats, string, error) {
	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{
		{
			Collection: statsStorageCollection,
			Key:        rawStatsStorageKey,
			UserID:     playerID,
		},
	})
	if err != nil {
		logger.Error("Failed to read user stats: %v", err)
		return nil, "", err
	}
	if len(objects) == 0 || objects[0] == nil || objects[0].Value == "" {
		return nil, "", nil
	}

	var raw struct {
		Counters      map[string]any `json:"counters"`
		UpdateTimeSec int64          `json:"update_time_sec"`
	}
	if err := json.Unmarshal([]byte(objects[0].Value), &raw); err != nil {
		logger.Error("Failed to unmarshal user stats: %v", err)
		return nil, "", err
	}
	return &storedRawStats{
		Counters:      CoerceRawStats(raw.Counters),
		UpdateTimeSec: raw.UpdateTimeSec,
	}, objects[0].Version, nil
}

// Helper: saveRawStats writes the counters back, guarded by the version that was read.
func (s *NakamaStatsSystem) saveRawStats(ctx context.Context, logger runtime.Logger, playerID string, stored *storedRawStats, version string) error {
	data, err := json.Marshal(stored)
	if err != nil {
		logger.Error("Failed to marshal user stats: %v", err)
		return err
	}
	if version == "" {
		version = "*"
	}
	_, err = s.nk.StorageWrite(ctx, []*runtime.StorageWrite{
		{
			Collection:      statsStorageCollection,
			Key:             rawStatsStorageKey,
			UserID:          playerID,
			Value:           string(data),
			Version:         version,
			PermissionRead:  runtime.STORAGE_PERMISSION_OWNER_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		},
	})
	if err != nil {
		logger.Error("Failed to write user stats: %v", err)
		return err
	}
	return nil
}
