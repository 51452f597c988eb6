package nordstats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// TierRow is the persisted identity of one tier of a definition.
type TierRow struct {
	ID           string `json:"id"`
	DefinitionID string `json:"definition_id"`
	TierNumber   int    `json:"tier_number"`
}

// TierStore persists achievement tier rows and the unlock records that reference them.
type TierStore interface {
	// FindTierRow returns nil and no error when the tier has no row.
	FindTierRow(ctx context.Context, definitionID string, tierNumber int) (*TierRow, error)
	RecordExists(ctx context.Context, playerID, tierRowID string) (bool, error)
	// InsertRecord returns ErrDuplicateRecord when the record already exists.
	InsertRecord(ctx context.Context, playerID, tierRowID string) error
}

// AchievementTierRow is the gorm model of a TierRow.
type AchievementTierRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	DefinitionID string `gorm:"size:128;not null;uniqueIndex:idx_achievement_tier,priority:1"`
	TierNumber   int    `gorm:"not null;uniqueIndex:idx_achievement_tier,priority:2"`
	Name         string `gorm:"size:255"`
	Threshold    int64
	Points       int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (AchievementTierRow) TableName() string {
	return "nordstats_achievement_tiers"
}

// UnlockedAchievementRecord is a (player, tier row) unlock. The unique index makes inserts idempotent
// across processes.
type UnlockedAchievementRecord struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	PlayerID   string    `gorm:"size:36;not null;uniqueIndex:idx_unlocked_player_tier,priority:1" json:"player_id"`
	TierID     string    `gorm:"size:36;not null;uniqueIndex:idx_unlocked_player_tier,priority:2" json:"tier_id"`
	UnlockedAt time.Time `gorm:"not null" json:"unlocked_at"`
}

func (UnlockedAchievementRecord) TableName() string {
	return "nordstats_unlocked_achievements"
}

// tierRowNamespace seeds the deterministic tier row ids, so every node derives the same id for a tier.
var tierRowNamespace = uuid.MustParse("6f1c7a52-2d4e-4b8e-9a53-0c2f4f1d8e27")

// TierRowID returns the deterministic row id of a definition tier.
func TierRowID(definitionID string, tierNumber int) string {
	return uuid.NewSHA1(tierRowNamespace, []byte(definitionID+":"+strconv.Itoa(tierNumber))).String()
}

// GormTierStore implements TierStore on any gorm dialect.
type GormTierStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormTierStore(db *gorm.DB) *GormTierStore {
	return &GormTierStore{db: db, now: time.Now}
}

// OpenPostgresTierStore opens a store on an existing Postgres connection pool, such as the game server's.
func OpenPostgresTierStore(sqlDB *sql.DB) (*GormTierStore, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres tier store: %w", err)
	}
	return NewGormTierStore(db), nil
}

// OpenSQLiteTierStore opens a file backed store. Use ":memory:" for a throwaway store.
func OpenSQLiteTierStore(path string) (*GormTierStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite tier store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	return NewGormTierStore(db), nil
}

// DB exposes the underlying handle.
func (s *GormTierStore) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates the store tables.
func (s *GormTierStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&AchievementTierRow{}, &UnlockedAchievementRecord{})
}

// SeedTiers upserts one row per tier of every definition.
func (s *GormTierStore) SeedTiers(ctx context.Context, definitions []*AchievementDefinition) error {
	rows := make([]*AchievementTierRow, 0)
	now := s.now()
	for _, def := range definitions {
		for _, tier := range def.Tiers {
			rows = append(rows, &AchievementTierRow{
				ID:           TierRowID(def.ID, tier.TierNumber),
				DefinitionID: def.ID,
				TierNumber:   tier.TierNumber,
				Name:         tier.Name,
				Threshold:    tier.Threshold,
				Points:       tier.Points,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "threshold", "points", "updated_at"}),
	}).CreateInBatches(&rows, 200).Error
}

func (s *GormTierStore) FindTierRow(ctx context.Context, definitionID string, tierNumber int) (*TierRow, error) {
	var row AchievementTierRow
	err := s.db.WithContext(ctx).
		Where("definition_id = ? AND tier_number = ?", definitionID, tierNumber).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &TierRow{ID: row.ID, DefinitionID: row.DefinitionID, TierNumber: row.TierNumber}, nil
}

func (s *GormTierStore) RecordExists(ctx context.Context, playerID, tierRowID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&UnlockedAchievementRecord{}).
		Where("player_id = ? AND tier_id = ?", playerID, tierRowID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormTierStore) InsertRecord(ctx context.Context, playerID, tierRowID string) error {
	record := &UnlockedAchievementRecord{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		TierID:     tierRowID,
		UnlockedAt: s.now().UTC(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "tier_id"}},
		DoNothing: true,
	}).Create(record)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRecord
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateRecord
	}
	return nil
}

// ListRecords returns a player's unlock records, oldest first.
func (s *GormTierStore) ListRecords(ctx context.Context, playerID string) ([]*UnlockedAchievementRecord, error) {
	var records []*UnlockedAchievementRecord
	err := s.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("unlocked_at, tier_id").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close releases the connection pool. Stores opened on a borrowed pool must not be closed.
func (s *GormTierStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
