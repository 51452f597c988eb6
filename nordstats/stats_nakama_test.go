package nordstats

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNakamaStatsSystem_UpdateAndFetch(t *testing.T) {
	ctx := context.Background()
	logger := &mockLogger{}
	nk := newTestNakama(t)
	stats := NewNakamaStatsSystem(nil, logger, nk, nil)

	raw, err := stats.FetchRawStats(ctx, playerA)
	require.NoError(t, err)
	assert.Empty(t, raw)

	raw, err = stats.Update(ctx, logger, playerA, []*StatUpdate{
		{Name: "use_dirt", Value: 100, Operator: StatUpdateOperatorSet},
		{Name: "use_dirt", Value: 5, Operator: StatUpdateOperatorDelta},
		{Name: "kill_any", Value: 3, Operator: StatUpdateOperatorMax},
		{Name: "custom_minecraft_deaths", Value: 9, Operator: StatUpdateOperatorMin},
		nil,
		{Name: "", Value: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, RawStatRecord{"use_dirt": 105, "kill_any": 3, "custom_minecraft_deaths": 9}, raw)

	raw, err = stats.Update(ctx, logger, playerA, []*StatUpdate{
		{Name: "kill_any", Value: 2, Operator: StatUpdateOperatorMax},
		{Name: "custom_minecraft_deaths", Value: 4, Operator: StatUpdateOperatorMin},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, raw["kill_any"])
	assert.EqualValues(t, 4, raw["custom_minecraft_deaths"])

	fetched, err := stats.FetchRawStats(ctx, playerA)
	require.NoError(t, err)
	assert.Equal(t, raw, fetched)

	listed, err := stats.List(ctx, logger, []string{playerA, playerB})
	require.NoError(t, err)
	assert.Equal(t, raw, listed[playerA])
	assert.Empty(t, listed[playerB])
}

func TestNakamaStatsSystem_StorageFailures(t *testing.T) {
	ctx := context.Background()
	logger := &mockLogger{}
	nk := newTestNakama(t)
	stats := NewNakamaStatsSystem(nil, logger, nk, nil)

	nk.failWrite = true
	_, err := stats.Update(ctx, logger, playerA, []*StatUpdate{{Name: "use_dirt", Value: 1}})
	assert.Error(t, err)

	nk.failWrite = false
	nk.failRead = true
	_, err = stats.FetchRawStats(ctx, playerA)
	assert.Error(t, err)
}

func TestNakamaStatsSystem_CoercesStoredValues(t *testing.T) {
	ctx := context.Background()
	nk := newTestNakama(t)
	// Written by an older plugin version with float and string counters.
	_, err := nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection: statsStorageCollection,
		Key:        rawStatsStorageKey,
		UserID:     playerA,
		Value:      `{"counters":{"use_dirt":12.7,"kill_any":"4","broken":"x"}}`,
	}})
	require.NoError(t, err)

	raw, err := NewNakamaStatsSystem(nil, &mockLogger{}, nk, nil).FetchRawStats(ctx, playerA)
	require.NoError(t, err)
	assert.Equal(t, RawStatRecord{"use_dirt": 12, "kill_any": 4, "broken": 0}, raw)
}

type storageRow struct {
	Collection string
	Key        string
	UserID     string
}

func (storageRow) TableName() string {
	return "storage"
}

func TestNakamaStatsSystem_ListPlayerIDsPages(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&storageRow{}))
	require.NoError(t, db.Create(&[]storageRow{
		{Collection: statsStorageCollection, Key: rawStatsStorageKey, UserID: playerC},
		{Collection: statsStorageCollection, Key: rawStatsStorageKey, UserID: playerA},
		{Collection: statsStorageCollection, Key: rawStatsStorageKey, UserID: playerB},
		{Collection: "wallet", Key: rawStatsStorageKey, UserID: "other"},
	}).Error)

	stats := NewNakamaStatsSystem(&StatsConfig{ListPageSize: 2}, &mockLogger{}, newTestNakama(t), db)
	ids, err := stats.ListPlayerIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{playerA, playerB, playerC}, ids)

	ids, err = NewNakamaStatsSystem(nil, &mockLogger{}, newTestNakama(t), nil).ListPlayerIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
