package nordstats

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"golang.org/x/sync/errgroup"
)

const defaultSyncConcurrency = 20

// PlayerSyncResult reports what a single player sync did.
type PlayerSyncResult struct {
	PlayerID        string `json:"player_id"`
	Evaluated       int    `json:"evaluated"`
	Inserted        int    `json:"inserted"`
	AlreadyUnlocked int    `json:"already_unlocked"`
	MissingTiers    int    `json:"missing_tiers"`
}

// SyncError is a per-player failure collected by a batch operation.
type SyncError struct {
	PlayerID string `json:"player_id"`
	Error    string `json:"error"`
}

// SyncResult aggregates a batch sync. Success + Failed + Skipped == Total.
type SyncResult struct {
	Success int          `json:"success"`
	Failed  int          `json:"failed"`
	Total   int          `json:"total"`
	Skipped int          `json:"skipped,omitempty"`
	Errors  []*SyncError `json:"errors"`
}

// StatsSource provides the normalized stats of a player.
type StatsSource interface {
	GetStats(ctx context.Context, playerID string) (StatVector, error)
}

// SyncEngine reconciles the evaluated should-have set of a player with the persisted unlock records.
// Unlocks are only ever added.
type SyncEngine struct {
	system      System
	source      StatsSource
	evaluator   *AchievementEvaluator
	store       TierStore
	concurrency int
	now         func() time.Time
	locks       *keyedMutex

	publishersMu sync.RWMutex
	publishers   []Publisher
}

func NewSyncEngine(system System, source StatsSource, evaluator *AchievementEvaluator, store TierStore, concurrency int) *SyncEngine {
	if concurrency <= 0 {
		concurrency = defaultSyncConcurrency
	}
	return &SyncEngine{
		system:      system,
		source:      source,
		evaluator:   evaluator,
		store:       store,
		concurrency: concurrency,
		now:         time.Now,
		locks:       newKeyedMutex(),
	}
}

func (e *SyncEngine) AddPublisher(publisher Publisher) {
	e.publishersMu.Lock()
	e.publishers = append(e.publishers, publisher)
	e.publishersMu.Unlock()
}

func (e *SyncEngine) sendPublisherEvents(ctx context.Context, logger runtime.Logger, userID string, events []*PublisherEvent) {
	if len(events) == 0 {
		return
	}
	e.publishersMu.RLock()
	publishers := e.publishers
	e.publishersMu.RUnlock()
	for _, publisher := range publishers {
		publisher.Send(ctx, logger, userID, events)
	}
}

// SyncPlayer inserts an unlock record for every evaluated tier the player has no record of. A tier with
// no persisted row is logged and skipped. A record inserted concurrently elsewhere counts as already
// unlocked.
func (e *SyncEngine) SyncPlayer(ctx context.Context, logger runtime.Logger, playerID string) (*PlayerSyncResult, error) {
	if playerID == "" {
		return nil, ErrBadInput
	}
	unlock := e.locks.lock(playerID)
	defer unlock()

	stats, err := e.source.GetStats(ctx, playerID)
	if err != nil {
		return nil, err
	}

	shouldHave := e.evaluator.Evaluate(stats)
	result := &PlayerSyncResult{PlayerID: playerID, Evaluated: len(shouldHave)}
	events := make([]*PublisherEvent, 0)

	for _, unlocked := range shouldHave {
		row, err := e.store.FindTierRow(ctx, unlocked.DefinitionID, unlocked.Tier.TierNumber)
		if err != nil {
			logger.Error("Failed to look up tier row %s/%d: %v", unlocked.DefinitionID, unlocked.Tier.TierNumber, err)
			return nil, err
		}
		if row == nil {
			logger.Warn("%v: %s tier %d, skipping for player %s", ErrMappingNotFound, unlocked.DefinitionID, unlocked.Tier.TierNumber, playerID)
			result.MissingTiers++
			continue
		}

		exists, err := e.store.RecordExists(ctx, playerID, row.ID)
		if err != nil {
			logger.Error("Failed to check unlock record for player %s: %v", playerID, err)
			return nil, err
		}
		if exists {
			result.AlreadyUnlocked++
			continue
		}

		err = e.store.InsertRecord(ctx, playerID, row.ID)
		if errors.Is(err, ErrDuplicateRecord) {
			result.AlreadyUnlocked++
			continue
		}
		if err != nil {
			logger.Error("Failed to insert unlock record for player %s: %v", playerID, err)
			return nil, err
		}
		result.Inserted++

		if def, ok := e.evaluator.Definition(unlocked.DefinitionID); ok {
			events = append(events, achievementUnlockedEvent(e.system, unlocked, def, e.now().Unix()))
		}
	}

	e.sendPublisherEvents(ctx, logger, playerID, events)
	return result, nil
}

// SyncAll syncs every player with bounded concurrency. Player failures are collected and never abort
// the batch. Once ctx is done no further players are started; players already syncing finish.
func (e *SyncEngine) SyncAll(ctx context.Context, logger runtime.Logger, playerIDs []string) *SyncResult {
	ids := normalizePlayerIDs(playerIDs)
	result := &SyncResult{Total: len(ids), Errors: make([]*SyncError, 0)}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	itemCtx := context.WithoutCancel(ctx)
	for i, id := range ids {
		if ctx.Err() != nil {
			mu.Lock()
			result.Skipped = len(ids) - i
			mu.Unlock()
			break
		}
		g.Go(func() error {
			_, err := e.SyncPlayer(itemCtx, logger, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, &SyncError{PlayerID: id, Error: err.Error()})
				return nil
			}
			result.Success++
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("Achievement sync finished: %d succeeded, %d failed, %d skipped of %d", result.Success, result.Failed, result.Skipped, result.Total)
	return result
}

// keyedMutex serializes work per key and drops locks nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
