package nordstats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/robfig/cron/v3"
)

const (
	JobAchievementSync = "achievement_sync"
	JobCachePreload    = "cache_preload"
)

// Scheduler runs the periodic batch jobs. A run still in progress when its next tick fires is not
// overlapped; the tick is skipped.
type Scheduler struct {
	logger     runtime.Logger
	cronParser cron.Parser
	cron       *cron.Cron

	mu   sync.Mutex
	jobs map[string]cron.EntryID
	// ctx is cancelled by Stop so running batches stop starting new players.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(logger runtime.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:     logger,
		cronParser: parser,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		jobs:   make(map[string]cron.EntryID),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) schedule(name, spec string, run func(ctx context.Context)) error {
	schedule, err := s.cronParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
	}
	s.jobs[name] = s.cron.Schedule(schedule, cron.FuncJob(func() {
		run(s.ctx)
	}))
	s.logger.Info("Scheduled %s with %q", name, spec)
	return nil
}

// ScheduleSync runs an achievement sync of every listed player on the cron spec.
func (s *Scheduler) ScheduleSync(spec string, achievements AchievementsSystem) error {
	return s.schedule(JobAchievementSync, spec, func(ctx context.Context) {
		s.RunSync(ctx, achievements)
	})
}

// SchedulePreload warms the stats cache for every listed player on the cron spec.
func (s *Scheduler) SchedulePreload(spec string, cache *CacheManager, lister PlayerLister) error {
	return s.schedule(JobCachePreload, spec, func(ctx context.Context) {
		s.RunPreload(ctx, cache, lister)
	})
}

func (s *Scheduler) RunSync(ctx context.Context, achievements AchievementsSystem) *SyncResult {
	start := time.Now()
	result := achievements.SyncAll(ctx, s.logger, nil)
	s.logger.Info("Scheduled achievement sync took %v: %d/%d succeeded", time.Since(start), result.Success, result.Total)
	return result
}

func (s *Scheduler) RunPreload(ctx context.Context, cache *CacheManager, lister PlayerLister) *PreloadResult {
	ids, err := lister.ListPlayerIDs(ctx)
	if err != nil {
		s.logger.Error("Failed to list players for preload: %v", err)
		return &PreloadResult{Errors: []*SyncError{{Error: err.Error()}}}
	}
	result := cache.Preload(ctx, ids)
	s.logger.Info("Scheduled preload loaded %d/%d players", result.Loaded, result.Total)
	return result
}

// NextRun returns the next activation of a job, or the zero time when it is not scheduled or the
// scheduler is not started.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for running jobs to finish. Running batches stop starting players.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
