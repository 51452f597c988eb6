package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"nordicsmc/nordstats"
)

// noinspection GoUnusedExportedFunction
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	initStart := time.Now()

	logger.Info("Loading Nordics stats Nakama plugin...")

	platform, err := nordstats.Init(ctx, logger, db, nk, initializer,
		nordstats.WithStatsSystem("config/stats.yaml", true),
		nordstats.WithCacheSystem("config/cache.yaml", true),
		nordstats.WithLevelingSystem("config/leveling.yaml", true),
		nordstats.WithAchievementsSystem("config/achievements.yaml", true),
	)
	if err != nil {
		logger.Error("Failed to initialize stats platform: %v", err)
		return err
	}
	platform.AddPublisher(nordstats.NewNotificationPublisher(nk))

	if err := registerShutdown(initializer, platform); err != nil {
		logger.Error("Failed to register shutdown hook: %v", err)
		return err
	}

	logger.Info("Nordics stats Nakama plugin loaded in '%d' msec.", time.Since(initStart).Milliseconds())
	return nil
}

// registerShutdown closes the platform when the server shuts down.
func registerShutdown(initializer runtime.Initializer, platform nordstats.Platform) error {
	return initializer.RegisterShutdown(func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) {
		if err := platform.Close(); err != nil {
			logger.Warn("Failed to close stats platform: %v", err)
		}
	})
}

// main is never called: Nakama loads this package with -buildmode=plugin and invokes InitModule.
// It exists so that `go build ./...` can link the package.
func main() {}
