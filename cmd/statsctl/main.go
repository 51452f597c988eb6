// Command statsctl runs the stats pipeline over a world's vanilla stats files, outside the game server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/heroiclabs/nakama-common/runtime"
	"go.uber.org/zap"

	"nordicsmc/nordstats"
)

func main() {
	statsDir := flag.String("stats-dir", "world/stats", "Directory holding <uuid>.json stats files")
	dbPath := flag.String("db", "statsctl.db", "SQLite file holding achievement unlock records")
	players := flag.String("players", "", "Comma separated player ids (default: every player in stats-dir)")
	definitions := flag.String("achievements", "", "Achievements config file, JSON or YAML (default: built-in set)")
	concurrency := flag.Int("concurrency", 20, "Players processed in parallel")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] sync|preload|profile ID|leaderboard STAT [LIMIT]|level XP\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	zapConfig := zap.NewProductionConfig()
	if *verbose {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	logger := nordstats.NewZapLogger(zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, flag.Args(), options{
		statsDir:    *statsDir,
		dbPath:      *dbPath,
		players:     *players,
		definitions: *definitions,
		concurrency: *concurrency,
	}); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

type options struct {
	statsDir    string
	dbPath      string
	players     string
	definitions string
	concurrency int
}

func run(ctx context.Context, logger runtime.Logger, args []string, opts options) error {
	leveling, err := nordstats.NewNakamaLevelingSystem(nil)
	if err != nil {
		return err
	}
	if args[0] == "level" {
		if len(args) < 2 {
			return fmt.Errorf("level requires an XP amount")
		}
		xp, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid XP %q: %w", args[1], err)
		}
		return printJSON(leveling.CalculateLevelInfo(xp))
	}

	provider := nordstats.NewFileRecordProvider(opts.statsDir)
	cache := nordstats.NewCacheManager(&nordstats.CacheConfig{PreloadConcurrency: opts.concurrency}, logger, provider)
	defer cache.Close()

	ids, err := playerIDs(ctx, provider, opts.players)
	if err != nil {
		return err
	}

	switch args[0] {
	case "preload":
		result := cache.Preload(ctx, ids)
		stats := cache.Stats()
		logger.Info("Preloaded %d/%d players (%d failed), cache holds %d entries using %s",
			result.Loaded, result.Total, result.Failed, stats.EntryCount, humanize.Bytes(uint64(stats.EstimatedMemoryBytes)))
		return printJSON(result)
	}

	store, err := nordstats.OpenSQLiteTierStore(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	config := &nordstats.AchievementsConfig{SyncConcurrency: opts.concurrency}
	if opts.definitions != "" {
		data, err := os.ReadFile(opts.definitions)
		if err != nil {
			return err
		}
		if err := nordstats.DecodeConfig(opts.definitions, data, config); err != nil {
			return err
		}
	}
	achievements, err := nordstats.NewNakamaAchievementsSystem(config, cache, store, provider, leveling)
	if err != nil {
		return err
	}
	if err := store.SeedTiers(ctx, achievements.Definitions()); err != nil {
		return err
	}

	switch args[0] {
	case "sync":
		return printJSON(achievements.SyncAll(ctx, logger, ids))
	case "profile":
		if len(args) < 2 {
			return fmt.Errorf("profile requires a player id")
		}
		profile, err := achievements.GetProfile(ctx, logger, args[1])
		if err != nil {
			return err
		}
		return printJSON(profile)
	case "leaderboard":
		if len(args) < 2 {
			return fmt.Errorf("leaderboard requires a stat key")
		}
		limit := 10
		if len(args) > 2 {
			if limit, err = strconv.Atoi(args[2]); err != nil {
				return fmt.Errorf("invalid limit %q: %w", args[2], err)
			}
		}
		board, err := achievements.GetLeaderboard(ctx, logger, nordstats.StatKey(args[1]), limit)
		if err != nil {
			return err
		}
		return printJSON(board)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func playerIDs(ctx context.Context, lister nordstats.PlayerLister, players string) ([]string, error) {
	if players == "" {
		return lister.ListPlayerIDs(ctx)
	}
	return strings.Split(players, ","), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
