// One-shot stage-to-production synchronization run. Exits non-zero unless
// every table in the sync map was promoted and every view refreshed.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"nflpred/pipeline/internal/cache"
	"nflpred/pipeline/internal/config"
	"nflpred/pipeline/internal/repository"
	"nflpred/pipeline/internal/syncer"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	parallel := flag.Int("parallel", 0, "worker count for table sync (0 = use SYNC_PARALLELISM)")
	configPath := flag.String("config", "", "path to sync map YAML (default SYNC_CONFIG)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg := config.MustLoad()
	if *parallel > 0 {
		cfg.SyncParallelism = *parallel
	}
	if *configPath != "" {
		cfg.SyncConfigPath = *configPath
	}

	syncMap, err := config.LoadSyncConfig(cfg.SyncConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load sync config")
	}

	ctx := context.Background()

	db, err := repository.NewDatabase(ctx, repository.Config{
		DSN:              cfg.DatabaseDSN(),
		LockTimeout:      cfg.LockTimeout,
		StatementTimeout: cfg.StatementTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	redisCache, err := cache.NewRedisCache(ctx, cache.Config{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable - run status will not be published")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	orchestrator := syncer.NewOrchestrator(db, redisCache, cfg, syncMap)

	report, err := orchestrator.Sync(ctx)
	if err != nil {
		os.Exit(1)
	}

	for _, t := range report.Tables {
		log.Info().
			Str("table", t.Table).
			Str("strategy", t.Strategy).
			Int64("staged", t.StagedRows).
			Int64("written", t.Written).
			Msg("Synced")
	}
}
