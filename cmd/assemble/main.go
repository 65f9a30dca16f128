// One-shot modeling table build. With no -seasons flag it assembles every
// season present in the production games table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"nflpred/pipeline/internal/config"
	"nflpred/pipeline/internal/features"
	"nflpred/pipeline/internal/repository"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	seasonsFlag := flag.String("seasons", "", "seasons to assemble, e.g. \"2022,2023\" or \"2020-2024\" (default: all)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	seasons, err := parseSeasons(*seasonsFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -seasons flag")
	}

	cfg := config.MustLoad()

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

	total, err := db.Games.Count(ctx, cfg.ProdSchema)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count games")
	}
	log.Info().Int("games", total).Str("schema", cfg.ProdSchema).Msg("Game inventory")

	assembler := features.NewAssembler(db, cfg, syncMap)

	written, err := assembler.Assemble(ctx, seasons)
	if err != nil {
		log.Fatal().Err(err).Msg("Assembly failed")
	}

	log.Info().Int("rows", written).Msg("Modeling table written")
}

// parseSeasons accepts "2022,2023" or "2020-2024"; empty means all seasons
func parseSeasons(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if from, to, ok := strings.Cut(s, "-"); ok {
		lo, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("bad season %q", from)
		}
		hi, err := strconv.Atoi(strings.TrimSpace(to))
		if err != nil {
			return nil, fmt.Errorf("bad season %q", to)
		}
		if hi < lo {
			return nil, fmt.Errorf("range %s is backwards", s)
		}
		var out []int
		for y := lo; y <= hi; y++ {
			out = append(out, y)
		}
		return out, nil
	}

	var out []int
	for _, part := range strings.Split(s, ",") {
		y, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad season %q", part)
		}
		out = append(out, y)
	}
	return out, nil
}
