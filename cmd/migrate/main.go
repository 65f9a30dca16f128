// Schema migration runner for the stage and production namespaces.
//
//	migrate up          apply all pending migrations
//	migrate down [n]    roll back n migrations (default 1)
//	migrate version     print current version
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"nflpred/pipeline/internal/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"
)

func main() {
	dir := flag.String("dir", "migrations", "migrations directory")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dir migrations] up|down [n]|version")
		os.Exit(2)
	}

	cfg := config.MustLoad()

	// golang-migrate selects its pgx/v5 driver by URL scheme
	dbURL := strings.Replace(cfg.DatabaseDSN(), "postgres://", "pgx5://", 1)

	m, err := migrate.New("file://"+*dir, dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("Migrator close")
		}
	}()

	switch flag.Arg(0) {
	case "up":
		handleErr(m.Up())
		log.Info().Msg("Migrations applied")
	case "down":
		steps := 1
		if flag.NArg() > 1 {
			steps, err = strconv.Atoi(flag.Arg(1))
			if err != nil || steps < 1 {
				log.Fatal().Str("arg", flag.Arg(1)).Msg("down requires a positive step count")
			}
		}
		handleErr(m.Steps(-steps))
		log.Info().Int("steps", steps).Msg("Migrations rolled back")
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("version: none")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read version")
		}
		fmt.Printf("version: %d dirty: %t\n", version, dirty)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		os.Exit(2)
	}
}

func handleErr(err error) {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return
	}
	log.Fatal().Err(err).Msg("Migration failed")
}
