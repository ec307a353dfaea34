package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/config"
	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Msg("usage: go run scripts/run_migrations.go [up|down] [dir]")
	}

	direction := os.Args[1]
	dir := "migrations"
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}

	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Log, cfg.App)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	applied, err := database.Migrate(ctx, db, dir, direction)
	for _, name := range applied {
		log.Info().Str("file", name).Msg("migration applied")
	}
	if err != nil {
		log.Fatal().Err(err).Str("direction", direction).Msg("migration failed")
	}

	log.Info().Int("count", len(applied)).Str("direction", direction).Msg("migrations complete")
}
