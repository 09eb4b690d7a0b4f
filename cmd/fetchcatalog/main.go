package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/temcen/recurate/internal/anilist"
	"github.com/temcen/recurate/internal/app"
	"github.com/temcen/recurate/internal/catalog"
	"github.com/temcen/recurate/internal/config"
	"github.com/temcen/recurate/internal/database"
	"github.com/temcen/recurate/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := anilist.NewClient(anilist.Options{
		URL:       cfg.AniList.URL,
		PerPage:   cfg.AniList.PerPage,
		MaxPages:  cfg.AniList.MaxPages,
		Interval:  cfg.AniList.Interval,
		LongPause: cfg.AniList.LongPause,
	}, logger)

	records, err := client.FetchAll(ctx)
	if err != nil {
		// A status error ends the crawl; keep what was already fetched.
		if !errors.Is(err, anilist.ErrUnexpectedStatus) || len(records) == 0 {
			log.Fatalf("Failed to fetch catalog: %v", err)
		}
		logger.WithError(err).Warn("AniList fetch stopped early")
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode catalog: %v", err)
	}
	if err := os.WriteFile(cfg.AniList.Output, data, 0o644); err != nil {
		log.Fatalf("Failed to write catalog: %v", err)
	}
	logger.WithField("path", cfg.AniList.Output).Infof("Fetched %d anime", len(records))

	if cfg.Catalog.Source != "postgres" {
		return
	}

	db, err := database.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	if db.PG == nil {
		log.Fatalf("catalog.source is postgres but database.url is not set")
	}

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		log.Fatalf("Failed to load schemas: %v", err)
	}
	if err := catalog.NewPostgresSource(db.PG, cfg.Catalog.Table, validator, logger).Replace(ctx, records); err != nil {
		log.Fatalf("Failed to store catalog: %v", err)
	}
}
