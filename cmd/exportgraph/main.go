package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/temcen/recurate/internal/app"
	"github.com/temcen/recurate/internal/config"
	"github.com/temcen/recurate/internal/database"
	"github.com/temcen/recurate/internal/graph"
	"github.com/temcen/recurate/internal/services"
	"github.com/temcen/recurate/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	limit := flag.Int("limit", cfg.Map.DefaultLimit, "number of most popular titles to export")
	neighbors := flag.Int("neighbors", cfg.Map.DefaultNeighbors, "similar titles per node")
	batch := flag.Int("batch", 500, "rows per UNWIND batch")
	flag.Parse()

	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	if db.Neo4j == nil {
		log.Fatalf("neo4j.url is not configured")
	}

	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		log.Fatalf("Failed to load schemas: %v", err)
	}
	corpus, err := app.LoadCorpus(ctx, cfg, db, schemas, logger)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	svc, err := services.New(cfg, logger, db, corpus)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	resp, err := svc.MapBuilder.BuildMap(ctx, *limit, *neighbors)
	if err != nil {
		log.Fatalf("Failed to build similarity map: %v", err)
	}

	if _, err := graph.NewExporter(db.Neo4j, *batch, logger).Export(ctx, resp); err != nil {
		log.Fatalf("Failed to export graph: %v", err)
	}
}
