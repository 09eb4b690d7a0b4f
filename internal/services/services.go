package services

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/config"
	"github.com/temcen/recurate/internal/database"
)

type Services struct {
	Corpus      *Corpus
	Recommender *Recommender
	MapBuilder  *MapBuilder
	Health      *HealthService
	Metrics     *Metrics
}

// New wires the request services around an already fitted corpus.
func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, corpus *Corpus) (*Services, error) {
	mode, ok := ParseSharedAttributeMode(cfg.Recommendation.SharedAttributes)
	if !ok {
		return nil, fmt.Errorf("unknown recommendation.shared_attributes %q", cfg.Recommendation.SharedAttributes)
	}

	metrics := NewMetrics(prometheus.DefaultRegisterer, logger)
	metrics.ObserveCorpus(corpus)

	var cache MapCache
	if db.Redis != nil {
		cache = NewRedisMapCache(db.Redis, cfg.Redis.MapTTL, logger)
	}

	seed := cfg.Recommendation.Seed
	if seed == 0 {
		seed = DefaultLayoutSeed
	}

	return &Services{
		Corpus:      corpus,
		Recommender: NewRecommender(corpus, mode, metrics, logger),
		MapBuilder:  NewMapBuilder(corpus, cache, seed, metrics, logger),
		Health:      NewHealthService(logger, db, corpus),
		Metrics:     metrics,
	}, nil
}
