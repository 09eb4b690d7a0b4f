package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/catalog"
	"github.com/temcen/recurate/internal/config"
	"github.com/temcen/recurate/internal/database"
	"github.com/temcen/recurate/internal/handlers"
	"github.com/temcen/recurate/internal/messaging"
	"github.com/temcen/recurate/internal/middleware"
	"github.com/temcen/recurate/internal/services"
	"github.com/temcen/recurate/internal/validation"
)

type App struct {
	config    *config.Config
	logger    *logrus.Logger
	db        *database.Database
	services  *services.Services
	publisher messaging.Publisher
	handlers  *handlers.Handlers
	router    *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: NewLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	// The catalog is fitted once before serving
	corpus, err := LoadCorpus(context.Background(), cfg, db, schemas, app.logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize services
	services, err := services.New(cfg, app.logger, db, corpus)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	app.publisher = messaging.NewPublisher(cfg, app.logger)

	// Initialize handlers
	app.handlers = handlers.New(cfg, app.logger, services, app.publisher, schemas)

	// Setup router
	app.setupRouter()

	return app, nil
}

// LoadCorpus reads the configured catalog source and fits the feature
// space. Any malformed record aborts the load.
func LoadCorpus(ctx context.Context, cfg *config.Config, db *database.Database, schemas *validation.SchemaValidator, logger *logrus.Logger) (*services.Corpus, error) {
	var source catalog.Source
	switch cfg.Catalog.Source {
	case "", "file":
		source = catalog.NewFileSource(cfg.Catalog.Path, schemas, logger)
	case "postgres":
		if db == nil || db.PG == nil {
			return nil, fmt.Errorf("catalog.source is postgres but database.url is not configured")
		}
		source = catalog.NewPostgresSource(db.PG, cfg.Catalog.Table, schemas, logger)
	default:
		return nil, fmt.Errorf("unknown catalog.source %q", cfg.Catalog.Source)
	}

	start := time.Now()
	records, err := source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	cat, err := catalog.Load(records)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"records":     len(records),
		"items":       cat.Len(),
		"fingerprint": cat.Fingerprint(),
		"duration":    time.Since(start),
	}).Info("Catalog loaded")

	return services.NewCorpus(cat, cfg.Recommendation.MaxFeatures, logger)
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if err := a.publisher.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing event publisher")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func NewLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	var limiter *middleware.ClientRateLimiter
	if rl := a.config.Security.RateLimit; rl.RequestsPerSecond > 0 {
		limiter = middleware.NewClientRateLimiter(rl.RequestsPerSecond, rl.Burst)
	}

	router.GET("/", handlers.Root)

	// Health check and metrics (not rate limited)
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("")
	api.Use(middleware.RateLimit(limiter, a.logger))
	{
		api.POST("/recommend", a.handlers.Recommendation.Recommend)
		api.GET("/recommend/title", a.handlers.Recommendation.RecommendByTitle)
		api.GET("/search", a.handlers.Recommendation.Search)
		api.GET("/map", middleware.Gzip(), a.handlers.Map.Get)
	}

	a.router = router
}
