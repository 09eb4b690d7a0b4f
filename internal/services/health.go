package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/database"
)

type HealthService struct {
	logger *logrus.Logger
	db     *database.Database
	corpus *Corpus

	healthCheckStatus *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]string      `json:"services"`
	Critical    []string               `json:"critical_failures,omitempty"`
	NonCritical []string               `json:"non_critical_failures,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

func NewHealthService(logger *logrus.Logger, db *database.Database, corpus *Corpus) *HealthService {
	hs := &HealthService{
		logger: logger,
		db:     db,
		corpus: corpus,
	}

	hs.healthCheckStatus = register(prometheus.DefaultRegisterer, logger, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"}))

	return hs
}

// CheckHealth reports the catalog as the only critical dependency; the
// optional stores only degrade the status.
func (s *HealthService) CheckHealth() *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Services:  make(map[string]string),
		Details:   make(map[string]interface{}),
	}

	if s.corpus == nil || s.corpus.Catalog.Len() == 0 {
		status.Services["catalog"] = "unhealthy"
		status.Critical = append(status.Critical, "catalog")
		s.updateHealthMetrics("catalog", false)
	} else {
		status.Services["catalog"] = "healthy"
		status.Details["catalog_items"] = s.corpus.Catalog.Len()
		status.Details["feature_columns"] = s.corpus.Features.Columns()
		s.updateHealthMetrics("catalog", true)
	}

	for name, check := range s.optionalChecks() {
		if err := check(); err != nil {
			status.Services[name] = "unhealthy"
			status.NonCritical = append(status.NonCritical, name)
			s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", name)
			s.updateHealthMetrics(name, false)
		} else {
			status.Services[name] = "healthy"
			s.updateHealthMetrics(name, true)
		}
	}

	switch {
	case len(status.Critical) > 0:
		status.Status = "unhealthy"
	case len(status.NonCritical) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	return status
}

func (s *HealthService) optionalChecks() map[string]func() error {
	checks := make(map[string]func() error)
	if s.db == nil {
		return checks
	}
	if s.db.PG != nil {
		checks["postgresql"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.db.PG.Ping(ctx)
		}
	}
	if s.db.Redis != nil {
		checks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.db.Redis.Ping(ctx).Err()
		}
	}
	if s.db.Neo4j != nil {
		checks["neo4j"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.db.Neo4j.VerifyConnectivity(ctx)
		}
	}
	return checks
}

func (s *HealthService) updateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
}
