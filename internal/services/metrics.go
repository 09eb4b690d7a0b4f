package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Metrics groups the Prometheus collectors of the recommendation services.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	unknownSeeds    prometheus.Counter
	mapCache        *prometheus.CounterVec
	catalogInfo     *prometheus.GaugeVec
}

// NewMetrics registers collectors with reg. Collectors that are already
// registered are reused, so several instances can share one registry.
func NewMetrics(reg prometheus.Registerer, logger *logrus.Logger) *Metrics {
	m := &Metrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recurate_operation_duration_seconds",
			Help:    "Duration of recommendation and map operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		unknownSeeds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recurate_unknown_seed_ids_total",
			Help: "Seed ids that did not resolve to a catalog item",
		}),
		mapCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recurate_map_cache_requests_total",
			Help: "Map cache lookups by result",
		}, []string{"result"}),
		catalogInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "recurate_catalog_size",
			Help: "Catalog and feature matrix dimensions",
		}, []string{"dimension"}),
	}

	m.requestDuration = register(reg, logger, m.requestDuration)
	m.unknownSeeds = register(reg, logger, m.unknownSeeds)
	m.mapCache = register(reg, logger, m.mapCache)
	m.catalogInfo = register(reg, logger, m.catalogInfo)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, logger *logrus.Logger, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("Failed to register metric")
	}
	return c
}

// ObserveCorpus records the fitted catalog dimensions.
func (m *Metrics) ObserveCorpus(c *Corpus) {
	rows, cols := c.Features.Matrix.Dims()
	m.catalogInfo.WithLabelValues("items").Set(float64(rows))
	m.catalogInfo.WithLabelValues("feature_columns").Set(float64(cols))
	m.catalogInfo.WithLabelValues("genres").Set(float64(len(c.Features.Genres)))
	m.catalogInfo.WithLabelValues("tag_terms").Set(float64(len(c.Features.Terms)))
}
