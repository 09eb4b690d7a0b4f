package services

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/catalog"
	"github.com/temcen/recurate/internal/ml"
)

// Corpus is the fitted, read-only state shared by every request: the
// catalog, its feature matrix and the cosine index over it. Row i of the
// matrix is catalog item i.
type Corpus struct {
	Catalog  *catalog.Catalog
	Features *ml.FeatureSet
	Index    *ml.CosineIndex

	// MaxFeatures is the tag vocabulary cap the features were built with.
	MaxFeatures int
}

// NewCorpus builds features and fits the index once.
func NewCorpus(cat *catalog.Catalog, maxFeatures int, logger *logrus.Logger) (*Corpus, error) {
	start := time.Now()

	features, err := ml.BuildFeatures(cat.Items(), maxFeatures)
	if err != nil {
		return nil, fmt.Errorf("failed to build features: %w", err)
	}
	index := ml.NewCosineIndex(features.Matrix)

	logger.WithFields(logrus.Fields{
		"items":         cat.Len(),
		"genre_columns": len(features.Genres),
		"tag_columns":   len(features.Terms),
		"nnz":           features.Matrix.NNZ(),
		"duration":      time.Since(start),
	}).Info("Similarity index fitted")

	return &Corpus{
		Catalog:     cat,
		Features:    features,
		Index:       index,
		MaxFeatures: maxFeatures,
	}, nil
}
