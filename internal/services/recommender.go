package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/catalog"
	"github.com/temcen/recurate/pkg/models"
)

var (
	ErrInvalidK      = errors.New("k must be positive")
	ErrTitleNotFound = errors.New("title not found")
)

// RecommendationResult carries the ranked recommendations together with the
// seed diagnostics the caller may want to surface.
type RecommendationResult struct {
	Recommendations []models.Recommendation
	ResolvedIDs     []int
	UnknownIDs      []int
	// Clamped reports that fewer neighbors existed than were requested.
	Clamped bool
}

type Recommender struct {
	corpus  *Corpus
	mode    SharedAttributeMode
	metrics *Metrics
	logger  *logrus.Logger
}

func NewRecommender(corpus *Corpus, mode SharedAttributeMode, metrics *Metrics, logger *logrus.Logger) *Recommender {
	return &Recommender{
		corpus:  corpus,
		mode:    mode,
		metrics: metrics,
		logger:  logger,
	}
}

// Recommend ranks catalog items by cosine distance to the mean feature
// vector of the seeds. Unknown seed ids are skipped; if none resolve the
// result is empty. Seeds never appear in the output.
func (r *Recommender) Recommend(ctx context.Context, seedIDs []int, k int) (*RecommendationResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	start := time.Now()
	defer func() {
		r.metrics.requestDuration.WithLabelValues("recommend").Observe(time.Since(start).Seconds())
	}()

	cat := r.corpus.Catalog
	result := &RecommendationResult{Recommendations: []models.Recommendation{}}

	seedRows := make(map[int]struct{}, len(seedIDs))
	rows := make([]int, 0, len(seedIDs))
	for _, id := range seedIDs {
		row, ok := cat.Row(id)
		if !ok {
			r.logger.WithField("anime_id", id).Warn("Seed anime not found in catalog")
			r.metrics.unknownSeeds.Inc()
			result.UnknownIDs = append(result.UnknownIDs, id)
			continue
		}
		if _, dup := seedRows[row]; dup {
			continue
		}
		seedRows[row] = struct{}{}
		rows = append(rows, row)
		result.ResolvedIDs = append(result.ResolvedIDs, id)
	}
	if len(rows) == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := r.corpus.Features.Matrix.MeanRows(rows)
	res := r.corpus.Index.Query(query, k+len(rows))
	result.Clamped = res.Clamped

	var seeds seedAttributes
	if r.mode == SharedIntersection {
		items := make([]catalog.Item, len(rows))
		for i, row := range rows {
			items[i] = cat.Item(row)
		}
		seeds = collectSeedAttributes(items)
	}

	for _, n := range res.Neighbors {
		if _, isSeed := seedRows[n.Row]; isSeed {
			continue
		}
		result.Recommendations = append(result.Recommendations, r.build(cat.Item(n.Row), n.Distance, seeds))
		if len(result.Recommendations) >= k {
			break
		}
	}

	r.logger.WithFields(logrus.Fields{
		"seeds":   len(rows),
		"unknown": len(result.UnknownIDs),
		"k":       k,
		"results": len(result.Recommendations),
	}).Debug("Recommendations generated")

	return result, nil
}

// RecommendByTitle uses the first catalog item whose title contains query,
// case-insensitively, as the single seed.
func (r *Recommender) RecommendByTitle(ctx context.Context, query string, k int) (*RecommendationResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	rows := r.corpus.Catalog.FindTitle(query, 1)
	if len(rows) == 0 {
		return nil, ErrTitleNotFound
	}
	return r.Recommend(ctx, []int{r.corpus.Catalog.ID(rows[0])}, k)
}

// Search returns up to limit items whose title contains query, in catalog
// order.
func (r *Recommender) Search(query string, limit int) []models.SearchResult {
	rows := r.corpus.Catalog.FindTitle(query, limit)
	out := make([]models.SearchResult, len(rows))
	for i, row := range rows {
		it := r.corpus.Catalog.Item(row)
		out[i] = models.SearchResult{
			ID:         it.ID,
			Title:      it.Title,
			CoverImage: it.CoverImage,
		}
	}
	return out
}

func (r *Recommender) build(it catalog.Item, distance float64, seeds seedAttributes) models.Recommendation {
	genres, tags := sharedAttributes(r.mode, it, seeds)
	return models.Recommendation{
		ID:           it.ID,
		Title:        it.Title,
		Similarity:   roundTo(1-distance, 3),
		SharedGenres: genres,
		SharedTags:   tags,
		Score:        it.Score,
		CoverImage:   it.CoverImage,
		AniListURL:   it.SiteURL,
		Explanation:  GenerateExplanation(genres, tags),
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
