package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/recurate/internal/catalog"
	"github.com/temcen/recurate/internal/ml"
	"github.com/temcen/recurate/pkg/models"
)

const (
	MinMapLimit       = 20
	MaxMapLimit       = 1200
	MinMapNeighbors   = 2
	MaxMapNeighbors   = 10
	DefaultLayoutSeed = 42

	minClusters       = 8
	maxClusters       = 22
	maxClusterDims    = 16
	minClusterDims    = 4
	kmeansBatchSize   = 256
	svdPowerIters     = 5
	clusterSeparation = 0.55
	minCoordinateSpan = 1e-6
	minRadius         = 8.0
	radiusRange       = 18.0
	maxNodeGenres     = 4
)

// MapBuilder lays out the most popular catalog items on a unit square,
// clusters them and links each to its nearest neighbors.
type MapBuilder struct {
	corpus  *Corpus
	cache   MapCache
	seed    int64
	metrics *Metrics
	logger  *logrus.Logger
}

// NewMapBuilder returns a builder; cache may be nil.
func NewMapBuilder(corpus *Corpus, cache MapCache, seed int64, metrics *Metrics, logger *logrus.Logger) *MapBuilder {
	return &MapBuilder{
		corpus:  corpus,
		cache:   cache,
		seed:    seed,
		metrics: metrics,
		logger:  logger,
	}
}

// ClampMapParams applies the documented bounds to limit and neighbors.
func ClampMapParams(limit, neighbors int) (int, int) {
	return clampInt(limit, MinMapLimit, MaxMapLimit), clampInt(neighbors, MinMapNeighbors, MaxMapNeighbors)
}

// ClusterCount is round(sqrt(limit)/1.6) bounded to [8, 22].
func ClusterCount(limit int) int {
	n := int(math.RoundToEven(math.Sqrt(float64(limit)) / 1.6))
	return clampInt(n, minClusters, maxClusters)
}

// cacheKey covers every input the built map depends on.
func (b *MapBuilder) cacheKey(limit, neighbors int) string {
	return fmt.Sprintf("recurate:map:%s:%d:%d:%d:%d",
		b.corpus.Catalog.Fingerprint(), b.corpus.MaxFeatures, limit, neighbors, b.seed)
}

// BuildMap returns the similarity map for the top limit items. Identical
// parameters over the same catalog always produce the same map.
func (b *MapBuilder) BuildMap(ctx context.Context, limit, neighbors int) (*models.MapResponse, error) {
	limit, neighbors = ClampMapParams(limit, neighbors)
	start := time.Now()
	defer func() {
		b.metrics.requestDuration.WithLabelValues("build_map").Observe(time.Since(start).Seconds())
	}()

	key := b.cacheKey(limit, neighbors)
	if b.cache != nil {
		cached, ok, err := b.cache.Get(ctx, key)
		switch {
		case err != nil:
			b.logger.WithError(err).Warn("Map cache lookup failed")
		case ok:
			b.metrics.mapCache.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			b.metrics.mapCache.WithLabelValues("miss").Inc()
		}
	}

	resp, err := b.build(ctx, limit, neighbors)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, key, resp); err != nil {
			b.logger.WithError(err).Warn("Failed to cache map")
		}
	}

	b.logger.WithFields(logrus.Fields{
		"limit":     limit,
		"neighbors": neighbors,
		"nodes":     len(resp.Nodes),
		"edges":     len(resp.Edges),
		"duration":  time.Since(start),
	}).Info("Similarity map built")

	return resp, nil
}

func (b *MapBuilder) build(ctx context.Context, limit, neighbors int) (*models.MapResponse, error) {
	cat := b.corpus.Catalog
	ranked := b.rankByPopularity(limit)
	resp := &models.MapResponse{Nodes: []models.MapNode{}, Edges: []models.MapEdge{}}
	if len(ranked) == 0 {
		return resp, nil
	}

	sub := b.corpus.Features.Matrix.Select(ranked)
	_, cols := sub.Dims()

	layout, err := ml.TruncatedSVD{Components: 2, Seed: b.seed, PowerIters: svdPowerIters}.FitTransform(sub)
	if err != nil {
		return nil, fmt.Errorf("layout projection failed: %w", err)
	}

	dims := min(maxClusterDims, max(minClusterDims, cols-1))
	space, err := ml.TruncatedSVD{Components: dims, Seed: b.seed, PowerIters: svdPowerIters}.FitTransform(sub)
	if err != nil {
		return nil, fmt.Errorf("cluster projection failed: %w", err)
	}
	clusters, err := ml.MiniBatchKMeans{
		K:         ClusterCount(limit),
		BatchSize: kmeansBatchSize,
		Seed:      b.seed,
	}.FitPredict(space)
	if err != nil {
		return nil, fmt.Errorf("clustering failed: %w", err)
	}

	coords := separateClusters(layout, clusters.Labels, len(clusters.Centers))
	normalizeAxes(coords)

	local := ml.NewCosineIndex(sub)
	hits, err := local.QueryRows(ctx, sub, neighbors+1)
	if err != nil {
		return nil, err
	}

	minPop, maxPop := popularityRange(cat.Items(), ranked)
	popSpan := math.Max(float64(maxPop-minPop), 1)

	edges := make(map[[2]int]float64)
	for localI, row := range ranked {
		it := cat.Item(row)

		similar := make([]models.SimilarAnime, 0, neighbors)
		for _, n := range hits[localI].Neighbors {
			if n.Row == localI || len(similar) == neighbors {
				continue
			}
			other := cat.Item(ranked[n.Row])
			sim := roundTo(math.Max(0, 1-n.Distance), 4)
			similar = append(similar, models.SimilarAnime{
				ID:         other.ID,
				Title:      other.Title,
				Similarity: sim,
			})

			key := [2]int{it.ID, other.ID}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if w, seen := edges[key]; !seen || sim > w {
				edges[key] = sim
			}
		}

		popNorm := float64(it.Popularity-minPop) / popSpan
		genres := it.Genres
		if len(genres) > maxNodeGenres {
			genres = genres[:maxNodeGenres]
		}
		resp.Nodes = append(resp.Nodes, models.MapNode{
			ID:         it.ID,
			Title:      it.Title,
			Score:      it.Score,
			Popularity: it.Popularity,
			CoverImage: it.CoverImage,
			AniListURL: it.SiteURL,
			Genres:     append([]string(nil), genres...),
			Radius:     roundTo(minRadius+popNorm*radiusRange, 2),
			X:          roundTo(coords[localI][0], 4),
			Y:          roundTo(coords[localI][1], 4),
			Cluster:    clusters.Labels[localI],
			Similar:    similar,
		})
	}

	for key, w := range edges {
		resp.Edges = append(resp.Edges, models.MapEdge{Source: key[0], Target: key[1], Weight: w})
	}
	sort.Slice(resp.Edges, func(i, j int) bool {
		ei, ej := resp.Edges[i], resp.Edges[j]
		if ei.Weight != ej.Weight {
			return ei.Weight > ej.Weight
		}
		if ei.Source != ej.Source {
			return ei.Source < ej.Source
		}
		return ei.Target < ej.Target
	})

	return resp, nil
}

// rankByPopularity returns up to limit rows ordered by descending
// (popularity, score), keeping catalog order among equal entries.
func (b *MapBuilder) rankByPopularity(limit int) []int {
	items := b.corpus.Catalog.Items()
	rows := make([]int, len(items))
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, c := items[rows[i]], items[rows[j]]
		if a.Popularity != c.Popularity {
			return a.Popularity > c.Popularity
		}
		return a.Score > c.Score
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// separateClusters pushes each point away from the global centroid along its
// cluster's centroid offset. Empty clusters sit on the global centroid.
func separateClusters(layout *mat.Dense, labels []int, k int) [][2]float64 {
	n := len(labels)
	var global [2]float64
	for i := 0; i < n; i++ {
		global[0] += layout.At(i, 0)
		global[1] += layout.At(i, 1)
	}
	global[0] /= float64(n)
	global[1] /= float64(n)

	centers := make([][2]float64, k)
	counts := make([]int, k)
	for i, c := range labels {
		centers[c][0] += layout.At(i, 0)
		centers[c][1] += layout.At(i, 1)
		counts[c]++
	}
	for c := range centers {
		if counts[c] == 0 {
			centers[c] = global
			continue
		}
		centers[c][0] /= float64(counts[c])
		centers[c][1] /= float64(counts[c])
	}

	out := make([][2]float64, n)
	for i, c := range labels {
		out[i][0] = layout.At(i, 0) + (centers[c][0]-global[0])*clusterSeparation
		out[i][1] = layout.At(i, 1) + (centers[c][1]-global[1])*clusterSeparation
	}
	return out
}

// normalizeAxes rescales each axis to [0, 1] in place.
func normalizeAxes(coords [][2]float64) {
	for axis := 0; axis < 2; axis++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, p := range coords {
			lo = math.Min(lo, p[axis])
			hi = math.Max(hi, p[axis])
		}
		span := math.Max(hi-lo, minCoordinateSpan)
		for i := range coords {
			v := (coords[i][axis] - lo) / span
			coords[i][axis] = math.Min(math.Max(v, 0), 1)
		}
	}
}

func popularityRange(items []catalog.Item, rows []int) (int, int) {
	lo, hi := math.MaxInt, math.MinInt
	for _, r := range rows {
		p := items[r].Popularity
		lo = min(lo, p)
		hi = max(hi, p)
	}
	if hi == 0 {
		hi = 1
	}
	return lo, hi
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
