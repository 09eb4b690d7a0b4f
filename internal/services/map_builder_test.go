package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/recurate/internal/catalog"
	"github.com/temcen/recurate/pkg/models"
)

func TestClampMapParams(t *testing.T) {
	tests := []struct {
		limit, neighbors         int
		wantLimit, wantNeighbors int
	}{
		{180, 5, 180, 5},
		{1, 0, 20, 2},
		{1500, 50, 1200, 10},
		{-4, 11, 20, 10},
	}
	for _, tt := range tests {
		limit, neighbors := ClampMapParams(tt.limit, tt.neighbors)
		assert.Equal(t, tt.wantLimit, limit)
		assert.Equal(t, tt.wantNeighbors, neighbors)
	}
}

func TestClusterCount(t *testing.T) {
	assert.Equal(t, 8, ClusterCount(20))
	assert.Equal(t, 8, ClusterCount(180))
	assert.Equal(t, 10, ClusterCount(256))
	assert.Equal(t, 20, ClusterCount(1024))
	assert.Equal(t, 22, ClusterCount(1200))
}

func newTestMapBuilder(t *testing.T, n int, cache MapCache) *MapBuilder {
	corpus := newTestCorpus(t, seededRecords(n)...)
	return NewMapBuilder(corpus, cache, DefaultLayoutSeed, testMetrics(), testLogger())
}

func TestBuildMap_MinimumLimit(t *testing.T) {
	b := newTestMapBuilder(t, 80, nil)

	resp, err := b.BuildMap(context.Background(), 20, 2)
	require.NoError(t, err)
	require.Len(t, resp.Nodes, 20)

	k := ClusterCount(20)
	assert.GreaterOrEqual(t, k, 8)
	assert.LessOrEqual(t, k, 22)
	for _, n := range resp.Nodes {
		assert.GreaterOrEqual(t, n.Cluster, 0)
		assert.Less(t, n.Cluster, k)
		assert.Len(t, n.Similar, 2)
	}
}

func TestBuildMap_SelectsMostPopular(t *testing.T) {
	b := newTestMapBuilder(t, 80, nil)
	resp, err := b.BuildMap(context.Background(), 30, 3)
	require.NoError(t, err)
	require.Len(t, resp.Nodes, 30)

	selected := make(map[int]bool)
	minSelected := resp.Nodes[0].Popularity
	for i, n := range resp.Nodes {
		selected[n.ID] = true
		if i > 0 {
			prev := resp.Nodes[i-1]
			assert.True(t, prev.Popularity > n.Popularity ||
				(prev.Popularity == n.Popularity && prev.Score >= n.Score))
		}
		minSelected = min(minSelected, n.Popularity)
	}
	for _, it := range b.corpus.Catalog.Items() {
		if !selected[it.ID] {
			assert.LessOrEqual(t, it.Popularity, minSelected)
		}
	}
}

func TestBuildMap_CoordinatesAndRadiusInRange(t *testing.T) {
	b := newTestMapBuilder(t, 120, nil)
	resp, err := b.BuildMap(context.Background(), 100, 5)
	require.NoError(t, err)

	var sawMinX, sawMaxX, sawMaxRadius bool
	for _, n := range resp.Nodes {
		assert.GreaterOrEqual(t, n.X, 0.0)
		assert.LessOrEqual(t, n.X, 1.0)
		assert.GreaterOrEqual(t, n.Y, 0.0)
		assert.LessOrEqual(t, n.Y, 1.0)
		assert.GreaterOrEqual(t, n.Radius, 8.0)
		assert.LessOrEqual(t, n.Radius, 26.0)
		assert.LessOrEqual(t, len(n.Genres), 4)
		sawMinX = sawMinX || n.X == 0
		sawMaxX = sawMaxX || n.X == 1
		sawMaxRadius = sawMaxRadius || n.Radius == 26.0
	}
	assert.True(t, sawMinX)
	assert.True(t, sawMaxX)
	assert.True(t, sawMaxRadius, "most popular node gets the largest radius")
	assert.Equal(t, 26.0, resp.Nodes[0].Radius)
}

func TestBuildMap_NeighborsExcludeSelf(t *testing.T) {
	b := newTestMapBuilder(t, 60, nil)
	resp, err := b.BuildMap(context.Background(), 40, 4)
	require.NoError(t, err)

	inMap := make(map[int]bool)
	for _, n := range resp.Nodes {
		inMap[n.ID] = true
	}
	for _, n := range resp.Nodes {
		require.Len(t, n.Similar, 4)
		prev := 1.0
		for _, s := range n.Similar {
			assert.NotEqual(t, n.ID, s.ID)
			assert.True(t, inMap[s.ID], "neighbors come from the selected subset")
			assert.GreaterOrEqual(t, s.Similarity, 0.0)
			assert.LessOrEqual(t, s.Similarity, prev)
			assert.Equal(t, s.Similarity, roundTo(s.Similarity, 4))
			prev = s.Similarity
		}
	}
}

func TestBuildMap_EdgesAreDeduplicatedWithMaxWeight(t *testing.T) {
	b := newTestMapBuilder(t, 90, nil)
	resp, err := b.BuildMap(context.Background(), 60, 6)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Edges)

	observed := make(map[[2]int]float64)
	for _, n := range resp.Nodes {
		for _, s := range n.Similar {
			key := [2]int{min(n.ID, s.ID), max(n.ID, s.ID)}
			if w, ok := observed[key]; !ok || s.Similarity > w {
				observed[key] = s.Similarity
			}
		}
	}

	seen := make(map[[2]int]bool)
	for i, e := range resp.Edges {
		assert.Less(t, e.Source, e.Target)
		key := [2]int{e.Source, e.Target}
		assert.False(t, seen[key], "duplicate edge %v", key)
		seen[key] = true
		assert.Equal(t, observed[key], e.Weight)
		if i > 0 {
			assert.GreaterOrEqual(t, resp.Edges[i-1].Weight, e.Weight)
		}
	}
	assert.Len(t, resp.Edges, len(observed))
}

func TestBuildMap_Deterministic(t *testing.T) {
	b := newTestMapBuilder(t, 150, nil)

	first, err := b.BuildMap(context.Background(), 120, 5)
	require.NoError(t, err)
	second, err := b.BuildMap(context.Background(), 120, 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	other := newTestMapBuilder(t, 150, nil)
	third, err := other.BuildMap(context.Background(), 120, 5)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestBuildMap_LimitIsClamped(t *testing.T) {
	b := newTestMapBuilder(t, 50, nil)

	resp, err := b.BuildMap(context.Background(), 1500, 20)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Nodes), MaxMapLimit)
	assert.Len(t, resp.Nodes, 50)
	for _, n := range resp.Nodes {
		assert.Len(t, n.Similar, MaxMapNeighbors)
	}
}

func TestBuildMap_SmallCatalog(t *testing.T) {
	corpus := newTestCorpus(t,
		record(1, "Alpha", 30, 80, []string{"Action"}, "Robots"),
		record(2, "Beta", 20, 70, []string{"Action"}, "Robots"),
		record(3, "Gamma", 10, 60, []string{"Romance"}, "School"),
	)
	b := NewMapBuilder(corpus, nil, DefaultLayoutSeed, testMetrics(), testLogger())

	resp, err := b.BuildMap(context.Background(), 20, 5)
	require.NoError(t, err)
	require.Len(t, resp.Nodes, 3)
	for _, n := range resp.Nodes {
		assert.Len(t, n.Similar, 2)
		assert.GreaterOrEqual(t, n.X, 0.0)
		assert.LessOrEqual(t, n.X, 1.0)
	}
	assert.Equal(t, []int{1, 2, 3}, []int{resp.Nodes[0].ID, resp.Nodes[1].ID, resp.Nodes[2].ID})
	assert.Equal(t, 26.0, resp.Nodes[0].Radius)
	assert.Equal(t, 8.0, resp.Nodes[2].Radius)
	assert.Equal(t, models.MapEdge{Source: 1, Target: 2, Weight: 1}, resp.Edges[0])
}

func TestBuildMap_ZeroPopularitySpan(t *testing.T) {
	corpus := newTestCorpus(t,
		record(1, "Alpha", 0, 0, []string{"Action"}, "Robots"),
		record(2, "Beta", 0, 0, []string{"Drama"}, "School"),
	)
	b := NewMapBuilder(corpus, nil, DefaultLayoutSeed, testMetrics(), testLogger())

	resp, err := b.BuildMap(context.Background(), 20, 2)
	require.NoError(t, err)
	for _, n := range resp.Nodes {
		assert.Equal(t, 8.0, n.Radius)
	}
}

func TestBuildMap_UsesCache(t *testing.T) {
	cache := newMemoryMapCache()
	b := newTestMapBuilder(t, 40, cache)

	first, err := b.BuildMap(context.Background(), 20, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	second, err := b.BuildMap(context.Background(), 20, 3)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.sets)

	// Clamped parameters share the cache entry.
	third, err := b.BuildMap(context.Background(), 5, 3)
	require.NoError(t, err)
	assert.Same(t, first, third)
}

func TestBuildMap_CacheFailureFallsBackToBuilding(t *testing.T) {
	cache := newMemoryMapCache()
	cache.fails = true
	b := newTestMapBuilder(t, 40, cache)

	resp, err := b.BuildMap(context.Background(), 20, 3)
	require.NoError(t, err)
	assert.Len(t, resp.Nodes, 20)
}

func TestBuildMap_CacheKeyTracksMaxFeatures(t *testing.T) {
	cat, err := catalog.Load(seededRecords(40))
	require.NoError(t, err)

	cache := newMemoryMapCache()
	build := func(maxFeatures int) {
		corpus, err := NewCorpus(cat, maxFeatures, testLogger())
		require.NoError(t, err)
		b := NewMapBuilder(corpus, cache, DefaultLayoutSeed, testMetrics(), testLogger())
		_, err = b.BuildMap(context.Background(), 20, 3)
		require.NoError(t, err)
	}

	build(0)
	build(5)
	build(5)
	assert.Equal(t, 2, cache.sets)
	assert.Len(t, cache.data, 2)
}
