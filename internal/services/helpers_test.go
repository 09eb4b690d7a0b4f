package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/temcen/recurate/internal/catalog"
	"github.com/temcen/recurate/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func testMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), testLogger())
}

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

func record(id int, title string, popularity, score int, genres []string, tags ...string) catalog.Record {
	rec := catalog.Record{
		ID:           intPtr(id),
		Title:        &catalog.Title{English: strPtr(title), Romaji: strPtr(title)},
		Genres:       genres,
		AverageScore: intPtr(score),
		Popularity:   intPtr(popularity),
		CoverImage:   &catalog.CoverImage{Large: fmt.Sprintf("https://img.example/%d.jpg", id)},
		SiteURL:      fmt.Sprintf("https://anilist.co/anime/%d", id),
	}
	for i, name := range tags {
		rec.Tags = append(rec.Tags, catalog.RecordTag{Name: name, Rank: intPtr(90 - 10*i)})
	}
	return rec
}

func newTestCorpus(t *testing.T, records ...catalog.Record) *Corpus {
	t.Helper()
	cat, err := catalog.Load(records)
	require.NoError(t, err)
	corpus, err := NewCorpus(cat, 0, testLogger())
	require.NoError(t, err)
	return corpus
}

var (
	genrePool = []string{"Action", "Adventure", "Comedy", "Drama", "Fantasy", "Mecha", "Romance", "Sci-Fi", "Slice of Life", "Sports"}
	tagPool   = []string{
		"Male Protagonist", "Female Protagonist", "Magic", "Military", "School", "Space", "Time Travel",
		"Super Power", "Tragedy", "Iyashikei", "Martial Arts", "Isekai", "Shounen", "Seinen", "Music",
		"Robots", "Vampire", "Detective", "Cooking", "Gore",
	}
)

// seededRecords builds a reproducible synthetic catalog of n qualifying items.
func seededRecords(n int) []catalog.Record {
	rng := rand.New(rand.NewSource(7))
	records := make([]catalog.Record, 0, n)
	for i := 0; i < n; i++ {
		genres := pick(rng, genrePool, 1+rng.Intn(3))
		tags := pick(rng, tagPool, 1+rng.Intn(5))
		records = append(records, record(1000+i, fmt.Sprintf("Title %03d", i), rng.Intn(500000), 40+rng.Intn(50), genres, tags...))
	}
	return records
}

func pick(rng *rand.Rand, pool []string, n int) []string {
	perm := rng.Perm(len(pool))
	out := make([]string, n)
	for i := range out {
		out[i] = pool[perm[i]]
	}
	return out
}

// memoryMapCache is an in-process MapCache for tests.
type memoryMapCache struct {
	mu    sync.Mutex
	data  map[string]*models.MapResponse
	sets  int
	fails bool
}

func newMemoryMapCache() *memoryMapCache {
	return &memoryMapCache{data: make(map[string]*models.MapResponse)}
}

func (c *memoryMapCache) Get(_ context.Context, key string) (*models.MapResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails {
		return nil, false, fmt.Errorf("cache unavailable")
	}
	resp, ok := c.data[key]
	return resp, ok, nil
}

func (c *memoryMapCache) Set(_ context.Context, key string, resp *models.MapResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails {
		return fmt.Errorf("cache unavailable")
	}
	c.sets++
	c.data[key] = resp
	return nil
}
