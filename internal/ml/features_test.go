package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/recurate/internal/catalog"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"male", "protagonist"}, Tokenize("Male Protagonist"))
	assert.Equal(t, []string{"sci", "fi", "cgi"}, Tokenize("Sci-Fi  CGI"))
	assert.Equal(t, []string{"über", "café"}, Tokenize("Über a Café"))
	assert.Empty(t, Tokenize("a b c"))
}

func TestTagWeight(t *testing.T) {
	tests := []struct {
		rank int
		want int
	}{
		{0, 1},
		{19, 1},
		{20, 1},
		{40, 2},
		{99, 4},
		{100, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TagWeight(tt.rank), "rank %d", tt.rank)
	}
}

func TestTagDocuments_RepeatsByRank(t *testing.T) {
	items := []catalog.Item{
		{Tags: []catalog.Tag{{Name: "Mecha", Rank: 60}, {Name: "Space", Rank: 0}}},
	}
	assert.Equal(t, []string{"Mecha Mecha Mecha Space"}, TagDocuments(items))
}

func TestFitTFIDF_VocabularyAndWeights(t *testing.T) {
	docs := []string{
		"mecha mecha space",
		"space drama",
		"the drama",
	}
	model := FitTFIDF(docs, TFIDFConfig{StopWords: EnglishStopWords()})

	assert.Equal(t, []string{"drama", "mecha", "space"}, model.Terms)
	// df(mecha)=1, n=3 -> ln(4/2)+1
	assert.InDelta(t, math.Log(2)+1, model.IDF[1], 1e-12)
	assert.InDelta(t, math.Log(4.0/3.0)+1, model.IDF[0], 1e-12)

	m := model.Transform(docs, EnglishStopWords())
	rows, cols := m.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)
	for i := 0; i < rows; i++ {
		assert.InDelta(t, 1.0, m.RowNorm(i), 1e-6)
	}
	// "the" is a stop word, so row 2 only weights "drama".
	assert.InDelta(t, 1.0, float64(m.At(2, 0)), 1e-6)
}

func TestFitTFIDF_MaxFeaturesKeepsMostFrequent(t *testing.T) {
	docs := []string{"alpha beta gamma", "alpha beta", "alpha zeta"}
	model := FitTFIDF(docs, TFIDFConfig{MaxFeatures: 2})
	assert.Equal(t, []string{"alpha", "beta"}, model.Terms)
}

func testItems() []catalog.Item {
	return []catalog.Item{
		{ID: 1, Genres: []string{"Action", "Sci-Fi"}, Tags: []catalog.Tag{{Name: "Mecha", Rank: 90}, {Name: "Space", Rank: 40}}},
		{ID: 2, Genres: []string{"Action", "Sci-Fi"}, Tags: []catalog.Tag{{Name: "Mecha", Rank: 90}, {Name: "Space", Rank: 40}}},
		{ID: 3, Genres: []string{"Romance"}, Tags: []catalog.Tag{{Name: "School", Rank: 80}}},
	}
}

func TestBuildFeatures_ColumnLayout(t *testing.T) {
	fs, err := BuildFeatures(testItems(), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"Action", "Romance", "Sci-Fi"}, fs.Genres)
	assert.Equal(t, []string{"mecha", "school", "space"}, fs.Terms)
	assert.Equal(t, len(fs.Genres)+len(fs.Terms), fs.Columns())

	rows, _ := fs.Matrix.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, float32(1), fs.Matrix.At(0, 0))
	assert.Equal(t, float32(0), fs.Matrix.At(0, 1))
	assert.Equal(t, float32(1), fs.Matrix.At(2, 1))
	assert.Greater(t, fs.Matrix.At(0, 3), fs.Matrix.At(0, 5), "higher-ranked tag should weigh more")
}

func TestBuildFeatures_StopWordOnlyTags(t *testing.T) {
	items := []catalog.Item{
		{ID: 1, Genres: []string{"Drama"}, Tags: []catalog.Tag{{Name: "The"}}},
	}
	fs, err := BuildFeatures(items, 0)
	require.NoError(t, err)
	assert.Empty(t, fs.Terms)
	assert.Equal(t, 1, fs.Columns())
}

func TestBuildFeatures_EmptyCatalog(t *testing.T) {
	fs, err := BuildFeatures(nil, 0)
	require.NoError(t, err)
	rows, cols := fs.Matrix.Dims()
	assert.Equal(t, 0, rows)
	assert.Equal(t, 0, cols)
}
