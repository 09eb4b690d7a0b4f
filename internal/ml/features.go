package ml

import (
	"fmt"
	"sort"
	"strings"

	"github.com/temcen/recurate/internal/catalog"
)

const (
	DefaultMaxTagFeatures = 300
	tagRankDivisor        = 20
)

// FeatureSet holds the combined feature matrix and the vocabularies that fix
// its column layout: Genres first, then Terms.
type FeatureSet struct {
	Matrix *CSR
	Genres []string
	Terms  []string
	IDF    []float64
}

// Columns returns the total column count.
func (fs *FeatureSet) Columns() int {
	_, cols := fs.Matrix.Dims()
	return cols
}

// GenreEncoder one-hot encodes genre lists over a sorted vocabulary.
type GenreEncoder struct {
	Vocabulary []string
	index      map[string]int
}

func FitGenreEncoder(genres [][]string) *GenreEncoder {
	set := make(map[string]struct{})
	for _, gs := range genres {
		for _, g := range gs {
			set[g] = struct{}{}
		}
	}
	enc := &GenreEncoder{
		Vocabulary: make([]string, 0, len(set)),
		index:      make(map[string]int, len(set)),
	}
	for g := range set {
		enc.Vocabulary = append(enc.Vocabulary, g)
	}
	sort.Strings(enc.Vocabulary)
	for i, g := range enc.Vocabulary {
		enc.index[g] = i
	}
	return enc
}

func (e *GenreEncoder) Transform(genres [][]string) *CSR {
	b := NewCSRBuilder(len(e.Vocabulary))
	for _, gs := range genres {
		row := make(map[int]float32, len(gs))
		for _, g := range gs {
			if col, ok := e.index[g]; ok {
				row[col] = 1
			}
		}
		_ = b.AddRow(row)
	}
	return b.Build()
}

// TagWeight is the number of times a tag name is repeated in its item's
// document.
func TagWeight(rank int) int {
	if w := rank / tagRankDivisor; w > 1 {
		return w
	}
	return 1
}

// TagDocuments builds one space-joined document per item in which every tag
// name is repeated TagWeight(rank) times.
func TagDocuments(items []catalog.Item) []string {
	docs := make([]string, len(items))
	for i, it := range items {
		var parts []string
		for _, t := range it.Tags {
			for n := TagWeight(t.Rank); n > 0; n-- {
				parts = append(parts, t.Name)
			}
		}
		docs[i] = strings.Join(parts, " ")
	}
	return docs
}

// BuildFeatures fits the genre encoder and tag TF-IDF over items and
// returns their column-wise concatenation. maxTagFeatures <= 0 selects
// DefaultMaxTagFeatures.
func BuildFeatures(items []catalog.Item, maxTagFeatures int) (*FeatureSet, error) {
	if maxTagFeatures <= 0 {
		maxTagFeatures = DefaultMaxTagFeatures
	}

	genres := make([][]string, len(items))
	for i, it := range items {
		genres[i] = it.Genres
	}
	enc := FitGenreEncoder(genres)
	genreBlock := enc.Transform(genres)

	docs := TagDocuments(items)
	stop := EnglishStopWords()
	tfidf := FitTFIDF(docs, TFIDFConfig{MaxFeatures: maxTagFeatures, StopWords: stop})
	tagBlock := tfidf.Transform(docs, stop)

	m, err := HStack(genreBlock, tagBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to combine feature blocks: %w", err)
	}

	return &FeatureSet{
		Matrix: m,
		Genres: enc.Vocabulary,
		Terms:  tfidf.Terms,
		IDF:    tfidf.IDF,
	}, nil
}
