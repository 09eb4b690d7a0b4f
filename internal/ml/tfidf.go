package ml

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// TFIDFConfig controls vocabulary selection.
type TFIDFConfig struct {
	// MaxFeatures caps the vocabulary to the terms with the highest
	// document frequency. Zero means unlimited.
	MaxFeatures int
	// StopWords are dropped after tokenization. Nil disables filtering.
	StopWords map[string]struct{}
}

// TFIDF is a fitted term weighting model. Terms are sorted alphabetically
// and Terms[i] owns column i.
type TFIDF struct {
	Terms []string
	IDF   []float64
	vocab map[string]int
}

// Tokenize lowercases and NFKC-normalizes text and splits it into runs of
// word characters, keeping runs of length two or more.
func Tokenize(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))

	var tokens []string
	var b strings.Builder
	runes := 0
	flush := func() {
		if runes >= 2 {
			tokens = append(tokens, b.String())
		}
		b.Reset()
		runes = 0
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' {
			b.WriteRune(r)
			runes++
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// FitTFIDF learns the vocabulary and smoothed idf weights
// ln((1+n)/(1+df))+1 from docs.
func FitTFIDF(docs []string, cfg TFIDFConfig) *TFIDF {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range filterStopWords(Tokenize(doc), cfg.StopWords) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	if cfg.MaxFeatures > 0 && len(terms) > cfg.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if df[terms[i]] != df[terms[j]] {
				return df[terms[i]] > df[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:cfg.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	model := &TFIDF{
		Terms: terms,
		IDF:   make([]float64, len(terms)),
		vocab: make(map[string]int, len(terms)),
	}
	for i, t := range terms {
		model.vocab[t] = i
		model.IDF[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
	return model
}

// Transform weights raw term counts by idf and L2-normalizes each row.
// Terms outside the vocabulary are ignored.
func (m *TFIDF) Transform(docs []string, stopWords map[string]struct{}) *CSR {
	b := NewCSRBuilder(len(m.Terms))
	for _, doc := range docs {
		counts := make(map[int]float64)
		for _, tok := range filterStopWords(Tokenize(doc), stopWords) {
			if col, ok := m.vocab[tok]; ok {
				counts[col]++
			}
		}

		cols := make([]int, 0, len(counts))
		for col := range counts {
			cols = append(cols, col)
		}
		// Sum in column order so the norm is reproducible.
		sort.Ints(cols)
		var sum float64
		for _, col := range cols {
			w := counts[col] * m.IDF[col]
			counts[col] = w
			sum += w * w
		}
		row := make(map[int]float32, len(counts))
		if sum > 0 {
			l2 := math.Sqrt(sum)
			for _, col := range cols {
				row[col] = float32(counts[col] / l2)
			}
		}
		// Columns always come from the vocabulary, so AddRow cannot fail.
		_ = b.AddRow(row)
	}
	return b.Build()
}

func filterStopWords(tokens []string, stop map[string]struct{}) []string {
	if stop == nil {
		return tokens
	}
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := stop[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
