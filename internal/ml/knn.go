package ml

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Neighbor is one nearest-neighbor hit.
type Neighbor struct {
	Row      int
	Distance float64
}

// QueryResult lists neighbors by ascending cosine distance, ties broken by
// ascending row. Clamped reports that Requested exceeded the fitted row
// count and only Returned neighbors exist.
type QueryResult struct {
	Neighbors []Neighbor
	Requested int
	Returned  int
	Clamped   bool
}

// CosineIndex is an exact brute-force cosine nearest-neighbor index. It is
// read-only after construction and safe for concurrent queries.
type CosineIndex struct {
	m     *CSR
	norms []float64
}

func NewCosineIndex(m *CSR) *CosineIndex {
	rows, _ := m.Dims()
	idx := &CosineIndex{
		m:     m,
		norms: make([]float64, rows),
	}
	for i := 0; i < rows; i++ {
		idx.norms[i] = m.RowNorm(i)
	}
	return idx
}

// Len returns the number of fitted rows.
func (idx *CosineIndex) Len() int { return len(idx.norms) }

// Query returns the n nearest rows to vec, which must have the index's
// column count.
func (idx *CosineIndex) Query(vec []float32, n int) QueryResult {
	var qnorm float64
	for _, v := range vec {
		qnorm += float64(v) * float64(v)
	}
	qnorm = math.Sqrt(qnorm)

	all := make([]Neighbor, len(idx.norms))
	for i := range idx.norms {
		row := idx.m.Row(i)
		var dot float64
		for k, c := range row.Indices {
			dot += float64(row.Values[k]) * float64(vec[c])
		}
		all[i] = Neighbor{Row: i, Distance: cosineDistance(dot, qnorm, idx.norms[i])}
	}

	sort.Slice(all, func(a, b int) bool {
		if all[a].Distance != all[b].Distance {
			return all[a].Distance < all[b].Distance
		}
		return all[a].Row < all[b].Row
	})

	res := QueryResult{Requested: n}
	if n > len(all) {
		n = len(all)
		res.Clamped = true
	}
	if n < 0 {
		n = 0
	}
	res.Neighbors = all[:n]
	res.Returned = n
	return res
}

// QueryRows queries every row of m. Rows are processed in parallel; the
// result is ordered like m.
func (idx *CosineIndex) QueryRows(ctx context.Context, m *CSR, n int) ([]QueryResult, error) {
	rows, cols := m.Dims()
	results := make([]QueryResult, rows)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < rows; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			vec := make([]float32, cols)
			row := m.Row(i)
			for k, c := range row.Indices {
				vec[c] = row.Values[k]
			}
			results[i] = idx.Query(vec, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// cosineDistance returns 1 - cos clamped to [0, 2]. A zero vector is at
// distance 1 from everything.
func cosineDistance(dot, a, b float64) float64 {
	if a == 0 || b == 0 {
		return 1
	}
	d := 1 - dot/(a*b)
	switch {
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}
