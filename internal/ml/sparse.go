package ml

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CSR is an immutable compressed sparse row matrix of float32 values.
// Column indices within a row are strictly increasing.
type CSR struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float32
}

// SparseRow is a read-only view of one CSR row.
type SparseRow struct {
	Indices []int
	Values  []float32
}

// CSRBuilder appends rows to a CSR matrix with a fixed column count.
type CSRBuilder struct {
	cols    int
	indptr  []int
	indices []int
	data    []float32
}

func NewCSRBuilder(cols int) *CSRBuilder {
	return &CSRBuilder{cols: cols, indptr: []int{0}}
}

// AddRow appends a row given as a column → value map. Zero values are dropped.
func (b *CSRBuilder) AddRow(values map[int]float32) error {
	cols := make([]int, 0, len(values))
	for c, v := range values {
		if c < 0 || c >= b.cols {
			return fmt.Errorf("column %d out of range [0,%d)", c, b.cols)
		}
		if v != 0 {
			cols = append(cols, c)
		}
	}
	sort.Ints(cols)
	for _, c := range cols {
		b.indices = append(b.indices, c)
		b.data = append(b.data, values[c])
	}
	b.indptr = append(b.indptr, len(b.indices))
	return nil
}

func (b *CSRBuilder) Build() *CSR {
	return &CSR{
		rows:    len(b.indptr) - 1,
		cols:    b.cols,
		indptr:  b.indptr,
		indices: b.indices,
		data:    b.data,
	}
}

// Dims returns the row and column counts.
func (m *CSR) Dims() (int, int) { return m.rows, m.cols }

// NNZ returns the number of stored values.
func (m *CSR) NNZ() int { return len(m.data) }

// Row returns a view of row i. The slices must not be modified.
func (m *CSR) Row(i int) SparseRow {
	lo, hi := m.indptr[i], m.indptr[i+1]
	return SparseRow{Indices: m.indices[lo:hi], Values: m.data[lo:hi]}
}

// At returns element (i, j).
func (m *CSR) At(i, j int) float32 {
	r := m.Row(i)
	k := sort.SearchInts(r.Indices, j)
	if k < len(r.Indices) && r.Indices[k] == j {
		return r.Values[k]
	}
	return 0
}

// RowNorm returns the Euclidean norm of row i.
func (m *CSR) RowNorm(i int) float64 {
	var sum float64
	for _, v := range m.Row(i).Values {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Select returns a new matrix holding the given rows in order.
func (m *CSR) Select(rows []int) *CSR {
	out := &CSR{
		rows:   len(rows),
		cols:   m.cols,
		indptr: make([]int, 1, len(rows)+1),
	}
	for _, r := range rows {
		row := m.Row(r)
		out.indices = append(out.indices, row.Indices...)
		out.data = append(out.data, row.Values...)
		out.indptr = append(out.indptr, len(out.indices))
	}
	return out
}

// MeanRows returns the dense column-wise mean of the given rows.
func (m *CSR) MeanRows(rows []int) []float32 {
	mean := make([]float32, m.cols)
	if len(rows) == 0 {
		return mean
	}
	acc := make([]float64, m.cols)
	for _, r := range rows {
		row := m.Row(r)
		for k, c := range row.Indices {
			acc[c] += float64(row.Values[k])
		}
	}
	n := float64(len(rows))
	for c, v := range acc {
		mean[c] = float32(v / n)
	}
	return mean
}

// Dense converts the matrix to a gonum dense matrix.
func (m *CSR) Dense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(m.rows, m.cols, nil)
	for i := 0; i < m.rows; i++ {
		row := m.Row(i)
		for k, c := range row.Indices {
			d.Set(i, c, float64(row.Values[k]))
		}
	}
	return d
}

// HStack concatenates matrices column-wise. All inputs must have the same
// row count.
func HStack(blocks ...*CSR) (*CSR, error) {
	if len(blocks) == 0 {
		return &CSR{indptr: []int{0}}, nil
	}
	rows := blocks[0].rows
	cols := 0
	for i, b := range blocks {
		if b.rows != rows {
			return nil, fmt.Errorf("block %d has %d rows, want %d", i, b.rows, rows)
		}
		cols += b.cols
	}

	out := &CSR{
		rows:   rows,
		cols:   cols,
		indptr: make([]int, 1, rows+1),
	}
	for i := 0; i < rows; i++ {
		offset := 0
		for _, b := range blocks {
			row := b.Row(i)
			for k, c := range row.Indices {
				out.indices = append(out.indices, c+offset)
				out.data = append(out.data, row.Values[k])
			}
			offset += b.cols
		}
		out.indptr = append(out.indptr, len(out.indices))
	}
	return out, nil
}
