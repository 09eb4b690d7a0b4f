package ml

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	defaultPowerIters  = 5
	defaultOversamples = 10
)

// TruncatedSVD projects a matrix onto its leading singular directions using
// randomized range finding. Output columns beyond min(rows, cols) are zero.
type TruncatedSVD struct {
	Components  int
	Seed        int64
	PowerIters  int
	Oversamples int
}

// FitTransform returns the rows x Components projection U·Σ of m. Each
// component is sign-normalized so that its largest-magnitude entry in U is
// positive.
func (s TruncatedSVD) FitTransform(m *CSR) (*mat.Dense, error) {
	if s.Components <= 0 {
		return nil, errors.New("svd: components must be positive")
	}
	rows, cols := m.Dims()
	if rows == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(rows, s.Components, nil)

	rank := min(rows, cols)
	if rank == 0 {
		return out, nil
	}
	k := min(s.Components, rank)

	iters := s.PowerIters
	if iters <= 0 {
		iters = defaultPowerIters
	}
	over := s.Oversamples
	if over <= 0 {
		over = defaultOversamples
	}
	l := min(k+over, rank)

	a := m.Dense()
	rng := rand.New(rand.NewSource(s.Seed))

	omega := mat.NewDense(cols, l, nil)
	for i := 0; i < cols; i++ {
		for j := 0; j < l; j++ {
			omega.Set(i, j, rng.NormFloat64())
		}
	}

	var y mat.Dense
	y.Mul(a, omega)
	q := orthonormalize(&y, l)
	for it := 0; it < iters; it++ {
		var z mat.Dense
		z.Mul(a.T(), q)
		qz := orthonormalize(&z, l)
		y.Reset()
		y.Mul(a, qz)
		q = orthonormalize(&y, l)
	}

	var b mat.Dense
	b.Mul(q.T(), a)

	var svd mat.SVD
	if ok := svd.Factorize(&b, mat.SVDThin); !ok {
		return nil, errors.New("svd: factorization did not converge")
	}
	var ub mat.Dense
	svd.UTo(&ub)
	values := svd.Values(nil)

	var u mat.Dense
	u.Mul(q, &ub)

	for c := 0; c < k; c++ {
		sign := 1.0
		best := -1.0
		for i := 0; i < rows; i++ {
			if v := math.Abs(u.At(i, c)); v > best {
				best = v
				if u.At(i, c) < 0 {
					sign = -1
				} else {
					sign = 1
				}
			}
		}
		for i := 0; i < rows; i++ {
			out.Set(i, c, sign*u.At(i, c)*values[c])
		}
	}
	return out, nil
}

// orthonormalize returns an orthonormal basis for the first cols columns of
// the column space of x.
func orthonormalize(x *mat.Dense, cols int) *mat.Dense {
	r, _ := x.Dims()
	var qr mat.QR
	qr.Factorize(x)
	var q mat.Dense
	qr.QTo(&q)
	basis := mat.DenseCopyOf(q.Slice(0, r, 0, cols))
	return basis
}
