package ml

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultBatchSize = 256
	defaultMaxIter   = 100
	kmeansTolerance  = 1e-8
)

// MiniBatchKMeans clusters dense rows with k-means++ seeding followed by
// mini-batch center updates. K larger than the row count is reduced to it.
type MiniBatchKMeans struct {
	K         int
	BatchSize int
	MaxIter   int
	Seed      int64
}

// KMeansResult holds the final centers and the label of every input row.
type KMeansResult struct {
	Centers [][]float64
	Labels  []int
}

func (km MiniBatchKMeans) FitPredict(x *mat.Dense) (*KMeansResult, error) {
	if km.K <= 0 {
		return nil, errors.New("kmeans: K must be positive")
	}
	if x.IsEmpty() {
		return &KMeansResult{}, nil
	}
	n, _ := x.Dims()
	points := make([][]float64, n)
	for i := range points {
		points[i] = mat.Row(nil, i, x)
	}

	k := min(km.K, n)
	batch := km.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	maxIter := km.MaxIter
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}

	rng := rand.New(rand.NewSource(km.Seed))
	centers := kmeansPlusPlus(points, k, rng)
	counts := make([]float64, k)

	for it := 0; it < maxIter; it++ {
		sample := make([][]float64, batch)
		for b := range sample {
			sample[b] = points[rng.Intn(n)]
		}
		if shift := miniBatchStep(centers, counts, sample); shift < kmeansTolerance {
			break
		}
	}

	labels := make([]int, n)
	for i, p := range points {
		labels[i] = nearest(centers, p)
	}
	return &KMeansResult{Centers: centers, Labels: labels}, nil
}

// miniBatchStep assigns every sample to its nearest center first, then moves
// each center toward its samples with a per-center rate of 1/count. It returns
// the squared distance the centers moved.
func miniBatchStep(centers [][]float64, counts []float64, sample [][]float64) float64 {
	labels := make([]int, len(sample))
	for i, p := range sample {
		labels[i] = nearest(centers, p)
	}

	var shift float64
	for i, p := range sample {
		c := labels[i]
		counts[c]++
		eta := 1 / counts[c]
		for d := range p {
			delta := eta * (p[d] - centers[c][d])
			centers[c][d] += delta
			shift += delta * delta
		}
	}
	return shift
}

// kmeansPlusPlus picks k initial centers, each sampled with probability
// proportional to its squared distance from the closest center chosen so far.
func kmeansPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), points[rng.Intn(len(points))]...))

	dist := make([]float64, len(points))
	for i, p := range points {
		dist[i] = sqDistance(p, centers[0])
	}

	for len(centers) < k {
		total := floats.Sum(dist)
		next := 0
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
				next = i
			}
		} else {
			next = rng.Intn(len(points))
		}

		c := append([]float64(nil), points[next]...)
		centers = append(centers, c)
		for i, p := range points {
			if d := sqDistance(p, c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

// nearest returns the index of the closest center, lowest index on ties.
func nearest(centers [][]float64, p []float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := sqDistance(p, center); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func sqDistance(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
