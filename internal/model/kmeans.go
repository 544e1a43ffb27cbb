package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// KMeans holds fitted centroids.
type KMeans struct {
	Centroids  [][]float64 `json:"centroids"`
	Inertia    float64     `json:"inertia"`
	Iterations int         `json:"iterations"`
}

// KMeansOptions configures FitKMeans.
type KMeansOptions struct {
	K       int
	Inits   int
	MaxIter int
	// Tol is relative to the mean per-feature variance of the data.
	Tol  float64
	Seed uint64
}

// FitKMeans runs Lloyd's algorithm from Inits k-means++ seedings and keeps the lowest inertia.
// It returns the model and the cluster of every row.
func FitKMeans(x mat.Matrix, opt KMeansOptions) (*KMeans, []int, error) {
	pts := rowsOf(x)
	if opt.K < 1 {
		return nil, nil, &FitError{Stage: "kmeans", Err: fmt.Errorf("invalid cluster count %d", opt.K)}
	}
	if len(pts) < opt.K {
		return nil, nil, &FitError{Stage: "kmeans", Err: fmt.Errorf("%d rows cannot form %d clusters", len(pts), opt.K)}
	}
	inits := max(opt.Inits, 1)
	maxIter := max(opt.MaxIter, 1)
	tol := opt.Tol * meanVariance(x)

	rng := newRand(opt.Seed)
	var best *KMeans
	var bestLabels []int
	for run := 0; run < inits; run++ {
		centers := seedPlusPlus(pts, opt.K, rng)
		km, labels := lloyd(pts, centers, maxIter, tol)
		if best == nil || km.Inertia < best.Inertia {
			best, bestLabels = km, labels
		}
	}
	return best, bestLabels, nil
}

// Predict returns the index of the nearest centroid; ties go to the lowest index.
func (k *KMeans) Predict(v []float64) int {
	c, _ := nearest(k.Centroids, v)
	return c
}

func lloyd(pts, centers [][]float64, maxIter int, tol float64) (*KMeans, []int) {
	k := len(centers)
	dim := len(pts[0])
	labels := make([]int, len(pts))
	prev := make([]int, len(pts))
	iter := 0
	for iter < maxIter {
		iter++
		copy(prev, labels)
		dists := make([]float64, len(pts))
		for i, p := range pts {
			labels[i], dists[i] = nearest(centers, p)
		}

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, dim)
		}
		for i, p := range pts {
			floats.Add(next[labels[i]], p)
			counts[labels[i]]++
		}
		taken := make(map[int]bool)
		for c := range next {
			if counts[c] == 0 {
				// Re-seed an empty cluster at the worst-served point.
				far := farthest(dists, taken)
				taken[far] = true
				copy(next[c], pts[far])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}

		shift := 0.0
		for c := range centers {
			shift += sqDist(centers[c], next[c])
		}
		centers = next
		if iter > 1 && equalInts(prev, labels) {
			break
		}
		if shift <= tol {
			break
		}
	}

	inertia := 0.0
	for i, p := range pts {
		var d float64
		labels[i], d = nearest(centers, p)
		inertia += d
	}
	return &KMeans{Centroids: centers, Inertia: inertia, Iterations: iter}, labels
}

// seedPlusPlus picks k initial centers, each sampled with probability proportional
// to its squared distance from the centers chosen so far.
func seedPlusPlus(pts [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	first := pts[rng.IntN(len(pts))]
	centers = append(centers, append([]float64(nil), first...))

	d2 := make([]float64, len(pts))
	for i, p := range pts {
		d2[i] = sqDist(p, first)
	}
	for len(centers) < k {
		total := floats.Sum(d2)
		var pick int
		if total <= 0 {
			pick = rng.IntN(len(pts))
		} else {
			target := rng.Float64() * total
			acc := 0.0
			pick = len(pts) - 1
			for i, d := range d2 {
				acc += d
				if acc >= target && d > 0 {
					pick = i
					break
				}
			}
		}
		c := append([]float64(nil), pts[pick]...)
		centers = append(centers, c)
		for i, p := range pts {
			d2[i] = math.Min(d2[i], sqDist(p, c))
		}
	}
	return centers
}

func nearest(centers [][]float64, p []float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for c, ctr := range centers {
		if d := sqDist(p, ctr); d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD
}

func farthest(dists []float64, taken map[int]bool) int {
	idx, bestD := 0, -1.0
	for i, d := range dists {
		if !taken[i] && d > bestD {
			idx, bestD = i, d
		}
	}
	return idx
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func meanVariance(x mat.Matrix) float64 {
	_, cols := x.Dims()
	if cols == 0 {
		return 0
	}
	sum := 0.0
	for j := 0; j < cols; j++ {
		_, v := stat.PopMeanVariance(mat.Col(nil, j, x), nil)
		sum += v
	}
	return sum / float64(cols)
}

func equalInts(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func rowsOf(x mat.Matrix) [][]float64 {
	r, _ := x.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, x)
	}
	return out
}

// seedStream keeps the PCG stream fixed so a seed alone determines every draw.
const seedStream = 0x9e3779b97f4a7c15

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seedStream))
}
