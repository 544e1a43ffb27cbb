package model

import (
	"encoding/json"
	"math"
	"sort"
)

// Metrics are the four scalar training scores. R2 is NaN when the held-out split has fewer than two rows.
type Metrics struct {
	MSE     float64
	R2      float64
	ARI     float64
	Inertia float64
}

type metricsJSON struct {
	MSE     float64  `json:"linreg_mse"`
	R2      *float64 `json:"linreg_r2"`
	ARI     float64  `json:"kmeans_ari"`
	Inertia float64  `json:"kmeans_inertia"`
}

// MarshalJSON writes an undefined R2 as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	out := metricsJSON{MSE: m.MSE, ARI: m.ARI, Inertia: m.Inertia}
	if !math.IsNaN(m.R2) {
		r2 := m.R2
		out.R2 = &r2
	}
	return json.Marshal(out)
}

func (m *Metrics) UnmarshalJSON(b []byte) error {
	var in metricsJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*m = Metrics{MSE: in.MSE, R2: math.NaN(), ARI: in.ARI, Inertia: in.Inertia}
	if in.R2 != nil {
		m.R2 = *in.R2
	}
	return nil
}

// MeanSquaredError of predictions against targets.
func MeanSquaredError(y, pred []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	s := 0.0
	for i := range y {
		d := y[i] - pred[i]
		s += d * d
	}
	return s / float64(len(y))
}

// R2Score is the coefficient of determination. With constant targets it is 1 for a
// perfect fit and 0 otherwise; with fewer than two samples it is NaN.
func R2Score(y, pred []float64) float64 {
	if len(y) < 2 {
		return math.NaN()
	}
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	var ssRes, ssTot float64
	for i := range y {
		ssRes += (y[i] - pred[i]) * (y[i] - pred[i])
		ssTot += (y[i] - mean) * (y[i] - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// AdjustedRandIndex compares two partitions of the same items, corrected for chance.
// Identical trivial partitions score 1.
func AdjustedRandIndex(truth, pred []int) float64 {
	n := len(truth)
	if n < 2 {
		return 1
	}
	table := map[[2]int]int{}
	rows := map[int]int{}
	cols := map[int]int{}
	for i := range truth {
		table[[2]int{truth[i], pred[i]}]++
		rows[truth[i]]++
		cols[pred[i]]++
	}
	var index, sumRows, sumCols float64
	for _, v := range table {
		index += comb2(v)
	}
	for _, v := range rows {
		sumRows += comb2(v)
	}
	for _, v := range cols {
		sumCols += comb2(v)
	}
	expected := sumRows * sumCols / comb2(n)
	maxIndex := (sumRows + sumCols) / 2
	if maxIndex == expected {
		return 1
	}
	return (index - expected) / (maxIndex - expected)
}

func comb2(n int) float64 { return float64(n) * float64(n-1) / 2 }

// MajorityLabels maps each cluster id to the most frequent true label among its members.
// Ties go to the lowest label id. Clusters without members are absent.
func MajorityLabels(clusters, labels []int) map[int]int {
	counts := map[int]map[int]int{}
	for i, c := range clusters {
		if counts[c] == nil {
			counts[c] = map[int]int{}
		}
		counts[c][labels[i]]++
	}
	out := make(map[int]int, len(counts))
	for c, byLabel := range counts {
		ids := make([]int, 0, len(byLabel))
		for l := range byLabel {
			ids = append(ids, l)
		}
		sort.Ints(ids)
		best := ids[0]
		for _, l := range ids[1:] {
			if byLabel[l] > byLabel[best] {
				best = l
			}
		}
		out[c] = best
	}
	return out
}
