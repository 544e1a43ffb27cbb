package model

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
)

// separable builds perClass rows for each risk level with well separated vitals.
func separable(perClass int) *dataset.Table {
	rng := rand.New(rand.NewPCG(7, 11))
	noise := func(s float64) float64 { return rng.NormFloat64() * s }
	tab := &dataset.Table{Name: "synthetic.csv", Hash: 0xfeed}
	for level := 1; level <= 4; level++ {
		l := float64(level)
		for i := 0; i < perClass; i++ {
			rec := dataset.Record{
				RespiratoryRate:  math.Round(12 + 5*l + noise(0.5)),
				OxygenSaturation: math.Round(100 - 3*l + noise(0.3)),
				SystolicBP:       math.Round(135 - 10*l + noise(1)),
				HeartRate:        math.Round(55 + 15*l + noise(1)),
				Temperature:      36.4 + 0.6*l + noise(0.05),
				Consciousness:    l,
				RiskLevel:        level,
			}
			if level >= 3 {
				rec.O2Scale, rec.OnOxygen = 1, 1
			}
			tab.Records = append(tab.Records, rec)
		}
	}
	tab.Total = len(tab.Records)
	return tab
}

func TestTrain_SeparableDataset(t *testing.T) {
	tab := separable(25)
	b, err := NewTrainer(DefaultOptions(), zaptest.NewLogger(t)).Train(tab)
	require.NoError(t, err)
	require.True(t, b.Trained())

	assert.Greater(t, b.Metrics.ARI, 0.3)
	assert.Greater(t, b.Metrics.R2, 0.8)
	assert.Less(t, b.Metrics.MSE, 0.2)
	assert.Greater(t, b.Metrics.Inertia, 0.0)

	assert.Equal(t, 100, b.Rows)
	assert.Len(t, b.Assignments, 100)
	assert.Len(t, b.Projection, 100)
	assert.Len(t, b.Projection[0], 2)
	assert.Len(t, b.Evaluation.YTest, 20)
	assert.Len(t, b.Evaluation.Residuals, 20)
	assert.Len(t, b.ClusterLabels, NumClusters)

	seen := map[int]bool{}
	for _, label := range b.ClusterLabels {
		seen[label] = true
	}
	assert.Len(t, seen, 4, "each cluster should map to a distinct risk level")
	assert.Equal(t, "000000000000feed", b.DatasetHash)
}

func TestTrain_IsDeterministic(t *testing.T) {
	tab := separable(20)
	a, err := NewTrainer(DefaultOptions(), nil).Train(tab)
	require.NoError(t, err)
	b, err := NewTrainer(DefaultOptions(), nil).Train(tab)
	require.NoError(t, err)

	bits := func(m Metrics) [4]uint64 {
		return [4]uint64{math.Float64bits(m.MSE), math.Float64bits(m.R2), math.Float64bits(m.ARI), math.Float64bits(m.Inertia)}
	}
	assert.Equal(t, bits(a.Metrics), bits(b.Metrics))
	assert.Equal(t, a.Assignments, b.Assignments)
	assert.Equal(t, a.Evaluation.TestIndex, b.Evaluation.TestIndex)
	assert.Equal(t, a.Projection, b.Projection)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestTrain_DegenerateDatasets(t *testing.T) {
	tr := NewTrainer(DefaultOptions(), nil)

	three := separable(1)
	three.Records = three.Records[:3]
	b, err := tr.Train(three)
	assert.Nil(t, b)
	var de *DegenerateDatasetError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 3, de.Rows)
	assert.Equal(t, NumClusters, de.Clusters)
	assert.Contains(t, err.Error(), "fewer rows than clusters")

	b, err = tr.Train(&dataset.Table{Dropped: []dataset.Drop{{Line: 2}}})
	assert.Nil(t, b)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1, de.Dropped)

	_, err = NewTrainer(Options{TestFraction: 1, Inits: 1, MaxIter: 1}, nil).Train(separable(2))
	assert.Error(t, err)
}

func TestRoundScore(t *testing.T) {
	cases := map[float64]int{0.5: 1, 1.4: 1, 4.6: 4, -1.0: 1, 2.5: 2, 3.5: 4, 2.51: 3, math.NaN(): 1}
	for in, want := range cases {
		assert.Equal(t, want, RoundScore(in), "RoundScore(%v)", in)
	}
}

func TestMajorityLabels(t *testing.T) {
	got := MajorityLabels([]int{0, 0, 0, 0, 0}, []int{2, 2, 2, 3, 3})
	assert.Equal(t, map[int]int{0: 2}, got)

	got = MajorityLabels([]int{1, 1, 1, 1, 2}, []int{4, 3, 3, 4, 1})
	assert.Equal(t, map[int]int{1: 3, 2: 1}, got, "ties go to the lowest label")
}

func TestAdjustedRandIndex(t *testing.T) {
	assert.InDelta(t, 1.0, AdjustedRandIndex([]int{1, 1, 2, 2}, []int{3, 3, 0, 0}), 1e-12)
	assert.InDelta(t, 4.0/7.0, AdjustedRandIndex([]int{0, 0, 1, 1}, []int{0, 0, 1, 2}), 1e-12)
	assert.InDelta(t, -0.5, AdjustedRandIndex([]int{0, 0, 1, 1}, []int{0, 1, 0, 1}), 1e-12)
	assert.Equal(t, 1.0, AdjustedRandIndex([]int{1, 1, 1}, []int{0, 0, 0}))
}

func TestRegressionMetrics(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	assert.InDelta(t, 0.25, MeanSquaredError(y, []float64{1.5, 2.5, 3.5, 4.5}), 1e-12)
	assert.InDelta(t, 1.0, R2Score(y, y), 1e-12)
	assert.InDelta(t, 0.8, R2Score(y, []float64{1.5, 2.5, 3.5, 4.5}), 1e-12)
	assert.True(t, math.IsNaN(R2Score([]float64{2}, []float64{3})))
	assert.Equal(t, 1.0, R2Score([]float64{2, 2}, []float64{2, 2}))
	assert.Equal(t, 0.0, R2Score([]float64{2, 2}, []float64{2, 3}))
}

func TestFitLinear_RecoversCoefficients(t *testing.T) {
	// y = 1 + 2a - 3b; the third column is constant and must get zero weight.
	x := mat.NewDense(5, 3, []float64{
		0, 1, 7,
		1, 0, 7,
		2, 2, 7,
		3, 1, 7,
		4, 5, 7,
	})
	y := []float64{-2, 3, -1, 4, -6}
	m, err := FitLinear(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 2, m.Coef[0], 1e-9)
	assert.InDelta(t, -3, m.Coef[1], 1e-9)
	assert.InDelta(t, 0, m.Coef[2], 1e-9)
	assert.InDelta(t, 1, m.Intercept, 1e-9)
	assert.InDelta(t, 1+2*10-3*1, m.Predict([]float64{10, 1, 7}), 1e-9)
	assert.Equal(t, SolverMinNorm, m.Solver)

	full := mat.NewDense(5, 2, []float64{0, 1, 1, 0, 2, 2, 3, 1, 4, 5})
	m, err = FitLinear(full, y)
	require.NoError(t, err)
	assert.InDelta(t, 2, m.Coef[0], 1e-6)
	assert.InDelta(t, -3, m.Coef[1], 1e-6)
	assert.InDelta(t, 1, m.Intercept, 1e-6)

	// Three rows, eight features: more unknowns than equations.
	wide := mat.NewDense(3, 8, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 8; j++ {
			wide.Set(i, j, float64((i+1)*(j+2)%7))
		}
	}
	m, err = FitLinear(wide, []float64{1, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, SolverMinNorm, m.Solver)
	assert.InDeltaSlice(t, []float64{1, 2, 4}, m.PredictRows(wide), 1e-9)
}

func TestStandardizer(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{1, 5, 2, 5, 3, 5, 4, 5})
	s, err := FitStandardizer(x)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, s.Mean[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1])
	z := s.Transform(x)
	col := mat.Col(nil, 0, z)
	mean, variance := stat.PopMeanVariance(col, nil)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, variance, 1e-12)
	assert.Equal(t, []float64{0, 0}, mat.Col(nil, 1, z)[:2])
	assert.InDelta(t, z.At(3, 0), s.TransformVec([]float64{4, 5})[0], 1e-12)
}

func TestFitKMeans_TooFewRows(t *testing.T) {
	_, _, err := FitKMeans(mat.NewDense(2, 1, []float64{1, 2}), KMeansOptions{K: 3, Inits: 1, MaxIter: 10})
	var fe *FitError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "kmeans", fe.Stage)
}

func TestFitKMeans_TwoBlobs(t *testing.T) {
	x := mat.NewDense(6, 1, []float64{0, 0.1, 0.2, 10, 10.1, 10.2})
	km, labels, err := FitKMeans(x, KMeansOptions{K: 2, Inits: 3, MaxIter: 50, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, labels[0], labels[2])
	assert.Equal(t, labels[3], labels[5])
	assert.NotEqual(t, labels[0], labels[3])
	assert.InDelta(t, 0.04, km.Inertia, 1e-9)
	assert.Equal(t, labels[5], km.Predict([]float64{9}))
}

func TestPredict(t *testing.T) {
	var nilBundle *Bundle
	_, err := nilBundle.Predict(DefaultInput().Raw(), dataset.DefaultOptions())
	assert.ErrorIs(t, err, ErrNotTrained)
	_, err = (&Bundle{}).Predict(DefaultInput().Raw(), dataset.DefaultOptions())
	assert.ErrorIs(t, err, ErrNotTrained)

	b, err := NewTrainer(DefaultOptions(), nil).Train(separable(25))
	require.NoError(t, err)

	high := Input{RespiratoryRate: 32, OxygenSaturation: 88, O2Scale: true, SystolicBP: 95,
		HeartRate: 115, Temperature: 38.8, Consciousness: "U", OnOxygen: true}
	p, err := b.Predict(high.Raw(), dataset.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 4, p.RoundedScore)
	require.NotNil(t, p.ClusterLabel)
	assert.Equal(t, 4, *p.ClusterLabel)
	assert.Equal(t, "High", p.ClusterLabelName)

	bad := high.Raw()
	bad[dataset.ColConsciousness] = "Z"
	_, err = b.Predict(bad, dataset.DefaultOptions())
	var ive *dataset.InvalidValueError
	assert.ErrorAs(t, err, &ive)

	orphan := *b
	orphan.ClusterLabels = map[int]int{}
	p, err = orphan.Predict(high.Raw(), dataset.DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, p.ClusterLabel)
	assert.Equal(t, UnknownLabel, p.ClusterLabelName)
}

func TestEndToEnd_DroppedRowStillTrains(t *testing.T) {
	raw, err := dataset.LoadBytes("five.csv", []byte(
		"Respiratory_Rate,Oxygen_Saturation,O2_Scale,Systolic_BP,Heart_Rate,Temperature,Consciousness,On_Oxygen,Risk_Level\n"+
			"15,98,1,120,70,36.8,A,0,Normal\n"+
			"22,93,1,105,98,37.9,Z,1,Medium\n"+
			"28,88,2,95,120,38.6,V,True,High\n"+
			"18,96,1,118,84,37.1,P,False,Low\n"+
			"30,85,2,90,130,39.1,U,1,High\n"))
	require.NoError(t, err)
	tab, err := dataset.Normalize(raw, dataset.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 1, tab.DroppedCount())

	b, err := NewTrainer(DefaultOptions(), nil).Train(tab)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Rows)
	assert.Equal(t, 1, b.Dropped)
	assert.Len(t, b.Evaluation.YTest, 1)
	assert.True(t, math.IsNaN(b.Metrics.R2))
	assert.InDelta(t, 0, b.Metrics.Inertia, 1e-9)

	blob, err := json.Marshal(b.Metrics)
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"linreg_r2":null`)
	var back Metrics
	require.NoError(t, json.Unmarshal(blob, &back))
	assert.True(t, math.IsNaN(back.R2))
	assert.Equal(t, b.Metrics.MSE, back.MSE)
}
