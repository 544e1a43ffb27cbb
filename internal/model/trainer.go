package model

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
)

// NumClusters matches the four risk levels.
const NumClusters = 4

// Options controls training. The same seed drives the split and every k-means initialization.
type Options struct {
	Seed         uint64  `json:"seed" yaml:"seed"`
	TestFraction float64 `json:"test_fraction" yaml:"test_fraction"`
	Inits        int     `json:"kmeans_inits" yaml:"kmeans_inits"`
	MaxIter      int     `json:"kmeans_max_iter" yaml:"kmeans_max_iter"`
	Tol          float64 `json:"kmeans_tol" yaml:"kmeans_tol"`
}

// DefaultOptions: seed 42, 20% held out, 10 k-means inits.
func DefaultOptions() Options {
	return Options{Seed: 42, TestFraction: 0.2, Inits: 10, MaxIter: 300, Tol: 1e-4}
}

// Validate rejects option values that would make training meaningless.
func (o Options) Validate() error {
	if o.TestFraction <= 0 || o.TestFraction >= 1 {
		return fmt.Errorf("test fraction must be in (0,1), got %g", o.TestFraction)
	}
	if o.Inits < 1 {
		return fmt.Errorf("kmeans inits must be >= 1, got %d", o.Inits)
	}
	if o.MaxIter < 1 {
		return fmt.Errorf("kmeans max iterations must be >= 1, got %d", o.MaxIter)
	}
	if o.Tol < 0 {
		return fmt.Errorf("kmeans tolerance must be >= 0, got %g", o.Tol)
	}
	return nil
}

// Evaluation keeps the held-out regression arrays for plotting.
type Evaluation struct {
	TestIndex []int     `json:"test_index"`
	YTest     []float64 `json:"y_test"`
	YPred     []float64 `json:"y_pred"`
	Residuals []float64 `json:"residuals"`
}

// Bundle is the immutable result of one training run. It is safe to share between goroutines.
type Bundle struct {
	ID          string    `json:"id"`
	DatasetName string    `json:"dataset_name"`
	DatasetHash string    `json:"dataset_hash"`
	CreatedAt   time.Time `json:"created_at"`
	Options     Options   `json:"options"`
	Rows        int       `json:"rows"`
	Dropped     int       `json:"dropped"`

	Scaler        *Standardizer     `json:"scaler"`
	Regressor     *LinearRegression `json:"regressor"`
	Clusterer     *KMeans           `json:"clusterer"`
	ClusterLabels map[int]int       `json:"cluster_labels"`
	PCA           *PCA              `json:"pca"`

	Evaluation  Evaluation  `json:"evaluation"`
	Assignments []int       `json:"assignments"`
	Labels      []int       `json:"labels"`
	Projection  [][]float64 `json:"projection"`
	Metrics     Metrics     `json:"metrics"`
}

// Trained reports whether the bundle carries every fitted model needed for prediction.
func (b *Bundle) Trained() bool { return b.Validate() == nil }

// Validate checks that every fitted model is present and sized for the feature schema.
// The returned error wraps ErrNotTrained.
func (b *Bundle) Validate() error {
	if b == nil || b.Scaler == nil || b.Regressor == nil || b.Clusterer == nil {
		return ErrNotTrained
	}
	if err := b.Scaler.validate(dataset.NumFeatures); err != nil {
		return fmt.Errorf("%w: %v", ErrNotTrained, err)
	}
	if err := b.Regressor.validate(dataset.NumFeatures); err != nil {
		return fmt.Errorf("%w: %v", ErrNotTrained, err)
	}
	if len(b.Clusterer.Centroids) == 0 {
		return fmt.Errorf("%w: clusterer has no centroids", ErrNotTrained)
	}
	for i, c := range b.Clusterer.Centroids {
		if len(c) != dataset.NumFeatures || !allFinite(c) {
			return fmt.Errorf("%w: centroid %d has %d values or a non-finite one, want %d finite",
				ErrNotTrained, i, len(c), dataset.NumFeatures)
		}
	}
	return nil
}

// Trainer fits bundles from normalized tables.
type Trainer struct {
	opt Options
	log *zap.Logger
}

// NewTrainer returns a trainer. A nil logger discards output.
func NewTrainer(opt Options, log *zap.Logger) *Trainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trainer{opt: opt, log: log}
}

// Train runs the full pipeline. It fails before any fitting when the table is too small.
func (t *Trainer) Train(tab *dataset.Table) (*Bundle, error) {
	if err := t.opt.Validate(); err != nil {
		return nil, err
	}
	if tab == nil || tab.Len() == 0 {
		d := 0
		if tab != nil {
			d = tab.DroppedCount()
		}
		return nil, &DegenerateDatasetError{Dropped: d, Reason: "no complete rows after normalization"}
	}
	n := tab.Len()
	if n < NumClusters {
		return nil, &DegenerateDatasetError{
			Rows: n, Dropped: tab.DroppedCount(), Clusters: NumClusters,
			Reason: "fewer rows than clusters",
		}
	}
	nTest := int(math.Ceil(t.opt.TestFraction * float64(n)))
	if n-nTest < 1 {
		return nil, &DegenerateDatasetError{Rows: n, Dropped: tab.DroppedCount(), Reason: "train split would be empty"}
	}

	log := t.log.With(zap.String("dataset", tab.Name), zap.Int("rows", n))
	labels := tab.Labels()
	y := make([]float64, n)
	for i, l := range labels {
		y[i] = float64(l)
	}

	x := tab.Features()
	scaler, err := FitStandardizer(x)
	if err != nil {
		return nil, err
	}
	xs := scaler.Transform(x)
	log.Debug("standardizer fitted", zap.Float64s("mean", scaler.Mean), zap.Float64s("scale", scaler.Scale))

	trainIdx, testIdx := splitIndices(n, nTest, t.opt.Seed)
	reg, err := FitLinear(selectRows(xs, trainIdx), pick(y, trainIdx))
	if err != nil {
		return nil, err
	}
	yTest := pick(y, testIdx)
	yPred := reg.PredictRows(selectRows(xs, testIdx))
	residuals := make([]float64, len(yTest))
	for i := range yTest {
		residuals[i] = yTest[i] - yPred[i]
	}
	metrics := Metrics{MSE: MeanSquaredError(yTest, yPred), R2: R2Score(yTest, yPred)}
	log.Debug("regressor fitted", zap.Int("train", len(trainIdx)), zap.Int("test", len(testIdx)),
		zap.String("solver", reg.Solver), zap.Float64("mse", metrics.MSE), zap.Float64("r2", metrics.R2))

	km, assignments, err := FitKMeans(xs, KMeansOptions{
		K: NumClusters, Inits: t.opt.Inits, MaxIter: t.opt.MaxIter, Tol: t.opt.Tol, Seed: t.opt.Seed,
	})
	if err != nil {
		return nil, err
	}
	metrics.ARI = AdjustedRandIndex(labels, assignments)
	metrics.Inertia = km.Inertia
	mapping := MajorityLabels(assignments, labels)
	if len(mapping) < NumClusters {
		log.Warn("some clusters have no members", zap.Int("populated", len(mapping)))
	}

	pca, err := FitPCA(xs, 2)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		ID:            uuid.NewString(),
		DatasetName:   tab.Name,
		DatasetHash:   fmt.Sprintf("%016x", tab.Hash),
		CreatedAt:     time.Now().UTC(),
		Options:       t.opt,
		Rows:          n,
		Dropped:       tab.DroppedCount(),
		Scaler:        scaler,
		Regressor:     reg,
		Clusterer:     km,
		ClusterLabels: mapping,
		PCA:           pca,
		Evaluation:    Evaluation{TestIndex: testIdx, YTest: yTest, YPred: yPred, Residuals: residuals},
		Assignments:   assignments,
		Labels:        labels,
		Projection:    pca.ProjectRows(xs),
		Metrics:       metrics,
	}
	log.Info("training complete",
		zap.String("bundle", b.ID),
		zap.Int("dropped", b.Dropped),
		zap.Float64("mse", metrics.MSE),
		zap.Float64("r2", metrics.R2),
		zap.Float64("ari", metrics.ARI),
		zap.Float64("inertia", metrics.Inertia),
		zap.Int("kmeans_iterations", km.Iterations))
	return b, nil
}

// splitIndices shuffles 0..n-1 with the seeded generator; the first nTest go to the test split.
func splitIndices(n, nTest int, seed uint64) (train, test []int) {
	perm := newRand(seed).Perm(n)
	return perm[nTest:], perm[:nTest]
}

func selectRows(x *mat.Dense, idx []int) *mat.Dense {
	_, c := x.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		out.SetRow(i, x.RawRowView(r))
	}
	return out
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}
