package model

import (
	"math"
	"strconv"

	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
)

// UnknownLabel is reported when a cluster has no majority label.
const UnknownLabel = "unknown"

// Input is one patient record as entered by a user. Consciousness accepts a letter (A,P,V,U,C) or its code.
type Input struct {
	RespiratoryRate  int     `json:"Respiratory_Rate"`
	OxygenSaturation int     `json:"Oxygen_Saturation"`
	O2Scale          bool    `json:"O2_Scale"`
	SystolicBP       int     `json:"Systolic_BP"`
	HeartRate        int     `json:"Heart_Rate"`
	Temperature      float64 `json:"Temperature"`
	Consciousness    string  `json:"Consciousness"`
	OnOxygen         bool    `json:"On_Oxygen"`
}

// DefaultInput is a typical stable adult on room air.
func DefaultInput() Input {
	return Input{
		RespiratoryRate:  20,
		OxygenSaturation: 96,
		SystolicBP:       110,
		HeartRate:        90,
		Temperature:      37.2,
		Consciousness:    "A",
	}
}

// Raw renders the input as raw cells for the normalizer.
func (in Input) Raw() map[string]string {
	return map[string]string{
		dataset.ColRespiratoryRate:  strconv.Itoa(in.RespiratoryRate),
		dataset.ColOxygenSaturation: strconv.Itoa(in.OxygenSaturation),
		dataset.ColO2Scale:          strconv.FormatBool(in.O2Scale),
		dataset.ColSystolicBP:       strconv.Itoa(in.SystolicBP),
		dataset.ColHeartRate:        strconv.Itoa(in.HeartRate),
		dataset.ColTemperature:      strconv.FormatFloat(in.Temperature, 'f', -1, 64),
		dataset.ColConsciousness:    in.Consciousness,
		dataset.ColOnOxygen:         strconv.FormatBool(in.OnOxygen),
	}
}

// Prediction is the regression and cluster estimate for one record.
type Prediction struct {
	ContinuousScore float64 `json:"continuous_score"`
	RoundedScore    int     `json:"rounded_score"`
	ClusterID       int     `json:"cluster_id"`
	// ClusterLabel is nil when the cluster has no majority label.
	ClusterLabel     *int   `json:"cluster_majority_label"`
	ClusterLabelName string `json:"cluster_majority_name"`
}

// RoundScore rounds half to even and clamps into the risk range [1,4].
func RoundScore(v float64) int {
	r := math.RoundToEven(v)
	if math.IsNaN(r) || r < 1 {
		return 1
	}
	if hi := float64(dataset.RiskLevel.Size()); r > hi {
		return int(hi)
	}
	return int(r)
}

// Predict scores one raw feature record with the fitted models.
func (b *Bundle) Predict(raw map[string]string, opt dataset.Options) (*Prediction, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	features, err := dataset.NormalizeFeatures(raw, opt)
	if err != nil {
		return nil, err
	}
	z := b.Scaler.TransformVec(features)
	score := b.Regressor.Predict(z)
	p := &Prediction{
		ContinuousScore:  score,
		RoundedScore:     RoundScore(score),
		ClusterID:        b.Clusterer.Predict(z),
		ClusterLabelName: UnknownLabel,
	}
	if label, ok := b.ClusterLabels[p.ClusterID]; ok {
		p.ClusterLabel = &label
		if name, ok := dataset.RiskLevel.Label(label); ok {
			p.ClusterLabelName = name
		}
	}
	return p, nil
}
