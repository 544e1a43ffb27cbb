package dataset

import "strings"

// Column names as they appear in the CSV header.
const (
	ColRespiratoryRate  = "Respiratory_Rate"
	ColOxygenSaturation = "Oxygen_Saturation"
	ColO2Scale          = "O2_Scale"
	ColSystolicBP       = "Systolic_BP"
	ColHeartRate        = "Heart_Rate"
	ColTemperature      = "Temperature"
	ColConsciousness    = "Consciousness"
	ColOnOxygen         = "On_Oxygen"
	ColRiskLevel        = "Risk_Level"
)

// FeatureColumns is the fixed feature order used for every matrix the pipeline builds.
var FeatureColumns = []string{
	ColRespiratoryRate,
	ColOxygenSaturation,
	ColO2Scale,
	ColSystolicBP,
	ColHeartRate,
	ColTemperature,
	ColConsciousness,
	ColOnOxygen,
}

// TargetColumn is the label the regressor predicts.
const TargetColumn = ColRiskLevel

// NumFeatures is len(FeatureColumns).
const NumFeatures = 8

// RequiredColumns returns the feature columns followed by the target.
func RequiredColumns() []string {
	out := make([]string, 0, NumFeatures+1)
	out = append(out, FeatureColumns...)
	return append(out, TargetColumn)
}

type columnKind int

const (
	kindContinuous columnKind = iota
	kindBoolean
	kindConsciousness
	kindRisk
)

func kindOf(col string) columnKind {
	switch col {
	case ColO2Scale, ColOnOxygen:
		return kindBoolean
	case ColConsciousness:
		return kindConsciousness
	case ColRiskLevel:
		return kindRisk
	default:
		return kindContinuous
	}
}

// Category is a fixed ordinal vocabulary mapping labels to 1-based codes.
type Category struct {
	name   string
	labels []string
}

var (
	// Consciousness is the AVPU-style scale: Alert, Pain, Voice, Unresponsive, Confused.
	Consciousness = Category{name: ColConsciousness, labels: []string{"A", "P", "V", "U", "C"}}
	// RiskLevel is the target vocabulary.
	RiskLevel = Category{name: ColRiskLevel, labels: []string{"Normal", "Low", "Medium", "High"}}
)

// Name returns the column the category belongs to.
func (c Category) Name() string { return c.name }

// Size is the number of codes; valid codes are 1..Size().
func (c Category) Size() int { return len(c.labels) }

// Labels returns a copy of the vocabulary in code order.
func (c Category) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

// Code maps a label to its code. Leading and trailing space is ignored; matching is exact.
func (c Category) Code(label string) (int, bool) {
	s := strings.TrimSpace(label)
	for i, l := range c.labels {
		if l == s {
			return i + 1, true
		}
	}
	return 0, false
}

// Label is the reverse of Code.
func (c Category) Label(code int) (string, bool) {
	if code < 1 || code > len(c.labels) {
		return "", false
	}
	return c.labels[code-1], true
}

// Valid reports whether code lies inside the vocabulary.
func (c Category) Valid(code int) bool { return code >= 1 && code <= len(c.labels) }
