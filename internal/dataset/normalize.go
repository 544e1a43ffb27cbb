package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// BoolPolicy decides what happens to boolean cells that are neither numeric nor True/False.
type BoolPolicy string

const (
	BoolDefaultFalse BoolPolicy = "default_false"
	BoolNullThenDrop BoolPolicy = "null_then_drop"
	BoolReject       BoolPolicy = "reject"
)

// CategoryPolicy decides what happens to categorical values outside their vocabulary.
type CategoryPolicy string

const (
	CategoryNullThenDrop CategoryPolicy = "null_then_drop"
	CategoryReject       CategoryPolicy = "reject"
)

// ParseBoolPolicy validates a policy name from config or flags.
func ParseBoolPolicy(s string) (BoolPolicy, error) {
	switch p := BoolPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case BoolDefaultFalse, BoolNullThenDrop, BoolReject:
		return p, nil
	case "":
		return BoolDefaultFalse, nil
	default:
		return "", fmt.Errorf("invalid bool policy: %s (use default_false|null_then_drop|reject)", s)
	}
}

// ParseCategoryPolicy validates a policy name from config or flags.
func ParseCategoryPolicy(s string) (CategoryPolicy, error) {
	switch p := CategoryPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CategoryNullThenDrop, CategoryReject:
		return p, nil
	case "":
		return CategoryNullThenDrop, nil
	default:
		return "", fmt.Errorf("invalid category policy: %s (use null_then_drop|reject)", s)
	}
}

// Options controls coercion of raw cells.
type Options struct {
	Bools      BoolPolicy
	Categories CategoryPolicy
}

// DefaultOptions treats unknown booleans as false and drops rows with unknown categories.
func DefaultOptions() Options {
	return Options{Bools: BoolDefaultFalse, Categories: CategoryNullThenDrop}
}

// Record is one fully numeric patient observation.
type Record struct {
	RespiratoryRate  float64
	OxygenSaturation float64
	O2Scale          float64
	SystolicBP       float64
	HeartRate        float64
	Temperature      float64
	Consciousness    float64
	OnOxygen         float64
	RiskLevel        int
}

// Features returns the feature vector in FeatureColumns order.
func (r Record) Features() []float64 {
	return []float64{
		r.RespiratoryRate,
		r.OxygenSaturation,
		r.O2Scale,
		r.SystolicBP,
		r.HeartRate,
		r.Temperature,
		r.Consciousness,
		r.OnOxygen,
	}
}

// Raw renders the record back into raw cells keyed by column name.
func (r Record) Raw() map[string]string {
	out := make(map[string]string, NumFeatures+1)
	for i, v := range r.Features() {
		out[FeatureColumns[i]] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	out[TargetColumn] = strconv.Itoa(r.RiskLevel)
	return out
}

func (r *Record) set(col string, v float64) {
	switch col {
	case ColRespiratoryRate:
		r.RespiratoryRate = v
	case ColOxygenSaturation:
		r.OxygenSaturation = v
	case ColO2Scale:
		r.O2Scale = v
	case ColSystolicBP:
		r.SystolicBP = v
	case ColHeartRate:
		r.HeartRate = v
	case ColTemperature:
		r.Temperature = v
	case ColConsciousness:
		r.Consciousness = v
	case ColOnOxygen:
		r.OnOxygen = v
	case ColRiskLevel:
		r.RiskLevel = int(v)
	}
}

// Drop describes a row removed during normalization. Column is the first null field found.
type Drop struct {
	Line   int
	Column string
	Value  string
}

// Table is the normalized dataset.
type Table struct {
	Name    string
	Hash    uint64
	Records []Record
	// Total is the number of data rows before dropping.
	Total   int
	Dropped []Drop
}

// Len is the number of complete rows.
func (t *Table) Len() int { return len(t.Records) }

// DroppedCount is the number of rows removed for null fields.
func (t *Table) DroppedCount() int { return len(t.Dropped) }

// Features builds the n×8 feature matrix. It returns nil for an empty table.
func (t *Table) Features() *mat.Dense {
	if len(t.Records) == 0 {
		return nil
	}
	data := make([]float64, 0, len(t.Records)*NumFeatures)
	for _, r := range t.Records {
		data = append(data, r.Features()...)
	}
	return mat.NewDense(len(t.Records), NumFeatures, data)
}

// Labels returns the target column.
func (t *Table) Labels() []int {
	out := make([]int, len(t.Records))
	for i, r := range t.Records {
		out[i] = r.RiskLevel
	}
	return out
}

// Normalize coerces a raw table into the fixed numeric schema and drops incomplete rows.
// Under a reject policy the first offending cell aborts with *InvalidValueError.
func Normalize(raw *RawTable, opt Options) (*Table, error) {
	idx, err := raw.ColumnIndex()
	if err != nil {
		return nil, err
	}
	cols := RequiredColumns()
	t := &Table{Name: raw.Name, Hash: raw.Hash, Total: len(raw.Rows)}
	for i, row := range raw.Rows {
		line := i + 2
		if i < len(raw.Lines) {
			line = raw.Lines[i]
		}
		var rec Record
		complete := true
		for _, col := range cols {
			cell := ""
			if j := idx[col]; j < len(row) {
				cell = row[j]
			}
			v, ok, err := coerce(col, cell, opt)
			if err != nil {
				return nil, &InvalidValueError{Line: line, Column: col, Value: cell}
			}
			if !ok {
				t.Dropped = append(t.Dropped, Drop{Line: line, Column: col, Value: cell})
				complete = false
				break
			}
			rec.set(col, v)
		}
		if complete {
			t.Records = append(t.Records, rec)
		}
	}
	return t, nil
}

// NormalizeFeatures coerces a single feature-only record with the same rules as Normalize.
// A null feature cannot be dropped here, so it is reported as *InvalidValueError.
func NormalizeFeatures(raw map[string]string, opt Options) ([]float64, error) {
	var missing []string
	for _, col := range FeatureColumns {
		if _, ok := lookupFolded(raw, col); !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}
	out := make([]float64, NumFeatures)
	for i, col := range FeatureColumns {
		cell, _ := lookupFolded(raw, col)
		v, ok, err := coerce(col, cell, opt)
		if err != nil || !ok {
			return nil, &InvalidValueError{Column: col, Value: cell}
		}
		out[i] = v
	}
	return out, nil
}

func lookupFolded(raw map[string]string, col string) (string, bool) {
	if v, ok := raw[col]; ok {
		return v, true
	}
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), col) {
			return v, true
		}
	}
	return "", false
}

// coerce returns the numeric value of a cell, false when it is null, or an error under a reject policy.
func coerce(col, cell string, opt Options) (float64, bool, error) {
	s := strings.TrimSpace(cell)
	switch kindOf(col) {
	case kindBoolean:
		if f, ok := parseFinite(s); ok {
			return f, true, nil
		}
		switch strings.ToLower(s) {
		case "true":
			return 1, true, nil
		case "false":
			return 0, true, nil
		}
		switch opt.Bools {
		case BoolNullThenDrop:
			return 0, false, nil
		case BoolReject:
			return 0, false, fmt.Errorf("unrecognized boolean %q", s)
		default:
			return 0, true, nil
		}
	case kindConsciousness:
		return coerceCategory(Consciousness, s, opt)
	case kindRisk:
		return coerceCategory(RiskLevel, s, opt)
	default:
		f, ok := parseFinite(s)
		return f, ok, nil
	}
}

func coerceCategory(c Category, s string, opt Options) (float64, bool, error) {
	if code, ok := c.Code(s); ok {
		return float64(code), true, nil
	}
	if f, ok := parseFinite(s); ok && f == math.Trunc(f) && c.Valid(int(f)) {
		return f, true, nil
	}
	if s != "" && opt.Categories == CategoryReject {
		return 0, false, fmt.Errorf("%s out of domain: %q", c.Name(), s)
	}
	return 0, false, nil
}

func parseFinite(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
