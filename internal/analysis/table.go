package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
	"github.com/KaramelBytes/healthrisk-cli/internal/model"
)

// Options controls what the summary computes.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// Correlations computes Pearson correlations among features and the target.
	Correlations bool
	// OutlierThreshold counts values with robust |z| above it (MAD based). 0 disables.
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for dataset summaries.
func DefaultOptions() Options {
	return Options{SampleRows: 5, Correlations: true, OutlierThreshold: 3.5}
}

// Report is a markdown-friendly summary of a normalized health-risk dataset.
type Report struct {
	Name    string
	Rows    int
	Used    int
	Dropped int
	Cols    []ColumnSummary
	Risk    []CategoryCount
	ByRisk  []GroupResult
	Corr    *CorrMatrix
	Samples [][]string
	// Warnings summarize dropped rows per offending column.
	Warnings []string

	Metrics     *model.Metrics
	Contingency *ContingencyTable
}

// ColumnSummary holds describe-style statistics for one column.
type ColumnSummary struct {
	Name  string
	Count int
	Min   float64
	Q1    float64
	Med   float64
	Q3    float64
	Max   float64
	Mean  float64
	Std   float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutlierThreshold float64
	// TopValues is set for discrete columns.
	TopValues []CategoryCount
}

type CategoryCount struct {
	Value string
	Count int
}

// GroupResult captures per-feature means for one risk level.
type GroupResult struct {
	Key   string
	Size  int
	Means map[string]float64
}

// CorrMatrix holds a symmetric Pearson correlation matrix.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64 // row-major, Values[i][j]
}

var discreteColumns = map[string]bool{
	dataset.ColO2Scale:       true,
	dataset.ColConsciousness: true,
	dataset.ColOnOxygen:      true,
}

// Summarize describes a normalized table. Only complete rows contribute to statistics.
func Summarize(tab *dataset.Table, opt Options) *Report {
	rep := &Report{Name: tab.Name, Rows: tab.Total, Used: tab.Len(), Dropped: tab.DroppedCount()}
	names := append(append([]string{}, dataset.FeatureColumns...), dataset.TargetColumn)
	columns := make([][]float64, len(names))
	for _, r := range tab.Records {
		for j, v := range r.Features() {
			columns[j] = append(columns[j], v)
		}
		columns[len(names)-1] = append(columns[len(names)-1], float64(r.RiskLevel))
	}

	for j, name := range names {
		cs := describe(name, columns[j], opt.OutlierThreshold)
		if discreteColumns[name] {
			cs.TopValues = valueCounts(name, columns[j])
		}
		rep.Cols = append(rep.Cols, cs)
	}

	riskCounts := make(map[int]int)
	sums := make(map[int][]float64)
	for _, r := range tab.Records {
		riskCounts[r.RiskLevel]++
		s := sums[r.RiskLevel]
		if s == nil {
			s = make([]float64, dataset.NumFeatures)
			sums[r.RiskLevel] = s
		}
		for j, v := range r.Features() {
			s[j] += v
		}
	}
	for code := 1; code <= dataset.RiskLevel.Size(); code++ {
		label, _ := dataset.RiskLevel.Label(code)
		rep.Risk = append(rep.Risk, CategoryCount{Value: label, Count: riskCounts[code]})
		n := riskCounts[code]
		if n == 0 {
			continue
		}
		g := GroupResult{Key: label, Size: n, Means: make(map[string]float64, dataset.NumFeatures)}
		for j, col := range dataset.FeatureColumns {
			g.Means[col] = sums[code][j] / float64(n)
		}
		rep.ByRisk = append(rep.ByRisk, g)
	}

	if opt.Correlations && tab.Len() >= 2 {
		vals := make([][]float64, len(names))
		for a := range names {
			vals[a] = make([]float64, len(names))
			for b := range names {
				if a == b {
					vals[a][b] = 1
					continue
				}
				r := stat.Correlation(columns[a], columns[b], nil)
				if math.IsNaN(r) || math.IsInf(r, 0) {
					r = 0
				}
				vals[a][b] = r
			}
		}
		rep.Corr = &CorrMatrix{Columns: names, Values: vals}
	}

	sampleRows := opt.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}
	for i := 0; i < len(tab.Records) && i < sampleRows; i++ {
		raw := tab.Records[i].Raw()
		row := make([]string, len(names))
		for j, name := range names {
			row[j] = raw[name]
		}
		rep.Samples = append(rep.Samples, row)
	}

	byColumn := make(map[string]int)
	for _, d := range tab.Dropped {
		byColumn[d.Column]++
	}
	for _, name := range names {
		if n := byColumn[name]; n > 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d row(s) dropped for unusable %s", n, name))
		}
	}
	return rep
}

// AttachModel adds training metrics and the risk-by-cluster table.
func (r *Report) AttachModel(b *model.Bundle) {
	if b == nil {
		return
	}
	m := b.Metrics
	r.Metrics = &m
	r.Contingency = Contingency(b)
}

func describe(name string, vals []float64, threshold float64) ColumnSummary {
	cs := ColumnSummary{Name: name, Count: len(vals), OutlierThreshold: threshold}
	if len(vals) == 0 {
		return cs
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	cs.Min, cs.Max = sorted[0], sorted[len(sorted)-1]
	cs.Q1 = stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	cs.Med = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	cs.Q3 = stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	if len(vals) > 1 {
		cs.Mean, cs.Std = stat.MeanStdDev(vals, nil)
	} else {
		cs.Mean = vals[0]
	}
	if threshold > 0 {
		med, mad := medianMAD(sorted)
		if mad > 0 {
			for _, v := range vals {
				// 0.6745 scales MAD to a standard deviation under normality
				if z := 0.6745 * (v - med) / mad; math.Abs(z) > threshold {
					cs.OutliersCount++
				}
			}
		}
	}
	return cs
}

func valueCounts(name string, vals []float64) []CategoryCount {
	counts := make(map[float64]int)
	for _, v := range vals {
		counts[v]++
	}
	keys := make([]float64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	out := make([]CategoryCount, 0, len(keys))
	for _, k := range keys {
		label := strconv.FormatFloat(k, 'g', -1, 64)
		if name == dataset.ColConsciousness {
			if l, ok := dataset.Consciousness.Label(int(k)); ok {
				label = l
			}
		}
		out = append(out, CategoryCount{Value: label, Count: counts[k]})
	}
	return out
}

// medianMAD computes median and MAD (median absolute deviation) of sorted values.
func medianMAD(sorted []float64) (median, mad float64) {
	if len(sorted) == 0 {
		return 0, 0
	}
	median = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = stat.Quantile(0.5, stat.LinInterp, dev, nil)
	return
}

// Markdown renders the report in the same sectioned layout as other summaries.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d (used %d, dropped %d)\n", r.Rows, r.Used, r.Dropped))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		b.WriteString(fmt.Sprintf("- %s: n=%d", c.Name, c.Count))
		if c.Count > 0 {
			b.WriteString(fmt.Sprintf(", min %.4g, q1 %.4g, median %.4g, q3 %.4g, max %.4g, mean %.4g, std %.4g",
				c.Min, c.Q1, c.Med, c.Q3, c.Max, c.Mean, c.Std))
		}
		if c.OutliersCount > 0 {
			b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
		}
		if len(c.TopValues) > 0 {
			b.WriteString("; values: ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s(%d)", kv.Value, kv.Count))
			}
		}
		b.WriteString("\n")
	}

	if len(r.Risk) > 0 {
		b.WriteString("\n[RISK LEVEL DISTRIBUTION]\n")
		for _, kv := range r.Risk {
			pct := 0.0
			if r.Used > 0 {
				pct = float64(kv.Count) * 100 / float64(r.Used)
			}
			b.WriteString(fmt.Sprintf("- %s: %d (%.1f%%)\n", kv.Value, kv.Count, pct))
		}
	}
	if len(r.ByRisk) > 0 {
		b.WriteString("\n[MEANS BY RISK LEVEL]\n")
		for _, g := range r.ByRisk {
			b.WriteString(fmt.Sprintf("- %s (n=%d)\n", g.Key, g.Size))
			for _, col := range dataset.FeatureColumns {
				b.WriteString(fmt.Sprintf("  • %s: %.4g\n", col, g.Means[col]))
			}
		}
	}
	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		type pr struct {
			A, B string
			R    float64
		}
		var pairs []pr
		n := len(r.Corr.Columns)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				pairs = append(pairs, pr{A: r.Corr.Columns[i], B: r.Corr.Columns[j], R: r.Corr.Values[i][j]})
			}
		}
		sort.Slice(pairs, func(i, j int) bool {
			ai := math.Abs(pairs[i].R)
			aj := math.Abs(pairs[j].R)
			if ai == aj {
				return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
			}
			return ai > aj
		})
		maxp := min(10, len(pairs))
		for i := 0; i < maxp; i++ {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", pairs[i].A, pairs[i].B, pairs[i].R))
		}
	}
	if r.Metrics != nil {
		b.WriteString("\n[MODEL METRICS]\n")
		b.WriteString(fmt.Sprintf("- Linear regression MSE: %.4f\n", r.Metrics.MSE))
		if math.IsNaN(r.Metrics.R2) {
			b.WriteString("- Linear regression R²: n/a (fewer than 2 test rows)\n")
		} else {
			b.WriteString(fmt.Sprintf("- Linear regression R²: %.4f\n", r.Metrics.R2))
		}
		b.WriteString(fmt.Sprintf("- K-means ARI: %.4f\n", r.Metrics.ARI))
		b.WriteString(fmt.Sprintf("- K-means inertia: %.2f\n", r.Metrics.Inertia))
	}
	if r.Contingency != nil {
		b.WriteString("\n[RISK LEVEL BY CLUSTER]\n")
		b.WriteString(r.Contingency.Markdown())
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		b.WriteString("| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(c.Name)
		}
		b.WriteString(" |\n|")
		for range r.Cols {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			b.WriteString(strings.Join(row, " | "))
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}
