package analysis

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
	"github.com/KaramelBytes/healthrisk-cli/internal/model"
)

// ContingencyTable counts true risk levels (rows) against k-means clusters (columns).
type ContingencyTable struct {
	Levels   []string
	Clusters int
	Counts   [][]int
	// Majority holds the mapped risk label per cluster, or model.UnknownLabel.
	Majority []string
}

// Contingency cross-tabulates the training labels of a bundle with its cluster assignments.
func Contingency(b *model.Bundle) *ContingencyTable {
	k := model.NumClusters
	if b.Clusterer != nil && len(b.Clusterer.Centroids) > 0 {
		k = len(b.Clusterer.Centroids)
	}
	t := &ContingencyTable{Levels: dataset.RiskLevel.Labels(), Clusters: k}
	t.Counts = make([][]int, len(t.Levels))
	for i := range t.Counts {
		t.Counts[i] = make([]int, k)
	}
	for i, label := range b.Labels {
		if i >= len(b.Assignments) {
			break
		}
		c := b.Assignments[i]
		if label < 1 || label > len(t.Levels) || c < 0 || c >= k {
			continue
		}
		t.Counts[label-1][c]++
	}
	for c := 0; c < k; c++ {
		name := model.UnknownLabel
		if l, ok := b.ClusterLabels[c]; ok {
			if n, ok := dataset.RiskLevel.Label(l); ok {
				name = n
			}
		}
		t.Majority = append(t.Majority, name)
	}
	return t
}

// Markdown renders the table with one column per cluster.
func (t *ContingencyTable) Markdown() string {
	var b strings.Builder
	b.WriteString("| Risk_Level |")
	for c := 0; c < t.Clusters; c++ {
		b.WriteString(fmt.Sprintf(" cluster %d |", c))
	}
	b.WriteString("\n| --- |")
	for c := 0; c < t.Clusters; c++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for i, level := range t.Levels {
		b.WriteString("| " + level + " |")
		for _, n := range t.Counts[i] {
			b.WriteString(fmt.Sprintf(" %d |", n))
		}
		b.WriteString("\n")
	}
	b.WriteString("| majority |")
	for _, m := range t.Majority {
		b.WriteString(" " + m + " |")
	}
	b.WriteString("\n")
	return b.String()
}
