package cmd

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/healthrisk-cli/internal/config"
	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
	"github.com/KaramelBytes/healthrisk-cli/internal/model"
	"github.com/KaramelBytes/healthrisk-cli/internal/store"
)

// maxDropLines caps the per-row drop notes printed by data commands.
const maxDropLines = 10

// currentConfig returns the loaded config, loading it if initialization was skipped.
func currentConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

// resolveDataPath picks the CSV: explicit argument, then data_path from config,
// then the default file names in the working directory.
func resolveDataPath(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	c, err := currentConfig()
	if err != nil {
		return "", err
	}
	if c.DataPath != "" {
		return c.DataPath, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	path, err := dataset.FindDefaultCSV(wd)
	if err != nil {
		return "", fmt.Errorf("%w (pass a CSV path or set data_path)", err)
	}
	return path, nil
}

// loadTable reads and normalizes a CSV with the configured policies.
func loadTable(path string) (*dataset.Table, error) {
	c, err := currentConfig()
	if err != nil {
		return nil, err
	}
	opt, err := c.DatasetOptions()
	if err != nil {
		return nil, err
	}
	raw, err := dataset.LoadFile(path)
	if err != nil {
		return nil, err
	}
	tab, err := dataset.Normalize(raw, opt)
	if err != nil {
		return nil, err
	}
	logger.Debug("dataset normalized",
		zap.String("path", path),
		zap.Int("rows", tab.Total),
		zap.Int("kept", tab.Len()),
		zap.Int("dropped", tab.DroppedCount()))
	return tab, nil
}

// trainTable fits a bundle with the configured training options. A non-zero seed flag overrides config.
func trainTable(tab *dataset.Table, seed uint64, seedSet bool) (*model.Bundle, error) {
	c, err := currentConfig()
	if err != nil {
		return nil, err
	}
	opt, err := c.TrainOptions()
	if err != nil {
		return nil, err
	}
	if seedSet {
		opt.Seed = seed
	}
	return model.NewTrainer(opt, logger).Train(tab)
}

func openStore() (*store.Store, error) {
	c, err := currentConfig()
	if err != nil {
		return nil, err
	}
	return store.New(c.ModelsDir, logger), nil
}

func printDrops(w io.Writer, tab *dataset.Table) {
	if tab.DroppedCount() == 0 {
		return
	}
	fmt.Fprintf(w, "⚠ Dropped %d of %d rows with missing or unrecognized values\n", tab.DroppedCount(), tab.Total)
	for i, d := range tab.Dropped {
		if i == maxDropLines {
			fmt.Fprintf(w, "  … and %d more\n", tab.DroppedCount()-maxDropLines)
			break
		}
		fmt.Fprintf(w, "  line %d: %s=%q\n", d.Line, d.Column, d.Value)
	}
}

func printMetrics(w io.Writer, b *model.Bundle) {
	m := b.Metrics
	fmt.Fprintf(w, "  Linear regression MSE: %.4f\n", m.MSE)
	if math.IsNaN(m.R2) {
		fmt.Fprintln(w, "  Linear regression R²:  n/a (fewer than 2 test rows)")
	} else {
		fmt.Fprintf(w, "  Linear regression R²:  %.4f\n", m.R2)
	}
	fmt.Fprintf(w, "  K-means ARI:           %.4f\n", m.ARI)
	fmt.Fprintf(w, "  K-means inertia:       %.2f\n", m.Inertia)
	fmt.Fprint(w, "  Cluster labels:       ")
	for c := 0; c < len(b.Clusterer.Centroids); c++ {
		name := model.UnknownLabel
		if l, ok := b.ClusterLabels[c]; ok {
			name, _ = dataset.RiskLevel.Label(l)
		}
		fmt.Fprintf(w, " %d→%s", c, name)
	}
	fmt.Fprintln(w)
}

// loadBundle resolves a saved model by id, or the most recent one when id is empty.
func loadBundle(id string) (*model.Bundle, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return st.Latest()
	}
	return st.Load(id)
}

func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }
