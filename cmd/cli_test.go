package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/healthrisk-cli/internal/model"
)

const csvHeader = "Respiratory_Rate,Oxygen_Saturation,O2_Scale,Systolic_BP,Heart_Rate,Temperature,Consciousness,On_Oxygen,Risk_Level"

// vitalsCSV builds ten rows per risk level plus one row with an unknown consciousness code.
func vitalsCSV() string {
	var b strings.Builder
	b.WriteString(csvHeader + "\n")
	names := []string{"Normal", "Low", "Medium", "High"}
	cons := []string{"A", "A", "V", "P"}
	for l := 1; l <= 4; l++ {
		for i := 0; i < 10; i++ {
			o2, onOxy := 0, 0
			if l >= 3 {
				o2 = 1
			}
			if l == 4 {
				onOxy = 1
			}
			fmt.Fprintf(&b, "%d,%d,%d,%d,%d,%.1f,%s,%d,%s\n",
				10+4*l+i%3, 100-3*l-i%2, o2, 130-8*l+i%4, 60+15*l+i%5,
				36.5+0.6*float64(l)+0.1*float64(i%3), cons[l-1], onOxy, names[l-1])
		}
	}
	b.WriteString("30,85,1,88,130,39.5,Z,1,High\n")
	return b.String()
}

// resetFlags restores every flag to its default; cobra keeps parsed values between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(fl *pflag.Flag) {
			if sv, ok := fl.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = fl.Value.Set(fl.DefValue)
			}
			fl.Changed = false
		})
	}
	reset(c.Flags())
	reset(c.PersistentFlags())
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execCmd runs the root command with args and returns stdout, stderr and the error.
func execCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

// runCmd is a helper to execute the root command with args and fail on error.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, _, err := execCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"HEALTHRISK_SEED", "HEALTHRISK_DATA_PATH", "HEALTHRISK_MODELS_DIR", "HEALTHRISK_BOOL_POLICY", "HEALTHRISK_CATEGORY_POLICY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return home
}

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func savedIDs(t *testing.T, home string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(home, ".healthrisk", "models"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids
}

func TestCLI_Train_Predict_Models(t *testing.T) {
	home := setupHome(t)
	csvPath := writeCSV(t, home, "vitals.csv", vitalsCSV())

	out, stderr, err := execCmd(t, "train", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Trained on 40 rows from vitals.csv (seed 42)")
	assert.Contains(t, out, "K-means ARI:")
	assert.Contains(t, out, "✓ Saved model")
	assert.Contains(t, stderr, "⚠ Dropped 1 of 41 rows")
	assert.Contains(t, stderr, `Consciousness="Z"`)

	ids := savedIDs(t, home)
	require.Len(t, ids, 1)
	id := ids[0]

	out = runCmd(t, "models", "list")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "rows=40 dropped=1")

	out = runCmd(t, "models", "show", id[:8])
	assert.Contains(t, out, "Model "+id)
	assert.Contains(t, out, "| majority |")

	out = runCmd(t, "predict", "--json", "--resp", "27", "--oxy", "88", "--o2-scale", "--sys", "98",
		"--heart", "122", "--temp", "39.0", "--consciousness", "P", "--on-oxygen")
	var p model.Prediction
	require.NoError(t, json.Unmarshal([]byte(out), &p), out)
	assert.GreaterOrEqual(t, p.RoundedScore, 3)
	assert.LessOrEqual(t, p.RoundedScore, 4)

	out = runCmd(t, "predict", "--model", id)
	assert.Contains(t, out, "Predicted risk level:")
	assert.Contains(t, out, "Model: "+id)

	_, _, err = execCmd(t, "predict", "--consciousness", "Z")
	assert.Error(t, err)

	out = runCmd(t, "models", "rm", id)
	assert.Contains(t, out, "✓ Removed model")
	out = runCmd(t, "models", "list")
	assert.Contains(t, out, "(no models)")
}

func TestCLI_TrainSmallDatasetReportsUndefinedR2(t *testing.T) {
	home := setupHome(t)
	csvPath := writeCSV(t, home, "small.csv", csvHeader+`
12,98,0,120,70,36.8,A,0,Normal
18,95,0,115,88,37.4,A,0,Low
22,93,1,105,102,38.0,V,1,Medium
26,89,1,95,118,38.9,P,1,High
30,85,1,88,130,39.5,Z,1,High
`)
	out, stderr, err := execCmd(t, "train", "--no-save", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Trained on 4 rows")
	assert.Contains(t, out, "R²:  n/a")
	assert.NotContains(t, out, "Saved model")
	assert.Contains(t, stderr, "line 6")
	assert.Empty(t, savedIDs(t, home))

	out = runCmd(t, "train", "--no-save", "--json", csvPath)
	assert.Contains(t, out, `"linreg_r2": null`)
}

func TestCLI_TrainErrors(t *testing.T) {
	home := setupHome(t)
	tiny := writeCSV(t, home, "tiny.csv", csvHeader+`
12,98,0,120,70,36.8,A,0,Normal
18,95,0,115,88,37.4,A,0,Low
22,93,1,105,102,38.0,V,1,Medium
`)
	_, _, err := execCmd(t, "train", tiny)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "degenerate")
	assert.Empty(t, savedIDs(t, home))

	bad := writeCSV(t, home, "bad.csv", "Respiratory_Rate,Heart_Rate\n12,80\n")
	_, _, err = execCmd(t, "train", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Risk_Level")

	_, _, err = execCmd(t, "train", "--category-policy", "reject", writeCSV(t, home, "v.csv", vitalsCSV()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid Consciousness value "Z"`)
}

func TestCLI_PredictFallsBackToDefaultDataset(t *testing.T) {
	home := setupHome(t)
	writeCSV(t, home, "Health_Risk_Dataset.csv", vitalsCSV())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(home))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	out := runCmd(t, "predict")
	assert.Contains(t, out, "Health_Risk_Dataset.csv")
	assert.Contains(t, out, "Cluster:")
	assert.Empty(t, savedIDs(t, home))
}

func TestCLI_DescribeAndConfig(t *testing.T) {
	home := setupHome(t)
	csvPath := writeCSV(t, home, "vitals.csv", vitalsCSV())

	out := runCmd(t, "describe", csvPath, "--with-model")
	assert.Contains(t, out, "[DATASET SUMMARY]")
	assert.Contains(t, out, "Rows: 41 (used 40, dropped 1)")
	assert.Contains(t, out, "[RISK LEVEL BY CLUSTER]")

	mdPath := filepath.Join(home, "summary.md")
	out = runCmd(t, "describe", csvPath, "-o", mdPath)
	assert.Contains(t, out, "✓ Wrote summary")
	data, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[SCHEMA]")

	runCmd(t, "config", "set", "seed", "7")
	runCmd(t, "config", "set", "data_path", csvPath)
	out = runCmd(t, "config", "show")
	assert.Contains(t, out, "seed: 7")
	assert.Contains(t, out, "bool_policy: default_false")

	out = runCmd(t, "train", "--no-save")
	assert.Contains(t, out, "(seed 7)")
	out = runCmd(t, "train", "--no-save", "--seed", "11")
	assert.Contains(t, out, "(seed 11)")

	_, _, err = execCmd(t, "config", "set", "bool_policy", "maybe")
	assert.Error(t, err)
	_, _, err = execCmd(t, "config", "set", "nope", "1")
	assert.Error(t, err)
}

func TestCLI_BrokenConfigFallsBackToDefaults(t *testing.T) {
	home := setupHome(t)
	csvPath := writeCSV(t, home, "vitals.csv", vitalsCSV())
	bad := writeCSV(t, home, "broken.yaml", "seed: [unclosed\n")

	out, _, err := execCmd(t, "--config", bad, "train", "--no-save", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(seed 42)")
}
