package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "Patient_ID,Respiratory_Rate,Oxygen_Saturation,O2_Scale,Systolic_BP,Heart_Rate,Temperature,Consciousness,On_Oxygen,Risk_Level"

func csvOf(rows ...string) []byte {
	return []byte(header + "\n" + strings.Join(rows, "\n") + "\n")
}

func TestNormalize_DropsOutOfDomainConsciousness(t *testing.T) {
	raw, err := LoadBytes("five.csv", csvOf(
		"P1,15,98,1,120,70,36.8,A,0,Normal",
		"P2,22,93,1,105,98,37.9,Z,1,Medium",
		"P3,28,88,2,95,120,38.6,V,True,High",
		"P4,18,96,1,118,84,37.1,P,False,Low",
		"P5,30,85,2,90,130,39.1,U,1,High",
	))
	require.NoError(t, err)

	tab, err := Normalize(raw, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 5, tab.Total)
	assert.Equal(t, 4, tab.Len())
	assert.Equal(t, 1, tab.DroppedCount())
	assert.Equal(t, Drop{Line: 3, Column: ColConsciousness, Value: "Z"}, tab.Dropped[0])

	third := tab.Records[1]
	assert.Equal(t, 3.0, third.Consciousness)
	assert.Equal(t, 1.0, third.OnOxygen)
	assert.Equal(t, 4, third.RiskLevel)
	assert.Equal(t, []int{1, 4, 2, 4}, tab.Labels())
}

func TestNormalize_IsIdempotent(t *testing.T) {
	raw, err := LoadBytes("in.csv", csvOf(
		"P1,15,98,True,120,70,36.8, A ,False,Normal",
		"P2,26,90,2,100,110,38.2,C,1,High",
		"P3,17,95,false,130,76,37.0,P,true,Low",
	))
	require.NoError(t, err)
	first, err := Normalize(raw, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 3, first.Len())

	again := &RawTable{Header: RequiredColumns()}
	for _, r := range first.Records {
		cells := r.Raw()
		row := make([]string, len(again.Header))
		for i, col := range again.Header {
			row[i] = cells[col]
		}
		again.Rows = append(again.Rows, row)
	}
	second, err := Normalize(again, DefaultOptions())
	require.NoError(t, err)
	if diff := cmp.Diff(first.Records, second.Records); diff != "" {
		t.Fatalf("normalizing twice changed records (-first +second):\n%s", diff)
	}
	assert.Zero(t, second.DroppedCount())
}

func TestCategoryRoundTrip(t *testing.T) {
	for _, c := range []Category{Consciousness, RiskLevel} {
		for _, label := range c.Labels() {
			code, ok := c.Code(label)
			require.True(t, ok, "%s: %s", c.Name(), label)
			back, ok := c.Label(code)
			require.True(t, ok)
			assert.Equal(t, label, back)
		}
		_, ok := c.Code("Z")
		assert.False(t, ok)
		_, ok = c.Label(0)
		assert.False(t, ok)
		_, ok = c.Label(c.Size() + 1)
		assert.False(t, ok)
	}
}

func TestCoerce_Booleans(t *testing.T) {
	cases := []struct {
		cell   string
		policy BoolPolicy
		want   float64
		ok     bool
		err    bool
	}{
		{"True", BoolDefaultFalse, 1, true, false},
		{"false", BoolDefaultFalse, 0, true, false},
		{"2", BoolDefaultFalse, 2, true, false},
		{"yes", BoolDefaultFalse, 0, true, false},
		{"", BoolDefaultFalse, 0, true, false},
		{"yes", BoolNullThenDrop, 0, false, false},
		{"yes", BoolReject, 0, false, true},
		{"TRUE", BoolReject, 1, true, false},
	}
	for _, tc := range cases {
		v, ok, err := coerce(ColOnOxygen, tc.cell, Options{Bools: tc.policy, Categories: CategoryNullThenDrop})
		if tc.err {
			assert.Error(t, err, "cell %q policy %s", tc.cell, tc.policy)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.ok, ok, "cell %q policy %s", tc.cell, tc.policy)
		assert.Equal(t, tc.want, v, "cell %q policy %s", tc.cell, tc.policy)
	}
}

func TestCoerce_ContinuousAndCategories(t *testing.T) {
	opt := DefaultOptions()
	for _, cell := range []string{"abc", "", "NaN", "Inf"} {
		_, ok, err := coerce(ColTemperature, cell, opt)
		require.NoError(t, err)
		assert.False(t, ok, "temperature %q should be null", cell)
	}
	v, ok, _ := coerce(ColTemperature, " 37.5 ", opt)
	assert.True(t, ok)
	assert.Equal(t, 37.5, v)

	v, ok, _ = coerce(ColConsciousness, "4", opt)
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)
	for _, cell := range []string{"6", "2.5", "a", "Alert"} {
		_, ok, err := coerce(ColConsciousness, cell, opt)
		require.NoError(t, err)
		assert.False(t, ok, "consciousness %q should be null", cell)
	}
	_, ok, _ = coerce(ColRiskLevel, "Critical", opt)
	assert.False(t, ok)
}

func TestNormalize_RejectPolicy(t *testing.T) {
	raw, err := LoadBytes("bad.csv", csvOf(
		"P1,15,98,1,120,70,36.8,A,0,Normal",
		"P2,15,98,1,120,70,36.8,A,0,Critical",
	))
	require.NoError(t, err)
	_, err = Normalize(raw, Options{Bools: BoolDefaultFalse, Categories: CategoryReject})
	var ive *InvalidValueError
	require.ErrorAs(t, err, &ive)
	assert.Equal(t, 3, ive.Line)
	assert.Equal(t, ColRiskLevel, ive.Column)
	assert.Equal(t, "Critical", ive.Value)
}

func TestNormalize_MissingColumns(t *testing.T) {
	raw, err := LoadBytes("cols.csv", []byte("Respiratory_Rate,heart_rate,Temperature\n1,2,3\n"))
	require.NoError(t, err)
	_, err = Normalize(raw, DefaultOptions())
	var mce *MissingColumnsError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, []string{ColOxygenSaturation, ColO2Scale, ColSystolicBP, ColConsciousness, ColOnOxygen, ColRiskLevel}, mce.Missing)
	assert.Contains(t, err.Error(), "Systolic_BP")
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := LoadBytes("empty.csv", nil)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)

	_, err = LoadBytes("quote.csv", []byte("a,b\n1,x\"y\n"))
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
}

func TestNormalizeFeatures(t *testing.T) {
	raw := map[string]string{
		"Respiratory_Rate":  "20",
		"Oxygen_Saturation": "96",
		"o2_scale":          "False",
		"Systolic_BP":       "110",
		"Heart_Rate":        "90",
		"Temperature":       "37.2",
		"Consciousness":     "V",
		"On_Oxygen":         "True",
	}
	got, err := NormalizeFeatures(raw, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 96, 0, 110, 90, 37.2, 3, 1}, got)

	raw["Consciousness"] = "Z"
	_, err = NormalizeFeatures(raw, DefaultOptions())
	var ive *InvalidValueError
	require.ErrorAs(t, err, &ive)
	assert.Equal(t, ColConsciousness, ive.Column)

	delete(raw, "Heart_Rate")
	_, err = NormalizeFeatures(raw, DefaultOptions())
	var mce *MissingColumnsError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, []string{ColHeartRate}, mce.Missing)
}

func TestLoadFile_HashAndDefaults(t *testing.T) {
	dir := t.TempDir()
	_, err := FindDefaultCSV(dir)
	require.Error(t, err)

	body := csvOf("P1,15,98,1,120,70,36.8,A,0,Normal")
	p := filepath.Join(dir, "Health_Risk_Dataset.csv")
	require.NoError(t, os.WriteFile(p, body, 0o644))
	found, err := FindDefaultCSV(dir)
	require.NoError(t, err)
	assert.Equal(t, p, found)

	a, err := LoadFile(found)
	require.NoError(t, err)
	b, err := LoadBytes("upload.csv", body)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)
	assert.NotZero(t, a.Hash)
	assert.Equal(t, "Health_Risk_Dataset.csv", a.Name)
	assert.Equal(t, ',', a.Delimiter)

	tsv, err := LoadBytes("upload.tsv", body)
	require.NoError(t, err)
	assert.Equal(t, '\t', tsv.Delimiter)
	assert.Equal(t, a.Hash, tsv.Hash)
}
