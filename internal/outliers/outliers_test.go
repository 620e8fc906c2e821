package outliers

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domainsift/internal/dataset"
)

func tableOf(t *testing.T, name string, vals ...float64) *dataset.Table {
	t.Helper()
	tbl := dataset.New()
	require.NoError(t, tbl.AddColumn(&dataset.Column{Name: name, Kind: dataset.Numeric, Nums: vals}))
	return tbl
}

func TestFitLooseDefaultKeepsModerateExtremes(t *testing.T) {
	// mean=22, sample stddev≈43.62; with k=8 the bound swallows 100.
	tbl := tableOf(t, "x", 1, 2, 3, 4, 100)
	bounds := Fit(tbl, DefaultMultiplier)

	r, ok := bounds["x"]
	require.True(t, ok)
	assert.InDelta(t, 22-8*43.617657, r.Lower, 1e-3)
	assert.InDelta(t, 22+8*43.617657, r.Upper, 1e-3)

	labels, removed, err := Apply(tbl, []int{0, 0, 0, 0, 1}, bounds)
	require.NoError(t, err)
	assert.Empty(t, removed, "k=8 is deliberately loose, 100 stays")
	assert.Len(t, labels, 5)
}

func TestFitSkipsNaN(t *testing.T) {
	tbl := tableOf(t, "x", 1, math.NaN(), 3)
	bounds := Fit(tbl, 1)
	r := bounds["x"]
	assert.InDelta(t, 2, (r.Lower+r.Upper)/2, 1e-9, "mean over non-missing values")
}

func TestApplyDropsOutliersAndKeepsLabelsAligned(t *testing.T) {
	tbl := dataset.New()
	require.NoError(t, tbl.AddColumn(&dataset.Column{Name: "a", Kind: dataset.Numeric, Nums: []float64{1, 50, 2, 3}}))
	require.NoError(t, tbl.AddColumn(&dataset.Column{Name: "b", Kind: dataset.Numeric, Nums: []float64{10, 11, 99, 12}}))

	bounds := Bounds{
		"a": {Lower: 0, Upper: 10},
		"b": {Lower: 0, Upper: 20},
	}
	labels, removed, err := Apply(tbl, []int{0, 1, 2, 3}, bounds)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 1, "b": 1}, removed)
	assert.Equal(t, []int{0, 3}, labels)
	assert.Equal(t, 2, tbl.Len())

	// Every survivor satisfies all bounds simultaneously.
	for name, r := range bounds {
		col, ok := tbl.Col(name)
		require.True(t, ok)
		for _, v := range col.Nums {
			assert.GreaterOrEqual(t, v, r.Lower)
			assert.LessOrEqual(t, v, r.Upper)
		}
	}
}

func TestApplyIgnoresAbsentColumns(t *testing.T) {
	tbl := tableOf(t, "x", 1, 2)
	bounds := Bounds{"x": {Lower: 0, Upper: 10}, "gone": {Lower: 0, Upper: 1}}
	labels, removed, err := Apply(tbl, []int{0, 1}, bounds)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Len(t, labels, 2)
}

func TestApplyWithoutBounds(t *testing.T) {
	tbl := tableOf(t, "x", 1)
	_, _, err := Apply(tbl, []int{0}, nil)
	assert.Error(t, err, "outlier removal needs fitted bounds")
}

func TestCheckRejectsOutOfBoundsRecord(t *testing.T) {
	tbl := tableOf(t, "x", 500)
	err := Check(tbl, Bounds{"x": {Lower: -10, Upper: 10}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Contains(t, err.Error(), `"x"`)
}

func TestCheckPassesInBoundsRecord(t *testing.T) {
	tbl := tableOf(t, "x", 5)
	assert.NoError(t, Check(tbl, Bounds{"x": {Lower: -10, Upper: 10}}))
}

func TestBoundsEncodeDecode(t *testing.T) {
	in := Bounds{"lex_len": {Lower: -2.5, Upper: 77}, "dns_count": {Lower: 0, Upper: 9}}
	payload, err := in.Encode()
	require.NoError(t, err)

	out, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
