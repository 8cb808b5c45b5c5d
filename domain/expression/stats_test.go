package expression

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullSummary_Add(t *testing.T) {
	var s NullSummary
	for _, v := range []float64{0.5, -2, 1, 0} {
		s.Add(v, 1)
	}

	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, -0.5, s.Sum, 1e-12)
	assert.InDelta(t, 5.25, s.SumSq, 1e-12)
	assert.Equal(t, -2.0, s.Min)
	assert.Equal(t, 1.0, s.Max)
	assert.Equal(t, 2, s.Exceed, "|-2| and |1| reach the observed magnitude")
	assert.InDelta(t, -0.125, s.Mean(), 1e-12)

	var empty NullSummary
	assert.True(t, math.IsNaN(empty.Mean()))
}

func TestGeneStats_JSONNullsForUndefined(t *testing.T) {
	row := GeneStats{
		Feature:    "MS4A1",
		Mean1:      2,
		Mean2:      0.5,
		Log2FC:     1,
		DiffMean:   1.5,
		ZScore:     math.NaN(),
		EmpPval:    0.01,
		Pval:       math.NaN(),
		EmpPvalAdj: 0.02,
		PvalAdj:    math.NaN(),
		Degenerate: true,
	}

	data, err := json.Marshal(row)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `"zscore":null`), text)
	assert.True(t, strings.Contains(text, `"pval_adj":null`), text)
	assert.True(t, strings.Contains(text, `"log2FC":1`), text)

	var back GeneStats
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, row.Feature, back.Feature)
	assert.True(t, math.IsNaN(back.ZScore))
	assert.Equal(t, 0.01, back.EmpPval)
	assert.True(t, back.Degenerate)
}

func TestResultTable_Lookup(t *testing.T) {
	table := ResultTable{Rows: []GeneStats{{Feature: "a", Index: 0}, {Feature: "c", Index: 2}}}
	assert.Equal(t, 2, table.Tested())

	row, ok := table.Lookup("c")
	require.True(t, ok)
	assert.Equal(t, 2, row.Index)

	_, ok = table.Lookup("b")
	assert.False(t, ok)
}
