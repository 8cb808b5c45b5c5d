package difftest

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permde/domain/core"
	"permde/domain/expression"
	"permde/internal/testkit"
)

// twoFeatureFixture: a constant feature and a clear marker over 5 + 5 observations.
func twoFeatureFixture(t *testing.T) (*expression.CountMatrix, expression.GroupLabels) {
	t.Helper()
	m, err := expression.NewCountMatrixFromDense([][]float64{
		{3, 3, 3, 3, 3, 3, 3, 3, 3, 3},
		{9, 8, 10, 7, 9, 0, 1, 0, 0, 2},
	}, []core.FeatureID{"flat", "marker"})
	require.NoError(t, err)
	return m, expression.GroupLabels{true, true, true, true, true, false, false, false, false, false}
}

func regressionConfig() Config {
	cfg := DefaultConfig()
	cfg.Permutations = 99
	cfg.Log2FCThreshold = 0
	cfg.Seed = 1234
	return cfg
}

func TestTester_TwoFeatureRegression(t *testing.T) {
	m, labels := twoFeatureFixture(t)
	cfg := regressionConfig()
	tester := NewTester(testkit.NewTestKit().RNGAdapter())

	first, err := tester.Run(context.Background(), m, labels, cfg)
	require.NoError(t, err)
	second, err := tester.Run(context.Background(), m, labels, cfg)
	require.NoError(t, err)

	require.Equal(t, 2, first.Tested())
	require.Equal(t, 2, first.Considered)
	for i := range first.Rows {
		a, b := first.Rows[i], second.Rows[i]
		assert.Equal(t, a.Feature, b.Feature)
		assert.Equal(t, a.EmpPval, b.EmpPval)
		assert.Equal(t, math.Float64bits(a.ZScore), math.Float64bits(b.ZScore))
		assert.Equal(t, math.Float64bits(a.Pval), math.Float64bits(b.Pval))
	}

	flat := first.Rows[0]
	assert.Equal(t, core.FeatureID("flat"), flat.Feature)
	assert.Equal(t, 0.0, flat.DiffMean)
	assert.Equal(t, 1.0, flat.EmpPval)
	assert.Equal(t, 1.0, flat.EmpPvalAdj)
	assert.True(t, flat.Degenerate)
	assert.True(t, math.IsNaN(flat.ZScore))
	assert.True(t, math.IsNaN(flat.Pval))
	assert.True(t, math.IsNaN(flat.PvalAdj))

	marker := first.Rows[1]
	assert.Equal(t, core.FeatureID("marker"), marker.Feature)
	assert.False(t, marker.Degenerate)
	assert.Greater(t, marker.DiffMean, 7.0)
	assert.Greater(t, marker.Log2FC, 2.0)
	assert.Equal(t, 5, marker.NonZero1)
	assert.Equal(t, 2, marker.NonZero2)
	assert.InDelta(t, 8.113351896312171, marker.DiffMean, 1e-12)
	// seed 1234, R = 99: only the two complement shuffles reach |observed|
	assert.Equal(t, 0.03, marker.EmpPval)
	assert.InDelta(t, 3.1971610650961684, marker.ZScore, 1e-12)
	assert.InDelta(t, 0.0013878740735409497, marker.Pval, 1e-12)
	// the only defined Gaussian p-value is its own family
	assert.Equal(t, marker.Pval, marker.PvalAdj)
	assert.InDelta(t, math.Min(1, 2*marker.EmpPval), marker.EmpPvalAdj, 1e-15)

	require.Len(t, first.Warnings, 1)
	assert.Equal(t, "flat", first.Warnings[0].Feature)
	assert.Equal(t, 0, first.Warnings[0].Index)
}

func TestTester_WorkerCountDoesNotChangeResults(t *testing.T) {
	config := testkit.DefaultCountsConfig()
	config.Effects = map[int]float64{1: 4, 8: 0.2}
	m, labels, err := testkit.NewCountsGenerator(config).Generate()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Seed = 99
	cfg.Log2FCThreshold = 0
	cfg.MinNonZero = 0
	tester := NewTester(testkit.NewTestKit().RNGAdapter())

	cfg.Workers = 1
	serial, err := tester.Run(context.Background(), m, labels, cfg)
	require.NoError(t, err)
	cfg.Workers = 6
	parallel, err := tester.Run(context.Background(), m, labels, cfg)
	require.NoError(t, err)

	require.Equal(t, serial.Tested(), parallel.Tested())
	for i := range serial.Rows {
		assert.Equal(t, serial.Rows[i].EmpPval, parallel.Rows[i].EmpPval)
		assert.Equal(t, math.Float64bits(serial.Rows[i].ZScore), math.Float64bits(parallel.Rows[i].ZScore))
	}
}

func TestTester_EmpiricalPValuesUnderNoEffect(t *testing.T) {
	config := testkit.DefaultCountsConfig()
	config.Features = 200
	config.Rate = 5
	config.Dropout = 0.2
	config.Seed = 2024
	m, labels, err := testkit.NewCountsGenerator(config).Generate()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Log2FCThreshold = 0
	cfg.MeanThreshold = 0
	cfg.MinNonZero = 0
	cfg.Seed = 8

	table, err := NewTester(testkit.NewTestKit().RNGAdapter()).Run(context.Background(), m, labels, cfg)
	require.NoError(t, err)
	require.Equal(t, 200, table.Tested())

	lower := 1.0 / float64(cfg.Permutations+1)
	sum := 0.0
	small := 0
	for _, row := range table.Rows {
		require.GreaterOrEqual(t, row.EmpPval, lower)
		require.LessOrEqual(t, row.EmpPval, 1.0)
		sum += row.EmpPval
		if row.EmpPval <= 0.05 {
			small++
		}
	}
	mean := sum / float64(table.Tested())
	assert.InDelta(t, 0.5, mean, 0.15, "empirical p-values should be roughly uniform")
	assert.Less(t, small, 30, "too many small p-values without an effect")
}

func TestTester_OnlyTopN(t *testing.T) {
	config := testkit.DefaultCountsConfig()
	config.Effects = map[int]float64{2: 5, 5: 4, 9: 3, 14: 6, 20: 8, 33: 2.5, 41: 7}
	m, labels, err := testkit.NewCountsGenerator(config).Generate()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Log2FCThreshold = 0
	cfg.MeanThreshold = 0
	cfg.MinNonZero = 0
	cfg.OnlyTopN = 5
	cfg.Permutations = 19

	tester := NewTester(testkit.NewTestKit().RNGAdapter())
	table, err := tester.Run(context.Background(), m, labels, cfg)
	require.NoError(t, err)
	require.Equal(t, 5, table.Tested())
	assert.Equal(t, m.Features(), table.Considered)

	observed, _, err := tester.Observe(m, labels, cfg)
	require.NoError(t, err)
	expected, _ := NewFeatureFilter(cfg).Select(observed)
	for i, row := range table.Rows {
		assert.Equal(t, expected[i], row.Index)
		if i > 0 {
			assert.Less(t, table.Rows[i-1].Index, row.Index, "rows keep matrix order")
		}
	}
}

func TestTester_FatalErrors(t *testing.T) {
	m, labels := twoFeatureFixture(t)
	tester := NewTester(testkit.NewTestKit().RNGAdapter())
	ctx := context.Background()

	_, err := tester.Run(ctx, m, labels[:9], regressionConfig())
	assert.ErrorIs(t, err, core.ErrLabelLengthMismatch)

	_, err = tester.Run(ctx, m, make(expression.GroupLabels, 10), regressionConfig())
	assert.ErrorIs(t, err, core.ErrEmptyGroup)

	cfg := regressionConfig()
	cfg.Permutations = 0
	_, err = tester.Run(ctx, m, labels, cfg)
	assert.True(t, core.IsConfigurationError(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = tester.Run(cancelled, m, labels, regressionConfig())
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestTester_SinglePermutationIsDegenerate(t *testing.T) {
	m, labels := twoFeatureFixture(t)
	cfg := regressionConfig()
	cfg.Permutations = 1

	table, err := NewTester(testkit.NewTestKit().RNGAdapter()).Run(context.Background(), m, labels, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, table.Tested())
	for _, row := range table.Rows {
		assert.True(t, row.Degenerate)
		assert.GreaterOrEqual(t, row.EmpPval, 0.5)
	}
	assert.Len(t, table.Warnings, 2)
}

func TestTester_NothingPassesFilters(t *testing.T) {
	m, labels := twoFeatureFixture(t)
	cfg := regressionConfig()
	cfg.MeanThreshold = 100

	table, err := NewTester(testkit.NewTestKit().RNGAdapter()).Run(context.Background(), m, labels, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Tested())
	assert.Equal(t, 2, table.Considered)
	assert.NotNil(t, table.Rows)
}
