package difftest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permde/domain/core"
	"permde/domain/expression"
	"permde/internal/testkit"
)

func TestGroupedMeanCalculator_HandComputed(t *testing.T) {
	m, err := expression.NewCountMatrixFromDense([][]float64{
		{0, 1, 3, 0, 0, 0},
		{2, 2, 2, 2, 2, 2},
	}, nil)
	require.NoError(t, err)
	labels := expression.GroupLabels{true, true, true, false, false, false}

	calc, err := NewGroupedMeanCalculator(m, 1)
	require.NoError(t, err)
	means, err := calc.Compute(labels, false, nil)
	require.NoError(t, err)

	// expm1((log1p(0)+log1p(1)+log1p(3))/3) = expm1(log(8)/3) = 1
	assert.InDelta(t, 1.0, means[0].Mean1, 1e-12)
	assert.Equal(t, 0.0, means[0].Mean2)
	assert.Equal(t, 2, means[0].NonZero1)
	assert.Equal(t, 0, means[0].NonZero2)
	assert.InDelta(t, 1.0, calc.Log2FC(means[0]), 1e-12)
	assert.InDelta(t, 1.0, means[0].Diff(), 1e-12)

	assert.InDelta(t, 2.0, means[1].Mean1, 1e-12)
	assert.InDelta(t, 2.0, means[1].Mean2, 1e-12)
	assert.InDelta(t, 0.0, calc.Log2FC(means[1]), 1e-12)
}

func TestGroupedMeanCalculator_GeneralPseudocount(t *testing.T) {
	m, err := expression.NewCountMatrixFromDense([][]float64{{1, 1, 0, 0}}, nil)
	require.NoError(t, err)

	calc, err := NewGroupedMeanCalculator(m, 0.5)
	require.NoError(t, err)
	means, err := calc.Compute(expression.GroupLabels{true, true, false, false}, false, nil)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, means[0].Mean1, 1e-12)
	assert.InDelta(t, 0.0, means[0].Mean2, 1e-12)
	assert.GreaterOrEqual(t, means[0].Mean2, 0.0)
	assert.InDelta(t, math.Log2(1.5/0.5), calc.Log2FC(means[0]), 1e-12)
}

func TestGroupedMeanCalculator_MatchesDense(t *testing.T) {
	m, labels, err := testkit.NewCountsGenerator(testkit.DefaultCountsConfig()).Generate()
	require.NoError(t, err)

	for _, eps := range []float64{1, 0.1} {
		calc, err := NewGroupedMeanCalculator(m, eps)
		require.NoError(t, err)
		means, err := calc.Compute(labels, false, nil)
		require.NoError(t, err)

		for r := 0; r < m.Features(); r++ {
			dense := make([]float64, m.Observations())
			cols, vals := m.Row(r)
			for k, c := range cols {
				dense[c] = vals[k]
			}
			var sumA, sumB float64
			nA, nB := labels.Sizes()
			for c, v := range dense {
				if labels[c] {
					sumA += math.Log(v + eps)
				} else {
					sumB += math.Log(v + eps)
				}
			}
			wantA := math.Max(0, math.Exp(sumA/float64(nA))-eps)
			wantB := math.Max(0, math.Exp(sumB/float64(nB))-eps)
			assert.InDelta(t, wantA, means[r].Mean1, 1e-9, "eps=%g row %d group A", eps, r)
			assert.InDelta(t, wantB, means[r].Mean2, 1e-9, "eps=%g row %d group B", eps, r)

			// log2FC and diff_mean agree in sign
			lfc := calc.Log2FC(means[r])
			require.False(t, math.IsNaN(lfc) || math.IsInf(lfc, 0))
			if d := means[r].Diff(); d > 0 {
				assert.Greater(t, lfc, 0.0)
			} else if d < 0 {
				assert.Less(t, lfc, 0.0)
			}
		}
	}
}

func TestShuffleLabels_PreservesSizesAndTotals(t *testing.T) {
	m, labels, err := testkit.NewCountsGenerator(testkit.DefaultCountsConfig()).Generate()
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))

	wantA, wantB := labels.Sizes()
	for i := 0; i < 20; i++ {
		shuffled := ShuffleLabels(labels, rng)
		a, b := shuffled.Sizes()
		require.Equal(t, wantA, a)
		require.Equal(t, wantB, b)

		for r := 0; r < m.Features(); r++ {
			cols, vals := m.Row(r)
			var inA, inB float64
			for k, c := range cols {
				if shuffled[c] {
					inA += vals[k]
				} else {
					inB += vals[k]
				}
			}
			require.Equal(t, m.RowTotal(r), inA+inB)
		}
	}

	// the input is left untouched
	a, _ := labels.Sizes()
	assert.Equal(t, wantA, a)
	for c := 0; c < wantA; c++ {
		assert.True(t, labels[c])
	}
}

func TestGroupedMeanCalculator_Errors(t *testing.T) {
	m, err := expression.NewCountMatrixFromDense([][]float64{{1, 0}}, nil)
	require.NoError(t, err)

	_, err = NewGroupedMeanCalculator(m, 0)
	assert.True(t, core.IsConfigurationError(err))

	calc, err := NewGroupedMeanCalculator(m, 1)
	require.NoError(t, err)

	_, err = calc.Compute(expression.GroupLabels{true, true}, false, nil)
	assert.ErrorIs(t, err, core.ErrEmptyGroup)

	_, err = calc.Compute(expression.GroupLabels{true, false}, true, nil)
	assert.True(t, core.IsConfigurationError(err))

	means, err := calc.Compute(expression.GroupLabels{true, false}, true, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, means, 1)
}
