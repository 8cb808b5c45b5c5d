package difftest

import (
	"math"
	"math/rand"

	"permde/domain/core"
	"permde/domain/expression"
)

// GroupedMeanCalculator computes per-group geometric means of every feature.
//
// The geometric mean with pseudocount eps is exp(mean(log(v+eps))) - eps over all
// members of a group. Implicit zeros each contribute log(eps), so only stored
// entries are visited; log(v+eps) for every stored entry is computed once into an
// arena aligned with the matrix value array.
type GroupedMeanCalculator struct {
	matrix *expression.CountMatrix
	eps    float64
	logEps float64
	arena  []float64
}

// GroupMeans holds one feature's per-group summary.
type GroupMeans struct {
	Mean1    float64
	Mean2    float64
	NonZero1 int
	NonZero2 int
}

// Diff returns mean1 - mean2.
func (g GroupMeans) Diff() float64 { return g.Mean1 - g.Mean2 }

// NewGroupedMeanCalculator precomputes the log arena for m.
func NewGroupedMeanCalculator(m *expression.CountMatrix, eps float64) (*GroupedMeanCalculator, error) {
	if !(eps > 0) || math.IsInf(eps, 0) {
		return nil, core.NewConfigurationError("eps", "pseudocount must be a finite value > 0")
	}
	c := &GroupedMeanCalculator{
		matrix: m,
		eps:    eps,
		logEps: math.Log(eps),
		arena:  make([]float64, m.NonZeros()),
	}
	for r := 0; r < m.Features(); r++ {
		lo, _ := m.RowSpan(r)
		_, vals := m.Row(r)
		for k, v := range vals {
			if eps == 1 {
				c.arena[lo+k] = math.Log1p(v)
			} else {
				c.arena[lo+k] = math.Log(v + eps)
			}
		}
	}
	return c, nil
}

// Compute returns group means for every feature. With shuffle set, group
// assignment is first re-drawn from rng as a size-preserving permutation.
func (c *GroupedMeanCalculator) Compute(labels expression.GroupLabels, shuffle bool, rng *rand.Rand) ([]GroupMeans, error) {
	if err := labels.Validate(c.matrix.Observations()); err != nil {
		return nil, err
	}
	assign := labels
	if shuffle {
		if rng == nil {
			return nil, core.NewConfigurationError("rng", "shuffle requires an explicit random source")
		}
		assign = ShuffleLabels(labels, rng)
	}
	nA, nB := assign.Sizes()
	out := make([]GroupMeans, c.matrix.Features())
	for r := range out {
		out[r] = c.rowMeans(r, assign, nA, nB)
	}
	return out, nil
}

// diffMeans writes mean1 - mean2 for each selected row into out.
// assign must already be validated.
func (c *GroupedMeanCalculator) diffMeans(assign expression.GroupLabels, rows []int, out []float64) {
	nA, nB := assign.Sizes()
	for k, r := range rows {
		out[k] = c.rowMeans(r, assign, nA, nB).Diff()
	}
}

func (c *GroupedMeanCalculator) rowMeans(r int, assign expression.GroupLabels, nA, nB int) GroupMeans {
	cols, _ := c.matrix.Row(r)
	lo, _ := c.matrix.RowSpan(r)

	var sumA, sumB float64
	var nzA, nzB int
	for k, col := range cols {
		if assign[col] {
			sumA += c.arena[lo+k]
			nzA++
		} else {
			sumB += c.arena[lo+k]
			nzB++
		}
	}
	sumA += float64(nA-nzA) * c.logEps
	sumB += float64(nB-nzB) * c.logEps

	return GroupMeans{
		Mean1:    c.gmean(sumA, nA),
		Mean2:    c.gmean(sumB, nB),
		NonZero1: nzA,
		NonZero2: nzB,
	}
}

func (c *GroupedMeanCalculator) gmean(logSum float64, n int) float64 {
	var g float64
	if c.eps == 1 {
		g = math.Expm1(logSum / float64(n))
	} else {
		g = math.Exp(logSum/float64(n)) - c.eps
	}
	if g < 0 {
		// exp(log(eps)) - eps can round just below zero.
		g = 0
	}
	return g
}

// Log2FC is log2 of the ratio of the offset geometric means, finite for any
// eps > 0. Its sign always matches mean1 - mean2.
func (c *GroupedMeanCalculator) Log2FC(g GroupMeans) float64 {
	return math.Log2((g.Mean1 + c.eps) / (g.Mean2 + c.eps))
}

// ShuffleLabels returns a uniformly permuted copy of labels; group sizes are kept.
func ShuffleLabels(labels expression.GroupLabels, rng *rand.Rand) expression.GroupLabels {
	out := make(expression.GroupLabels, len(labels))
	copy(out, labels)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
