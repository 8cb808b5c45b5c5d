package difftest

import (
	"math"
	"sort"

	"permde/domain/expression"
)

// FilterReport counts why features were not selected. A feature is charged to
// the first check it fails, in the order the checks are listed.
type FilterReport struct {
	Considered    int `json:"considered"`
	FailedLog2FC  int `json:"failed_log2fc"`
	FailedMean    int `json:"failed_mean"`
	FailedNonZero int `json:"failed_nonzero"`
	FailedSign    int `json:"failed_sign"`
	TrimmedTopN   int `json:"trimmed_top_n"`
	Selected      int `json:"selected"`
}

// FeatureFilter chooses which features go through permutation testing.
type FeatureFilter struct {
	cfg Config
}

// NewFeatureFilter creates a filter for cfg's thresholds.
func NewFeatureFilter(cfg Config) FeatureFilter {
	return FeatureFilter{cfg: cfg}
}

// Select returns the indices into observed of the features to test, in
// ascending order.
func (f FeatureFilter) Select(observed []expression.GeneStats) ([]int, FilterReport) {
	report := FilterReport{Considered: len(observed)}
	var keep []int
	for i, g := range observed {
		switch {
		case math.Abs(g.Log2FC) < f.cfg.Log2FCThreshold:
			report.FailedLog2FC++
		case math.Max(g.Mean1, g.Mean2) < f.cfg.MeanThreshold:
			report.FailedMean++
		case higherGroupNonZero(g) < f.cfg.MinNonZero:
			report.FailedNonZero++
		case f.cfg.OnlyPositive && !(g.Mean1 > g.Mean2):
			report.FailedSign++
		default:
			keep = append(keep, i)
		}
	}

	if n := f.cfg.OnlyTopN; n > 0 && len(keep) > n {
		ranked := make([]int, len(keep))
		copy(ranked, keep)
		sort.SliceStable(ranked, func(a, b int) bool {
			fa := math.Abs(observed[ranked[a]].Log2FC)
			fb := math.Abs(observed[ranked[b]].Log2FC)
			if fa != fb {
				return fa > fb
			}
			return ranked[a] < ranked[b]
		})
		report.TrimmedTopN = len(keep) - n
		keep = ranked[:n]
		sort.Ints(keep)
	}

	report.Selected = len(keep)
	return keep, report
}

// higherGroupNonZero returns the non-zero count of the group with the larger
// mean; group 1 wins ties.
func higherGroupNonZero(g expression.GeneStats) int {
	if g.Mean1 >= g.Mean2 {
		return g.NonZero1
	}
	return g.NonZero2
}
