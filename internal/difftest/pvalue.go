package difftest

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"permde/domain/expression"
)

// PValues holds the significance estimates for one feature.
type PValues struct {
	EmpPval    float64
	ZScore     float64
	Pval       float64
	NullSD     float64
	Degenerate bool
}

// PValueEstimator turns an observed difference and its null summary into an
// empirical p-value and a Gaussian-approximated z-score and p-value.
type PValueEstimator struct {
	normal distuv.Normal
}

// NewPValueEstimator creates an estimator using the standard normal.
func NewPValueEstimator() PValueEstimator {
	return PValueEstimator{normal: distuv.UnitNormal}
}

// Estimate computes
//
//	emp_pval = (b+1)/(R+1)
//	sd       = sqrt(sum(null^2)/(R-1))
//	zscore   = (observed - mean(null))/sd
//	pval     = 2*Phi(-|zscore|)
//
// sd is the dispersion of the null samples about zero, not about their mean.
// When sd is zero or undefined (R < 2) zscore and pval are NaN and the result
// is flagged degenerate.
func (e PValueEstimator) Estimate(observed float64, null expression.NullSummary) PValues {
	out := PValues{
		EmpPval: float64(null.Exceed+1) / float64(null.Count+1),
		ZScore:  math.NaN(),
		Pval:    math.NaN(),
		NullSD:  math.NaN(),
	}
	if null.Count < 2 {
		out.Degenerate = true
		return out
	}

	sd := math.Sqrt(null.SumSq / float64(null.Count-1))
	out.NullSD = sd
	if sd == 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
		out.Degenerate = true
		return out
	}

	z := (observed - null.Mean()) / sd
	out.ZScore = z
	out.Pval = 2 * e.normal.CDF(-math.Abs(z))
	return out
}
