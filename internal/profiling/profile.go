package profiling

import (
	"math"

	"github.com/montanaflynn/stats"

	"permde/domain/expression"
)

// DefaultAlpha is the significance level used when none is given.
const DefaultAlpha = 0.05

// Summary holds location statistics of a p-value column.
type Summary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
}

// Profile condenses a result table into the numbers worth logging.
type Profile struct {
	Tested      int     `json:"tested"`
	Considered  int     `json:"considered"`
	Degenerate  int     `json:"degenerate"`
	Alpha       float64 `json:"alpha"`
	Significant int     `json:"significant"` // emp_pval_adj <= alpha
	// SignificantGaussian counts pval_adj <= alpha; NaN rows never count.
	SignificantGaussian int     `json:"significant_gaussian"`
	EmpPval             Summary `json:"emp_pval"`
	MeanAbsLog2FC       float64 `json:"mean_abs_log2fc"`
}

// ResultProfiler summarizes result tables.
type ResultProfiler struct {
	alpha float64
}

// NewResultProfiler creates a profiler; alpha outside (0, 1) falls back to DefaultAlpha.
func NewResultProfiler(alpha float64) *ResultProfiler {
	if !(alpha > 0 && alpha < 1) {
		alpha = DefaultAlpha
	}
	return &ResultProfiler{alpha: alpha}
}

// Profile computes the summary. An empty table yields NaN summaries.
func (rp *ResultProfiler) Profile(table *expression.ResultTable) (Profile, error) {
	p := Profile{
		Alpha:         rp.alpha,
		EmpPval:       Summary{Mean: math.NaN(), Median: math.NaN(), Q25: math.NaN(), Q75: math.NaN()},
		MeanAbsLog2FC: math.NaN(),
	}
	if table == nil {
		return p, nil
	}
	p.Tested = table.Tested()
	p.Considered = table.Considered
	if p.Tested == 0 {
		return p, nil
	}

	emp := make(stats.Float64Data, 0, p.Tested)
	fc := make(stats.Float64Data, 0, p.Tested)
	for _, row := range table.Rows {
		emp = append(emp, row.EmpPval)
		fc = append(fc, math.Abs(row.Log2FC))
		if row.Degenerate {
			p.Degenerate++
		}
		if row.EmpPvalAdj <= rp.alpha {
			p.Significant++
		}
		if row.PvalAdj <= rp.alpha {
			p.SignificantGaussian++
		}
	}

	summary, err := summarize(emp)
	if err != nil {
		return p, err
	}
	p.EmpPval = summary

	if p.MeanAbsLog2FC, err = stats.Mean(fc); err != nil {
		return p, err
	}
	return p, nil
}

func summarize(data stats.Float64Data) (Summary, error) {
	var s Summary
	var err error
	if s.Mean, err = stats.Mean(data); err != nil {
		return s, err
	}
	if s.Median, err = stats.Median(data); err != nil {
		return s, err
	}
	// Percentile refuses ranks below the first element on tiny inputs
	if s.Q25, err = stats.Percentile(data, 25); err != nil {
		if s.Q25, err = stats.Min(data); err != nil {
			return s, err
		}
	}
	if s.Q75, err = stats.Percentile(data, 75); err != nil {
		if s.Q75, err = stats.Max(data); err != nil {
			return s, err
		}
	}
	return s, nil
}
