package expression

import (
	"encoding/json"
	"math"

	"permde/domain/core"
)

// NullSummary reduces a stream of null difference-in-mean samples for one feature.
type NullSummary struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	SumSq  float64 `json:"sum_sq"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Exceed int     `json:"exceed"` // samples with |null| >= |observed|
}

// Add folds one null sample into the summary.
func (s *NullSummary) Add(v, observed float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	s.Sum += v
	s.SumSq += v * v
	if math.Abs(v) >= math.Abs(observed) {
		s.Exceed++
	}
}

// Mean returns the null mean, or NaN for an empty summary.
func (s NullSummary) Mean() float64 {
	if s.Count == 0 {
		return math.NaN()
	}
	return s.Sum / float64(s.Count)
}

// GeneStats is one output row.
type GeneStats struct {
	Feature    core.FeatureID
	Index      int
	Mean1      float64
	Mean2      float64
	Log2FC     float64
	DiffMean   float64
	NonZero1   int
	NonZero2   int
	ZScore     float64
	EmpPval    float64
	Pval       float64
	EmpPvalAdj float64
	PvalAdj    float64
	Degenerate bool
}

type geneStatsJSON struct {
	Feature    core.FeatureID `json:"feature"`
	Index      int            `json:"index"`
	Mean1      *float64       `json:"mean1"`
	Mean2      *float64       `json:"mean2"`
	Log2FC     *float64       `json:"log2FC"`
	DiffMean   *float64       `json:"diff_mean"`
	NonZero1   int            `json:"nonzero1"`
	NonZero2   int            `json:"nonzero2"`
	ZScore     *float64       `json:"zscore"`
	EmpPval    *float64       `json:"emp_pval"`
	Pval       *float64       `json:"pval"`
	EmpPvalAdj *float64       `json:"emp_pval_adj"`
	PvalAdj    *float64       `json:"pval_adj"`
	Degenerate bool           `json:"degenerate,omitempty"`
}

// finite maps NaN and infinities to JSON null.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// MarshalJSON encodes undefined statistics as null.
func (g GeneStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(geneStatsJSON{
		Feature:    g.Feature,
		Index:      g.Index,
		Mean1:      finite(g.Mean1),
		Mean2:      finite(g.Mean2),
		Log2FC:     finite(g.Log2FC),
		DiffMean:   finite(g.DiffMean),
		NonZero1:   g.NonZero1,
		NonZero2:   g.NonZero2,
		ZScore:     finite(g.ZScore),
		EmpPval:    finite(g.EmpPval),
		Pval:       finite(g.Pval),
		EmpPvalAdj: finite(g.EmpPvalAdj),
		PvalAdj:    finite(g.PvalAdj),
		Degenerate: g.Degenerate,
	})
}

// UnmarshalJSON decodes null statistics back to NaN.
func (g *GeneStats) UnmarshalJSON(data []byte) error {
	var raw geneStatsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = GeneStats{
		Feature:    raw.Feature,
		Index:      raw.Index,
		Mean1:      orNaN(raw.Mean1),
		Mean2:      orNaN(raw.Mean2),
		Log2FC:     orNaN(raw.Log2FC),
		DiffMean:   orNaN(raw.DiffMean),
		NonZero1:   raw.NonZero1,
		NonZero2:   raw.NonZero2,
		ZScore:     orNaN(raw.ZScore),
		EmpPval:    orNaN(raw.EmpPval),
		Pval:       orNaN(raw.Pval),
		EmpPvalAdj: orNaN(raw.EmpPvalAdj),
		PvalAdj:    orNaN(raw.PvalAdj),
		Degenerate: raw.Degenerate,
	}
	return nil
}

// ResultTable is the output of one test invocation.
type ResultTable struct {
	InvocationID core.InvocationID               `json:"invocation_id"`
	Permutations int                             `json:"permutations"`
	Seed         int64                           `json:"seed"`
	Considered   int                             `json:"considered"`
	Rows         []GeneStats                     `json:"rows"`
	Warnings     []core.NumericDegeneracyWarning `json:"warnings,omitempty"`
}

// Tested returns the number of rows.
func (t *ResultTable) Tested() int { return len(t.Rows) }

// Lookup returns the row for a feature.
func (t *ResultTable) Lookup(feature core.FeatureID) (GeneStats, bool) {
	for _, row := range t.Rows {
		if row.Feature == feature {
			return row, true
		}
	}
	return GeneStats{}, false
}
