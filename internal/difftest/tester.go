package difftest

import (
	"context"
	"fmt"
	"math"
	"time"

	"permde/domain/core"
	"permde/domain/expression"
	"permde/internal"
	"permde/ports"
)

// Tester runs one differential-mean test: observed pass, filtering, permutation
// null, p-value estimation, BH correction and assembly.
type Tester struct {
	rngPort   ports.RNGPort
	logger    *internal.Logger
	estimator PValueEstimator
	assembler ResultAssembler
}

// Option configures a Tester.
type Option func(*Tester)

// WithLogger sets the logger; the default discards output.
func WithLogger(l *internal.Logger) Option {
	return func(t *Tester) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTester creates a tester drawing all randomness from rngPort.
func NewTester(rngPort ports.RNGPort, opts ...Option) *Tester {
	t := &Tester{
		rngPort:   rngPort,
		logger:    internal.NewNopLogger(),
		estimator: NewPValueEstimator(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe computes observed GeneStats for every feature, without testing.
func (t *Tester) Observe(m *expression.CountMatrix, labels expression.GroupLabels, cfg Config) ([]expression.GeneStats, *GroupedMeanCalculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if err := labels.Validate(m.Observations()); err != nil {
		return nil, nil, err
	}
	calc, err := NewGroupedMeanCalculator(m, cfg.Pseudocount)
	if err != nil {
		return nil, nil, err
	}
	means, err := calc.Compute(labels, false, nil)
	if err != nil {
		return nil, nil, err
	}

	observed := make([]expression.GeneStats, len(means))
	for r, g := range means {
		observed[r] = expression.GeneStats{
			Feature:    m.FeatureID(r),
			Index:      r,
			Mean1:      g.Mean1,
			Mean2:      g.Mean2,
			Log2FC:     calc.Log2FC(g),
			DiffMean:   g.Diff(),
			NonZero1:   g.NonZero1,
			NonZero2:   g.NonZero2,
			ZScore:     math.NaN(),
			EmpPval:    math.NaN(),
			Pval:       math.NaN(),
			EmpPvalAdj: math.NaN(),
			PvalAdj:    math.NaN(),
		}
	}
	return observed, calc, nil
}

// Run executes the full test. Configuration and input errors are fatal;
// per-feature numeric degeneracies are reported in the table.
func (t *Tester) Run(ctx context.Context, m *expression.CountMatrix, labels expression.GroupLabels, cfg Config) (*expression.ResultTable, error) {
	start := time.Now()
	invocation := core.NewInvocationID()
	log := t.logger.With("invocation", invocation.String())

	observed, calc, err := t.Observe(m, labels, cfg)
	if err != nil {
		return nil, err
	}

	selected, report := NewFeatureFilter(cfg).Select(observed)
	log.Debug("filter: considered=%d selected=%d log2fc=%d mean=%d nonzero=%d sign=%d top_n=%d",
		report.Considered, report.Selected, report.FailedLog2FC, report.FailedMean,
		report.FailedNonZero, report.FailedSign, report.TrimmedTopN)

	table := &expression.ResultTable{
		InvocationID: invocation,
		Permutations: cfg.Permutations,
		Seed:         cfg.Seed,
		Considered:   len(observed),
		Rows:         []expression.GeneStats{},
	}
	if len(selected) == 0 {
		log.Info("no features passed the filters (%d considered)", len(observed))
		return table, nil
	}

	observedDiff := make([]float64, len(selected))
	for k, idx := range selected {
		observedDiff[k] = observed[idx].DiffMean
	}

	engine := NewPermutationEngine(t.rngPort, cfg.WorkerCount())
	nulls, err := engine.Run(ctx, calc, labels, selected, observedDiff, cfg.Permutations, cfg.Seed)
	if err != nil {
		return nil, err
	}

	pvals := make([]PValues, len(selected))
	emp := make([]float64, len(selected))
	gauss := make([]float64, len(selected))
	for k, idx := range selected {
		pvals[k] = t.estimator.Estimate(observedDiff[k], nulls[k])
		emp[k] = pvals[k].EmpPval
		gauss[k] = pvals[k].Pval
		if pvals[k].Degenerate {
			w := core.NumericDegeneracyWarning{
				Feature: observed[idx].Feature.String(),
				Index:   idx,
				Reason:  degeneracyReason(nulls[k]),
			}
			if sd := pvals[k].NullSD; !math.IsNaN(sd) {
				w.NullSD = &sd
			}
			table.Warnings = append(table.Warnings, w)
			log.Warn("%s", w.String())
		}
	}

	rows, err := t.assembler.Assemble(observed, selected, pvals, BenjaminiHochberg(emp), BenjaminiHochberg(gauss))
	if err != nil {
		return nil, err
	}
	table.Rows = rows

	log.Info("tested %d/%d features with R=%d in %s (%d degenerate)",
		len(rows), len(observed), cfg.Permutations, time.Since(start).Round(time.Millisecond), len(table.Warnings))
	return table, nil
}

func degeneracyReason(null expression.NullSummary) string {
	if null.Count < 2 {
		return fmt.Sprintf("null standard deviation undefined for R=%d", null.Count)
	}
	return "null standard deviation is zero"
}
