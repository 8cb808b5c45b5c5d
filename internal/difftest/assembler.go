package difftest

import (
	"fmt"

	"permde/domain/expression"
)

// ResultAssembler merges observed statistics with test outcomes.
type ResultAssembler struct{}

// Assemble builds output rows for the selected features, in the order given
// (ascending matrix order). pvals, empAdj and pAdj are aligned with selected.
func (ResultAssembler) Assemble(
	observed []expression.GeneStats,
	selected []int,
	pvals []PValues,
	empAdj, pAdj []float64,
) ([]expression.GeneStats, error) {
	if len(pvals) != len(selected) || len(empAdj) != len(selected) || len(pAdj) != len(selected) {
		return nil, fmt.Errorf("result assembler: misaligned inputs (%d selected, %d pvals, %d/%d adjusted)",
			len(selected), len(pvals), len(empAdj), len(pAdj))
	}
	rows := make([]expression.GeneStats, len(selected))
	for k, idx := range selected {
		row := observed[idx]
		row.ZScore = pvals[k].ZScore
		row.EmpPval = pvals[k].EmpPval
		row.Pval = pvals[k].Pval
		row.EmpPvalAdj = empAdj[k]
		row.PvalAdj = pAdj[k]
		row.Degenerate = pvals[k].Degenerate
		rows[k] = row
	}
	return rows, nil
}
