package report

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"permde/domain/core"
	"permde/domain/expression"
)

// Columns is the column order shared by every report format.
var Columns = []string{
	"feature", "index", "mean1", "mean2", "log2FC", "diff_mean", "nonzero1", "nonzero2",
	"zscore", "emp_pval", "pval", "emp_pval_adj", "pval_adj", "degenerate",
}

// Values returns the numeric cells of a row in Columns order, after feature.
func Values(row expression.GeneStats) []float64 {
	return []float64{
		float64(row.Index), row.Mean1, row.Mean2, row.Log2FC, row.DiffMean,
		float64(row.NonZero1), float64(row.NonZero2),
		row.ZScore, row.EmpPval, row.Pval, row.EmpPvalAdj, row.PvalAdj,
	}
}

// FormatFloat renders NaN as "NaN" and everything else in shortest form.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// TSVWriter streams result tables as tab-separated rows, prefixed by the
// class column when tables come from a sweep.
type TSVWriter struct {
	w         *csv.Writer
	withClass bool
	header    bool
}

// NewTSVWriter creates a writer; withClass adds a leading class column.
func NewTSVWriter(w io.Writer, withClass bool) *TSVWriter {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return &TSVWriter{w: cw, withClass: withClass}
}

// Write appends all rows of table.
func (t *TSVWriter) Write(class core.ClassName, table *expression.ResultTable) error {
	if !t.header {
		header := Columns
		if t.withClass {
			header = append([]string{"class"}, Columns...)
		}
		if err := t.w.Write(header); err != nil {
			return err
		}
		t.header = true
	}

	for _, row := range table.Rows {
		record := make([]string, 0, len(Columns)+1)
		if t.withClass {
			record = append(record, class.String())
		}
		record = append(record, row.Feature.String())
		for k, v := range Values(row) {
			// index and the non-zero counts are integers
			if k == 0 || k == 5 || k == 6 {
				record = append(record, strconv.Itoa(int(v)))
				continue
			}
			record = append(record, FormatFloat(v))
		}
		record = append(record, strconv.FormatBool(row.Degenerate))
		if err := t.w.Write(record); err != nil {
			return err
		}
	}
	t.w.Flush()
	return t.w.Error()
}
