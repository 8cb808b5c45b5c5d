package excel

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/xuri/excelize/v2"

	"permde/adapters/report"
	"permde/domain/core"
	"permde/domain/expression"
)

const maxSheetName = 31

// Workbook collects result tables into an XLSX file, one sheet per class.
type Workbook struct {
	f      *excelize.File
	sheets map[string]bool // keyed by lower-cased name
}

// NewWorkbook creates an empty workbook.
func NewWorkbook() *Workbook {
	return &Workbook{f: excelize.NewFile(), sheets: make(map[string]bool)}
}

// AddTable writes table to a new sheet named after class ("results" if empty).
func (wb *Workbook) AddTable(class core.ClassName, table *expression.ResultTable) error {
	sheet := wb.sheetName(class.String())

	if len(wb.sheets) == 0 {
		// reuse the default sheet so the workbook never carries an empty one
		if err := wb.f.SetSheetName("Sheet1", sheet); err != nil {
			return err
		}
	} else if _, err := wb.f.NewSheet(sheet); err != nil {
		return err
	}
	wb.sheets[strings.ToLower(sheet)] = true

	header := make([]interface{}, len(report.Columns))
	for i, c := range report.Columns {
		header[i] = c
	}
	if err := wb.f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for r, row := range table.Rows {
		values := report.Values(row)
		cells := make([]interface{}, 0, len(report.Columns))
		cells = append(cells, row.Feature.String())
		for _, v := range values {
			if math.IsNaN(v) {
				cells = append(cells, nil)
				continue
			}
			cells = append(cells, v)
		}
		cells = append(cells, row.Degenerate)

		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := wb.f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}

// sheetName strips characters Excel forbids, truncates, and deduplicates
// ignoring case, as Excel does.
func (wb *Workbook) sheetName(class string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(class))
	if name == "" {
		name = "results"
	}
	if len([]rune(name)) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}

	base := name
	for n := 2; wb.sheets[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf("~%d", n)
		r := []rune(base)
		if len(r)+len(suffix) > maxSheetName {
			r = r[:maxSheetName-len(suffix)]
		}
		name = string(r) + suffix
	}
	return name
}

// Sheets returns the number of sheets written so far.
func (wb *Workbook) Sheets() int { return len(wb.sheets) }

// SaveAs writes the workbook to path.
func (wb *Workbook) SaveAs(path string) error {
	if err := wb.f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// WriteTo streams the workbook.
func (wb *Workbook) WriteTo(w io.Writer) (int64, error) {
	return wb.f.WriteTo(w)
}

// Close releases the workbook.
func (wb *Workbook) Close() error {
	return wb.f.Close()
}
