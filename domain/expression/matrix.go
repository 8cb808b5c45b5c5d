package expression

import (
	"fmt"
	"math"
	"sort"

	"permde/domain/core"
)

// Entry is one (feature, observation, count) triplet.
type Entry struct {
	Row   int     `json:"row"`
	Col   int     `json:"col"`
	Value float64 `json:"value"`
}

// CountMatrix is an immutable sparse matrix of non-negative integer counts in
// compressed-row form: rows are features, columns are observations.
type CountMatrix struct {
	rows, cols int
	rowPtr     []int
	colIdx     []int
	values     []float64
	features   []core.FeatureID
}

// NewCountMatrix builds a matrix from triplets. Duplicate coordinates are summed;
// explicit zeros are dropped. featureIDs may be nil, in which case rows are named
// feature_<i>.
func NewCountMatrix(rows, cols int, entries []Entry, featureIDs []core.FeatureID) (*CountMatrix, error) {
	if rows < 0 || cols < 0 {
		return nil, core.NewInvalidInputError(fmt.Sprintf("negative dimensions %dx%d", rows, cols))
	}
	if featureIDs != nil && len(featureIDs) != rows {
		return nil, core.NewInvalidInputError(fmt.Sprintf("%d feature ids for %d rows", len(featureIDs), rows))
	}

	for i, e := range entries {
		if e.Row < 0 || e.Row >= rows || e.Col < 0 || e.Col >= cols {
			return nil, fmt.Errorf("%w: entry %d at (%d,%d) in %dx%d", core.ErrOutOfRange, i, e.Row, e.Col, rows, cols)
		}
		if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
			return nil, core.NewInvalidInputError(fmt.Sprintf("entry %d at (%d,%d) is not finite", i, e.Row, e.Col))
		}
		if e.Value < 0 {
			return nil, fmt.Errorf("%w: %g at (%d,%d)", core.ErrNegativeCount, e.Value, e.Row, e.Col)
		}
		if e.Value != math.Trunc(e.Value) {
			return nil, core.NewInvalidInputError(fmt.Sprintf("entry %d at (%d,%d) is not an integer count: %g", i, e.Row, e.Col, e.Value))
		}
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Row != sorted[j].Row {
			return sorted[i].Row < sorted[j].Row
		}
		return sorted[i].Col < sorted[j].Col
	})

	m := &CountMatrix{
		rows:   rows,
		cols:   cols,
		rowPtr: make([]int, rows+1),
		colIdx: make([]int, 0, len(sorted)),
		values: make([]float64, 0, len(sorted)),
	}
	for i := 0; i < len(sorted); {
		e := sorted[i]
		sum := e.Value
		j := i + 1
		for j < len(sorted) && sorted[j].Row == e.Row && sorted[j].Col == e.Col {
			sum += sorted[j].Value
			j++
		}
		if sum != 0 {
			m.colIdx = append(m.colIdx, e.Col)
			m.values = append(m.values, sum)
			m.rowPtr[e.Row+1]++
		}
		i = j
	}
	for r := 0; r < rows; r++ {
		m.rowPtr[r+1] += m.rowPtr[r]
	}

	m.features = make([]core.FeatureID, rows)
	for r := 0; r < rows; r++ {
		if featureIDs != nil {
			m.features[r] = featureIDs[r]
		} else {
			m.features[r] = core.FeatureID(fmt.Sprintf("feature_%d", r))
		}
	}
	return m, nil
}

// NewCountMatrixFromDense is a convenience for small fixtures; rows are features.
func NewCountMatrixFromDense(dense [][]float64, featureIDs []core.FeatureID) (*CountMatrix, error) {
	rows := len(dense)
	cols := 0
	if rows > 0 {
		cols = len(dense[0])
	}
	var entries []Entry
	for r, row := range dense {
		if len(row) != cols {
			return nil, core.NewInvalidInputError(fmt.Sprintf("row %d has %d columns, expected %d", r, len(row), cols))
		}
		for c, v := range row {
			if v != 0 {
				entries = append(entries, Entry{Row: r, Col: c, Value: v})
			}
		}
	}
	return NewCountMatrix(rows, cols, entries, featureIDs)
}

// Features returns the number of rows.
func (m *CountMatrix) Features() int { return m.rows }

// Observations returns the number of columns.
func (m *CountMatrix) Observations() int { return m.cols }

// NonZeros returns the number of stored entries.
func (m *CountMatrix) NonZeros() int { return len(m.values) }

// FeatureID returns the identifier of row r.
func (m *CountMatrix) FeatureID(r int) core.FeatureID { return m.features[r] }

// FeatureIDs returns a copy of all row identifiers.
func (m *CountMatrix) FeatureIDs() []core.FeatureID {
	out := make([]core.FeatureID, len(m.features))
	copy(out, m.features)
	return out
}

// Row returns the column indices and values of row r's non-zero entries.
// The returned slices alias internal storage and must not be modified.
func (m *CountMatrix) Row(r int) ([]int, []float64) {
	lo, hi := m.rowPtr[r], m.rowPtr[r+1]
	return m.colIdx[lo:hi], m.values[lo:hi]
}

// RowSpan returns the half-open range of row r inside the value array, for
// callers building arenas aligned with the matrix storage.
func (m *CountMatrix) RowSpan(r int) (int, int) {
	return m.rowPtr[r], m.rowPtr[r+1]
}

// RowTotal returns the sum of row r.
func (m *CountMatrix) RowTotal(r int) float64 {
	_, vals := m.Row(r)
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total
}

// Entries returns the stored triplets in row-major order.
func (m *CountMatrix) Entries() []Entry {
	out := make([]Entry, 0, len(m.values))
	for r := 0; r < m.rows; r++ {
		cols, vals := m.Row(r)
		for k := range cols {
			out = append(out, Entry{Row: r, Col: cols[k], Value: vals[k]})
		}
	}
	return out
}

// SameShape reports whether other has the same dimensions and feature ids.
func (m *CountMatrix) SameShape(other *CountMatrix) bool {
	if other == nil || m.rows != other.rows || m.cols != other.cols {
		return false
	}
	for i := range m.features {
		if m.features[i] != other.features[i] {
			return false
		}
	}
	return true
}
