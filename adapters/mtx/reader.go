package mtx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"permde/domain/core"
	"permde/domain/expression"
)

const banner = "%%MatrixMarket"

// maxPrealloc bounds the entry slice reserved from an untrusted size line.
const maxPrealloc = 1 << 20

// ReadMatrix parses a coordinate-format Matrix Market stream laid out as
// features x observations. featureIDs may be nil.
func ReadMatrix(r io.Reader, featureIDs []core.FeatureID) (*expression.CountMatrix, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, core.NewInvalidInputError("empty matrix market stream")
	}
	pattern, err := parseBanner(sc.Text())
	if err != nil {
		return nil, err
	}

	line := 1
	rows, cols, nnz := -1, -1, -1
	var entries []expression.Entry
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "%") {
			continue
		}
		fields := strings.Fields(text)

		if rows < 0 {
			if len(fields) != 3 {
				return nil, lineError(line, "size line needs rows cols nnz")
			}
			if rows, cols, nnz, err = parseSize(fields); err != nil {
				return nil, lineError(line, err.Error())
			}
			if !fits(rows, cols, nnz) {
				return nil, lineError(line, fmt.Sprintf("%d entries do not fit a %d x %d matrix", nnz, rows, cols))
			}
			entries = make([]expression.Entry, 0, min(nnz, maxPrealloc))
			continue
		}

		want := 3
		if pattern {
			want = 2
		}
		if len(fields) != want {
			return nil, lineError(line, fmt.Sprintf("expected %d fields, got %d", want, len(fields)))
		}
		i, err1 := strconv.Atoi(fields[0])
		j, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return nil, lineError(line, "non-integer coordinate")
		}
		v := 1.0
		if !pattern {
			if v, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, lineError(line, fmt.Sprintf("bad value %q", fields[2]))
			}
		}
		if len(entries) == nnz {
			return nil, lineError(line, fmt.Sprintf("more entries than the %d declared", nnz))
		}
		entries = append(entries, expression.Entry{Row: i - 1, Col: j - 1, Value: v})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if rows < 0 {
		return nil, core.NewInvalidInputError("matrix market stream has no size line")
	}
	if len(entries) != nnz {
		return nil, core.NewInvalidInputError(fmt.Sprintf("size line declares %d entries, found %d", nnz, len(entries)))
	}
	return expression.NewCountMatrix(rows, cols, entries, featureIDs)
}

// ReadMatrixFile opens path and reads it with ReadMatrix.
func ReadMatrixFile(path string, featureIDs []core.FeatureID) (*expression.CountMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open matrix file: %w", err)
	}
	defer f.Close()
	m, err := ReadMatrix(f, featureIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func parseBanner(text string) (pattern bool, err error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) != 5 || fields[0] != strings.ToLower(banner) || fields[1] != "matrix" {
		return false, core.NewInvalidInputError(fmt.Sprintf("not a matrix market header: %q", text))
	}
	if fields[2] != "coordinate" {
		return false, core.NewInvalidInputError(fmt.Sprintf("unsupported layout %q, want coordinate", fields[2]))
	}
	switch fields[3] {
	case "integer", "real":
	case "pattern":
		pattern = true
	default:
		return false, core.NewInvalidInputError(fmt.Sprintf("unsupported field %q", fields[3]))
	}
	if fields[4] != "general" {
		return false, core.NewInvalidInputError(fmt.Sprintf("unsupported symmetry %q", fields[4]))
	}
	return pattern, nil
}

func parseSize(fields []string) (rows, cols, nnz int, err error) {
	vals := make([]int, 3)
	for k, f := range fields {
		if vals[k], err = strconv.Atoi(f); err != nil || vals[k] < 0 {
			return 0, 0, 0, fmt.Errorf("bad size value %q", f)
		}
	}
	return vals[0], vals[1], vals[2], nil
}

// fits reports whether nnz <= rows*cols without forming the product.
func fits(rows, cols, nnz int) bool {
	if nnz == 0 {
		return true
	}
	if rows == 0 || cols == 0 {
		return false
	}
	return (nnz-1)/cols < rows
}

func lineError(line int, reason string) error {
	return core.NewInvalidInputError(fmt.Sprintf("line %d: %s", line, reason))
}

// ReadNames reads one name per line, taking the first tab-separated column.
// Blank lines are skipped.
func ReadNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		name, _, _ := strings.Cut(text, "\t")
		names = append(names, strings.TrimSpace(name))
	}
	return names, sc.Err()
}

// ReadFeatureFile reads feature ids, one per line.
func ReadFeatureFile(path string) ([]core.FeatureID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature file: %w", err)
	}
	defer f.Close()

	names, err := ReadNames(f)
	if err != nil {
		return nil, err
	}
	ids := make([]core.FeatureID, len(names))
	for i, name := range names {
		if ids[i], err = core.ParseFeatureID(name); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
	}
	return ids, nil
}

// LabelFile is a LabelSource backed by a file with one class name per observation.
type LabelFile struct {
	path string
}

// NewLabelFile creates a label source for path.
func NewLabelFile(path string) *LabelFile {
	return &LabelFile{path: path}
}

// Labels reads the class names in file order.
func (l *LabelFile) Labels(ctx context.Context) (expression.ClassLabels, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label file: %w", err)
	}
	defer f.Close()

	names, err := ReadNames(f)
	if err != nil {
		return nil, err
	}
	labels := make(expression.ClassLabels, len(names))
	for i, name := range names {
		if labels[i], err = core.ParseClassName(name); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", l.path, i+1, err)
		}
	}
	return labels, nil
}
