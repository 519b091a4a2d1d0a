package ml

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dataset is a table of raw training cells with normalised column names.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// Cell returns the raw value at row i, column col, or "" for short rows.
func (d *Dataset) Cell(i, col int) string {
	row := d.Rows[i]
	if col >= len(row) {
		return ""
	}
	return row[col]
}

// ValidateColumns maps every required column to its index. Columns outside
// the schema are returned as extra; they are not used by the pipeline.
func ValidateColumns(columns []string) (index map[string]int, extra []string, err error) {
	index = make(map[string]int, len(columns))
	var dup []string
	for i, name := range columns {
		if _, ok := index[name]; ok {
			dup = append(dup, name)
			continue
		}
		index[name] = i
	}

	required := make(map[string]struct{})
	var missing []string
	for _, name := range RequiredColumns() {
		required[name] = struct{}{}
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 || len(dup) > 0 {
		return nil, nil, &SchemaError{Missing: missing, Duplicate: dup}
	}
	for _, name := range columns {
		if _, ok := required[name]; !ok {
			extra = append(extra, name)
		}
	}
	return index, extra, nil
}

// parseRows converts raw cells into rows and targets. Empty cells become
// missing values; anything else that does not parse is fatal.
func parseRows(ds *Dataset, index map[string]int) ([]Row, []float64, error) {
	rows := make([]Row, 0, len(ds.Rows))
	targets := make([]float64, 0, len(ds.Rows))
	for i := range ds.Rows {
		// spreadsheet row: header is row 1
		line := i + 2
		row := Row{
			Numeric:     make([]float64, 0, len(numericNames)),
			Categorical: make([]Category, 0, len(categoricalNames)),
		}
		for _, name := range numericNames {
			raw := ds.Cell(i, index[name])
			s := strings.TrimSpace(raw)
			if s == "" {
				row.Numeric = append(row.Numeric, math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || math.IsInf(v, 0) {
				return nil, nil, &ConversionError{Field: name, Value: raw, Row: line, Err: errors.New("not a number")}
			}
			row.Numeric = append(row.Numeric, v)
		}
		for _, name := range categoricalNames {
			raw := ds.Cell(i, index[name])
			row.Categorical = append(row.Categorical, Category{Value: raw, Missing: strings.TrimSpace(raw) == ""})
		}

		raw := ds.Cell(i, index[TargetColumn])
		s := strings.TrimSpace(raw)
		if s == "" {
			return nil, nil, fmt.Errorf("row %d: target %q is empty", line, TargetColumn)
		}
		y, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, nil, &ConversionError{Field: TargetColumn, Value: raw, Row: line, Err: errors.New("not a number")}
		}
		if y < 0 {
			return nil, nil, fmt.Errorf("row %d: target %q is negative: %v", line, TargetColumn, y)
		}
		rows = append(rows, row)
		targets = append(targets, y)
	}
	return rows, targets, nil
}
