// Package table holds the small column-ordered tabular type the output
// readers produce and the results layer concatenates. It deliberately stays
// minimal: downstream physics post-processing happens outside this module.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Table is a column-ordered collection of rows. Cells are stored as
// strings; numeric access converts on demand.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates an empty table with the given column order.
func New(columns ...string) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		t.index[c] = i
	}
	return t
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// AppendRow appends one row. The row length must match the column count.
func (t *Table) AppendRow(cells ...string) error {
	if len(cells) != len(t.columns) {
		return fmt.Errorf("table: row has %d cells, want %d", len(cells), len(t.columns))
	}
	t.rows = append(t.rows, append([]string(nil), cells...))
	return nil
}

// SetConst adds (or overwrites) a column holding the same value on every
// row. Used to tag rows with the parametric assignment they came from.
func (t *Table) SetConst(column, value string) {
	if i, ok := t.index[column]; ok {
		for r := range t.rows {
			t.rows[r][i] = value
		}
		return
	}
	t.index[column] = len(t.columns)
	t.columns = append(t.columns, column)
	for r := range t.rows {
		t.rows[r] = append(t.rows[r], value)
	}
}

// Column returns the cells of one column, or an error if it does not exist.
func (t *Table) Column(name string) ([]string, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("table: no column %q", name)
	}
	out := make([]string, len(t.rows))
	for r := range t.rows {
		out[r] = t.rows[r][i]
	}
	return out, nil
}

// Floats returns a column parsed as float64 values.
func (t *Table) Floats(name string) ([]float64, error) {
	cells, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, fmt.Errorf("table: column %q row %d: %w", name, i, err)
		}
		out[i] = f
	}
	return out, nil
}

// Cell returns a single cell.
func (t *Table) Cell(row int, column string) (string, error) {
	i, ok := t.index[column]
	if !ok {
		return "", fmt.Errorf("table: no column %q", column)
	}
	if row < 0 || row >= len(t.rows) {
		return "", fmt.Errorf("table: row %d out of range", row)
	}
	return t.rows[row][i], nil
}

// SetCell overwrites a single cell.
func (t *Table) SetCell(row int, column, value string) error {
	i, ok := t.index[column]
	if !ok {
		return fmt.Errorf("table: no column %q", column)
	}
	if row < 0 || row >= len(t.rows) {
		return fmt.Errorf("table: row %d out of range", row)
	}
	t.rows[row][i] = value
	return nil
}

// Concat concatenates tables. The union of all column sets is used; cells
// missing from a source table are left empty. A nil or empty input yields
// an empty table.
func Concat(tables ...*Table) *Table {
	var columns []string
	seen := make(map[string]struct{})
	for _, src := range tables {
		if src == nil {
			continue
		}
		for _, c := range src.columns {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				columns = append(columns, c)
			}
		}
	}
	out := New(columns...)
	for _, src := range tables {
		if src == nil {
			continue
		}
		for _, row := range src.rows {
			cells := make([]string, len(out.columns))
			for i, c := range out.columns {
				if j, ok := src.index[c]; ok {
					cells[i] = row[j]
				}
			}
			out.rows = append(out.rows, cells)
		}
	}
	return out
}

// WriteCSV writes the table, header first, as CSV.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
