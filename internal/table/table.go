// Package table defines the in-memory tabular structure exchanged between
// the metadata layer, the modeling engine, and storage backends.
//
// A Table is a named relation with ordered columns and positional rows.
// Values are held as `any` so the same container carries raw input, key
// columns, and reverse-transformed synthetic output.
package table

import "fmt"

// Table is a named relation: ordered column names plus positional rows.
//
// Invariants:
//   - Every row has len(Columns) values.
//   - Column names are unique within a table.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// New returns an empty table with the given column layout.
func New(name string, columns []string) *Table {
	return &Table{
		Name:    name,
		Columns: append([]string(nil), columns...),
		Rows:    nil,
	}
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// ColumnIndex returns the position of a column, or -1 when absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ColumnIndexMap returns a name -> position map for the current layout.
// The map is rebuilt on every call; callers on hot paths should cache it.
func (t *Table) ColumnIndexMap() map[string]int {
	m := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		m[c] = i
	}
	return m
}

// Column returns the values of a named column in row order.
//
// Errors:
//   - Returns an error if the column does not exist.
func (t *Table) Column(name string) ([]any, error) {
	ix := t.ColumnIndex(name)
	if ix < 0 {
		return nil, fmt.Errorf("table %s: unknown column %q", t.Name, name)
	}
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[ix]
	}
	return out, nil
}

// AppendRow appends a row. The row must match the column count.
func (t *Table) AppendRow(row []any) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("table %s: row has %d values, want %d", t.Name, len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// AppendColumn adds a column with one value per existing row.
func (t *Table) AppendColumn(name string, values []any) error {
	if t.ColumnIndex(name) >= 0 {
		return fmt.Errorf("table %s: column %q already exists", t.Name, name)
	}
	if len(values) != len(t.Rows) {
		return fmt.Errorf("table %s: column %q has %d values, want %d", t.Name, name, len(values), len(t.Rows))
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], values[i])
	}
	return nil
}

// DropColumn removes a column and its values. Dropping an absent column is
// an error so callers notice schema drift early.
func (t *Table) DropColumn(name string) error {
	ix := t.ColumnIndex(name)
	if ix < 0 {
		return fmt.Errorf("table %s: unknown column %q", t.Name, name)
	}
	t.Columns = append(t.Columns[:ix], t.Columns[ix+1:]...)
	for i, r := range t.Rows {
		t.Rows[i] = append(r[:ix], r[ix+1:]...)
	}
	return nil
}

// Clone returns a deep copy (row slices are copied; values are shared).
func (t *Table) Clone() *Table {
	out := &Table{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]any(nil), r...)
	}
	return out
}

// Select returns a copy containing only the named columns, in the given order.
func (t *Table) Select(columns []string) (*Table, error) {
	ixs := make([]int, len(columns))
	for i, c := range columns {
		ix := t.ColumnIndex(c)
		if ix < 0 {
			return nil, fmt.Errorf("table %s: unknown column %q", t.Name, c)
		}
		ixs[i] = ix
	}
	out := New(t.Name, columns)
	out.Rows = make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]any, len(ixs))
		for j, ix := range ixs {
			row[j] = r[ix]
		}
		out.Rows[i] = row
	}
	return out, nil
}
