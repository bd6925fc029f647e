package constraint

import (
	"fmt"
	"math"

	"synthdb/internal/metadata"
	"synthdb/internal/table"
)

func init() {
	Register("sum", newSum)
	Register("unique", newUnique)
}

// Equality tolerance for recomputed formula columns.
const sumEps = 1e-6

// sum declares a derived column equal to the sum of its operand columns.
// The forward transform drops the derived column entirely (it carries no
// independent information); the inverse recomputes it from the operands at
// its original position.
type sum struct {
	column   string
	operands []string

	// position of the derived column recorded at Transform time so the
	// inverse restores the original layout.
	position int
}

func newSum(spec metadata.ConstraintSpec) (Constraint, error) {
	if len(spec.Columns) != 1 {
		return nil, fmt.Errorf("sum: want exactly 1 derived column, got %d", len(spec.Columns))
	}
	operands, err := stringsOption(spec.Options, "operands")
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}
	if len(operands) < 2 {
		return nil, fmt.Errorf("sum: want at least 2 operands, got %d", len(operands))
	}
	return &sum{column: spec.Columns[0], operands: operands, position: -1}, nil
}

func (c *sum) Kind() string      { return "sum" }
func (c *sum) Columns() []string { return append([]string{c.column}, c.operands...) }

func (c *sum) Transform(t *table.Table) error {
	ix := t.ColumnIndex(c.column)
	if ix < 0 {
		return fmt.Errorf("column %q missing", c.column)
	}
	// The declared formula must actually hold on raw data; a mismatch is a
	// configuration error, not something to silently repair.
	for i, row := range t.Rows {
		want, err := c.eval(row, t.ColumnIndexMap())
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		got, ok := asFloat(row[ix])
		if !ok {
			return fmt.Errorf("row %d: column %s: non-numeric value %v", i, c.column, row[ix])
		}
		if math.Abs(got-want) > sumEps*math.Max(1, math.Abs(want)) {
			return fmt.Errorf("row %d: column %s=%v does not equal sum of %v (%v)", i, c.column, got, c.operands, want)
		}
	}
	c.position = ix
	return t.DropColumn(c.column)
}

func (c *sum) ReverseTransform(t *table.Table) error {
	if t.ColumnIndex(c.column) >= 0 {
		return fmt.Errorf("column %q already present", c.column)
	}
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		v, err := c.eval(row, t.ColumnIndexMap())
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		values[i] = v
	}
	if err := t.AppendColumn(c.column, values); err != nil {
		return err
	}
	if c.position >= 0 && c.position < len(t.Columns)-1 {
		moveColumn(t, len(t.Columns)-1, c.position)
	}
	return nil
}

func (c *sum) IsValid(row []any, colIx map[string]int) bool {
	ix, ok := colIx[c.column]
	if !ok {
		return false
	}
	got, ok := asFloat(row[ix])
	if !ok {
		return false
	}
	want, err := c.eval(row, colIx)
	if err != nil {
		return false
	}
	return math.Abs(got-want) <= sumEps*math.Max(1, math.Abs(want))
}

func (c *sum) eval(row []any, colIx map[string]int) (float64, error) {
	var total float64
	for _, op := range c.operands {
		ix, ok := colIx[op]
		if !ok {
			return 0, fmt.Errorf("operand column %q missing", op)
		}
		v, ok := asFloat(row[ix])
		if !ok {
			return 0, fmt.Errorf("operand column %s: non-numeric value %v", op, row[ix])
		}
		total += v
	}
	return total, nil
}

func moveColumn(t *table.Table, from, to int) {
	name := t.Columns[from]
	copy(t.Columns[to+1:from+1], t.Columns[to:from])
	t.Columns[to] = name
	for _, row := range t.Rows {
		v := row[from]
		copy(row[to+1:from+1], row[to:from])
		row[to] = v
	}
}

// unique requires distinct values in a column across the sampled table.
// It has no numeric reparameterization; it participates only in the
// post-sampling validity pass, where the pipeline resets its seen-set
// before each table.
type unique struct {
	column string
	seen   map[string]struct{}
}

func newUnique(spec metadata.ConstraintSpec) (Constraint, error) {
	if len(spec.Columns) != 1 {
		return nil, fmt.Errorf("unique: want exactly 1 column, got %d", len(spec.Columns))
	}
	return &unique{column: spec.Columns[0], seen: map[string]struct{}{}}, nil
}

func (c *unique) Kind() string      { return "unique" }
func (c *unique) Columns() []string { return []string{c.column} }

func (c *unique) Transform(t *table.Table) error {
	ix := t.ColumnIndex(c.column)
	if ix < 0 {
		return fmt.Errorf("column %q missing", c.column)
	}
	seen := make(map[string]struct{}, len(t.Rows))
	for i, row := range t.Rows {
		k := metadata.KeyString(row[ix])
		if _, dup := seen[k]; dup {
			return fmt.Errorf("row %d: column %s: duplicate value %v", i, c.column, row[ix])
		}
		seen[k] = struct{}{}
	}
	return nil
}

func (c *unique) ReverseTransform(t *table.Table) error { return nil }

func (c *unique) IsValid(row []any, colIx map[string]int) bool {
	ix, ok := colIx[c.column]
	if !ok {
		return false
	}
	k := metadata.KeyString(row[ix])
	if _, dup := c.seen[k]; dup {
		return false
	}
	c.seen[k] = struct{}{}
	return true
}

func (c *unique) ResetValidation() {
	c.seen = make(map[string]struct{})
}
