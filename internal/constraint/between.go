package constraint

import (
	"fmt"
	"math"

	"synthdb/internal/metadata"
	"synthdb/internal/table"
)

func init() {
	Register("between", newBetween)
	Register("positive", newPositive)
}

// Ratio clamp keeps the logit finite for values sitting exactly on a bound.
const boundEps = 1e-9

// between reparameterizes a bounded column onto the whole real line using
// the logit of its position inside [low, high]. The modeling layer then
// sees an unbounded numeric column; the inverse squashes sampled values
// back into the interval, so every reverse-transformed value satisfies the
// bound by construction.
//
// Round-trip precision: transform followed by reverse recovers interior
// values up to floating point error (the logit/sigmoid pair is not
// bit-exact), and values sitting exactly on a bound come back within
// boundEps of it. Reversed values always satisfy IsValid.
type between struct {
	column    string
	low, high float64
}

func newBetween(spec metadata.ConstraintSpec) (Constraint, error) {
	if len(spec.Columns) != 1 {
		return nil, fmt.Errorf("between: want exactly 1 column, got %d", len(spec.Columns))
	}
	low, err := floatOption(spec.Options, "low")
	if err != nil {
		return nil, fmt.Errorf("between: %w", err)
	}
	high, err := floatOption(spec.Options, "high")
	if err != nil {
		return nil, fmt.Errorf("between: %w", err)
	}
	if high <= low {
		return nil, fmt.Errorf("between: high %v must exceed low %v", high, low)
	}
	return &between{column: spec.Columns[0], low: low, high: high}, nil
}

func (c *between) Kind() string      { return "between" }
func (c *between) Columns() []string { return []string{c.column} }

func (c *between) Transform(t *table.Table) error {
	ix := t.ColumnIndex(c.column)
	if ix < 0 {
		return fmt.Errorf("column %q missing", c.column)
	}
	for i, row := range t.Rows {
		v, ok := asFloat(row[ix])
		if !ok {
			return fmt.Errorf("row %d: column %s: non-numeric value %v", i, c.column, row[ix])
		}
		if v < c.low || v > c.high {
			return fmt.Errorf("row %d: column %s: value %v outside [%v, %v]", i, c.column, v, c.low, c.high)
		}
		p := (v - c.low) / (c.high - c.low)
		p = math.Min(math.Max(p, boundEps), 1-boundEps)
		row[ix] = math.Log(p / (1 - p))
	}
	return nil
}

func (c *between) ReverseTransform(t *table.Table) error {
	ix := t.ColumnIndex(c.column)
	if ix < 0 {
		return fmt.Errorf("column %q missing", c.column)
	}
	for i, row := range t.Rows {
		v, ok := asFloat(row[ix])
		if !ok {
			return fmt.Errorf("row %d: column %s: non-numeric value %v", i, c.column, row[ix])
		}
		p := 1 / (1 + math.Exp(-v))
		row[ix] = c.low + p*(c.high-c.low)
	}
	return nil
}

func (c *between) IsValid(row []any, colIx map[string]int) bool {
	ix, ok := colIx[c.column]
	if !ok {
		return false
	}
	v, ok := asFloat(row[ix])
	if !ok {
		return false
	}
	return v >= c.low && v <= c.high
}

// positive maps a strictly positive column through log, the special case
// of an interval bounded on one side.
type positive struct {
	column string
}

func newPositive(spec metadata.ConstraintSpec) (Constraint, error) {
	if len(spec.Columns) != 1 {
		return nil, fmt.Errorf("positive: want exactly 1 column, got %d", len(spec.Columns))
	}
	return &positive{column: spec.Columns[0]}, nil
}

func (c *positive) Kind() string      { return "positive" }
func (c *positive) Columns() []string { return []string{c.column} }

func (c *positive) Transform(t *table.Table) error {
	ix := t.ColumnIndex(c.column)
	if ix < 0 {
		return fmt.Errorf("column %q missing", c.column)
	}
	for i, row := range t.Rows {
		v, ok := asFloat(row[ix])
		if !ok {
			return fmt.Errorf("row %d: column %s: non-numeric value %v", i, c.column, row[ix])
		}
		if v <= 0 {
			return fmt.Errorf("row %d: column %s: value %v is not positive", i, c.column, v)
		}
		row[ix] = math.Log(v)
	}
	return nil
}

func (c *positive) ReverseTransform(t *table.Table) error {
	ix := t.ColumnIndex(c.column)
	if ix < 0 {
		return fmt.Errorf("column %q missing", c.column)
	}
	for i, row := range t.Rows {
		v, ok := asFloat(row[ix])
		if !ok {
			return fmt.Errorf("row %d: column %s: non-numeric value %v", i, c.column, row[ix])
		}
		row[ix] = math.Exp(v)
	}
	return nil
}

func (c *positive) IsValid(row []any, colIx map[string]int) bool {
	ix, ok := colIx[c.column]
	if !ok {
		return false
	}
	v, ok := asFloat(row[ix])
	if !ok {
		return false
	}
	return v > 0
}
