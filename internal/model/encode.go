package model

import (
	"fmt"
	"sort"

	"golang.org/x/exp/rand"

	"synthdb/internal/metadata"
	"synthdb/internal/table"
)

// TableEncoder translates a typed table into the numeric row vectors a
// Generator consumes, and back. Key columns (type "id") are excluded: the
// sampler reassigns them, so modeling them would only leak meaningless
// structure into the fit.
//
// Numerical columns pass through with mean imputation for missing values.
// Categorical and boolean columns use interval encoding: each category
// owns a slice of [0,1) proportional to its frequency, values map to a
// fuzzed point inside their slice, and decoding maps a number back to the
// category whose interval contains it.
type TableEncoder struct {
	columns []string
	encs    []columnEncoder
}

type columnEncoder interface {
	fit(values []any) error
	encode(v any, rng *rand.Rand) float64
	decode(x float64) any
}

// NewTableEncoder fits an encoder layout for the given (constraint
// transformed) table. Columns not declared in the spec (such as residual
// columns produced by constraints) are treated as plain numerical.
func NewTableEncoder(t *table.Table, spec metadata.TableSpec) (*TableEncoder, error) {
	e := &TableEncoder{}
	for _, name := range t.Columns {
		f, known := spec.Field(name)
		if known && f.Type == metadata.TypeID {
			continue
		}

		values, err := t.Column(name)
		if err != nil {
			return nil, err
		}

		var enc columnEncoder
		switch {
		case !known, f.Type == metadata.TypeNumerical:
			enc = &numericEncoder{}
		case f.Type == metadata.TypeCategorical, f.Type == metadata.TypeBoolean:
			enc = &categoryEncoder{}
		default:
			return nil, fmt.Errorf("encoder: table %s: column %s has unsupported type %q", spec.Name, name, f.Type)
		}
		if err := enc.fit(values); err != nil {
			return nil, fmt.Errorf("encoder: table %s: column %s: %w", spec.Name, name, err)
		}
		e.columns = append(e.columns, name)
		e.encs = append(e.encs, enc)
	}
	return e, nil
}

// Columns returns the encoded column names, in table order.
func (e *TableEncoder) Columns() []string {
	return append([]string(nil), e.columns...)
}

// Dims is the encoded width.
func (e *TableEncoder) Dims() int { return len(e.columns) }

// Transform encodes the table's rows into numeric vectors.
func (e *TableEncoder) Transform(t *table.Table, rng *rand.Rand) ([][]float64, error) {
	ixs := make([]int, len(e.columns))
	for i, name := range e.columns {
		ix := t.ColumnIndex(name)
		if ix < 0 {
			return nil, fmt.Errorf("encoder: column %q missing from table %s", name, t.Name)
		}
		ixs[i] = ix
	}
	out := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		vec := make([]float64, len(e.columns))
		for i, ix := range ixs {
			vec[i] = e.encs[i].encode(row[ix], rng)
		}
		out[r] = vec
	}
	return out, nil
}

// Reverse decodes numeric vectors back into a typed table with the
// encoded columns. Vectors may be wider than the encoder (extension
// columns appended by the modeler); the extra values are ignored.
func (e *TableEncoder) Reverse(name string, rows [][]float64) (*table.Table, error) {
	t := table.New(name, e.columns)
	for _, vec := range rows {
		if len(vec) < len(e.columns) {
			return nil, fmt.Errorf("encoder: vector has %d values, want at least %d", len(vec), len(e.columns))
		}
		row := make([]any, len(e.columns))
		for i := range e.columns {
			row[i] = e.encs[i].decode(vec[i])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ---- numerical ----

type numericEncoder struct {
	mean float64
}

func (n *numericEncoder) fit(values []any) error {
	var sum float64
	var cnt int
	for _, v := range values {
		if v == nil {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("non-numeric value %v (%T)", v, v)
		}
		sum += f
		cnt++
	}
	if cnt > 0 {
		n.mean = sum / float64(cnt)
	}
	return nil
}

func (n *numericEncoder) encode(v any, _ *rand.Rand) float64 {
	if v == nil {
		return n.mean
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return n.mean
}

func (n *numericEncoder) decode(x float64) any { return x }

// ---- categorical / boolean ----

type category struct {
	key    string
	value  any
	lo, hi float64
}

type categoryEncoder struct {
	cats  []category
	byKey map[string]int
}

func (c *categoryEncoder) fit(values []any) error {
	counts := map[string]int{}
	sample := map[string]any{}
	order := []string{}
	for _, v := range values {
		k := metadata.KeyString(v)
		if _, seen := counts[k]; !seen {
			order = append(order, k)
			sample[k] = v
		}
		counts[k]++
	}
	if len(order) == 0 {
		return fmt.Errorf("no values to fit")
	}
	// Most frequent first; ties broken by first appearance for determinism.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	total := float64(len(values))
	c.cats = make([]category, 0, len(order))
	c.byKey = make(map[string]int, len(order))
	lo := 0.0
	for i, k := range order {
		width := float64(counts[k]) / total
		hi := lo + width
		if i == len(order)-1 {
			hi = 1.0
		}
		c.cats = append(c.cats, category{key: k, value: sample[k], lo: lo, hi: hi})
		c.byKey[k] = i
		lo = hi
	}
	return nil
}

func (c *categoryEncoder) encode(v any, rng *rand.Rand) float64 {
	ix, ok := c.byKey[metadata.KeyString(v)]
	if !ok {
		ix = 0
	}
	cat := c.cats[ix]
	center := (cat.lo + cat.hi) / 2
	width := cat.hi - cat.lo
	if rng == nil || width == 0 {
		return center
	}
	// Fuzz inside the interval so the column is not a handful of spikes.
	x := center + rng.NormFloat64()*width/6
	if x <= cat.lo {
		x = cat.lo + width*1e-3
	}
	if x >= cat.hi {
		x = cat.hi - width*1e-3
	}
	return x
}

func (c *categoryEncoder) decode(x float64) any {
	if x < 0 {
		x = 0
	}
	if x >= 1 {
		x = 1 - 1e-12
	}
	for _, cat := range c.cats {
		if x >= cat.lo && x < cat.hi {
			return cat.value
		}
	}
	return c.cats[len(c.cats)-1].value
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
