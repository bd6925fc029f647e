// Package modeler fits one generative model per table over an extended
// numeric frame. Tables are processed children first: before a parent is
// modeled, every child's per-parent row group is summarized into flattened
// distribution parameters and appended to the parent's frame as extension
// columns. The parent's model therefore captures not just its own columns
// but how its children are distributed beneath each row.
//
// Extension columns are named __<child>__<fk>__num_rows and
// __<child>__<fk>__p<i>; the sampler reads them back positionally through
// the ExtBlock index recorded on each FittedTable.
package modeler

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"

	"synthdb/internal/constraint"
	"synthdb/internal/graph"
	"synthdb/internal/metadata"
	"synthdb/internal/metrics"
	"synthdb/internal/model"
	"synthdb/internal/table"
)

// Logger is the minimal logging seam. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// ExtBlock locates one child aggregation inside a parent's extended frame.
type ExtBlock struct {
	Child     string
	FKColumn  string // FK column on the child that points at this parent
	Start     int    // frame index of the __num_rows column
	Len       int    // 1 + parameter length
	ChildDims int    // width of the child's extended frame
	Defaults  []float64 // marginal child parameters, used for empty groups
}

// FittedTable is everything the sampler needs for one table.
type FittedTable struct {
	Spec        metadata.TableSpec
	Encoder     *model.TableEncoder
	Model       model.Generator
	Columns     []string // extended frame column names
	Blocks      []ExtBlock
	Constraints constraint.Pipeline
	RowCount    int // rows seen at fit time, the default sample size

	// frame and key columns are retained so that parents fitted later can
	// group this table's rows by FK value.
	frame    [][]float64
	fkValues map[string][]string // fk column -> canonical parent key per row
}

// Fitted is the result of modeling a whole dataset.
type Fitted struct {
	Spec   *metadata.Spec
	Graph  *graph.Graph
	Tables map[string]*FittedTable
}

// Table returns the fitted state for one table.
func (f *Fitted) Table(name string) (*FittedTable, bool) {
	ft, ok := f.Tables[name]
	return ft, ok
}

// Modeler drives the children-first fit pass.
type Modeler struct {
	Logger  Logger
	Metrics metrics.Backend
}

// New returns a Modeler with no-op logging and metrics.
func New() *Modeler {
	return &Modeler{Logger: nopLogger{}, Metrics: metrics.Nop()}
}

// Fit models every table in the dataset. The input tables must already be
// constraint-transformed; the matching pipelines are carried onto each
// FittedTable so the sampler can reverse and re-check them.
func (m *Modeler) Fit(spec *metadata.Spec, g *graph.Graph, tables map[string]*table.Table, pipelines map[string]constraint.Pipeline, rng *rand.Rand) (*Fitted, error) {
	if m.Logger == nil {
		m.Logger = nopLogger{}
	}
	if m.Metrics == nil {
		m.Metrics = metrics.Nop()
	}
	out := &Fitted{Spec: spec, Graph: g, Tables: make(map[string]*FittedTable)}

	for _, name := range g.ReverseTopologicalOrder() {
		start := time.Now()
		ft, err := m.fitTable(spec, g, name, tables[name], pipelines[name], out, rng)
		if err != nil {
			return nil, err
		}
		out.Tables[name] = ft
		m.Metrics.ObserveHistogram(metrics.FitSeconds, time.Since(start).Seconds(), metrics.Labels{"table": name})
	}
	return out, nil
}

func (m *Modeler) fitTable(spec *metadata.Spec, g *graph.Graph, name string, t *table.Table, pipe constraint.Pipeline, done *Fitted, rng *rand.Rand) (*FittedTable, error) {
	ts, ok := spec.Table(name)
	if !ok {
		return nil, fmt.Errorf("modeler: table %s not declared", name)
	}
	if t == nil {
		return nil, fmt.Errorf("modeler: no data for table %s", name)
	}

	enc, err := model.NewTableEncoder(t, ts)
	if err != nil {
		return nil, err
	}
	frame, err := enc.Transform(t, rng)
	if err != nil {
		return nil, err
	}
	columns := enc.Columns()

	ft := &FittedTable{
		Spec:        ts,
		Encoder:     enc,
		Columns:     columns,
		Constraints: pipe,
		RowCount:    t.NumRows(),
		frame:       frame,
		fkValues:    keyColumns(spec, name, t),
	}

	// Aggregate each child relationship into extension columns, one block
	// per (child, FK) edge. Children are already fitted, so their frames
	// carry their own extensions and the hierarchy nests transitively.
	pkKeys, err := primaryKeys(ts, t)
	if err != nil {
		return nil, err
	}
	for _, edge := range g.ChildrenOf(name) {
		child := done.Tables[edge.Child]
		if child == nil {
			return nil, fmt.Errorf("modeler: child %s of %s not fitted yet", edge.Child, name)
		}
		block, cols, err := m.extend(ft, child, edge, pkKeys, rng)
		if err != nil {
			return nil, err
		}
		ft.Blocks = append(ft.Blocks, block)
		ft.Columns = append(ft.Columns, cols...)
	}

	ft.Model = m.fitModel(name, ft)
	return ft, nil
}

// extend appends one child aggregation block to every row of the parent
// frame and returns the block descriptor plus the new column names.
func (m *Modeler) extend(parent *FittedTable, child *FittedTable, edge graph.Edge, pkKeys []string, rng *rand.Rand) (ExtBlock, []string, error) {
	dims := len(child.Columns)
	paramLen := model.CopulaParamLen(dims)

	keys := child.fkValues[edge.FKColumn]
	if keys == nil {
		return ExtBlock{}, nil, fmt.Errorf("modeler: child %s has no FK column %s", child.Spec.Name, edge.FKColumn)
	}
	groups := make(map[string][][]float64)
	for i, k := range keys {
		groups[k] = append(groups[k], child.frame[i])
	}

	// Marginal parameters over the whole child stand in for parents with
	// no rows; a zero count plus a real distribution keeps those cells
	// finite and lets the count column carry the "no children" signal.
	defaults := make([]float64, paramLen)
	if len(child.frame) > 0 {
		cop := model.NewGaussianCopula(dims)
		if err := cop.Fit(child.frame); err == nil {
			defaults = cop.Params()
		}
	}

	block := ExtBlock{
		Child:     child.Spec.Name,
		FKColumn:  edge.FKColumn,
		Start:     len(parent.Columns),
		Len:       1 + paramLen,
		ChildDims: dims,
		Defaults:  defaults,
	}

	for i := range parent.frame {
		rows := groups[pkKeys[i]]
		cell := make([]float64, 0, block.Len)
		if len(rows) == 0 {
			cell = append(cell, 0)
			cell = append(cell, defaults...)
		} else {
			cop := model.NewGaussianCopula(dims)
			if err := cop.Fit(rows); err != nil {
				return ExtBlock{}, nil, fmt.Errorf("modeler: fit %s group under %s row %d: %w", child.Spec.Name, parent.Spec.Name, i, err)
			}
			cell = append(cell, float64(len(rows)))
			cell = append(cell, sanitize(cop.Params())...)
		}
		parent.frame[i] = append(parent.frame[i], cell...)
	}

	names := make([]string, 0, block.Len)
	prefix := fmt.Sprintf("__%s__%s", child.Spec.Name, edge.FKColumn)
	names = append(names, prefix+"__num_rows")
	for i := 0; i < paramLen; i++ {
		names = append(names, fmt.Sprintf("%s__p%d", prefix, i))
	}
	return block, names, nil
}

// fitModel fits the per-table generator over the extended frame. Tables too
// small for a copula, or whose fit fails, degrade to a point-mass model.
func (m *Modeler) fitModel(name string, ft *FittedTable) model.Generator {
	dims := len(ft.Columns)
	if len(ft.frame) >= 2 {
		cop := model.NewGaussianCopula(dims)
		if err := cop.Fit(ft.frame); err == nil {
			return cop
		}
		m.Logger.Printf("modeler: table %s: copula fit failed, falling back to point mass", name)
	}
	d := model.NewDelta(dims)
	if err := d.Fit(ft.frame); err != nil {
		m.Logger.Printf("modeler: table %s: empty frame, model samples zeros", name)
	}
	return d
}

func primaryKeys(ts metadata.TableSpec, t *table.Table) ([]string, error) {
	ix := t.ColumnIndex(ts.PrimaryKey)
	if ix < 0 {
		return nil, fmt.Errorf("modeler: table %s missing primary key column %s", ts.Name, ts.PrimaryKey)
	}
	keys := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		keys[i] = metadata.KeyString(row[ix])
	}
	return keys, nil
}

// keyColumns captures the canonical key form of every FK column so that
// parents fitted later can group this table's rows.
func keyColumns(spec *metadata.Spec, name string, t *table.Table) map[string][]string {
	out := make(map[string][]string)
	for _, fk := range spec.ForeignKeys(name) {
		ix := t.ColumnIndex(fk.Column)
		if ix < 0 {
			continue
		}
		keys := make([]string, len(t.Rows))
		for i, row := range t.Rows {
			keys[i] = metadata.KeyString(row[ix])
		}
		out[fk.Column] = keys
	}
	return out
}

// sanitize replaces non-finite parameter values so that extension cells
// never poison the parent fit.
func sanitize(p []float64) []float64 {
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			p[i] = 0
		}
	}
	return p
}
