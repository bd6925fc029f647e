// Package sampler turns fitted models back into relational data. Sampling
// is top down: a table's model produces extended numeric vectors, the
// extension cells of each vector are read back as per-row child counts and
// distribution parameters, and a transient child model conditioned on those
// parameters generates the subtree under each row. Fresh primary keys are
// assigned from a per-table allocator and foreign keys are wired to the
// parent rows that spawned them, so sampled datasets are referentially
// intact by construction.
package sampler

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/exp/rand"

	"synthdb/internal/metadata"
	"synthdb/internal/metrics"
	"synthdb/internal/model"
	"synthdb/internal/modeler"
	"synthdb/internal/table"
)

// Logger is the minimal logging seam. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// DefaultRetryBudget bounds the rejection loop per row. When the budget
// runs out the last candidate is kept and a warning is recorded rather
// than failing the whole sample.
const DefaultRetryBudget = 100

// Warning records a non-fatal problem encountered while sampling.
type Warning struct {
	Table   string
	Message string
}

// Result is one sampling run. Tables holds only the tables that were
// actually generated; a failed subtree is reported in Warnings while the
// rest of the result stays usable.
type Result struct {
	Tables   map[string]*table.Table
	Warnings []Warning
}

// Sampler generates synthetic rows from a fitted dataset.
//
// Concurrency: runs are serialized on an internal mutex. Concurrent Sample
// and SampleAll calls are safe but execute one at a time; the generator and
// the constraint validation state are shared across a run and must not
// interleave.
type Sampler struct {
	Fitted      *modeler.Fitted
	Logger      Logger
	Metrics     metrics.Backend
	RetryBudget int
	Keys        *KeyAllocator

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Sampler over a fitted dataset.
func New(f *modeler.Fitted, rng *rand.Rand) *Sampler {
	return &Sampler{
		Fitted:      f,
		Logger:      nopLogger{},
		Metrics:     metrics.Nop(),
		RetryBudget: DefaultRetryBudget,
		Keys:        NewKeyAllocator(),
		rng:         rng,
	}
}

// ResetKeys restarts primary key sequences at 0.
func (s *Sampler) ResetKeys() { s.Keys.Reset() }

// Sample generates n rows of the named table, plus all descendant tables
// when sampleChildren is set. n <= 0 means the table's original row count.
//
// Errors:
//   - Unknown table name.
//
// Everything else degrades to Warnings on the Result.
func (s *Sampler) Sample(name string, n int, sampleChildren bool) (*Result, error) {
	ft, ok := s.Fitted.Table(name)
	if !ok {
		return nil, fmt.Errorf("sampler: unknown table %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	r := s.newRun()
	if n <= 0 {
		n = ft.RowCount
	}
	r.emit(ft, ft.Model, n, nil, sampleChildren)
	s.Metrics.ObserveHistogram(metrics.SampleSeconds, time.Since(start).Seconds(), metrics.Labels{"table": name})
	return r.res, nil
}

// SampleAll samples every root table with its children, covering the whole
// dataset. n <= 0 means each root keeps its original row count.
func (s *Sampler) SampleAll(n int) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	r := s.newRun()
	for _, root := range s.Fitted.Graph.Roots() {
		ft, ok := s.Fitted.Table(root)
		if !ok {
			return nil, fmt.Errorf("sampler: unknown table %q", root)
		}
		count := n
		if count <= 0 {
			count = ft.RowCount
		}
		r.emit(ft, ft.Model, count, nil, true)
	}
	s.Metrics.ObserveHistogram(metrics.SampleSeconds, time.Since(start).Seconds(), metrics.Labels{"table": "_all"})
	return r.res, nil
}

// run is the mutable state of one Sample call: the result under
// construction, sampled key pools for secondary FK assignment, and
// per-table warning dedup.
type run struct {
	s      *Sampler
	res    *Result
	pools  map[string][]any
	warned map[string]bool
}

func (s *Sampler) newRun() *run {
	if s.Logger == nil {
		s.Logger = nopLogger{}
	}
	if s.Metrics == nil {
		s.Metrics = metrics.Nop()
	}
	if s.Keys == nil {
		s.Keys = NewKeyAllocator()
	}
	for _, ft := range s.Fitted.Tables {
		ft.Constraints.ResetValidation()
	}
	return &run{
		s:      s,
		res:    &Result{Tables: make(map[string]*table.Table)},
		pools:  make(map[string][]any),
		warned: make(map[string]bool),
	}
}

func (r *run) warn(table, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.s.Logger.Printf("sampler: table %s: %s", table, msg)
	key := table + "\x00" + msg
	if r.warned[key] {
		return
	}
	r.warned[key] = true
	r.res.Warnings = append(r.res.Warnings, Warning{Table: table, Message: msg})
}

// emit generates count rows of ft from gen, appends them to the result and
// recurses into child subtrees. fks carries FK values fixed for the whole
// batch (the driving parent row); remaining FK columns are drawn from the
// pools of already sampled parents.
func (r *run) emit(ft *modeler.FittedTable, gen model.Generator, count int, fks map[string]any, sampleChildren bool) {
	name := ft.Spec.Name
	lay := buildLayout(ft)

	vecs := make([][]float64, 0, count)
	pks := make([]any, 0, count)

	for j := 0; j < count; j++ {
		pk := r.nextKey(ft)
		fkRow, ok := r.resolveFKs(ft, fks)
		if !ok {
			r.warn(name, "dropping row: missing parent pool")
			continue
		}
		row, cols, vec, valid := r.sampleRow(ft, lay, gen, pk, fkRow)
		if row == nil {
			continue
		}
		if !valid {
			r.warn(name, "retry budget exhausted, keeping a row that fails constraints")
		}
		out := r.res.Tables[name]
		if out == nil {
			out = table.New(name, cols)
			r.res.Tables[name] = out
		}
		out.Rows = append(out.Rows, row)
		r.pools[name] = append(r.pools[name], pk)
		vecs = append(vecs, vec)
		pks = append(pks, pk)
		r.s.Metrics.IncCounter(metrics.RowsSampled, 1, metrics.Labels{"table": name})
	}

	if !sampleChildren {
		return
	}
	for _, b := range ft.Blocks {
		if !r.drives(name, b) {
			continue
		}
		child, ok := r.s.Fitted.Table(b.Child)
		if !ok {
			continue
		}
		for i, vec := range vecs {
			n := r.childCount(b.Child, vec[b.Start], child.RowCount)
			if n == 0 {
				continue
			}
			params := vec[b.Start+1 : b.Start+b.Len]
			cond := model.NewGaussianCopula(b.ChildDims)
			if err := cond.SetParams(params); err != nil {
				r.s.Metrics.IncCounter(metrics.SubsetsSkipped, 1, metrics.Labels{"table": b.Child})
				r.warn(b.Child, "skipping subtree under %s row: %v", name, err)
				continue
			}
			r.emit(child, cond, n, map[string]any{b.FKColumn: pks[i]}, true)
		}
	}
}

// drives reports whether this block is the child's driving relationship.
// A child with several parents is generated from its first declared FK
// only; the other aggregations exist for modeling fidelity.
func (r *run) drives(parent string, b modeler.ExtBlock) bool {
	edges := r.s.Fitted.Graph.ParentsOf(b.Child)
	if len(edges) == 0 {
		return false
	}
	return edges[0].Parent == parent && edges[0].FKColumn == b.FKColumn
}

// sampleRow draws vectors from gen until one survives the constraint
// check, up to the retry budget. It returns the finished typed row, its
// column names, the raw vector that produced it (needed for child
// generation), and whether the row is valid.
func (r *run) sampleRow(ft *modeler.FittedTable, lay layout, gen model.Generator, pk any, fks map[string]any) ([]any, []string, []float64, bool) {
	name := ft.Spec.Name
	budget := r.s.RetryBudget
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	var lastRow, lastVec = []any(nil), []float64(nil)
	var lastCols []string
	for attempt := 0; attempt < budget; attempt++ {
		vec := gen.Sample(1, r.s.rng)[0]
		row, cols, err := r.buildRow(ft, lay, vec, pk, fks)
		if err != nil {
			r.warn(name, "decode failed: %v", err)
			return nil, nil, nil, false
		}
		colIx := indexOf(cols)
		if len(ft.Constraints) == 0 || ft.Constraints.IsValid(row, colIx) {
			return castRow(ft.Spec, cols, row), cols, vec, true
		}
		lastRow, lastCols, lastVec = row, cols, vec
		r.s.Metrics.IncCounter(metrics.RowsRejected, 1, metrics.Labels{"table": name})
	}
	return castRow(ft.Spec, lastCols, lastRow), lastCols, lastVec, false
}

// buildRow decodes one vector into a typed row in declared column order,
// with the primary key and FK values in place and the constraint pipeline
// reversed. The returned columns include any derived columns the reverse
// pass restored.
func (r *run) buildRow(ft *modeler.FittedTable, lay layout, vec []float64, pk any, fks map[string]any) ([]any, []string, error) {
	dec, err := ft.Encoder.Reverse(ft.Spec.Name, [][]float64{vec})
	if err != nil {
		return nil, nil, err
	}
	decRow := dec.Rows[0]
	decIx := dec.ColumnIndexMap()

	row := make([]any, len(lay.columns))
	for i, src := range lay.sources {
		switch src.kind {
		case srcPK:
			row[i] = pk
		case srcFK:
			row[i] = fks[src.name]
		case srcEncoded:
			row[i] = decRow[decIx[src.name]]
		}
	}

	cols := lay.columns
	if len(ft.Constraints) > 0 {
		t := table.New(ft.Spec.Name, append([]string(nil), lay.columns...))
		t.Rows = [][]any{row}
		if err := ft.Constraints.ReverseTransform(t); err != nil {
			return nil, nil, err
		}
		row = t.Rows[0]
		cols = t.Columns
	}
	return row, cols, nil
}

// resolveFKs fills in every FK column: the driving value comes from fixed,
// the rest are drawn uniformly from the pool of the referenced table,
// sampling that table standalone first if it has not been generated.
func (r *run) resolveFKs(ft *modeler.FittedTable, fixed map[string]any) (map[string]any, bool) {
	out := make(map[string]any)
	for _, f := range ft.Spec.Fields {
		if f.Ref == nil {
			continue
		}
		if v, ok := fixed[f.Name]; ok {
			out[f.Name] = v
			continue
		}
		pool := r.ensurePool(f.Ref.Table)
		if len(pool) == 0 {
			return nil, false
		}
		out[f.Name] = pool[r.s.rng.Intn(len(pool))]
	}
	return out, true
}

// ensurePool samples a table standalone (no children) when nothing has
// generated it yet, so secondary FKs never point at missing rows.
func (r *run) ensurePool(name string) []any {
	if pool := r.pools[name]; len(pool) > 0 {
		return pool
	}
	ft, ok := r.s.Fitted.Table(name)
	if !ok {
		return nil
	}
	r.emit(ft, ft.Model, ft.RowCount, nil, false)
	return r.pools[name]
}

func (r *run) nextKey(ft *modeler.FittedTable) any {
	f, _ := ft.Spec.Field(ft.Spec.PrimaryKey)
	if f.Subtype == metadata.SubtypeString {
		return r.s.Keys.NextString(ft.Spec.Name)
	}
	return r.s.Keys.NextInt(ft.Spec.Name)
}

// childCount turns a sampled count cell into a row count: rounded to the
// nearest integer, floored at zero, and capped to keep a wild parameter
// draw from exploding a subtree.
func (r *run) childCount(child string, v float64, childRows int) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	max := 10 * childRows
	if max < 100 {
		max = 100
	}
	if n > max {
		r.warn(child, "capping child count %d at %d", n, max)
		n = max
	}
	return n
}

// ---- layout ----

const (
	srcPK = iota
	srcFK
	srcEncoded
)

type colSource struct {
	kind int
	name string
}

// layout maps a table's declared columns to where each value comes from
// during decoding. Columns removed by a forward constraint transform are
// absent here; ReverseTransform puts them back.
type layout struct {
	columns []string
	sources []colSource
}

func buildLayout(ft *modeler.FittedTable) layout {
	enc := make(map[string]bool)
	for _, c := range ft.Encoder.Columns() {
		enc[c] = true
	}
	var lay layout
	for _, f := range ft.Spec.Fields {
		switch {
		case f.Name == ft.Spec.PrimaryKey:
			lay.sources = append(lay.sources, colSource{srcPK, f.Name})
		case f.Ref != nil:
			lay.sources = append(lay.sources, colSource{srcFK, f.Name})
		case enc[f.Name]:
			lay.sources = append(lay.sources, colSource{srcEncoded, f.Name})
		default:
			continue
		}
		lay.columns = append(lay.columns, f.Name)
	}
	return lay
}

func indexOf(cols []string) map[string]int {
	ix := make(map[string]int, len(cols))
	for i, c := range cols {
		ix[c] = i
	}
	return ix
}

// castRow snaps decoded floats to the declared subtype: integer columns
// are rounded, everything else passes through.
func castRow(ts metadata.TableSpec, cols []string, row []any) []any {
	if row == nil {
		return nil
	}
	for i, c := range cols {
		if i >= len(row) {
			break
		}
		f, ok := ts.Field(c)
		if !ok {
			continue
		}
		if f.Subtype != metadata.SubtypeInteger {
			continue
		}
		if v, isF := row[i].(float64); isF {
			row[i] = int64(math.Round(v))
		}
	}
	return row
}
