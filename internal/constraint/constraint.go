// Package constraint implements the reversible constraint pipeline: each
// declared constraint owns a forward transform that rewrites columns into
// an unconstrained shape the modeling layer can handle, an inverse applied
// to sampled data, and a per-row validity predicate used by the sampler's
// rejection loop.
package constraint

import (
	"fmt"
	"sync"

	"synthdb/internal/metadata"
	"synthdb/internal/table"
)

// Constraint is one declarative rule over columns of a single table.
//
// Transform is applied at fit time in declaration order; ReverseTransform
// at sample time in reverse order. A raw value that violates the
// constraint at Transform time is a configuration error.
type Constraint interface {
	Kind() string
	Columns() []string

	Transform(t *table.Table) error
	ReverseTransform(t *table.Table) error

	// IsValid reports whether a reverse-transformed row satisfies the
	// constraint. colIx maps column names to positions in row.
	IsValid(row []any, colIx map[string]int) bool
}

// statefulConstraint is implemented by constraints that accumulate state
// across IsValid calls (e.g. uniqueness) and must be reset per table pass.
type statefulConstraint interface {
	ResetValidation()
}

// Factory builds a constraint from its metadata declaration.
type Factory func(spec metadata.ConstraintSpec) (Constraint, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a constraint kind. Call from an init() function.
//
// Panics:
//   - If kind is empty or f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous constraint resolution.
func Register(kind string, f Factory) {
	if kind == "" {
		panic("constraint: Register with empty kind")
	}
	if f == nil {
		panic("constraint: Register with nil factory")
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := factories[kind]; dup {
		panic(fmt.Sprintf("constraint: kind %q already registered", kind))
	}
	factories[kind] = f
}

// New builds one constraint from its declaration.
func New(spec metadata.ConstraintSpec) (Constraint, error) {
	regMu.RLock()
	f, ok := factories[spec.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("constraint: unknown kind %q", spec.Kind)
	}
	return f(spec)
}

// Pipeline is the ordered constraint list of one table.
type Pipeline []Constraint

// NewPipeline builds the pipeline for a table from its declarations.
func NewPipeline(specs []metadata.ConstraintSpec) (Pipeline, error) {
	out := make(Pipeline, 0, len(specs))
	for _, s := range specs {
		c, err := New(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Transform applies every constraint's forward transform in declaration
// order, mutating t in place.
func (p Pipeline) Transform(t *table.Table) error {
	for _, c := range p {
		if err := c.Transform(t); err != nil {
			return fmt.Errorf("constraint %s: %w", c.Kind(), err)
		}
	}
	return nil
}

// ReverseTransform applies every inverse in reverse declaration order.
func (p Pipeline) ReverseTransform(t *table.Table) error {
	for i := len(p) - 1; i >= 0; i-- {
		if err := p[i].ReverseTransform(t); err != nil {
			return fmt.Errorf("constraint %s: %w", p[i].Kind(), err)
		}
	}
	return nil
}

// IsValid reports whether a row satisfies every constraint.
func (p Pipeline) IsValid(row []any, colIx map[string]int) bool {
	for _, c := range p {
		if !c.IsValid(row, colIx) {
			return false
		}
	}
	return true
}

// ResetValidation clears any cross-row validation state (uniqueness sets)
// before a fresh per-table validation pass.
func (p Pipeline) ResetValidation() {
	for _, c := range p {
		if s, ok := c.(statefulConstraint); ok {
			s.ResetValidation()
		}
	}
}

// ---- option helpers ----

func floatOption(opts map[string]any, key string) (float64, error) {
	v, ok := opts[key]
	if !ok {
		return 0, fmt.Errorf("missing option %q", key)
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("option %q: want number, got %T", key, v)
	}
}

func stringsOption(opts map[string]any, key string) ([]string, error) {
	v, ok := opts[key]
	if !ok {
		return nil, fmt.Errorf("missing option %q", key)
	}
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("option %q: want strings, got %T", key, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("option %q: want string list, got %T", key, v)
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
