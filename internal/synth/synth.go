// Package synth is the user-facing entry point: fit a whole relational
// dataset once, then sample synthetic data from it any number of times.
package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/rand"

	"synthdb/internal/constraint"
	"synthdb/internal/graph"
	"synthdb/internal/metadata"
	"synthdb/internal/metrics"
	"synthdb/internal/modeler"
	"synthdb/internal/sampler"
	"synthdb/internal/table"
)

// ErrNotFitted is returned by sampling calls before a successful Fit.
var ErrNotFitted = errors.New("synth: not fitted")

// Logger is the minimal logging seam. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Options configures a Synthesizer. The zero value is usable: no-op
// logging and metrics, time-seeded randomness, default retry budget.
type Options struct {
	Logger      Logger
	Metrics     metrics.Backend
	Seed        uint64 // 0 means seed from the clock
	RetryBudget int    // 0 means sampler.DefaultRetryBudget
}

// Synthesizer fits generative models over a relational dataset and samples
// synthetic rows from them. Safe for concurrent sampling after Fit: the
// sampler serializes runs internally, so overlapping Sample calls execute
// one at a time. Fit itself must not race with sampling.
type Synthesizer struct {
	opts Options

	mu      sync.Mutex
	fitted  *modeler.Fitted
	sampler *sampler.Sampler
}

// New returns an unfitted Synthesizer.
func New(opts Options) *Synthesizer {
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	return &Synthesizer{opts: opts}
}

// SampleOptions controls one sampling call.
type SampleOptions struct {
	// Children extends the sample to all descendant tables.
	Children bool
	// ResetKeys restarts primary key sequences before sampling.
	ResetKeys bool
}

// Fit validates the data against the metadata, applies constraint
// transforms, and fits one model per table, children first.
//
// Errors:
//   - Metadata violations in the data (missing columns, null or duplicate
//     primary keys, dangling foreign keys).
//   - Constraint declarations the data contradicts.
//   - Foreign-key cycles.
//
// A failed Fit leaves any previously fitted state intact.
func (s *Synthesizer) Fit(ctx context.Context, spec *metadata.Spec, tables map[string]*table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := spec.ValidateData(tables); err != nil {
		return err
	}
	g, err := graph.Build(spec)
	if err != nil {
		return err
	}

	// Constraint transforms mutate, so the caller's tables are cloned.
	pipelines := make(map[string]constraint.Pipeline)
	work := make(map[string]*table.Table, len(tables))
	for _, name := range spec.TableNames() {
		pipe, err := constraint.NewPipeline(spec.Constraints(name))
		if err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
		t := tables[name].Clone()
		if err := pipe.Transform(t); err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
		pipelines[name] = pipe
		work[name] = t
	}

	m := &modeler.Modeler{Logger: s.opts.Logger, Metrics: s.opts.Metrics}
	fitted, err := m.Fit(spec, g, work, pipelines, s.newRNG())
	if err != nil {
		return err
	}

	sp := sampler.New(fitted, s.newRNG())
	sp.Logger = s.opts.Logger
	sp.Metrics = s.opts.Metrics
	sp.RetryBudget = s.opts.RetryBudget

	s.mu.Lock()
	s.fitted = fitted
	s.sampler = sp
	s.mu.Unlock()
	return nil
}

// Sample generates n rows of the named table. n <= 0 keeps the table's
// original row count.
func (s *Synthesizer) Sample(name string, n int, opts SampleOptions) (*sampler.Result, error) {
	sp, err := s.current()
	if err != nil {
		return nil, err
	}
	if opts.ResetKeys {
		sp.ResetKeys()
	}
	return sp.Sample(name, n, opts.Children)
}

// SampleAll generates a full synthetic dataset from every root table down.
func (s *Synthesizer) SampleAll(n int) (*sampler.Result, error) {
	sp, err := s.current()
	if err != nil {
		return nil, err
	}
	return sp.SampleAll(n)
}

// ResetKeys restarts primary key sequences at 0.
func (s *Synthesizer) ResetKeys() error {
	sp, err := s.current()
	if err != nil {
		return err
	}
	sp.ResetKeys()
	return nil
}

// Fitted exposes the fitted state, mainly for inspection in tools.
func (s *Synthesizer) Fitted() (*modeler.Fitted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fitted == nil {
		return nil, ErrNotFitted
	}
	return s.fitted, nil
}

func (s *Synthesizer) current() (*sampler.Sampler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampler == nil {
		return nil, ErrNotFitted
	}
	return s.sampler, nil
}

func (s *Synthesizer) newRNG() *rand.Rand {
	seed := s.opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewSource(seed))
}
