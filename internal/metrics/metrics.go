// Package metrics defines the minimal observability contract used by the
// synthesis engine. The core depends only on Backend; concrete exporters
// (Datadog) live in subpackages so their SDKs never leak into engine code.
package metrics

// Labels are free-form metric dimensions.
type Labels map[string]string

// Metric names emitted by the engine.
const (
	RowsSampled    = "synthdb_rows_sampled_total"
	RowsRejected   = "synthdb_rows_rejected_total"
	SubsetsSkipped = "synthdb_subsets_skipped_total"
	FitSeconds     = "synthdb_fit_duration_seconds"
	SampleSeconds  = "synthdb_sample_duration_seconds"
)

// Backend receives counters and histogram samples from the engine.
//
// Implementations must be safe for concurrent use; the engine may emit
// from parallel workers.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush pushes buffered data to the sink; Close stops background work
	// and flushes one final time.
	Flush() error
	Close() error
}

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}
func (nop) Flush() error                             { return nil }
func (nop) Close() error                             { return nil }

// Nop returns a backend that discards everything.
func Nop() Backend { return nop{} }
