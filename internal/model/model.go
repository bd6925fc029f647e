// Package model provides the single-table generative capability consumed
// by the hierarchical fit engine and the recursive sampler.
//
// A Generator operates purely on numeric row vectors; translating a typed
// table into that space and back is the job of TableEncoder. The engine
// depends only on the Generator interface: each statistical family lives
// behind it rather than in an inheritance-style hierarchy.
package model

import (
	"errors"

	"golang.org/x/exp/rand"
)

// Generator is the capability contract of one single-table model.
//
// Params returns the fitted state flattened into a fixed-size numeric
// vector, and SetParams rebuilds an instance from such a vector without
// refitting. The extension engine reads Params to aggregate child
// distributions into parent columns; the sampler feeds disaggregated
// vectors back through SetParams to build transient conditional models.
type Generator interface {
	// Fit trains on numeric rows with Dims() columns each.
	Fit(rows [][]float64) error

	// Sample draws n rows. The rng makes runs reproducible.
	Sample(n int, rng *rand.Rand) [][]float64

	// Params flattens the fitted state; len(Params()) depends only on Dims().
	Params() []float64

	// SetParams restores state from a flattened vector.
	SetParams(p []float64) error

	// Dims is the number of numeric columns this model covers.
	Dims() int
}

// ErrBadParams reports a parameter vector that cannot describe a valid
// model (wrong length, NaN/Inf entries). The sampler treats this as a
// recoverable degradation, not a fatal error.
var ErrBadParams = errors.New("model: invalid parameter vector")
