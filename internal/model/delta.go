package model

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

// Delta is the degenerate fallback model: a point mass on the column means
// of whatever rows it saw. It exists so that tables with too little data to
// fit a full model still synthesize something sensible instead of failing
// the run.
type Delta struct {
	dims int
	row  []float64
}

// NewDelta returns an unfitted delta model over dims columns.
func NewDelta(dims int) *Delta {
	return &Delta{dims: dims}
}

func (d *Delta) Dims() int { return d.dims }

// Fit stores the column means of the observed rows. A single observed row
// makes this a point mass on exactly that row.
func (d *Delta) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("delta: fit with zero rows")
	}
	d.row = make([]float64, d.dims)
	for _, r := range rows {
		if len(r) != d.dims {
			return fmt.Errorf("delta: row has %d columns, want %d", len(r), d.dims)
		}
		for j, v := range r {
			d.row[j] += v
		}
	}
	for j := range d.row {
		d.row[j] /= float64(len(rows))
	}
	return nil
}

// Sample returns n copies of the stored row.
func (d *Delta) Sample(n int, _ *rand.Rand) [][]float64 {
	if n <= 0 {
		return nil
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = append([]float64(nil), d.row...)
	}
	return out
}

// Params implements Generator: the stored row itself.
func (d *Delta) Params() []float64 {
	return append([]float64(nil), d.row...)
}

// SetParams implements Generator.
func (d *Delta) SetParams(p []float64) error {
	if len(p) != d.dims {
		return fmt.Errorf("%w: got %d values, want %d", ErrBadParams, len(p), d.dims)
	}
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite entry", ErrBadParams)
		}
	}
	d.row = append([]float64(nil), p...)
	return nil
}
