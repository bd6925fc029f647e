package model

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Floor for scale parameters. A constant column fits with this std so the
// flattened log-scale stays finite and sampling stays trivially close to
// the observed value.
const minStd = 1e-6

// GaussianCopula models a table as Gaussian marginals tied together by a
// correlation matrix. Parameters flatten to:
//
//	[mean_0..mean_{d-1}, log(std_0)..log(std_{d-1}), upper-triangle correlations]
//
// Scale parameters are log-flattened so the extension engine aggregates
// them on an unbounded scale and disaggregation can never reconstruct a
// negative std.
type GaussianCopula struct {
	dims int
	mu   []float64
	std  []float64
	corr []float64 // upper triangle, row-major, len dims*(dims-1)/2
}

// NewGaussianCopula returns an unfitted copula over dims columns.
func NewGaussianCopula(dims int) *GaussianCopula {
	return &GaussianCopula{dims: dims}
}

// CopulaParamLen is the flattened parameter count for a given width.
func CopulaParamLen(dims int) int {
	return 2*dims + dims*(dims-1)/2
}

func (g *GaussianCopula) Dims() int { return g.dims }

// Fit estimates marginal means/stds and pairwise correlations.
//
// Edge cases:
//   - Zero rows is an error; the caller substitutes a degenerate model.
//   - One row or constant columns fit with std = minStd.
//   - Correlations that come out NaN (constant columns) are set to 0.
func (g *GaussianCopula) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("copula: fit with zero rows")
	}
	d := g.dims
	for i, r := range rows {
		if len(r) != d {
			return fmt.Errorf("copula: row %d has %d columns, want %d", i, len(r), d)
		}
	}

	cols := make([][]float64, d)
	for j := 0; j < d; j++ {
		col := make([]float64, len(rows))
		for i, r := range rows {
			col[i] = r[j]
		}
		cols[j] = col
	}

	g.mu = make([]float64, d)
	g.std = make([]float64, d)
	for j := 0; j < d; j++ {
		g.mu[j] = stat.Mean(cols[j], nil)
		sd := stat.StdDev(cols[j], nil)
		if math.IsNaN(sd) || sd < minStd {
			sd = minStd
		}
		g.std[j] = sd
	}

	g.corr = make([]float64, d*(d-1)/2)
	k := 0
	for i := 0; i < d; i++ {
		for j := i + 1; j < d; j++ {
			c := stat.Correlation(cols[i], cols[j], nil)
			if math.IsNaN(c) || math.IsInf(c, 0) {
				c = 0
			}
			g.corr[k] = clampCorr(c)
			k++
		}
	}
	return nil
}

// Sample draws n rows from the fitted joint distribution.
//
// A correlation matrix assembled from aggregated or disaggregated values
// may not be positive definite; Sample repairs it by ridging the diagonal
// and, as a last resort, falls back to independent marginals.
func (g *GaussianCopula) Sample(n int, rng *rand.Rand) [][]float64 {
	if n <= 0 {
		return nil
	}
	out := make([][]float64, 0, n)

	if normal, ok := g.jointNormal(rng); ok {
		for i := 0; i < n; i++ {
			out = append(out, normal.Rand(nil))
		}
		return out
	}

	// Independent fallback.
	for i := 0; i < n; i++ {
		row := make([]float64, g.dims)
		for j := 0; j < g.dims; j++ {
			row[j] = distuv.Normal{Mu: g.mu[j], Sigma: g.std[j], Src: rng}.Rand()
		}
		out = append(out, row)
	}
	return out
}

func (g *GaussianCopula) jointNormal(rng *rand.Rand) (*distmv.Normal, bool) {
	d := g.dims
	if d == 0 {
		return nil, false
	}

	base := mat.NewSymDense(d, nil)
	k := 0
	for i := 0; i < d; i++ {
		base.SetSym(i, i, g.std[i]*g.std[i])
		for j := i + 1; j < d; j++ {
			base.SetSym(i, j, g.corr[k]*g.std[i]*g.std[j])
			k++
		}
	}

	// Ridge the diagonal until Cholesky succeeds.
	maxVar := minStd * minStd
	for i := 0; i < d; i++ {
		if v := base.At(i, i); v > maxVar {
			maxVar = v
		}
	}
	for _, ridge := range []float64{0, 1e-10, 1e-8, 1e-6, 1e-4, 1e-2} {
		sym := mat.NewSymDense(d, nil)
		sym.CopySym(base)
		if ridge > 0 {
			for i := 0; i < d; i++ {
				sym.SetSym(i, i, sym.At(i, i)+ridge*maxVar)
			}
		}
		if normal, ok := distmv.NewNormal(g.mu, sym, rng); ok {
			return normal, true
		}
	}
	return nil, false
}

// Params implements Generator.
func (g *GaussianCopula) Params() []float64 {
	out := make([]float64, 0, CopulaParamLen(g.dims))
	out = append(out, g.mu...)
	for _, sd := range g.std {
		out = append(out, math.Log(sd))
	}
	out = append(out, g.corr...)
	return out
}

// SetParams implements Generator. Values are sanitized rather than trusted:
// stds come back through exp (never negative), correlations are clamped to
// (-1, 1). NaN or Inf anywhere rejects the whole vector.
func (g *GaussianCopula) SetParams(p []float64) error {
	d := g.dims
	if len(p) != CopulaParamLen(d) {
		return fmt.Errorf("%w: got %d values, want %d", ErrBadParams, len(p), CopulaParamLen(d))
	}
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite entry", ErrBadParams)
		}
	}

	g.mu = append([]float64(nil), p[:d]...)
	g.std = make([]float64, d)
	for i, lv := range p[d : 2*d] {
		sd := math.Exp(lv)
		if sd < minStd {
			sd = minStd
		}
		if math.IsInf(sd, 0) {
			return fmt.Errorf("%w: scale overflow", ErrBadParams)
		}
		g.std[i] = sd
	}
	g.corr = make([]float64, d*(d-1)/2)
	for i, c := range p[2*d:] {
		g.corr[i] = clampCorr(c)
	}
	return nil
}

func clampCorr(c float64) float64 {
	const lim = 0.999
	if c > lim {
		return lim
	}
	if c < -lim {
		return -lim
	}
	return c
}
