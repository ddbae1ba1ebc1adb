// Package surrogate fits a Gaussian-process regression model over observed
// design losses and scores unseen designs by expected improvement.
package surrogate

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/airshape/optimizer-core/internal/design"
	"github.com/airshape/optimizer-core/pkg/config"
	"github.com/airshape/optimizer-core/pkg/logger"
	"github.com/airshape/optimizer-core/pkg/utils"
)

// duplicateTol is the squared distance in normalized coordinates below which
// two observations are treated as the same point. Duplicate rows make the
// covariance matrix singular.
const duplicateTol = 1e-12

// maxNugget caps the jitter escalation during factorization.
const maxNugget = 1e-2

// GP is a Gaussian-process regressor with a squared-exponential kernel over
// inputs normalized to the unit cube. Observed losses are standardized before
// fitting; penalty-scale losses would otherwise dwarf the kernel amplitude.
type GP struct {
	bounds      design.Bounds
	lengthScale float64
	signalVar   float64
	noiseVar    float64

	xs [][]float64 // normalized observations
	ys []float64   // raw losses

	yMean, yStd float64
	chol        mat.Cholesky
	alpha       *mat.VecDense
	fitted      bool

	slog *slog.Logger
}

// NewGP builds an unfitted model from the search configuration.
func NewGP(bounds design.Bounds, cfg config.SurrogateSearch) *GP {
	return &GP{
		bounds:      bounds,
		lengthScale: cfg.LengthScale,
		signalVar:   cfg.SignalVariance,
		noiseVar:    cfg.NoiseVariance,
		slog:        logger.Default,
	}
}

// Len returns the number of retained observations.
func (g *GP) Len() int {
	return len(g.xs)
}

// Add records one observation, dropping near-duplicates of earlier points.
// The model must be refitted before the new data influences predictions.
func (g *GP) Add(v design.Vector, loss float64) {
	x := g.normalize(v)
	for _, prev := range g.xs {
		if utils.SquaredDistance(x, prev) < duplicateTol {
			g.slog.Debug("skipping duplicate surrogate observation", "vector", []float64(v))
			return
		}
	}
	g.xs = append(g.xs, x)
	g.ys = append(g.ys, loss)
	g.fitted = false
}

// Fit factorizes the covariance matrix. When the factorization fails the
// diagonal jitter is escalated tenfold until it succeeds or exceeds the cap.
func (g *GP) Fit() error {
	n := len(g.xs)
	if n == 0 {
		return fmt.Errorf("cannot fit surrogate with no observations")
	}

	g.yMean, g.yStd = standardizeMoments(g.ys)

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.SetSym(i, j, g.kernel(g.xs[i], g.xs[j]))
		}
	}

	yStd := mat.NewVecDense(n, nil)
	for i, y := range g.ys {
		yStd.SetVec(i, (y-g.yMean)/g.yStd)
	}

	nugget := g.noiseVar
	for {
		kn := mat.NewSymDense(n, nil)
		kn.CopySym(k)
		for i := 0; i < n; i++ {
			kn.SetSym(i, i, kn.At(i, i)+nugget)
		}
		if g.chol.Factorize(kn) {
			break
		}
		nugget *= 10
		if nugget > maxNugget {
			return fmt.Errorf("covariance factorization failed at nugget %g with %d observations", nugget, n)
		}
		g.slog.Warn("covariance near-singular, escalating jitter", "nugget", nugget, "observations", n)
	}

	g.alpha = mat.NewVecDense(n, nil)
	if err := g.chol.SolveVecTo(g.alpha, yStd); err != nil {
		return fmt.Errorf("solving surrogate weights: %w", err)
	}
	g.fitted = true
	return nil
}

// Predict returns the posterior mean and variance of the loss at v, in the
// raw loss scale. The variance is clipped at zero against rounding.
func (g *GP) Predict(v design.Vector) (mean, variance float64) {
	if !g.fitted {
		// An unfitted model knows nothing: prior mean, full prior variance.
		return g.yMean, g.signalVar * g.yStd * g.yStd
	}

	n := len(g.xs)
	x := g.normalize(v)

	kstar := mat.NewVecDense(n, nil)
	for i, xi := range g.xs {
		kstar.SetVec(i, g.kernel(x, xi))
	}

	mean = g.yMean + g.yStd*mat.Dot(kstar, g.alpha)

	sol := mat.NewVecDense(n, nil)
	if err := g.chol.SolveVecTo(sol, kstar); err != nil {
		return mean, g.signalVar * g.yStd * g.yStd
	}
	variance = (g.signalVar + g.noiseVar - mat.Dot(kstar, sol)) * g.yStd * g.yStd
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}

// ExpectedImprovement scores how much the posterior at (mean, variance) is
// expected to improve on the best observed loss. It is zero wherever the
// model is certain no improvement exists, which starves exploitation-only
// proposals once a region is well sampled.
func ExpectedImprovement(mean, variance, best float64) float64 {
	sd := math.Sqrt(variance)
	if sd < 1e-12 {
		return 0
	}
	imp := best - mean
	z := imp / sd
	return imp*distuv.UnitNormal.CDF(z) + sd*distuv.UnitNormal.Prob(z)
}

func (g *GP) kernel(a, b []float64) float64 {
	d2 := utils.SquaredDistance(a, b)
	return g.signalVar * math.Exp(-d2/(2*g.lengthScale*g.lengthScale))
}

// normalize maps a design vector onto the unit cube so one length scale
// serves dimensions spanning metres and kilograms alike.
func (g *GP) normalize(v design.Vector) []float64 {
	x := make([]float64, len(v))
	for i, d := range g.bounds {
		x[i] = (v[i] - d.Min) / d.Span()
	}
	return x
}

// standardizeMoments returns the mean and a safe (never zero) standard
// deviation of ys.
func standardizeMoments(ys []float64) (mean, std float64) {
	mean = utils.Mean(ys)
	std = utils.StdDev(ys)
	if std < 1e-12 {
		std = 1.0
	}
	return mean, std
}
