// Package search runs the global surrogate-guided stage: a space-filling
// initial sample followed by expected-improvement proposals over a candidate
// pool.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/airshape/optimizer-core/internal/design"
	"github.com/airshape/optimizer-core/internal/surrogate"
	"github.com/airshape/optimizer-core/internal/trace"
	"github.com/airshape/optimizer-core/pkg/config"
	"github.com/airshape/optimizer-core/pkg/logger"
	"github.com/airshape/optimizer-core/pkg/utils"
)

// eiTieTol is the expected-improvement difference below which two candidates
// are considered tied; ties resolve toward the higher posterior variance.
const eiTieTol = 1e-12

// EvaluateFunc scores one design vector. Implementations must be safe for
// concurrent use; the initial sample is evaluated in parallel.
type EvaluateFunc func(ctx context.Context, v design.Vector) (trace.Point, error)

// Searcher explores the full design space on a fixed evaluation budget and
// returns the best design it saw.
type Searcher struct {
	cfg    config.SurrogateSearch
	bounds design.Bounds
	eval   EvaluateFunc
	rng    *utils.RandSource
	slog   *slog.Logger
}

// NewSearcher builds the global stage. A zero seed in cfg yields a
// time-seeded, non-reproducible run.
func NewSearcher(cfg config.SurrogateSearch, bounds design.Bounds, eval EvaluateFunc) *Searcher {
	return &Searcher{
		cfg:    cfg,
		bounds: bounds,
		eval:   eval,
		rng:    utils.NewRandSource(cfg.Seed),
		slog:   logger.Default,
	}
}

// Run executes the stage: initial Latin hypercube sample, then surrogate
// proposals until the budget is spent. On cancellation the best point found
// so far is returned alongside the context error, so a partial run still
// yields a usable design.
func (s *Searcher) Run(ctx context.Context) (trace.Point, error) {
	initial, err := s.evaluateInitial(ctx)
	if len(initial) == 0 {
		if err == nil {
			err = fmt.Errorf("initial sample produced no evaluations")
		}
		return trace.Point{}, err
	}

	best := initial[0]
	gp := surrogate.NewGP(s.bounds, s.cfg)
	for _, p := range initial {
		if p.Loss < best.Loss {
			best = p
		}
		gp.Add(p.Vector, p.Loss)
	}
	if err != nil {
		return best, err
	}

	for n := len(initial); n < s.cfg.Budget; n++ {
		if ctx.Err() != nil {
			return best, ctx.Err()
		}

		next := s.propose(gp, best.Loss)
		point, err := s.eval(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return best, ctx.Err()
			}
			return best, fmt.Errorf("evaluating proposal %d: %w", n, err)
		}
		gp.Add(point.Vector, point.Loss)
		if point.Loss < best.Loss {
			best = point
			s.slog.Info("surrogate stage improved incumbent", "evaluation", n, "loss", best.Loss)
		}
	}

	s.slog.Info("surrogate stage complete", "evaluations", s.cfg.Budget, "best_loss", best.Loss)
	return best, nil
}

// evaluateInitial scores the Latin hypercube sample with bounded parallelism.
// Failed evaluations still count against the budget: the evaluator maps them
// to a finite worst-case loss rather than an error.
func (s *Searcher) evaluateInitial(ctx context.Context) ([]trace.Point, error) {
	sample := s.latinHypercube(s.cfg.InitSamples)

	semaphore := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	points := make([]trace.Point, len(sample))
	errs := make([]error, len(sample))

	for i, v := range sample {
		wg.Add(1)
		go func(idx int, vec design.Vector) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				errs[idx] = ctx.Err()
				return
			}
			points[idx], errs[idx] = s.eval(ctx, vec)
		}(i, v)
	}
	wg.Wait()

	var out []trace.Point
	var firstErr error
	for i, err := range errs {
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("initial sample %d: %w", i, err)
			}
			continue
		}
		out = append(out, points[i])
	}
	return out, firstErr
}

// propose fits the surrogate and picks the candidate with the highest
// expected improvement from a fresh random pool. If fitting fails the stage
// degrades to pure random search for this proposal.
func (s *Searcher) propose(gp *surrogate.GP, bestLoss float64) design.Vector {
	if err := gp.Fit(); err != nil {
		s.slog.Warn("surrogate fit failed, falling back to random proposal", "error", err)
		return s.randomVector()
	}

	var (
		bestVec design.Vector
		bestEI  = -1.0
		bestVar = -1.0
	)
	for i := 0; i < s.cfg.Candidates; i++ {
		c := s.randomVector()
		mean, variance := gp.Predict(c)
		ei := surrogate.ExpectedImprovement(mean, variance, bestLoss)

		switch {
		case ei > bestEI+eiTieTol:
			bestVec, bestEI, bestVar = c, ei, variance
		case ei > bestEI-eiTieTol && variance > bestVar:
			// Tied on acquisition: prefer the less-explored region.
			bestVec, bestEI, bestVar = c, ei, variance
		}
	}
	return bestVec
}

// latinHypercube draws n points with one sample per stratum in every
// dimension, giving the surrogate spread-out coverage that plain uniform
// sampling does not guarantee at small n.
func (s *Searcher) latinHypercube(n int) []design.Vector {
	out := make([]design.Vector, n)
	for i := range out {
		out[i] = make(design.Vector, len(s.bounds))
	}
	for d, dim := range s.bounds {
		perm := s.rng.Perm(n)
		for i := 0; i < n; i++ {
			u := (float64(perm[i]) + s.rng.Float64()) / float64(n)
			out[i][d] = dim.Min + u*dim.Span()
		}
	}
	return out
}

func (s *Searcher) randomVector() design.Vector {
	v := make(design.Vector, len(s.bounds))
	for i, d := range s.bounds {
		v[i] = s.rng.UniformFloat64(d.Min, d.Max)
	}
	return v
}
