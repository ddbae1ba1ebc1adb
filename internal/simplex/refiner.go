// Package simplex implements the local refinement stage: a bounded
// Nelder-Mead descent started from the best design the global stage found.
package simplex

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/airshape/optimizer-core/internal/design"
	"github.com/airshape/optimizer-core/internal/trace"
	"github.com/airshape/optimizer-core/pkg/config"
	"github.com/airshape/optimizer-core/pkg/logger"
)

// EvaluateFunc scores one design vector.
type EvaluateFunc func(ctx context.Context, v design.Vector) (trace.Point, error)

// vertexCollisionTol is the squared distance in span-normalized coordinates
// below which two vertices count as the same point.
const vertexCollisionTol = 1e-12

// collisionNudgeFrac scales the inward nudge applied to a trial point that
// clamped onto an existing vertex, as a fraction of the initial step.
const collisionNudgeFrac = 0.1

// Stats summarizes one refinement run.
type Stats struct {
	Iterations   int
	Reflections  int
	Expansions   int
	Contractions int
	Shrinks      int
	Converged    bool
	Reason       string
}

// Refiner walks a simplex of N+1 vertices downhill through reflection,
// expansion, contraction and shrink moves, clamping every trial point into
// the search bounds.
type Refiner struct {
	cfg    config.SimplexRefine
	bounds design.Bounds
	eval   EvaluateFunc
	slog   *slog.Logger

	// inspect, when set, observes the sorted simplex at the top of every
	// iteration. Test seam only.
	inspect func(verts []vertex, stats Stats)
}

// NewRefiner builds the local stage.
func NewRefiner(cfg config.SimplexRefine, bounds design.Bounds, eval EvaluateFunc) *Refiner {
	return &Refiner{
		cfg:    cfg,
		bounds: bounds,
		eval:   eval,
		slog:   logger.Default,
	}
}

type vertex struct {
	point trace.Point
}

func (v vertex) loss() float64 { return v.point.Loss }

// Run refines the seed design and returns the best vertex reached. On
// cancellation the best vertex so far is returned with the context error.
func (r *Refiner) Run(ctx context.Context, seed design.Vector) (trace.Point, Stats, error) {
	stats := Stats{}
	verts, err := r.initialSimplex(ctx, seed)
	if err != nil {
		if len(verts) > 0 {
			sortVertices(verts)
			return verts[0].point, stats, err
		}
		return trace.Point{}, stats, err
	}

	n := len(seed)
	for stats.Iterations = 0; stats.Iterations < r.cfg.MaxIterations; stats.Iterations++ {
		if ctx.Err() != nil {
			sortVertices(verts)
			return verts[0].point, stats, ctx.Err()
		}

		sortVertices(verts)
		best, worst := verts[0], verts[n]
		if r.inspect != nil {
			r.inspect(verts, stats)
		}

		if lossSpread(verts) < r.cfg.Tolerance {
			stats.Converged = true
			stats.Reason = "loss spread below tolerance"
			r.slog.Info("simplex converged", "iterations", stats.Iterations, "loss", best.loss())
			return best.point, stats, nil
		}

		centroid := r.centroid(verts)

		reflected, err := r.trial(ctx, centroid, worst.point.Vector, -r.cfg.Alpha, verts[:n])
		if err != nil {
			return best.point, stats, err
		}

		switch {
		case reflected.loss() < best.loss():
			// Downhill beyond the best vertex: probe further out.
			expanded, err := r.trial(ctx, centroid, worst.point.Vector, -r.cfg.Alpha*r.cfg.Gamma, verts[:n])
			if err != nil {
				return best.point, stats, err
			}
			if expanded.loss() < reflected.loss() {
				verts[n] = expanded
				stats.Expansions++
			} else {
				verts[n] = reflected
				stats.Reflections++
			}

		case reflected.loss() < verts[n-1].loss():
			verts[n] = reflected
			stats.Reflections++

		default:
			contracted, err := r.trial(ctx, centroid, worst.point.Vector, r.cfg.Rho, verts[:n])
			if err != nil {
				return best.point, stats, err
			}
			if contracted.loss() < worst.loss() {
				verts[n] = contracted
				stats.Contractions++
			} else {
				// The simplex straddles a valley too wide to contract over;
				// pull everything toward the best vertex.
				if err := r.shrink(ctx, verts); err != nil {
					return best.point, stats, err
				}
				stats.Shrinks++
			}
		}
	}

	sortVertices(verts)
	stats.Reason = "iteration limit reached"
	r.slog.Warn("simplex stopped at iteration limit", "iterations", stats.Iterations, "loss", verts[0].loss())
	return verts[0].point, stats, nil
}

// initialSimplex builds N+1 vertices: the clamped seed plus one per-dimension
// perturbation. A seed component sitting on its upper bound is perturbed
// inward so the vertices stay distinct.
func (r *Refiner) initialSimplex(ctx context.Context, seed design.Vector) ([]vertex, error) {
	if len(seed) != len(r.bounds) {
		return nil, fmt.Errorf("seed has %d dimensions, want %d", len(seed), len(r.bounds))
	}
	base := r.bounds.Clamp(seed)

	verts := make([]vertex, 0, len(base)+1)
	p, err := r.eval(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("evaluating simplex seed: %w", err)
	}
	verts = append(verts, vertex{point: p})

	for i, d := range r.bounds {
		step := r.cfg.InitStepFrac * d.Span()
		v := base.Clone()
		if v[i]+step <= d.Max {
			v[i] += step
		} else {
			v[i] -= step
		}
		p, err := r.eval(ctx, v)
		if err != nil {
			return verts, fmt.Errorf("evaluating simplex vertex %d: %w", i, err)
		}
		verts = append(verts, vertex{point: p})
	}
	return verts, nil
}

// trial evaluates centroid + coeff*(worst - centroid), clamped into bounds.
// keep holds the vertices that survive the move; a trial point that clamps
// onto one of them is nudged off before evaluation so the simplex never
// carries two identical vertices.
func (r *Refiner) trial(ctx context.Context, centroid, worst design.Vector, coeff float64, keep []vertex) (vertex, error) {
	v := make(design.Vector, len(centroid))
	for i := range v {
		v[i] = centroid[i] + coeff*(worst[i]-centroid[i])
	}
	v = r.separate(r.bounds.Clamp(v), keep)
	p, err := r.eval(ctx, v)
	if err != nil {
		return vertex{}, fmt.Errorf("evaluating trial point: %w", err)
	}
	return vertex{point: p}, nil
}

// separate nudges a trial point off any kept vertex it coincides with.
// Clamping presses points onto the bound faces, where distinct trials
// collapse onto the same corner; the nudge pushes clamped components back
// into the interior by a small fraction of the initial step. A second pass
// handles the rare interior collision by stepping toward the domain center.
func (r *Refiner) separate(v design.Vector, keep []vertex) design.Vector {
	if !r.collides(v, keep) {
		return v
	}

	out := v.Clone()
	for i, d := range r.bounds {
		nudge := collisionNudgeFrac * r.cfg.InitStepFrac * d.Span()
		switch {
		case out[i] >= d.Max:
			out[i] = d.Max - nudge
		case out[i] <= d.Min:
			out[i] = d.Min + nudge
		}
	}
	if !r.collides(out, keep) {
		return out
	}

	for i, d := range r.bounds {
		nudge := collisionNudgeFrac * r.cfg.InitStepFrac * d.Span()
		if out[i] < (d.Min+d.Max)/2 {
			out[i] += nudge
		} else {
			out[i] -= nudge
		}
	}
	return r.bounds.Clamp(out)
}

// collides reports whether v sits on top of any vertex in keep, measured in
// span-normalized coordinates.
func (r *Refiner) collides(v design.Vector, keep []vertex) bool {
	for _, w := range keep {
		d := 0.0
		for i, dim := range r.bounds {
			x := (v[i] - w.point.Vector[i]) / dim.Span()
			d += x * x
		}
		if d < vertexCollisionTol {
			return true
		}
	}
	return false
}

// shrink moves every vertex but the best toward the best by sigma and
// re-evaluates it. Vertices must be sorted.
func (r *Refiner) shrink(ctx context.Context, verts []vertex) error {
	best := verts[0].point.Vector
	for i := 1; i < len(verts); i++ {
		v := make(design.Vector, len(best))
		cur := verts[i].point.Vector
		for j := range v {
			v[j] = best[j] + r.cfg.Sigma*(cur[j]-best[j])
		}
		p, err := r.eval(ctx, r.bounds.Clamp(v))
		if err != nil {
			return fmt.Errorf("evaluating shrink vertex %d: %w", i, err)
		}
		verts[i] = vertex{point: p}
	}
	return nil
}

// centroid averages every vertex except the worst. Vertices must be sorted.
func (r *Refiner) centroid(verts []vertex) design.Vector {
	c := make(design.Vector, len(verts[0].point.Vector))
	for _, v := range verts[:len(verts)-1] {
		for j := range c {
			c[j] += v.point.Vector[j]
		}
	}
	for j := range c {
		c[j] /= float64(len(verts) - 1)
	}
	return c
}

func sortVertices(verts []vertex) {
	sort.SliceStable(verts, func(i, j int) bool {
		return verts[i].loss() < verts[j].loss()
	})
}

// lossSpread is the worst-to-best loss gap relative to the best loss scale.
func lossSpread(verts []vertex) float64 {
	best := verts[0].loss()
	worst := verts[len(verts)-1].loss()
	return (worst - best) / math.Max(1.0, math.Abs(best))
}
