// Package driver sequences the two optimization stages over a shared
// evaluation history and reports the final design.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/airshape/optimizer-core/internal/design"
	"github.com/airshape/optimizer-core/internal/flight"
	"github.com/airshape/optimizer-core/internal/objective"
	"github.com/airshape/optimizer-core/internal/search"
	"github.com/airshape/optimizer-core/internal/simplex"
	"github.com/airshape/optimizer-core/internal/trace"
	"github.com/airshape/optimizer-core/pkg/config"
	"github.com/airshape/optimizer-core/pkg/logger"
)

// Progress is called after every recorded evaluation. Implementations must
// be fast and safe for concurrent use.
type Progress func(p trace.Point)

// Result is the outcome of a full optimization run.
type Result struct {
	Vector  design.Vector
	Spec    design.StructuralSpec
	Loss    float64
	Terms   objective.Breakdown
	Metrics *flight.Metrics

	Stage1Evaluations int
	Stage2Iterations  int
	Converged         bool
	ConvergenceReason string
	Duration          time.Duration
}

// Driver owns the evaluator, the shared history, and the two stages.
type Driver struct {
	cfg      *config.Config
	codec    *design.Codec
	eval     *objective.Evaluator
	log      *trace.Log
	progress Progress
	slog     *slog.Logger
}

// New wires a driver. recorder may be nil; when set, every evaluation is
// mirrored into it as it happens.
func New(cfg *config.Config, codec *design.Codec, sim flight.Simulator, recorder trace.Recorder) *Driver {
	log := trace.NewLog()
	if recorder != nil {
		log.SetRecorder(recorder)
	}
	return &Driver{
		cfg:   cfg,
		codec: codec,
		eval:  objective.NewEvaluator(cfg, codec, sim, log),
		log:   log,
		slog:  logger.Default,
	}
}

// SetProgress installs a per-evaluation callback.
func (d *Driver) SetProgress(fn Progress) {
	d.progress = fn
}

// History returns the shared evaluation log.
func (d *Driver) History() *trace.Log {
	return d.log
}

// Run executes the surrogate stage followed by simplex refinement and
// returns the best design evaluated anywhere in the run. Cancellation at any
// point yields the best design seen so far rather than an error-only result,
// as long as at least one evaluation completed.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	bounds := d.codec.Bounds()

	d.slog.Info("starting optimization",
		"target_apogee_m", d.cfg.TargetApogeeM,
		"dimensions", len(bounds),
		"surrogate_budget", d.cfg.Surrogate.Budget,
	)

	searcher := search.NewSearcher(d.cfg.Surrogate, bounds, d.evaluateFunc(trace.StageSurrogate))
	stage1Best, err := searcher.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return d.finish(start, simplex.Stats{Reason: "cancelled during surrogate stage"})
		}
		return nil, fmt.Errorf("surrogate stage: %w", err)
	}
	d.slog.Info("surrogate stage done", "best_loss", stage1Best.Loss)

	refiner := simplex.NewRefiner(d.cfg.Simplex, bounds, simplex.EvaluateFunc(d.evaluateFunc(trace.StageSimplex)))
	_, stats, err := refiner.Run(ctx, stage1Best.Vector)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			stats.Reason = "cancelled during simplex stage"
			return d.finish(start, stats)
		}
		return nil, fmt.Errorf("simplex stage: %w", err)
	}

	return d.finish(start, stats)
}

// evaluateFunc binds a stage label into the evaluator and fans results out to
// the progress callback.
func (d *Driver) evaluateFunc(stage string) search.EvaluateFunc {
	return func(ctx context.Context, v design.Vector) (trace.Point, error) {
		p, err := d.eval.Evaluate(ctx, v, stage)
		if err == nil && d.progress != nil {
			d.progress(p)
		}
		return p, err
	}
}

// finish assembles the result from the full history, so the returned design
// is the least-bad point ever evaluated regardless of which stage or move
// produced it.
func (d *Driver) finish(start time.Time, stats simplex.Stats) (*Result, error) {
	best, ok := d.log.Best()
	if !ok {
		return nil, fmt.Errorf("no evaluations completed")
	}

	stage1 := 0
	for _, p := range d.log.Snapshot() {
		if p.Stage == trace.StageSurrogate {
			stage1++
		}
	}

	res := &Result{
		Vector:            best.Vector,
		Spec:              d.codec.Decode(best.Vector),
		Loss:              best.Loss,
		Terms:             objective.Breakdown(best.Terms),
		Metrics:           best.Metrics,
		Stage1Evaluations: stage1,
		Stage2Iterations:  stats.Iterations,
		Converged:         stats.Converged,
		ConvergenceReason: stats.Reason,
		Duration:          time.Since(start),
	}

	d.slog.Info("optimization finished",
		"loss", res.Loss,
		"evaluations", d.log.Len(),
		"converged", res.Converged,
		"reason", res.ConvergenceReason,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}
