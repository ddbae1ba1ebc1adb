// Package objective turns raw flight metrics and the design geometry into the
// single scalar loss driving both search stages.
package objective

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/airshape/optimizer-core/internal/design"
	"github.com/airshape/optimizer-core/internal/flight"
	"github.com/airshape/optimizer-core/internal/trace"
	"github.com/airshape/optimizer-core/pkg/config"
	"github.com/airshape/optimizer-core/pkg/logger"
)

// Loss term names, as reported in the breakdown.
const (
	TermApogee         = "apogee"
	TermStabilityFloor = "stability_floor"
	TermOverstability  = "overstability"
	TermSweep          = "sweep"
	TermTipChord       = "tip_chord"
	TermRailVelocity   = "rail_velocity"
	TermFailure        = "failure"
)

// Breakdown maps active loss terms to their contribution. Inactive penalties
// contribute exactly zero and are omitted, keeping the safe region flat.
type Breakdown map[string]float64

// Total sums all terms.
func (b Breakdown) Total() float64 {
	total := 0.0
	for _, v := range b {
		total += v
	}
	return total
}

// Evaluator maps a design vector through decode -> simulate -> score and
// appends every result to the shared history.
type Evaluator struct {
	target      float64
	constraints config.Constraints
	penalties   config.Penalties
	codec       *design.Codec
	sim         flight.Simulator
	log         *trace.Log
	slog        *slog.Logger
}

// NewEvaluator wires the evaluation pipeline.
func NewEvaluator(cfg *config.Config, codec *design.Codec, sim flight.Simulator, log *trace.Log) *Evaluator {
	return &Evaluator{
		target:      cfg.TargetApogeeM,
		constraints: cfg.Constraints,
		penalties:   cfg.Penalties,
		codec:       codec,
		sim:         sim,
		log:         log,
		slog:        logger.Default,
	}
}

// History returns the shared evaluation log.
func (e *Evaluator) History() *trace.Log {
	return e.log
}

// Evaluate scores one design vector and appends the result to the history.
//
// A vector of the wrong length is a logic error in the calling search
// component and is the only fatal path. Slightly out-of-bounds proposals
// (e.g. a reflection past an edge) are clamped before decode, so the
// simulator only ever sees geometrically valid structures. A failed or
// timed-out simulation yields the fixed failure loss, never an error.
func (e *Evaluator) Evaluate(ctx context.Context, v design.Vector, stage string) (trace.Point, error) {
	bounds := e.codec.Bounds()
	if len(v) != len(bounds) {
		return trace.Point{}, fmt.Errorf("design vector has %d dimensions, want %d", len(v), len(bounds))
	}
	if !bounds.Contains(v) {
		e.slog.Debug("clamping out-of-bounds proposal", "stage", stage, "vector", []float64(v))
		v = bounds.Clamp(v)
	}

	spec := e.codec.Decode(v)

	metrics, err := e.sim.Simulate(ctx, &spec)
	if err != nil {
		e.slog.Warn("simulation failed, scoring as maximally unsafe", "stage", stage, "error", err)
		point := e.log.Append(trace.Point{
			Stage:  stage,
			Vector: v,
			Loss:   e.penalties.FailureLoss,
			Terms:  Breakdown{TermFailure: e.penalties.FailureLoss},
			Failed: true,
		})
		return point, nil
	}

	breakdown := e.Score(metrics, &spec)
	point := e.log.Append(trace.Point{
		Stage:   stage,
		Vector:  v,
		Loss:    breakdown.Total(),
		Terms:   breakdown,
		Metrics: metrics,
	})
	return point, nil
}

// Score computes the loss breakdown for one completed flight. It is a pure
// function of its inputs, which keeps every term testable without a
// simulator.
func (e *Evaluator) Score(m *flight.Metrics, spec *design.StructuralSpec) Breakdown {
	b := Breakdown{}

	// Primary objective: squared apogee deviation normalized by the target,
	// so near-target gradients stay informative and far-from-target values
	// do not saturate.
	dev := (m.ApogeeM - e.target) / e.target
	b[TermApogee] = e.penalties.PrimaryGain * dev * dev

	// Electric fence: the wall offset is added before squaring, so any
	// violation lands orders of magnitude above every achievable primary
	// value while staying monotonic in the violation depth.
	if m.StabilityMinCal < e.constraints.StabilityFloorCal {
		depth := e.constraints.StabilityFloorCal - m.StabilityMinCal
		wall := e.penalties.FenceWall + depth
		b[TermStabilityFloor] = wall * wall
	}

	if m.RailExitVelocityMS < e.constraints.RailVelocityMinMS {
		depth := e.constraints.RailVelocityMinMS - m.RailExitVelocityMS
		wall := e.penalties.FenceWall + depth
		b[TermRailVelocity] = wall * wall
	}

	// Gentler nudge away from pathological overstability; the simulator's
	// drag model only partially prices the excess.
	if m.StabilityAvgCal > e.constraints.StabilityCeilAvgCal {
		excess := m.StabilityAvgCal - e.constraints.StabilityCeilAvgCal
		b[TermOverstability] = e.penalties.OverstabilityGain * excess * excess
	}

	// Geometry sanity, computed from the design alone: the simulator
	// tolerates shapes no shop would build.
	sweepLimit := e.constraints.SweepMaxChordRatio * spec.FinRootChordM
	if spec.FinSweepM > sweepLimit {
		excess := spec.FinSweepM - sweepLimit
		b[TermSweep] = e.penalties.StructuralGain * excess * excess
	}

	tipLimit := e.constraints.TipChordMaxRatio * spec.FinRootChordM
	if spec.FinTipChordM > tipLimit {
		excess := spec.FinTipChordM - tipLimit
		b[TermTipChord] = e.penalties.StructuralGain * excess * excess
	}

	return b
}
