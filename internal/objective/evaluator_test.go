package objective

import (
	"context"
	"math"
	"testing"

	"github.com/airshape/optimizer-core/internal/design"
	"github.com/airshape/optimizer-core/internal/flight"
	"github.com/airshape/optimizer-core/internal/trace"
	"github.com/airshape/optimizer-core/pkg/config"
)

func nominalMetrics(apogee float64) *flight.Metrics {
	return &flight.Metrics{
		ApogeeM:            apogee,
		StabilityMinCal:    1.8,
		StabilityAvgCal:    2.2,
		RailExitVelocityMS: 22.0,
		MaxVelocityMS:      280.0,
		FlightTimeS:        95.0,
	}
}

func newTestEvaluator(t *testing.T, sim flight.Simulator) (*Evaluator, *config.Config) {
	t.Helper()
	cfg := config.Default()
	bounds := design.BoundsFromConfig(cfg.Dimensions)
	codec, err := design.NewCodec(bounds, design.StructuralSpec{
		ReferenceDiamM:  0.102,
		DryMassKG:       18.5,
		MotorDesignator: "M1670",
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return NewEvaluator(cfg, codec, sim, trace.NewLog()), cfg
}

func midVector(cfg *config.Config) design.Vector {
	v := make(design.Vector, len(cfg.Dimensions))
	for i, d := range cfg.Dimensions {
		v[i] = (d.Min + d.Max) / 2
	}
	return v
}

func TestScoreOnTargetSafeDesign(t *testing.T) {
	ev, cfg := newTestEvaluator(t, nil)

	spec := ev.codec.Decode(midVector(cfg))
	b := ev.Score(nominalMetrics(cfg.TargetApogeeM), &spec)

	if got := b[TermApogee]; got != 0 {
		t.Errorf("apogee term = %g, want 0 on target", got)
	}
	for _, term := range []string{TermStabilityFloor, TermRailVelocity, TermOverstability, TermSweep, TermTipChord} {
		if _, active := b[term]; active {
			t.Errorf("term %s active for a safe on-target design", term)
		}
	}
	if b.Total() != 0 {
		t.Errorf("total = %g, want 0", b.Total())
	}
}

func TestScorePrimaryDeviation(t *testing.T) {
	ev, cfg := newTestEvaluator(t, nil)
	spec := ev.codec.Decode(midVector(cfg))

	// 1% overshoot: 1e4 * 0.01^2 = 1.
	b := ev.Score(nominalMetrics(cfg.TargetApogeeM*1.01), &spec)
	if got := b[TermApogee]; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("apogee term = %g, want 1.0 for 1%% deviation", got)
	}

	// Undershoot by the same fraction scores identically.
	under := ev.Score(nominalMetrics(cfg.TargetApogeeM*0.99), &spec)
	if math.Abs(under[TermApogee]-b[TermApogee]) > 1e-9 {
		t.Errorf("undershoot %g != overshoot %g", under[TermApogee], b[TermApogee])
	}
}

func TestScoreStabilityFenceDominates(t *testing.T) {
	ev, cfg := newTestEvaluator(t, nil)
	spec := ev.codec.Decode(midVector(cfg))

	m := nominalMetrics(cfg.TargetApogeeM) // perfect apogee, unsafe margin
	m.StabilityMinCal = cfg.Constraints.StabilityFloorCal - 0.3

	b := ev.Score(m, &spec)
	if b[TermStabilityFloor] < 1e14 {
		t.Errorf("stability fence = %g, want >= 1e14", b[TermStabilityFloor])
	}

	// Any achievable primary loss stays far below the fence: even a design
	// missing the target tenfold cannot compete with a 0.3 cal violation.
	worstPrimary := ev.Score(nominalMetrics(cfg.TargetApogeeM*10), &spec)
	if worstPrimary.Total() >= b.Total() {
		t.Errorf("primary loss %g should not reach fenced loss %g", worstPrimary.Total(), b.Total())
	}
}

func TestScoreFenceMonotonicInDepth(t *testing.T) {
	ev, cfg := newTestEvaluator(t, nil)
	spec := ev.codec.Decode(midVector(cfg))

	shallow := nominalMetrics(cfg.TargetApogeeM)
	shallow.RailExitVelocityMS = cfg.Constraints.RailVelocityMinMS - 1.0
	deep := nominalMetrics(cfg.TargetApogeeM)
	deep.RailExitVelocityMS = cfg.Constraints.RailVelocityMinMS - 4.0

	ls := ev.Score(shallow, &spec)[TermRailVelocity]
	ld := ev.Score(deep, &spec)[TermRailVelocity]
	if !(ld > ls && ls > 0) {
		t.Errorf("fence not monotonic: shallow=%g deep=%g", ls, ld)
	}
}

func TestScoreOverstabilityIsGentle(t *testing.T) {
	ev, cfg := newTestEvaluator(t, nil)
	spec := ev.codec.Decode(midVector(cfg))

	m := nominalMetrics(cfg.TargetApogeeM)
	m.StabilityAvgCal = cfg.Constraints.StabilityCeilAvgCal + 0.5

	b := ev.Score(m, &spec)
	want := cfg.Penalties.OverstabilityGain * 0.25
	if math.Abs(b[TermOverstability]-want) > 1e-9 {
		t.Errorf("overstability = %g, want %g", b[TermOverstability], want)
	}
	if b[TermOverstability] >= cfg.Penalties.FenceWall {
		t.Errorf("overstability nudge %g should stay below the fence scale", b[TermOverstability])
	}
}

func TestScoreStructuralTerms(t *testing.T) {
	ev, cfg := newTestEvaluator(t, nil)

	v := midVector(cfg)
	bounds := ev.codec.Bounds()
	v[bounds.Index(design.DimFinRootChord)] = 0.20
	v[bounds.Index(design.DimFinSweep)] = 0.50    // limit 2.0 * 0.20 = 0.40
	v[bounds.Index(design.DimFinTipChord)] = 0.25 // limit 0.75 * 0.20 = 0.15
	spec := ev.codec.Decode(v)

	b := ev.Score(nominalMetrics(cfg.TargetApogeeM), &spec)

	wantSweep := cfg.Penalties.StructuralGain * 0.1 * 0.1
	if math.Abs(b[TermSweep]-wantSweep) > 1e-6 {
		t.Errorf("sweep term = %g, want %g", b[TermSweep], wantSweep)
	}
	wantTip := cfg.Penalties.StructuralGain * 0.1 * 0.1
	if math.Abs(b[TermTipChord]-wantTip) > 1e-6 {
		t.Errorf("tip chord term = %g, want %g", b[TermTipChord], wantTip)
	}
}

func TestEvaluateRecordsHistory(t *testing.T) {
	var seen []design.StructuralSpec
	sim := flight.SimulatorFunc(func(ctx context.Context, spec *design.StructuralSpec) (*flight.Metrics, error) {
		seen = append(seen, *spec)
		return nominalMetrics(1500.0), nil
	})
	ev, cfg := newTestEvaluator(t, sim)

	v := midVector(cfg)
	p1, err := ev.Evaluate(context.Background(), v, trace.StageSurrogate)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	p2, err := ev.Evaluate(context.Background(), v, trace.StageSurrogate)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if p1.Loss != p2.Loss {
		t.Errorf("same vector scored differently: %g vs %g", p1.Loss, p2.Loss)
	}
	if p1.Index != 0 || p2.Index != 1 {
		t.Errorf("indices = %d, %d, want 0, 1", p1.Index, p2.Index)
	}
	if ev.History().Len() != 2 {
		t.Errorf("history length = %d, want 2", ev.History().Len())
	}
	if len(seen) != 2 || seen[0] != seen[1] {
		t.Errorf("simulator saw inconsistent specs across identical evaluations")
	}
}

func TestEvaluateFailureIsFiniteAndWorst(t *testing.T) {
	sim := flight.SimulatorFunc(func(ctx context.Context, spec *design.StructuralSpec) (*flight.Metrics, error) {
		return nil, &flight.FailureError{Reason: "unstable at rail exit"}
	})
	ev, cfg := newTestEvaluator(t, sim)

	p, err := ev.Evaluate(context.Background(), midVector(cfg), trace.StageSimplex)
	if err != nil {
		t.Fatalf("failure must not surface as an error, got %v", err)
	}
	if !p.Failed {
		t.Error("point not marked failed")
	}
	if p.Loss != cfg.Penalties.FailureLoss {
		t.Errorf("loss = %g, want %g", p.Loss, cfg.Penalties.FailureLoss)
	}
	if math.IsInf(p.Loss, 0) || math.IsNaN(p.Loss) {
		t.Errorf("failure loss must be finite, got %g", p.Loss)
	}

	// A fenced-but-flyable design still beats a failed flight.
	fenceWall := cfg.Penalties.FenceWall + 1.0
	if fenceWall*fenceWall >= p.Loss {
		t.Errorf("fence loss %g should stay below failure loss %g", fenceWall*fenceWall, p.Loss)
	}
}

func TestEvaluateClampsOutOfBoundsProposal(t *testing.T) {
	var got design.StructuralSpec
	sim := flight.SimulatorFunc(func(ctx context.Context, spec *design.StructuralSpec) (*flight.Metrics, error) {
		got = *spec
		return nominalMetrics(1500.0), nil
	})
	ev, cfg := newTestEvaluator(t, sim)

	v := midVector(cfg)
	v[0] = cfg.Dimensions[0].Max + 10.0 // reflection overshoot past the edge
	if _, err := ev.Evaluate(context.Background(), v, trace.StageSimplex); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.BodyLengthM != cfg.Dimensions[0].Max {
		t.Errorf("body length = %g, want clamped to %g", got.BodyLengthM, cfg.Dimensions[0].Max)
	}
}

func TestEvaluateRejectsWrongDimensionality(t *testing.T) {
	ev, _ := newTestEvaluator(t, nil)
	if _, err := ev.Evaluate(context.Background(), design.Vector{1, 2, 3}, trace.StageSurrogate); err == nil {
		t.Fatal("expected error for wrong-length vector")
	}
}
