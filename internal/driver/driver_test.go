package driver

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/airshape/optimizer-core/internal/design"
	"github.com/airshape/optimizer-core/internal/flight"
	"github.com/airshape/optimizer-core/internal/trace"
	"github.com/airshape/optimizer-core/pkg/config"
)

// smoothSim is a deterministic stand-in for the flight simulator: apogee
// responds smoothly to geometry and ballast, all safety margins pass.
func smoothSim() flight.Simulator {
	return flight.SimulatorFunc(func(ctx context.Context, spec *design.StructuralSpec) (*flight.Metrics, error) {
		apogee := 900.0 +
			350.0*spec.BodyLengthM -
			900.0*spec.FinSpanM -
			120.0*spec.NoseBallastKG +
			400.0*spec.NoseLengthM
		return &flight.Metrics{
			ApogeeM:            apogee,
			StabilityMinCal:    1.8,
			StabilityAvgCal:    2.2,
			RailExitVelocityMS: 22.0,
			MaxVelocityMS:      280.0,
			FlightTimeS:        95.0,
		}, nil
	})
}

func testDriver(t *testing.T, cfg *config.Config, sim flight.Simulator) *Driver {
	t.Helper()
	codec, err := design.NewCodec(design.BoundsFromConfig(cfg.Dimensions), design.StructuralSpec{
		ReferenceDiamM:  0.102,
		DryMassKG:       18.5,
		MotorDesignator: "M1670",
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return New(cfg, codec, sim, nil)
}

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Surrogate.Budget = 16
	cfg.Surrogate.InitSamples = 6
	cfg.Surrogate.Candidates = 32
	cfg.Surrogate.Seed = 7
	cfg.Simplex.MaxIterations = 60
	return cfg
}

func TestRunProducesBestOfHistory(t *testing.T) {
	cfg := fastConfig()
	d := testDriver(t, cfg, smoothSim())

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	min := math.Inf(1)
	for _, p := range d.History().Snapshot() {
		if p.Loss < min {
			min = p.Loss
		}
	}
	if res.Loss != min {
		t.Errorf("result loss %g, want history minimum %g", res.Loss, min)
	}

	if res.Stage1Evaluations != cfg.Surrogate.Budget {
		t.Errorf("stage 1 evaluations = %d, want %d", res.Stage1Evaluations, cfg.Surrogate.Budget)
	}
	if d.History().Len() <= cfg.Surrogate.Budget {
		t.Error("simplex stage recorded no evaluations")
	}
	if res.Duration <= 0 {
		t.Error("duration not measured")
	}
}

func TestRunResultSpecMatchesVector(t *testing.T) {
	d := testDriver(t, fastConfig(), smoothSim())
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := d.codec.Decode(res.Vector)
	if res.Spec != want {
		t.Errorf("spec %+v does not decode from result vector", res.Spec)
	}
	// The fin must sit on the body tube in the final design.
	aft := res.Spec.NoseLengthM + res.Spec.BodyLengthM
	if res.Spec.FinPositionM < res.Spec.NoseLengthM || res.Spec.FinPositionM+res.Spec.FinRootChordM > aft+1e-9 {
		t.Errorf("fin detached from tube: position %g chord %g tube [%g, %g]",
			res.Spec.FinPositionM, res.Spec.FinRootChordM, res.Spec.NoseLengthM, aft)
	}
}

func TestRunProgressSeesEveryEvaluation(t *testing.T) {
	d := testDriver(t, fastConfig(), smoothSim())
	var seen atomic.Int64
	d.SetProgress(func(p trace.Point) { seen.Add(1) })

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := seen.Load(); got != int64(d.History().Len()) {
		t.Errorf("progress callbacks = %d, history length = %d", got, d.History().Len())
	}
}

func TestRunCancelledMidwayReturnsBestSoFar(t *testing.T) {
	cfg := fastConfig()
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	sim := flight.SimulatorFunc(func(c context.Context, spec *design.StructuralSpec) (*flight.Metrics, error) {
		if calls.Add(1) == int64(cfg.Surrogate.Budget) {
			cancel()
		}
		return smoothSim().Simulate(c, spec)
	})

	d := testDriver(t, cfg, sim)
	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("cancellation should still yield a result, got %v", err)
	}
	if len(res.Vector) == 0 {
		t.Fatal("missing best-so-far vector")
	}
	if res.Converged {
		t.Error("cancelled run must not report convergence")
	}
	if res.ConvergenceReason == "" {
		t.Error("cancelled run must carry a reason")
	}
}

func TestRunCancelledBeforeStartFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := testDriver(t, fastConfig(), smoothSim())
	if _, err := d.Run(ctx); err == nil {
		t.Fatal("expected error when no evaluation could complete")
	}
}

func TestRunSurvivesFailedFlights(t *testing.T) {
	// Every third flight fails; the run must complete and the final design
	// must come from a successful flight.
	var calls atomic.Int64
	sim := flight.SimulatorFunc(func(c context.Context, spec *design.StructuralSpec) (*flight.Metrics, error) {
		if calls.Add(1)%3 == 0 {
			return nil, &flight.FailureError{Reason: "chute deployment anomaly"}
		}
		return smoothSim().Simulate(c, spec)
	})

	cfg := fastConfig()
	d := testDriver(t, cfg, sim)
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Loss >= cfg.Penalties.FailureLoss {
		t.Errorf("final loss %g is a failure loss", res.Loss)
	}
	if res.Metrics == nil {
		t.Error("final design must carry flight metrics")
	}
}
