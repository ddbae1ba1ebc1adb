// Package flight defines the boundary to the external flight simulator: the
// metrics it returns, the failure signal, and client adapters.
package flight

import (
	"context"

	"github.com/airshape/optimizer-core/internal/design"
)

// Metrics is the outcome of one simulated flight.
type Metrics struct {
	ApogeeM            float64 `json:"apogee_m"`
	StabilityMinCal    float64 `json:"stability_min_cal"`
	StabilityAvgCal    float64 `json:"stability_avg_cal"`
	RailExitVelocityMS float64 `json:"rail_exit_velocity_ms"`
	MaxVelocityMS      float64 `json:"max_velocity_ms,omitempty"`
	FlightTimeS        float64 `json:"flight_time_s,omitempty"`
}

// FailureError signals that the simulated flight could not be completed:
// simulator-internal error, divergence, or geometry the simulator rejected.
// The optimizer treats it as a maximally unsafe design, never as a fatal
// condition.
type FailureError struct {
	Reason string
}

func (e *FailureError) Error() string {
	return "simulation failed: " + e.Reason
}

// Simulator scores one structural specification. Implementations may take
// seconds to minutes per call; they must honor ctx cancellation.
type Simulator interface {
	Simulate(ctx context.Context, spec *design.StructuralSpec) (*Metrics, error)
}

// SimulatorFunc adapts a plain function to the Simulator interface.
type SimulatorFunc func(ctx context.Context, spec *design.StructuralSpec) (*Metrics, error)

// Simulate calls f.
func (f SimulatorFunc) Simulate(ctx context.Context, spec *design.StructuralSpec) (*Metrics, error) {
	return f(ctx, spec)
}
