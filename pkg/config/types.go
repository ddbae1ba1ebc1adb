package config

import "time"

// Config is the full configuration surface consumed by the optimizer core.
// All values are validated once before the run starts; a bad configuration is
// fatal before any simulator work begins.
type Config struct {
	LogLevel      string          `yaml:"log_level"`
	TargetApogeeM float64         `yaml:"target_apogee_m"`
	Dimensions    []Dimension     `yaml:"dimensions"`
	Constraints   Constraints     `yaml:"constraints"`
	Penalties     Penalties       `yaml:"penalties"`
	Surrogate     SurrogateSearch `yaml:"surrogate_search"`
	Simplex       SimplexRefine   `yaml:"simplex_refine"`
	Simulator     Simulator       `yaml:"simulator"`
	Trace         Trace           `yaml:"trace"`
}

// Dimension bounds one free parameter of the design vector.
type Dimension struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// Constraints holds the flight-safety and geometry thresholds.
type Constraints struct {
	// StabilityFloorCal is the minimum in-flight stability margin (calibers)
	StabilityFloorCal float64 `yaml:"stability_floor_cal"`
	// StabilityCeilAvgCal is the average stability above which the
	// overstability nudge applies
	StabilityCeilAvgCal float64 `yaml:"stability_ceil_avg_cal"`
	// RailVelocityMinMS is the minimum velocity at launch-guide departure
	RailVelocityMinMS float64 `yaml:"rail_velocity_min_ms"`
	// SweepMaxChordRatio caps fin sweep as a multiple of root chord
	SweepMaxChordRatio float64 `yaml:"sweep_max_chord_ratio"`
	// TipChordMaxRatio caps fin tip chord as a multiple of root chord
	TipChordMaxRatio float64 `yaml:"tip_chord_max_ratio"`
}

// Penalties holds the scaling constants of the loss terms. FenceWall is the
// additive offset applied before squaring on hard-floor violations; its square
// must dominate any achievable primary-objective value so that every
// constraint-violating design ranks worse than every compliant one.
type Penalties struct {
	PrimaryGain       float64 `yaml:"primary_gain"`
	FenceWall         float64 `yaml:"fence_wall"`
	FailureLoss       float64 `yaml:"failure_loss"`
	OverstabilityGain float64 `yaml:"overstability_gain"`
	StructuralGain    float64 `yaml:"structural_gain"`
}

// SurrogateSearch configures the global stage.
type SurrogateSearch struct {
	// Budget is the total evaluation count for the stage, initial samples
	// included
	Budget int `yaml:"budget"`
	// InitSamples is the size of the space-filling initial set
	InitSamples int `yaml:"init_samples"`
	// Candidates is the acquisition candidate pool size per proposal
	Candidates int `yaml:"candidates"`
	// Workers bounds the parallel evaluation of the initial set; 1 disables
	// parallelism
	Workers        int     `yaml:"workers"`
	LengthScale    float64 `yaml:"length_scale"`
	SignalVariance float64 `yaml:"signal_variance"`
	NoiseVariance  float64 `yaml:"noise_variance"`
	Seed           int64   `yaml:"seed"`
}

// SimplexRefine configures the local stage. Alpha, Gamma, Rho and Sigma are
// the reflection, expansion, contraction and shrink coefficients.
type SimplexRefine struct {
	Alpha         float64 `yaml:"alpha"`
	Gamma         float64 `yaml:"gamma"`
	Rho           float64 `yaml:"rho"`
	Sigma         float64 `yaml:"sigma"`
	Tolerance     float64 `yaml:"tolerance"`
	InitStepFrac  float64 `yaml:"init_step_frac"`
	MaxIterations int     `yaml:"max_iterations"`
}

// Simulator configures the external flight-simulation adapter.
type Simulator struct {
	Endpoint string  `yaml:"endpoint"`
	TimeoutS float64 `yaml:"timeout_s"`
}

// Trace configures optional persistence of the evaluation history.
type Trace struct {
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// Timeout returns the simulator call timeout as a duration.
func (s Simulator) Timeout() time.Duration {
	return time.Duration(s.TimeoutS * float64(time.Second))
}

// Default returns the documented default configuration: the nine-dimension
// airframe search space with the standard safety thresholds.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		TargetApogeeM: 1524.0, // 5000 ft
		Dimensions: []Dimension{
			{Name: "body_length_m", Min: 1.0, Max: 2.5},
			{Name: "fin_span_m", Min: 0.05, Max: 0.25},
			{Name: "fin_root_chord_m", Min: 0.10, Max: 0.40},
			{Name: "fin_tip_chord_m", Min: 0.04, Max: 0.30},
			{Name: "fin_sweep_m", Min: 0.0, Max: 0.60},
			{Name: "nose_ballast_kg", Min: 0.0, Max: 1.0},
			{Name: "avbay_offset_m", Min: 0.0, Max: 0.8},
			{Name: "fin_aft_offset_m", Min: 0.0, Max: 0.5},
			{Name: "nose_length_m", Min: 0.2, Max: 0.7},
		},
		Constraints: Constraints{
			StabilityFloorCal:   1.5,
			StabilityCeilAvgCal: 3.0,
			RailVelocityMinMS:   13.0,
			SweepMaxChordRatio:  2.0,
			TipChordMaxRatio:    0.75,
		},
		Penalties: Penalties{
			PrimaryGain:       1e4,
			FenceWall:         1e7,
			FailureLoss:       1e16,
			OverstabilityGain: 1e3,
			StructuralGain:    1e4,
		},
		Surrogate: SurrogateSearch{
			Budget:         48,
			InitSamples:    10,
			Candidates:     256,
			Workers:        4,
			LengthScale:    0.2,
			SignalVariance: 1.0,
			NoiseVariance:  1e-6,
			Seed:           0,
		},
		Simplex: SimplexRefine{
			Alpha:         1.0,
			Gamma:         2.0,
			Rho:           0.5,
			Sigma:         0.5,
			Tolerance:     1e-3,
			InitStepFrac:  0.05,
			MaxIterations: 200,
		},
		Simulator: Simulator{
			Endpoint: "http://localhost:8080",
			TimeoutS: 120,
		},
	}
}
