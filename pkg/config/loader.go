package config

import (
	"fmt"
	"os"
)

// maxPrimaryDeviationRatio bounds the normalized apogee deviation used when
// checking the fence-ordering guarantee. A simulated apogee ten times the
// target is already far outside any plausible airframe.
const maxPrimaryDeviationRatio = 10.0

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate performs full validation on the configuration. Any error here is
// fatal at startup: it is cheaper to reject a bad run than to waste simulator
// calls on it.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.TargetApogeeM <= 0 {
		return fmt.Errorf("target_apogee_m must be positive, got %f", cfg.TargetApogeeM)
	}

	if len(cfg.Dimensions) == 0 {
		return fmt.Errorf("at least one dimension must be defined")
	}
	names := make(map[string]bool)
	for i, d := range cfg.Dimensions {
		if d.Name == "" {
			return fmt.Errorf("dimension %d: name cannot be empty", i)
		}
		if names[d.Name] {
			return fmt.Errorf("duplicate dimension name: %s", d.Name)
		}
		names[d.Name] = true
		if d.Min >= d.Max {
			return fmt.Errorf("dimension %s: bounds are degenerate (min %f >= max %f)", d.Name, d.Min, d.Max)
		}
	}

	if err := validateConstraints(&cfg.Constraints); err != nil {
		return fmt.Errorf("constraints validation failed: %w", err)
	}
	if err := validatePenalties(&cfg.Penalties); err != nil {
		return fmt.Errorf("penalties validation failed: %w", err)
	}
	if err := validateSurrogate(&cfg.Surrogate); err != nil {
		return fmt.Errorf("surrogate_search validation failed: %w", err)
	}
	if err := validateSimplex(&cfg.Simplex); err != nil {
		return fmt.Errorf("simplex_refine validation failed: %w", err)
	}
	if cfg.Simulator.TimeoutS <= 0 {
		return fmt.Errorf("simulator validation failed: timeout_s must be positive, got %f", cfg.Simulator.TimeoutS)
	}

	return nil
}

func validateConstraints(c *Constraints) error {
	if c.StabilityFloorCal <= 0 {
		return fmt.Errorf("stability_floor_cal must be positive, got %f", c.StabilityFloorCal)
	}
	if c.StabilityCeilAvgCal <= c.StabilityFloorCal {
		return fmt.Errorf("stability_ceil_avg_cal (%f) must exceed stability_floor_cal (%f)",
			c.StabilityCeilAvgCal, c.StabilityFloorCal)
	}
	if c.RailVelocityMinMS <= 0 {
		return fmt.Errorf("rail_velocity_min_ms must be positive, got %f", c.RailVelocityMinMS)
	}
	if c.SweepMaxChordRatio <= 0 {
		return fmt.Errorf("sweep_max_chord_ratio must be positive, got %f", c.SweepMaxChordRatio)
	}
	if c.TipChordMaxRatio <= 0 {
		return fmt.Errorf("tip_chord_max_ratio must be positive, got %f", c.TipChordMaxRatio)
	}
	return nil
}

// validatePenalties also enforces the ordering guarantee: the smallest
// possible fence penalty (violation depth near zero, FenceWall squared) must
// exceed the largest achievable primary-objective value by a wide margin, and
// the failure loss must in turn dominate realistic fence penalties.
func validatePenalties(p *Penalties) error {
	if p.PrimaryGain <= 0 {
		return fmt.Errorf("primary_gain must be positive, got %g", p.PrimaryGain)
	}
	if p.FenceWall <= 0 {
		return fmt.Errorf("fence_wall must be positive, got %g", p.FenceWall)
	}
	if p.OverstabilityGain < 0 || p.StructuralGain < 0 {
		return fmt.Errorf("penalty gains cannot be negative")
	}

	maxPrimary := p.PrimaryGain * maxPrimaryDeviationRatio * maxPrimaryDeviationRatio
	minFence := p.FenceWall * p.FenceWall
	if minFence < 1e3*maxPrimary {
		return fmt.Errorf("fence_wall %g is too small: its square (%g) must dominate the worst primary objective (%g)",
			p.FenceWall, minFence, maxPrimary)
	}
	if p.FailureLoss < 10*minFence {
		return fmt.Errorf("failure_loss %g must dominate the fence penalty floor (%g)", p.FailureLoss, minFence)
	}
	return nil
}

func validateSurrogate(s *SurrogateSearch) error {
	if s.Budget <= 0 {
		return fmt.Errorf("budget must be positive, got %d", s.Budget)
	}
	if s.InitSamples <= 1 {
		return fmt.Errorf("init_samples must be at least 2, got %d", s.InitSamples)
	}
	if s.InitSamples > s.Budget {
		return fmt.Errorf("init_samples (%d) cannot exceed budget (%d)", s.InitSamples, s.Budget)
	}
	if s.Candidates <= 0 {
		return fmt.Errorf("candidates must be positive, got %d", s.Candidates)
	}
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	if s.LengthScale <= 0 {
		return fmt.Errorf("length_scale must be positive, got %f", s.LengthScale)
	}
	if s.SignalVariance <= 0 {
		return fmt.Errorf("signal_variance must be positive, got %f", s.SignalVariance)
	}
	if s.NoiseVariance <= 0 {
		return fmt.Errorf("noise_variance must be positive, got %g", s.NoiseVariance)
	}
	return nil
}

func validateSimplex(s *SimplexRefine) error {
	if s.Alpha <= 0 {
		return fmt.Errorf("alpha must be positive, got %f", s.Alpha)
	}
	if s.Gamma <= 1 {
		return fmt.Errorf("gamma must exceed 1, got %f", s.Gamma)
	}
	if s.Rho <= 0 || s.Rho >= 1 {
		return fmt.Errorf("rho must be in (0, 1), got %f", s.Rho)
	}
	if s.Sigma <= 0 || s.Sigma >= 1 {
		return fmt.Errorf("sigma must be in (0, 1), got %f", s.Sigma)
	}
	if s.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", s.Tolerance)
	}
	if s.InitStepFrac <= 0 || s.InitStepFrac >= 1 {
		return fmt.Errorf("init_step_frac must be in (0, 1), got %f", s.InitStepFrac)
	}
	if s.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", s.MaxIterations)
	}
	return nil
}
