package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidProblem is returned when a BoundaryProblem cannot be solved as posed.
var ErrInvalidProblem = errors.New("invalid boundary problem")

// MaxSamples bounds the output resolution of one problem.
const MaxSamples = 1_000_000

// BoundaryProblem fully specifies one solve: move a point from Initial to
// Target in Horizon seconds, reporting Samples points of the trajectory.
//
// The optional fields select optimizer behaviour; zero values mean the
// planner defaults.
type BoundaryProblem struct {
	Initial Vec2    `json:"initial"`
	Target  Vec2    `json:"target"`
	Horizon float64 `json:"horizon"` // seconds
	Samples int     `json:"samples"` // output resolution, >= 2

	Seed              *Vec2         `json:"seed,omitempty"`               // initial velocity guess, m/s
	ResidualTolerance float64       `json:"residual_tolerance,omitempty"` // metres
	SimplexTolerance  float64       `json:"simplex_tolerance,omitempty"`  // m/s
	MaxIterations     int           `json:"max_iterations,omitempty"`
	MaxDuration       time.Duration `json:"max_duration,omitempty"`
}

// Validate fails fast on problems the planner cannot work with.
func (p BoundaryProblem) Validate() error {
	switch {
	case !isFinite(p.Horizon) || p.Horizon <= 0:
		return fmt.Errorf("%w: horizon must be a positive number of seconds, got %v", ErrInvalidProblem, p.Horizon)
	case p.Samples < 2:
		return fmt.Errorf("%w: sample count must be at least 2, got %d", ErrInvalidProblem, p.Samples)
	case p.Samples > MaxSamples:
		return fmt.Errorf("%w: sample count must not exceed %d, got %d", ErrInvalidProblem, MaxSamples, p.Samples)
	case !p.Initial.IsFinite():
		return fmt.Errorf("%w: initial position must be finite, got %+v", ErrInvalidProblem, p.Initial)
	case !p.Target.IsFinite():
		return fmt.Errorf("%w: target position must be finite, got %+v", ErrInvalidProblem, p.Target)
	case p.Seed != nil && !p.Seed.IsFinite():
		return fmt.Errorf("%w: seed velocity must be finite, got %+v", ErrInvalidProblem, *p.Seed)
	case p.ResidualTolerance < 0 || p.SimplexTolerance < 0:
		return fmt.Errorf("%w: tolerances must be non-negative", ErrInvalidProblem)
	case p.MaxIterations < 0:
		return fmt.Errorf("%w: max iterations must be non-negative, got %d", ErrInvalidProblem, p.MaxIterations)
	case p.MaxDuration < 0:
		return fmt.Errorf("%w: max duration must be non-negative, got %s", ErrInvalidProblem, p.MaxDuration)
	}
	return nil
}

// LengthScale is the straight-line separation of the boundary points,
// floored at one metre so tolerances derived from it stay positive.
func (p BoundaryProblem) LengthScale() float64 {
	d := p.Initial.DistanceTo(p.Target)
	if d < 1 {
		return 1
	}
	return d
}
