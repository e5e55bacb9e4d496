package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/trajectory-planner/model"
)

const (
	// DefaultMaxStep is the largest internal RK4 step, in seconds.
	DefaultMaxStep = 0.05
	// MaxSteps bounds the RK4 steps of a single integration.
	MaxSteps = 1_000_000
)

// IntegrationError reports that the integration produced a non-finite
// state. LastValid is the state at LastValidTime, the start of the step
// that failed; FailedAt is the end of that step.
type IntegrationError struct {
	LastValid     model.StateVector
	LastValidTime float64
	FailedAt      float64
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("non-finite state at t=%gs (last valid state at t=%gs: x=%g y=%g vx=%g vy=%g)",
		e.FailedAt, e.LastValidTime, e.LastValid.X, e.LastValid.Y, e.LastValid.VX, e.LastValid.VY)
}

// Integrator advances the equations of motion with fixed-step RK4 and
// reports the state on a uniform output grid. Each output interval is split
// into equal sub-steps no longer than MaxStep, so the accuracy is governed
// by MaxStep and not by the number of output samples.
type Integrator struct {
	MaxStep float64
}

// NewIntegrator returns an Integrator; a non-positive maxStep selects
// DefaultMaxStep.
func NewIntegrator(maxStep float64) Integrator {
	if maxStep <= 0 || math.IsNaN(maxStep) {
		maxStep = DefaultMaxStep
	}
	return Integrator{MaxStep: maxStep}
}

// Integrate propagates s0 from t0 to t1 and returns n samples spanning
// [t0, t1] inclusive. The first sample is s0 at t0 and the last is at t1
// exactly. On an IntegrationError the samples computed so far are returned
// alongside the error.
func (in Integrator) Integrate(s0 model.StateVector, t0, t1 float64, m model.PhysicalModel, n int) (model.Trajectory, error) {
	if err := in.checkSpan(s0, t0, t1, n); err != nil {
		return nil, err
	}
	out := make(model.Trajectory, 0, n)
	out = append(out, model.Sample{T: t0, State: s0})
	_, err := in.walk(s0, t0, t1, m, n, func(t float64, s model.StateVector) {
		out = append(out, model.Sample{T: t, State: s})
	})
	return out, err
}

// Final propagates s0 over the same grid Integrate would use for n samples
// and returns only the state at t1.
func (in Integrator) Final(s0 model.StateVector, t0, t1 float64, m model.PhysicalModel, n int) (model.StateVector, error) {
	if err := in.checkSpan(s0, t0, t1, n); err != nil {
		return model.StateVector{}, err
	}
	return in.walk(s0, t0, t1, m, n, nil)
}

// Steps returns the number of RK4 steps an integration over [t0, t1] with
// n samples takes. The count is a float so oversized spans cannot overflow.
func (in Integrator) Steps(t0, t1 float64, n int) float64 {
	if n < 2 {
		return 0
	}
	interval := (t1 - t0) / float64(n-1)
	return float64(n-1) * math.Max(1, math.Ceil(interval/in.maxStep()))
}

// CheckSpan reports whether an integration over [t0, t1] with n samples is
// within the integrator's limits.
func (in Integrator) CheckSpan(t0, t1 float64, n int) error {
	return in.checkSpan(model.StateVector{}, t0, t1, n)
}

func (in Integrator) maxStep() float64 {
	if in.MaxStep <= 0 || math.IsNaN(in.MaxStep) {
		return DefaultMaxStep
	}
	return in.MaxStep
}

func (in Integrator) walk(s0 model.StateVector, t0, t1 float64, m model.PhysicalModel, n int, emit func(float64, model.StateVector)) (model.StateVector, error) {
	interval := (t1 - t0) / float64(n-1)
	substeps := int(math.Max(1, math.Ceil(interval/in.maxStep())))
	h := interval / float64(substeps)

	s := s0
	for i := 1; i < n; i++ {
		// Grid times are computed from t0 rather than accumulated.
		start := t0 + float64(i-1)*interval
		for k := 0; k < substeps; k++ {
			next := rk4Step(s, m, h)
			if !next.IsFinite() {
				tk := start + float64(k)*h
				return s, &IntegrationError{LastValid: s, LastValidTime: tk, FailedAt: tk + h}
			}
			s = next
		}
		if emit != nil {
			t := t0 + float64(i)*interval
			if i == n-1 {
				t = t1
			}
			emit(t, s)
		}
	}
	return s, nil
}

func (in Integrator) checkSpan(s0 model.StateVector, t0, t1 float64, n int) error {
	switch {
	case n < 2:
		return fmt.Errorf("%w: integrate needs at least 2 samples, got %d", model.ErrInvalidProblem, n)
	case n > model.MaxSamples:
		return fmt.Errorf("%w: integrate supports at most %d samples, got %d", model.ErrInvalidProblem, model.MaxSamples, n)
	case math.IsNaN(t0) || math.IsNaN(t1) || math.IsInf(t0, 0) || math.IsInf(t1, 0) || t1 <= t0:
		return fmt.Errorf("%w: integrate needs a finite span with t1 > t0, got [%g, %g]", model.ErrInvalidProblem, t0, t1)
	case !s0.IsFinite():
		return fmt.Errorf("%w: initial state must be finite, got %+v", model.ErrInvalidProblem, s0)
	case in.Steps(t0, t1, n) > MaxSteps:
		return fmt.Errorf("%w: span [%g, %g] needs %.3g steps of at most %gs, limit is %d",
			model.ErrInvalidProblem, t0, t1, in.Steps(t0, t1, n), in.maxStep(), MaxSteps)
	}
	return nil
}
