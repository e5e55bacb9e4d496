package core

import (
	"errors"

	"github.com/signalsfoundry/trajectory-planner/model"
)

// DefaultPenalty is the residual reported for velocities whose trajectory
// cannot be integrated. It is finite so the optimizer can rank it.
const DefaultPenalty = 1e12

// BoundaryResidual scores a candidate initial velocity by the distance
// between the simulated final position and the target. One residual
// serves one search; it keeps counters and is not safe for concurrent use.
type BoundaryResidual struct {
	initial    model.Vec2
	target     model.Vec2
	horizon    float64
	samples    int
	model      model.PhysicalModel
	integrator Integrator

	// Penalty replaces the distance when integration fails.
	Penalty float64

	evaluations int
	failures    int
	lastFailure *IntegrationError
}

// NewBoundaryResidual binds the residual to one problem, one physical model
// and one integration grid of samples points. Every evaluation reuses them.
func NewBoundaryResidual(p model.BoundaryProblem, m model.PhysicalModel, in Integrator, samples int) *BoundaryResidual {
	if samples < 2 {
		samples = 2
	}
	return &BoundaryResidual{
		initial:    p.Initial,
		target:     p.Target,
		horizon:    p.Horizon,
		samples:    samples,
		model:      m,
		integrator: in,
		Penalty:    DefaultPenalty,
	}
}

// Evaluate returns the non-negative miss distance for initial velocity v.
// Integration failures are absorbed and reported as Penalty.
func (r *BoundaryResidual) Evaluate(v model.Vec2) float64 {
	r.evaluations++
	final, err := r.integrator.Final(model.NewStateVector(r.initial, v), 0, r.horizon, r.model, r.samples)
	if err != nil {
		r.failures++
		var ierr *IntegrationError
		if errors.As(err, &ierr) {
			r.lastFailure = ierr
		}
		return r.Penalty
	}
	return final.Position().DistanceTo(r.target)
}

// Evaluations returns how many times Evaluate has run.
func (r *BoundaryResidual) Evaluations() int { return r.evaluations }

// Failures returns how many evaluations were replaced by the penalty.
func (r *BoundaryResidual) Failures() int { return r.failures }

// LastFailure returns the most recent contained integration error, if any.
func (r *BoundaryResidual) LastFailure() *IntegrationError { return r.lastFailure }
