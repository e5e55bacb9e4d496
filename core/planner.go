package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/trajectory-planner/internal/logging"
	"github.com/signalsfoundry/trajectory-planner/model"
	"github.com/signalsfoundry/trajectory-planner/timectrl"
)

// DefaultEvaluationSamples is the grid the residual integrates on while the
// optimizer searches. The converged velocity is replayed on the problem's
// own grid afterwards.
const DefaultEvaluationSamples = 101

// SolveMetricsRecorder receives per-solve outcomes.
type SolveMetricsRecorder interface {
	ObserveSolve(status string, iterations int, duration time.Duration)
	AddIntegrationFailures(n int)
}

// Planner solves boundary problems for one physical model by shooting:
// it searches the initial velocity with a ShootingOptimizer over a
// BoundaryResidual, then integrates the best velocity once more at the
// requested output resolution.
//
// A Planner holds no per-solve state and may be used from many goroutines.
type Planner struct {
	model       model.PhysicalModel
	integrator  Integrator
	evalSamples int
	penalty     float64
	clock       timectrl.Clock
	log         logging.Logger
	metrics     SolveMetricsRecorder
}

// PlannerOption customises Planner construction.
type PlannerOption func(*Planner)

// WithIntegrator replaces the default integrator.
func WithIntegrator(in Integrator) PlannerOption {
	return func(p *Planner) {
		p.integrator = in
	}
}

// WithEvaluationSamples sets the internal evaluation resolution used by the
// residual during the search. It is capped at the problem's sample count.
func WithEvaluationSamples(n int) PlannerOption {
	return func(p *Planner) {
		if n >= 2 {
			p.evalSamples = n
		}
	}
}

// WithPenalty sets the residual reported for trajectories that fail to integrate.
func WithPenalty(penalty float64) PlannerOption {
	return func(p *Planner) {
		if penalty > 0 {
			p.penalty = penalty
		}
	}
}

// WithClock sets the clock used for time budgets and solve durations.
func WithClock(c timectrl.Clock) PlannerOption {
	return func(p *Planner) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithMetricsRecorder attaches an optional recorder for solve outcomes.
func WithMetricsRecorder(m SolveMetricsRecorder) PlannerOption {
	return func(p *Planner) {
		p.metrics = m
	}
}

// NewPlanner validates the physical model and wires a planner around it.
func NewPlanner(pm model.PhysicalModel, log logging.Logger, opts ...PlannerOption) (*Planner, error) {
	if err := pm.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Noop()
	}
	p := &Planner{
		model:       pm,
		integrator:  NewIntegrator(DefaultMaxStep),
		evalSamples: DefaultEvaluationSamples,
		penalty:     DefaultPenalty,
		clock:       timectrl.WallClock{},
		log:         log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Model returns the physical model the planner was built with.
func (p *Planner) Model() model.PhysicalModel { return p.model }

// EvaluationSamples returns the internal resolution used for a problem
// requesting outputSamples points.
func (p *Planner) EvaluationSamples(outputSamples int) int {
	if outputSamples < p.evalSamples {
		return outputSamples
	}
	return p.evalSamples
}

// Solve finds the initial velocity that carries problem.Initial to
// problem.Target at t = problem.Horizon and returns the trajectory flown
// with it. Only an invalid problem produces an error; a search that does
// not converge is reported through the result.
func (p *Planner) Solve(ctx context.Context, problem model.BoundaryProblem) (model.Trajectory, model.OptimizationResult, error) {
	if err := problem.Validate(); err != nil {
		return nil, model.OptimizationResult{Status: model.StatusInitialized}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	evalSamples := p.EvaluationSamples(problem.Samples)
	for _, n := range []int{evalSamples, problem.Samples} {
		if err := p.integrator.CheckSpan(0, problem.Horizon, n); err != nil {
			return nil, model.OptimizationResult{Status: model.StatusInitialized}, err
		}
	}
	start := p.clock.Now()

	residual := NewBoundaryResidual(problem, p.model, p.integrator, evalSamples)
	residual.Penalty = p.penalty

	opt := NewShootingOptimizer(p.optimizerConfig(problem))
	result := opt.Minimize(ctx, residual.Evaluate)

	traj, err := p.integrator.Integrate(
		model.NewStateVector(problem.Initial, result.Velocity),
		0, problem.Horizon, p.model, problem.Samples,
	)
	if err != nil {
		var ierr *IntegrationError
		if !errors.As(err, &ierr) {
			// Arguments were validated above, so only integration can fail here.
			return nil, result, fmt.Errorf("replay trajectory: %w", err)
		}
		p.log.Warn(ctx, "replay of best velocity did not integrate",
			logging.Float("failed_at", ierr.FailedAt),
			logging.Err(ierr),
		)
		result = replayFailed(result)
	}

	if failures := residual.Failures(); failures > 0 {
		fields := []logging.Field{logging.Int("failures", failures)}
		if last := residual.LastFailure(); last != nil {
			fields = append(fields, logging.Err(last))
		}
		p.log.Debug(ctx, "integration failures contained as penalties", fields...)
	}

	elapsed := p.clock.Now().Sub(start)
	if p.metrics != nil {
		p.metrics.ObserveSolve(result.Status.String(), result.Iterations, elapsed)
		p.metrics.AddIntegrationFailures(residual.Failures())
	}

	p.log.Info(ctx, "solve finished",
		logging.String("status", result.Status.String()),
		logging.Bool("converged", result.Converged),
		logging.Float("vx0", result.Velocity.X),
		logging.Float("vy0", result.Velocity.Y),
		logging.Float("residual", result.Residual),
		logging.Int("iterations", result.Iterations),
		logging.Int("evaluations", result.Evaluations),
		logging.Int("evaluation_samples", evalSamples),
		logging.Duration("elapsed", elapsed),
	)
	return traj, result, nil
}

// replayFailed marks a search result whose best velocity could not be
// flown on the output grid.
func replayFailed(res model.OptimizationResult) model.OptimizationResult {
	res.Converged = false
	res.Status = model.StatusFailed
	return res
}

func (p *Planner) optimizerConfig(problem model.BoundaryProblem) OptimizerConfig {
	tol := problem.ResidualTolerance
	if tol == 0 {
		tol = DefaultRelativeTolerance * problem.LengthScale()
	}
	return OptimizerConfig{
		Seed:              problem.Seed,
		ResidualTolerance: tol,
		SimplexTolerance:  problem.SimplexTolerance,
		MaxIterations:     problem.MaxIterations,
		MaxDuration:       problem.MaxDuration,
		Clock:             p.clock,
		Penalty:           p.penalty,
	}
}
