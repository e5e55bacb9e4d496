package core

import (
	"context"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/signalsfoundry/trajectory-planner/model"
	"github.com/signalsfoundry/trajectory-planner/timectrl"
)

// Nelder–Mead coefficients.
const (
	reflectCoeff  = 1.0
	expandCoeff   = 2.0
	contractCoeff = 0.5
	shrinkCoeff   = 0.5

	// Relative and absolute offsets used to build the initial simplex.
	relativeStep = 0.05
	zeroStep     = 0.00025
)

// Optimizer defaults.
const (
	DefaultSeedSpeed         = 50.0 // m/s per axis
	DefaultRelativeTolerance = 1e-3 // fraction of the problem length scale
	DefaultSimplexTolerance  = 1e-6 // m/s
	DefaultMaxIterations     = 1000
)

// Objective maps an initial velocity to a residual.
type Objective func(model.Vec2) float64

// OptimizerConfig controls a ShootingOptimizer. Zero fields take the
// defaults documented on each field.
type OptimizerConfig struct {
	// Seed is the starting velocity. Nil means DefaultSeedSpeed on both axes.
	Seed *model.Vec2
	// InitialStep, when positive, offsets each axis of the initial simplex
	// by a fixed amount instead of 5% of the seed coordinate.
	InitialStep float64
	// ResidualTolerance stops the search once the best residual is below it.
	// Required; callers derive it from the problem length scale.
	ResidualTolerance float64
	// SimplexTolerance stops the search once every vertex lies within it of
	// the best vertex. Default DefaultSimplexTolerance.
	SimplexTolerance float64
	// MaxIterations caps the iteration count. Default DefaultMaxIterations.
	MaxIterations int
	// MaxDuration caps wall time, checked once per iteration. Zero is no cap.
	MaxDuration time.Duration
	// Clock measures MaxDuration. Default timectrl.WallClock.
	Clock timectrl.Clock
	// Penalty marks infeasible residuals: any value at or above it, or any
	// non-finite value, counts as penalized. Default DefaultPenalty.
	Penalty float64
	// OnIteration, if set, observes the best vertex after every iteration.
	OnIteration func(iteration int, best model.Vec2, residual float64)
}

// ShootingOptimizer minimises a residual over the two-dimensional initial
// velocity space with the Nelder–Mead simplex method.
type ShootingOptimizer struct {
	cfg    OptimizerConfig
	status model.OptimizerStatus
}

// NewShootingOptimizer applies defaults to cfg.
func NewShootingOptimizer(cfg OptimizerConfig) *ShootingOptimizer {
	if cfg.Seed == nil {
		cfg.Seed = &model.Vec2{X: DefaultSeedSpeed, Y: DefaultSeedSpeed}
	}
	if cfg.SimplexTolerance <= 0 {
		cfg.SimplexTolerance = DefaultSimplexTolerance
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Penalty <= 0 {
		cfg.Penalty = DefaultPenalty
	}
	if cfg.Clock == nil {
		cfg.Clock = timectrl.WallClock{}
	}
	return &ShootingOptimizer{cfg: cfg, status: model.StatusInitialized}
}

// Status returns the optimizer state; after Minimize it is terminal.
func (o *ShootingOptimizer) Status() model.OptimizerStatus { return o.status }

type vertex struct {
	x []float64
	f float64
}

// Minimize runs the search. It never fails: budget exhaustion, cancellation
// and infeasible regions all return the best vertex found with
// Converged=false.
func (o *ShootingOptimizer) Minimize(ctx context.Context, objective Objective) model.OptimizationResult {
	evaluations := 0
	searching := false
	eval := func(x []float64) float64 {
		if searching && ctx.Err() != nil {
			// Remaining trial points of a cancelled iteration are not flown.
			return math.Inf(1)
		}
		evaluations++
		f := objective(model.Vec2{X: x[0], Y: x[1]})
		if math.IsNaN(f) {
			// NaN does not order; treat it as the worst possible value.
			return math.Inf(1)
		}
		return f
	}

	o.status = model.StatusInitialized
	simplex := o.initialSimplex()
	for i := range simplex {
		simplex[i].f = eval(simplex[i].x)
	}
	sortSimplex(simplex)

	budget := timectrl.NewBudget(o.cfg.MaxIterations, o.cfg.MaxDuration, o.cfg.Clock)
	budget.Start()

	o.status = model.StatusIterating
	searching = true
	iterations := 0
	scratch := newStepScratch(len(simplex[0].x))
	for {
		if o.converged(simplex) {
			o.status = model.StatusConverged
			break
		}
		if budget.Exhausted(ctx, iterations) {
			o.status = model.StatusMaxIterations
			break
		}

		o.iterate(simplex, eval, scratch)
		sortSimplex(simplex)
		iterations++

		if o.cfg.OnIteration != nil {
			o.cfg.OnIteration(iterations, toVec(simplex[0].x), simplex[0].f)
		}
		if ctx.Err() != nil {
			o.status = model.StatusMaxIterations
			break
		}
		if o.allPenalized(simplex) {
			o.status = model.StatusFailed
			break
		}
	}

	best := simplex[0]
	return model.OptimizationResult{
		Velocity:    toVec(best.x),
		Residual:    best.f,
		Iterations:  iterations,
		Evaluations: evaluations,
		Converged:   o.status == model.StatusConverged,
		Status:      o.status,
	}
}

func (o *ShootingOptimizer) initialSimplex() []vertex {
	seed := []float64{o.cfg.Seed.X, o.cfg.Seed.Y}
	simplex := make([]vertex, len(seed)+1)
	simplex[0] = vertex{x: append([]float64(nil), seed...)}
	for axis := range seed {
		x := append([]float64(nil), seed...)
		switch {
		case o.cfg.InitialStep > 0:
			x[axis] += o.cfg.InitialStep
		case x[axis] != 0:
			x[axis] *= 1 + relativeStep
		default:
			x[axis] = zeroStep
		}
		simplex[axis+1] = vertex{x: x}
	}
	return simplex
}

type stepScratch struct {
	centroid, reflected, trial, dir []float64
}

func newStepScratch(n int) *stepScratch {
	return &stepScratch{
		centroid:  make([]float64, n),
		reflected: make([]float64, n),
		trial:     make([]float64, n),
		dir:       make([]float64, n),
	}
}

// iterate performs one Nelder–Mead transformation of a sorted simplex.
// Only the worst vertex is replaced, except on shrink where the best vertex
// stays fixed, so the best value never increases.
func (o *ShootingOptimizer) iterate(simplex []vertex, eval func([]float64) float64, s *stepScratch) {
	n := len(simplex) - 1
	worst := &simplex[n]

	for i := range s.centroid {
		s.centroid[i] = 0
	}
	for _, v := range simplex[:n] {
		floats.Add(s.centroid, v.x)
	}
	floats.Scale(1/float64(n), s.centroid)

	// dir = centroid - worst
	floats.SubTo(s.dir, s.centroid, worst.x)
	floats.AddScaledTo(s.reflected, s.centroid, reflectCoeff, s.dir)
	fr := eval(s.reflected)

	switch {
	case fr < simplex[0].f:
		floats.AddScaledTo(s.trial, s.centroid, expandCoeff, s.dir)
		if fe := eval(s.trial); fe < fr {
			replace(worst, s.trial, fe)
		} else {
			replace(worst, s.reflected, fr)
		}
		return

	case fr < simplex[n-1].f:
		replace(worst, s.reflected, fr)
		return

	case fr < worst.f:
		// Outside contraction, between the centroid and the reflected point.
		floats.AddScaledTo(s.trial, s.centroid, contractCoeff, s.dir)
		if fc := eval(s.trial); fc <= fr {
			replace(worst, s.trial, fc)
			return
		}

	default:
		// Inside contraction, between the centroid and the worst point.
		floats.AddScaledTo(s.trial, s.centroid, -contractCoeff, s.dir)
		if fc := eval(s.trial); fc < worst.f {
			replace(worst, s.trial, fc)
			return
		}
	}

	best := simplex[0].x
	for i := 1; i <= n; i++ {
		// x_i = best + shrink*(x_i - best)
		floats.SubTo(s.dir, simplex[i].x, best)
		floats.AddScaledTo(simplex[i].x, best, shrinkCoeff, s.dir)
		simplex[i].f = eval(simplex[i].x)
	}
}

func (o *ShootingOptimizer) converged(simplex []vertex) bool {
	best := simplex[0]
	if o.penalized(best.f) {
		return false
	}
	if best.f < o.cfg.ResidualTolerance {
		return true
	}
	return extent(simplex) < o.cfg.SimplexTolerance
}

func (o *ShootingOptimizer) penalized(f float64) bool {
	return math.IsInf(f, 0) || math.IsNaN(f) || f >= o.cfg.Penalty
}

func (o *ShootingOptimizer) allPenalized(simplex []vertex) bool {
	for _, v := range simplex {
		if !o.penalized(v.f) {
			return false
		}
	}
	return true
}

// extent is the largest distance of any vertex from the best vertex.
func extent(simplex []vertex) float64 {
	var max float64
	for _, v := range simplex[1:] {
		if d := floats.Distance(v.x, simplex[0].x, 2); d > max {
			max = d
		}
	}
	return max
}

func replace(v *vertex, x []float64, f float64) {
	copy(v.x, x)
	v.f = f
}

func sortSimplex(simplex []vertex) {
	sort.SliceStable(simplex, func(i, j int) bool { return simplex[i].f < simplex[j].f })
}

func toVec(x []float64) model.Vec2 {
	return model.Vec2{X: x[0], Y: x[1]}
}
