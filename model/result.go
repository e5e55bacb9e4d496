package model

// OptimizerStatus is the terminal (or current) state of a shooting search.
type OptimizerStatus int

const (
	StatusInitialized OptimizerStatus = iota
	StatusIterating
	StatusConverged
	// StatusMaxIterations covers both the iteration cap and the time budget.
	StatusMaxIterations
	// StatusFailed means every simplex vertex was penalized for a full iteration.
	StatusFailed
)

func (s OptimizerStatus) String() string {
	switch s {
	case StatusInitialized:
		return "INITIALIZED"
	case StatusIterating:
		return "ITERATING"
	case StatusConverged:
		return "CONVERGED"
	case StatusMaxIterations:
		return "MAX_ITERATIONS"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name.
func (s OptimizerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OptimizationResult summarises a shooting search. Velocity is the best
// initial velocity found, whether or not the search converged.
type OptimizationResult struct {
	Velocity    Vec2    `json:"velocity"`
	Residual    float64 `json:"residual"`
	Iterations  int     `json:"iterations"`
	Evaluations int     `json:"evaluations"`

	// Converged is set when the residual fell below its tolerance or the
	// simplex shrank below its tolerance. The second case stops at a local
	// minimum that may still miss the target, so check Residual as well.
	Converged bool            `json:"converged"`
	Status    OptimizerStatus `json:"status"`
}
