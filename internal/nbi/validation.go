package nbi

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/trajectory-planner/kb"
	"github.com/signalsfoundry/trajectory-planner/model"
)

// ErrInvalidRequest is returned for structurally malformed solve requests.
var ErrInvalidRequest = errors.New("invalid solve request")

// SolveRequest is the decoded form of a Solve request document.
type SolveRequest struct {
	Model             string
	Problem           model.BoundaryProblem
	IncludeTrajectory bool
}

// RequestFromStruct decodes a Solve request:
//
//	{
//	  "model": "default",                       // optional catalog name
//	  "initial": {"x": 0, "y": 0},              // optional, defaults to origin
//	  "target": {"x": 1000, "y": 500},          // required
//	  "horizon": 20,                            // required, seconds
//	  "samples": 1000,                          // required, >= 2
//	  "seed": {"x": 50, "y": 50},               // optional, m/s
//	  "residual_tolerance": 1.0,                // optional, metres
//	  "simplex_tolerance": 1e-6,                // optional, m/s
//	  "max_iterations": 500,                    // optional
//	  "max_duration_ms": 2000,                  // optional
//	  "include_trajectory": true                // optional, default true
//	}
//
// Semantic checks (positive horizon and the like) are left to
// model.BoundaryProblem.Validate so every entry point shares them.
func RequestFromStruct(in *structpb.Struct) (SolveRequest, error) {
	fields := in.GetFields()
	req := SolveRequest{Model: kb.DefaultModelName, IncludeTrajectory: true}

	if name, ok, err := stringField(fields, "model"); err != nil {
		return req, err
	} else if ok && name != "" {
		req.Model = name
	}

	var err error
	var ok bool
	if req.Problem.Initial, _, err = vecField(fields, "initial"); err != nil {
		return req, err
	}
	if req.Problem.Target, ok, err = vecField(fields, "target"); err != nil {
		return req, err
	} else if !ok {
		return req, fmt.Errorf("%w: target is required", ErrInvalidRequest)
	}
	if req.Problem.Horizon, ok, err = numberField(fields, "horizon"); err != nil {
		return req, err
	} else if !ok {
		return req, fmt.Errorf("%w: horizon is required", ErrInvalidRequest)
	}
	if req.Problem.Samples, ok, err = intField(fields, "samples"); err != nil {
		return req, err
	} else if !ok {
		return req, fmt.Errorf("%w: samples is required", ErrInvalidRequest)
	}

	if seed, ok, err := vecField(fields, "seed"); err != nil {
		return req, err
	} else if ok {
		req.Problem.Seed = &seed
	}
	if req.Problem.ResidualTolerance, _, err = numberField(fields, "residual_tolerance"); err != nil {
		return req, err
	}
	if req.Problem.SimplexTolerance, _, err = numberField(fields, "simplex_tolerance"); err != nil {
		return req, err
	}
	if req.Problem.MaxIterations, _, err = intField(fields, "max_iterations"); err != nil {
		return req, err
	}
	maxMillis, _, err := intField(fields, "max_duration_ms")
	if err != nil {
		return req, err
	}
	req.Problem.MaxDuration = time.Duration(maxMillis) * time.Millisecond

	if include, ok, err := boolField(fields, "include_trajectory"); err != nil {
		return req, err
	} else if ok {
		req.IncludeTrajectory = include
	}
	return req, nil
}

// ResponseToStruct encodes a solve outcome:
//
//	{
//	  "result": {"vx0", "vy0", "residual", "iterations", "evaluations", "converged", "status"},
//	  "trajectory": [{"t", "x", "y", "vx", "vy"}, ...]
//	}
func ResponseToStruct(traj model.Trajectory, res model.OptimizationResult, includeTrajectory bool) (*structpb.Struct, error) {
	out := map[string]interface{}{
		"result": map[string]interface{}{
			"vx0":         res.Velocity.X,
			"vy0":         res.Velocity.Y,
			"residual":    res.Residual,
			"iterations":  res.Iterations,
			"evaluations": res.Evaluations,
			"converged":   res.Converged,
			"status":      res.Status.String(),
		},
	}
	if includeTrajectory {
		samples := make([]interface{}, 0, len(traj))
		for _, s := range traj {
			samples = append(samples, map[string]interface{}{
				"t":  s.T,
				"x":  s.State.X,
				"y":  s.State.Y,
				"vx": s.State.VX,
				"vy": s.State.VY,
			})
		}
		out["trajectory"] = samples
	}
	return structpb.NewStruct(out)
}

func present(fields map[string]*structpb.Value, key string) (*structpb.Value, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func numberField(fields map[string]*structpb.Value, key string) (float64, bool, error) {
	v, ok := present(fields, key)
	if !ok {
		return 0, false, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber {
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, key)
	}
	return n.NumberValue, true, nil
}

func intField(fields map[string]*structpb.Value, key string) (int, bool, error) {
	f, ok, err := numberField(fields, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidRequest, key, f)
	}
	return int(f), true, nil
}

func stringField(fields map[string]*structpb.Value, key string) (string, bool, error) {
	v, ok := present(fields, key)
	if !ok {
		return "", false, nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", false, fmt.Errorf("%w: %s must be a string", ErrInvalidRequest, key)
	}
	return s.StringValue, true, nil
}

func boolField(fields map[string]*structpb.Value, key string) (bool, bool, error) {
	v, ok := present(fields, key)
	if !ok {
		return false, false, nil
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return false, false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidRequest, key)
	}
	return b.BoolValue, true, nil
}

func vecField(fields map[string]*structpb.Value, key string) (model.Vec2, bool, error) {
	v, ok := present(fields, key)
	if !ok {
		return model.Vec2{}, false, nil
	}
	obj := v.GetStructValue()
	if obj == nil {
		return model.Vec2{}, false, fmt.Errorf("%w: %s must be an object with x and y", ErrInvalidRequest, key)
	}
	x, okX, err := numberField(obj.GetFields(), "x")
	if err != nil {
		return model.Vec2{}, false, fmt.Errorf("%s: %w", key, err)
	}
	y, okY, err := numberField(obj.GetFields(), "y")
	if err != nil {
		return model.Vec2{}, false, fmt.Errorf("%s: %w", key, err)
	}
	if !okX || !okY {
		return model.Vec2{}, false, fmt.Errorf("%w: %s requires both x and y", ErrInvalidRequest, key)
	}
	return model.Vec2{X: x, Y: y}, true, nil
}
