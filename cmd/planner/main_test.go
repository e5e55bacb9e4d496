package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalsfoundry/trajectory-planner/internal/logging"
)

type cliOutput struct {
	Result struct {
		VX0        float64 `json:"vx0"`
		VY0        float64 `json:"vy0"`
		Residual   float64 `json:"residual"`
		Iterations float64 `json:"iterations"`
		Converged  bool    `json:"converged"`
		Status     string  `json:"status"`
	} `json:"result"`
	Trajectory []struct {
		T float64 `json:"t"`
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"trajectory"`
}

func runCLI(t *testing.T, args ...string) (int, cliOutput) {
	t.Helper()
	var stdout bytes.Buffer
	code := run(context.Background(), args, &stdout, logging.Noop())

	var out cliOutput
	if stdout.Len() > 0 {
		if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
			t.Fatalf("decode output: %v\n%s", err, stdout.String())
		}
	}
	return code, out
}

func TestRunDefaultProblem(t *testing.T) {
	code, out := runCLI(t, "-samples", "200")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if out.Result.Status != "CONVERGED" || !out.Result.Converged {
		t.Fatalf("result = %+v", out.Result)
	}
	if len(out.Trajectory) != 200 {
		t.Fatalf("len(trajectory) = %d, want 200", len(out.Trajectory))
	}
	last := out.Trajectory[len(out.Trajectory)-1]
	if last.T != 20 {
		t.Fatalf("final t = %v, want 20", last.T)
	}
	if miss := math.Hypot(last.X-1000, last.Y-500); miss > 5 {
		t.Fatalf("final position misses target by %.3f m", miss)
	}
}

func TestRunCustomModelSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	models := `[{"name": "moon", "gravity": 1.62, "air_density": 0, "drag_coefficient": 0, "reference_area": 1, "mass": 1}]`
	if err := os.WriteFile(path, []byte(models), 0o600); err != nil {
		t.Fatalf("write models: %v", err)
	}

	code, out := runCLI(t, "-models", path, "-model", "moon", "-xt", "100", "-yt", "0", "-horizon", "10", "-samples", "11", "-summary")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if len(out.Trajectory) != 0 {
		t.Fatalf("trajectory printed with -summary")
	}
	// Drag-free: vx = 10, vy = g*T/2 = 8.1.
	if math.Abs(out.Result.VX0-10) > 0.05 || math.Abs(out.Result.VY0-8.1) > 0.05 {
		t.Fatalf("launch velocity = (%v, %v), want about (10, 8.1)", out.Result.VX0, out.Result.VY0)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown flag", []string{"-bogus"}, 2},
		{"unknown model", []string{"-model", "venus"}, 1},
		{"zero horizon", []string{"-horizon", "0"}, 1},
		{"single sample", []string{"-samples", "1"}, 1},
		{"missing catalog", []string{"-models", "/nonexistent/models.json"}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := runCLI(t, tc.args...)
			if code != tc.code {
				t.Fatalf("exit code = %d, want %d", code, tc.code)
			}
		})
	}
}

func TestRunReportsNonConvergence(t *testing.T) {
	code, out := runCLI(t, "-max-iter", "1", "-summary")
	if code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
	if out.Result.Status != "MAX_ITERATIONS" {
		t.Fatalf("status = %q, want MAX_ITERATIONS", out.Result.Status)
	}
}
