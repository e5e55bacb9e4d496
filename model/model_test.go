package model

import (
	"errors"
	"math"
	"testing"
)

func TestPhysicalModelDrag(t *testing.T) {
	m := DefaultPhysicalModel()
	// 0.5 * 1.225 * 0.5 * 1.0 * 10²
	if got, want := m.Drag(10), 30.625; math.Abs(got-want) > 1e-12 {
		t.Fatalf("Drag(10) = %v, want %v", got, want)
	}
	if got := m.Drag(0); got != 0 {
		t.Fatalf("Drag(0) = %v, want 0", got)
	}
}

func TestPhysicalModelValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PhysicalModel)
		wantErr bool
	}{
		{"default", func(*PhysicalModel) {}, false},
		{"drag free", func(m *PhysicalModel) { m.DragCoefficient = 0 }, false},
		{"zero gravity", func(m *PhysicalModel) { m.Gravity = 0 }, false},
		{"negative density", func(m *PhysicalModel) { m.AirDensity = -1 }, true},
		{"zero mass", func(m *PhysicalModel) { m.Mass = 0 }, true},
		{"nan area", func(m *PhysicalModel) { m.ReferenceArea = math.NaN() }, true},
		{"infinite drag", func(m *PhysicalModel) { m.DragCoefficient = math.Inf(1) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DefaultPhysicalModel()
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidModel) {
					t.Fatalf("Validate() = %v, want ErrInvalidModel", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestBoundaryProblemValidate(t *testing.T) {
	valid := BoundaryProblem{
		Initial: Vec2{},
		Target:  Vec2{X: 1000, Y: 500},
		Horizon: 20,
		Samples: 100,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid problem rejected: %v", err)
	}

	nan := math.NaN()
	tests := []struct {
		name   string
		mutate func(*BoundaryProblem)
	}{
		{"zero horizon", func(p *BoundaryProblem) { p.Horizon = 0 }},
		{"negative horizon", func(p *BoundaryProblem) { p.Horizon = -5 }},
		{"nan horizon", func(p *BoundaryProblem) { p.Horizon = nan }},
		{"one sample", func(p *BoundaryProblem) { p.Samples = 1 }},
		{"too many samples", func(p *BoundaryProblem) { p.Samples = MaxSamples + 1 }},
		{"nan target", func(p *BoundaryProblem) { p.Target.X = nan }},
		{"infinite initial", func(p *BoundaryProblem) { p.Initial.Y = math.Inf(-1) }},
		{"nan seed", func(p *BoundaryProblem) { p.Seed = &Vec2{X: nan} }},
		{"negative tolerance", func(p *BoundaryProblem) { p.ResidualTolerance = -1 }},
		{"negative iterations", func(p *BoundaryProblem) { p.MaxIterations = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidProblem) {
				t.Fatalf("Validate() = %v, want ErrInvalidProblem", err)
			}
		})
	}
}

func TestBoundaryProblemLengthScale(t *testing.T) {
	p := BoundaryProblem{Target: Vec2{X: 3, Y: 4}}
	if got := p.LengthScale(); got != 5 {
		t.Fatalf("LengthScale() = %v, want 5", got)
	}
	p.Target = Vec2{}
	if got := p.LengthScale(); got != 1 {
		t.Fatalf("LengthScale() for coincident points = %v, want 1", got)
	}
}

func TestTrajectoryFinal(t *testing.T) {
	var empty Trajectory
	if got := empty.Final(); got != (Sample{}) {
		t.Fatalf("Final() on empty trajectory = %+v", got)
	}
	tr := Trajectory{{T: 0}, {T: 1, State: StateVector{X: 2}}}
	if got := tr.Final(); got.T != 1 || got.State.X != 2 {
		t.Fatalf("Final() = %+v", got)
	}
	if times := tr.Times(); len(times) != 2 || times[1] != 1 {
		t.Fatalf("Times() = %v", times)
	}
}

func TestOptimizerStatusString(t *testing.T) {
	want := map[OptimizerStatus]string{
		StatusInitialized:   "INITIALIZED",
		StatusIterating:     "ITERATING",
		StatusConverged:     "CONVERGED",
		StatusMaxIterations: "MAX_ITERATIONS",
		StatusFailed:        "FAILED",
		OptimizerStatus(42): "UNKNOWN",
	}
	for s, name := range want {
		if s.String() != name {
			t.Fatalf("%d.String() = %q, want %q", int(s), s.String(), name)
		}
	}
}
