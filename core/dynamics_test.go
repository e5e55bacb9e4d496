package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/trajectory-planner/model"
)

func TestDerivativeZeroSpeedHasNoDrag(t *testing.T) {
	m := model.DefaultPhysicalModel()
	m.DragCoefficient = 1e300

	d := Derivative(model.StateVector{X: 10, Y: 20}, m)
	want := model.StateVector{VY: -m.Gravity}
	if d != want {
		t.Fatalf("Derivative at rest = %+v, want %+v", d, want)
	}
}

func TestDerivativeDragOpposesVelocity(t *testing.T) {
	m := model.DefaultPhysicalModel()
	s := model.StateVector{VX: 30, VY: -40}

	d := Derivative(s, m)
	if d.X != s.VX || d.Y != s.VY {
		t.Fatalf("position derivative = (%v, %v), want velocity (%v, %v)", d.X, d.Y, s.VX, s.VY)
	}

	// |a_drag| = D(50)/m, directed against (30, -40).
	dragAccel := m.Drag(50) / m.Mass
	wantAX := -dragAccel * 30 / 50
	wantAY := -dragAccel*-40/50 - m.Gravity
	if math.Abs(d.VX-wantAX) > 1e-12 || math.Abs(d.VY-wantAY) > 1e-12 {
		t.Fatalf("acceleration = (%v, %v), want (%v, %v)", d.VX, d.VY, wantAX, wantAY)
	}
}

// The drag acceleration scales with v², so it vanishes continuously as the
// speed approaches zero and the explicit zero branch matches the limit.
func TestDerivativeContinuousAtZeroSpeed(t *testing.T) {
	m := model.DefaultPhysicalModel()
	rest := Derivative(model.StateVector{}, m)
	for _, v := range []float64{1e-3, 1e-6, 1e-9} {
		d := Derivative(model.StateVector{VX: v, VY: v}, m)
		if math.Abs(d.VX-rest.VX) > v || math.Abs(d.VY-rest.VY) > v {
			t.Fatalf("speed %g: acceleration (%v, %v) far from rest value (%v, %v)", v, d.VX, d.VY, rest.VX, rest.VY)
		}
	}
}

func TestDerivativeDragFree(t *testing.T) {
	m := model.DefaultPhysicalModel()
	m.DragCoefficient = 0

	d := Derivative(model.StateVector{VX: 100, VY: 100}, m)
	if d.VX != 0 || d.VY != -m.Gravity {
		t.Fatalf("drag-free acceleration = (%v, %v), want (0, %v)", d.VX, d.VY, -m.Gravity)
	}
}
