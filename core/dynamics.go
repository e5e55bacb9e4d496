package core

import "github.com/signalsfoundry/trajectory-planner/model"

// Derivative returns d/dt of the state under gravity and quadratic drag.
// The result is laid out like a StateVector: (dx, dy, dvx, dvy).
func Derivative(s model.StateVector, m model.PhysicalModel) model.StateVector {
	d := model.StateVector{X: s.VX, Y: s.VY, VY: -m.Gravity}

	speed := s.Speed()
	if speed == 0 {
		// At rest there is no drag force and no direction to apply it in.
		return d
	}

	// Drag opposes the velocity: a = -D(v)/m * v̂.
	perUnitVelocity := m.Drag(speed) / m.Mass / speed
	d.VX -= perUnitVelocity * s.VX
	d.VY -= perUnitVelocity * s.VY
	return d
}

// rk4Step advances s by h with the classic fourth-order Runge–Kutta scheme.
func rk4Step(s model.StateVector, m model.PhysicalModel, h float64) model.StateVector {
	k1 := Derivative(s, m)
	k2 := Derivative(offset(s, k1, h/2), m)
	k3 := Derivative(offset(s, k2, h/2), m)
	k4 := Derivative(offset(s, k3, h), m)

	w := h / 6
	return model.StateVector{
		X:  s.X + w*(k1.X+2*k2.X+2*k3.X+k4.X),
		Y:  s.Y + w*(k1.Y+2*k2.Y+2*k3.Y+k4.Y),
		VX: s.VX + w*(k1.VX+2*k2.VX+2*k3.VX+k4.VX),
		VY: s.VY + w*(k1.VY+2*k2.VY+2*k3.VY+k4.VY),
	}
}

// offset returns s + h*d.
func offset(s, d model.StateVector, h float64) model.StateVector {
	return model.StateVector{
		X:  s.X + h*d.X,
		Y:  s.Y + h*d.Y,
		VX: s.VX + h*d.VX,
		VY: s.VY + h*d.VY,
	}
}
