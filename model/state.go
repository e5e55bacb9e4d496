package model

import "math"

// StateVector is the planar point-mass state: position (m) and velocity (m/s).
type StateVector struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// NewStateVector builds a state from a position and a velocity.
func NewStateVector(pos, vel Vec2) StateVector {
	return StateVector{X: pos.X, Y: pos.Y, VX: vel.X, VY: vel.Y}
}

func (s StateVector) Position() Vec2 { return Vec2{X: s.X, Y: s.Y} }
func (s StateVector) Velocity() Vec2 { return Vec2{X: s.VX, Y: s.VY} }

// Speed returns the magnitude of the velocity.
func (s StateVector) Speed() float64 {
	return math.Hypot(s.VX, s.VY)
}

// IsFinite reports whether every component is finite.
func (s StateVector) IsFinite() bool {
	return isFinite(s.X) && isFinite(s.Y) && isFinite(s.VX) && isFinite(s.VY)
}

// Sample is one point of a Trajectory.
type Sample struct {
	T     float64     `json:"t"`
	State StateVector `json:"state"`
}

// Trajectory is an ordered sequence of samples on a strictly increasing,
// uniform time grid. The first sample is the initial condition.
type Trajectory []Sample

// Final returns the last sample, or the zero Sample for an empty trajectory.
func (tr Trajectory) Final() Sample {
	if len(tr) == 0 {
		return Sample{}
	}
	return tr[len(tr)-1]
}

// Times returns the time grid of the trajectory.
func (tr Trajectory) Times() []float64 {
	out := make([]float64, len(tr))
	for i, s := range tr {
		out[i] = s.T
	}
	return out
}
