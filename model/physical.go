package model

import (
	"errors"
	"fmt"
)

// ErrInvalidModel is returned when a PhysicalModel carries unusable constants.
var ErrInvalidModel = errors.New("invalid physical model")

// PhysicalModel holds the constants of the drag-affected point-mass model.
// It is a value type and is shared read-only between solves.
type PhysicalModel struct {
	Gravity         float64 `json:"gravity"`          // downward acceleration, m/s²
	AirDensity      float64 `json:"air_density"`      // kg/m³
	DragCoefficient float64 `json:"drag_coefficient"` // dimensionless
	ReferenceArea   float64 `json:"reference_area"`   // m²
	Mass            float64 `json:"mass"`             // kg
}

// DefaultPhysicalModel returns sea-level air, a blunt body of one square
// metre and a 1000 kg point mass.
func DefaultPhysicalModel() PhysicalModel {
	return PhysicalModel{
		Gravity:         9.81,
		AirDensity:      1.225,
		DragCoefficient: 0.5,
		ReferenceArea:   1.0,
		Mass:            1000,
	}
}

// Drag returns the magnitude of the aerodynamic drag force (N) at speed v.
func (m PhysicalModel) Drag(v float64) float64 {
	return 0.5 * m.AirDensity * m.DragCoefficient * m.ReferenceArea * v * v
}

// Validate checks that every constant is finite, that the environmental
// constants are non-negative and that the mass is positive. A zero drag
// coefficient is the drag-free model.
func (m PhysicalModel) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"gravity", m.Gravity},
		{"air_density", m.AirDensity},
		{"drag_coefficient", m.DragCoefficient},
		{"reference_area", m.ReferenceArea},
		{"mass", m.Mass},
	}
	for _, f := range fields {
		if !isFinite(f.value) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidModel, f.name, f.value)
		}
		if f.value < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %v", ErrInvalidModel, f.name, f.value)
		}
	}
	if m.Mass == 0 {
		return fmt.Errorf("%w: mass must be positive", ErrInvalidModel)
	}
	return nil
}
