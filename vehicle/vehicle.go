// Package vehicle holds the read-only vehicle properties the drivetrain is
// reflected through, and the road load acting on the drivetrain body.
package vehicle

import (
	"errors"
	"fmt"
	"math"

	"github.com/elevatorguy/engine-sim/scs"
)

var ErrInvalidParameters = errors.New("invalid vehicle parameters")

type Parameters struct {
	Mass              float64 // kg
	DiffRatio         float64
	TireRadius        float64 // m
	DragCoefficient   float64 // N per (m/s)²
	RollingResistance float64 // N per m/s
}

type Vehicle struct {
	params Parameters
}

func New(params Parameters) (*Vehicle, error) {
	if params.Mass <= 0 || params.DiffRatio <= 0 || params.TireRadius <= 0 {
		return nil, fmt.Errorf("%w: mass, diff ratio and tire radius must be positive", ErrInvalidParameters)
	}
	if params.DragCoefficient < 0 || params.RollingResistance < 0 {
		return nil, fmt.Errorf("%w: resistance coefficients must not be negative", ErrInvalidParameters)
	}
	return &Vehicle{params: params}, nil
}

func (v *Vehicle) Mass() float64 {
	return v.params.Mass
}

func (v *Vehicle) DiffRatio() float64 {
	return v.params.DiffRatio
}

func (v *Vehicle) TireRadius() float64 {
	return v.params.TireRadius
}

// NewRotatingMass creates the drivetrain body with the vehicle mass reflected
// through the differential alone (a 1:1 gear).
func (v *Vehicle) NewRotatingMass() *scs.Body {
	f := v.params.TireRadius / v.params.DiffRatio
	return scs.NewBody(v.params.Mass, v.params.Mass*f*f)
}

// GearingFactor recovers the current wheel radius over total ratio from the
// reflected inertia, I = m·f².
func GearingFactor(rotatingMass *scs.Body) float64 {
	return math.Sqrt(rotatingMass.Moment() / rotatingMass.Mass())
}

// Speed is the linear road speed in m/s implied by the drivetrain body.
func (v *Vehicle) Speed(rotatingMass *scs.Body) float64 {
	return rotatingMass.AngularVelocity() * GearingFactor(rotatingMass)
}

// RoadLoad is the resisting force in N at speed s.
func (v *Vehicle) RoadLoad(s float64) float64 {
	return v.params.DragCoefficient*s*math.Abs(s) + v.params.RollingResistance*s
}

// Update applies the road load, reflected to the drivetrain side, to the body.
func (v *Vehicle) Update(rotatingMass *scs.Body, dt float64) {
	f := GearingFactor(rotatingMass)
	s := rotatingMass.AngularVelocity() * f
	rotatingMass.ApplyTorque(-v.RoadLoad(s) * f)
}
