package scs

import "math"

// ClutchConstraint couples the angular velocities of two bodies through a torque
// limited friction coupling. The solver decides the transmitted torque; it never
// exceeds [MinTorque, MaxTorque]. Bounds of [0, 0] leave the bodies decoupled.
type ClutchConstraint struct {
	*Constraint

	MinTorque, MaxTorque float64

	iSum, jAcc float64
	dt         float64
}

func NewClutchConstraint(a, b *Body) *ClutchConstraint {
	clutch := &ClutchConstraint{}
	clutch.Constraint = NewConstraint(clutch, a, b)
	return clutch
}

// SetTorqueBounds sets both bounds at once. Reversed bounds are swapped.
func (clutch *ClutchConstraint) SetTorqueBounds(min, max float64) {
	if min > max {
		min, max = max, min
	}
	clutch.MinTorque = min
	clutch.MaxTorque = max
}

func (clutch *ClutchConstraint) TorqueBounds() (min, max float64) {
	return clutch.MinTorque, clutch.MaxTorque
}

func (clutch *ClutchConstraint) PreStep(dt float64) {
	a := clutch.a
	b := clutch.b

	// moment of inertia coefficient
	clutch.iSum = 1.0 / (a.i_inv + b.i_inv)
	clutch.dt = dt

	// bounds may have moved since the impulse was cached
	clutch.jAcc = Clamp(clutch.jAcc, clutch.MinTorque*dt, clutch.MaxTorque*dt)
}

func (clutch *ClutchConstraint) ApplyCachedImpulse(dt_coef float64) {
	a := clutch.a
	b := clutch.b

	j := clutch.jAcc * dt_coef
	a.w -= j * a.i_inv
	b.w += j * b.i_inv
}

func (clutch *ClutchConstraint) ApplyImpulse(dt float64) {
	a := clutch.a
	b := clutch.b

	// compute relative rotational velocity
	wr := b.w - a.w

	jMin := clutch.MinTorque * dt
	jMax := clutch.MaxTorque * dt

	j := -wr * clutch.iSum
	jOld := clutch.jAcc
	clutch.jAcc = Clamp(jOld+j, jMin, jMax)
	j = clutch.jAcc - jOld

	a.w -= j * a.i_inv
	b.w += j * b.i_inv
}

func (clutch *ClutchConstraint) GetImpulse() float64 {
	return math.Abs(clutch.jAcc)
}

// Torque is the signed torque transmitted to body b during the last step.
func (clutch *ClutchConstraint) Torque() float64 {
	if clutch.dt == 0 {
		return 0
	}
	return clutch.jAcc / clutch.dt
}
