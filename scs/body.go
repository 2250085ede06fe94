package scs

import (
	"fmt"
)

/// Advances a body's speeds by one step.
type VelocityIntegrator func(body *Body, damping, dt float64)

/// Advances a body's angle and travel by one step.
type PositionIntegrator func(body *Body, dt float64)

// Body is a rigid element of the drivetrain. It spins about its shaft and may
// carry a mass that travels along the drive axis.
type Body struct {
	id int

	integrateVelocity VelocityIntegrator
	integratePosition PositionIntegrator

	// translating mass and its inverse
	m     float64
	m_inv float64

	// moment of inertia about the shaft and its inverse
	i     float64
	i_inv float64

	// travel, speed and force along the drive axis
	x float64
	v float64
	f float64

	// shaft angle (radians), angular velocity, torque
	a float64
	w float64
	t float64

	UserData interface{}

	space *Space

	constraints []*Constraint
}

func (b Body) String() string {
	return fmt.Sprintf("Body %d (m=%g i=%g w=%g)", b.id, b.m, b.i, b.w)
}

var nextBodyID int

func NewBody(mass, moment float64) *Body {
	body := &Body{
		id:                nextBodyID,
		integrateVelocity: IntegrateVelocity,
		integratePosition: IntegratePosition,
	}
	nextBodyID++

	body.SetMass(mass)
	body.SetMoment(moment)
	return body
}

func (body *Body) Mass() float64 {
	return body.m
}

func (body *Body) SetMass(mass float64) {
	assert(mass > 0, "Mass must be positive")
	body.m = mass
	body.m_inv = 1 / mass
}

func (body *Body) Moment() float64 {
	return body.i
}

func (body *Body) SetMoment(moment float64) {
	assert(moment > 0, "Moment of inertia must be positive")
	body.i = moment
	body.i_inv = 1 / moment
}

func (body *Body) Travel() float64 {
	return body.x
}

func (body *Body) SetTravel(x float64) {
	body.x = x
}

func (body *Body) Velocity() float64 {
	return body.v
}

func (body *Body) SetVelocity(v float64) {
	body.v = v
}

// Momentum is the linear momentum m*v along the drive axis.
func (body *Body) Momentum() float64 {
	return body.m * body.v
}

func (body *Body) Force() float64 {
	return body.f
}

func (body *Body) SetForce(force float64) {
	body.f = force
}

func (body *Body) ApplyForce(force float64) {
	body.f += force
}

func (body *Body) Angle() float64 {
	return body.a
}

func (body *Body) SetAngle(angle float64) {
	body.a = angle
}

func (body *Body) AngularVelocity() float64 {
	return body.w
}

func (body *Body) SetAngularVelocity(w float64) {
	body.w = w
}

func (body *Body) AngularMomentum() float64 {
	return body.i * body.w
}

func (body *Body) Torque() float64 {
	return body.t
}

func (body *Body) SetTorque(torque float64) {
	body.t = torque
}

// ApplyTorque accumulates torque until the next velocity integration.
func (body *Body) ApplyTorque(torque float64) {
	body.t += torque
}

// RotationalEnergy returns 0.5*I*w^2.
func (body *Body) RotationalEnergy() float64 {
	if body.w == 0 {
		return 0
	}
	return 0.5 * body.i * body.w * body.w
}

// KineticEnergy adds the translational energy to RotationalEnergy.
func (body *Body) KineticEnergy() float64 {
	e := body.RotationalEnergy()
	if body.v != 0 {
		e += 0.5 * body.m * body.v * body.v
	}
	return e
}

// IntegrateVelocity is the default velocity integrator. It consumes the
// accumulated force and torque.
func IntegrateVelocity(body *Body, damping, dt float64) {
	assert(body.m > 0 && body.i > 0, "Body's mass and moment must be positive")

	body.v = body.v*damping + body.f*body.m_inv*dt
	body.w = body.w*damping + body.t*body.i_inv*dt

	body.f = 0
	body.t = 0
}

func IntegratePosition(body *Body, dt float64) {
	body.x += body.v * dt
	body.a += body.w * dt
}

func (body *Body) SetVelocityIntegrator(f VelocityIntegrator) {
	body.integrateVelocity = f
}

func (body *Body) SetPositionIntegrator(f PositionIntegrator) {
	body.integratePosition = f
}

func (body *Body) addConstraint(constraint *Constraint) {
	body.constraints = append(body.constraints, constraint)
}

func (body *Body) RemoveConstraint(constraint *Constraint) {
	for i, c := range body.constraints {
		if c != constraint {
			continue
		}
		last := len(body.constraints) - 1
		body.constraints[i] = body.constraints[last]
		body.constraints[last] = nil
		body.constraints = body.constraints[:last]
		return
	}
}

func (body *Body) EachConstraint(f func(*Constraint)) {
	for _, constraint := range body.constraints {
		f(constraint)
	}
}
