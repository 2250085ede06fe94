// Package scs is a small impulse-based constraint solver for rotating drivetrain
// elements: bodies spinning about parallel shafts coupled by constraints.
package scs

import "math"

type Space struct {
	Iterations uint // must be non-zero

	damping float64

	stamp   uint
	curr_dt float64

	bodies      []*Body
	constraints []*Constraint

	locked int
}

func NewSpace() *Space {
	return &Space{
		Iterations:  10,
		damping:     1.0,
		bodies:      []*Body{},
		constraints: []*Constraint{},
	}
}

func (space *Space) Damping() float64 {
	return space.damping
}

func (space *Space) SetDamping(damping float64) {
	assert(damping >= 0, "Damping must be non-negative")
	space.damping = damping
}

// Stamp is the number of completed steps.
func (space *Space) Stamp() uint {
	return space.stamp
}

func (space *Space) Bodies() []*Body {
	return space.bodies
}

func (space *Space) Constraints() []*Constraint {
	return space.constraints
}

func (space *Space) AddBody(body *Body) *Body {
	assert(body.space == nil, "Body is already added to a space")
	assert(space.locked == 0, "Space is locked")

	space.bodies = append(space.bodies, body)
	body.space = space
	return body
}

func (space *Space) AddConstraint(constraint *Constraint) *Constraint {
	assert(constraint.space == nil, "Constraint is already added to a space")
	assert(constraint.a != nil && constraint.b != nil, "Constraint is missing a body")
	assert(constraint.a.space == space && constraint.b.space == space, "Constraint bodies are not in this space")
	assert(space.locked == 0, "Space is locked")

	constraint.a.addConstraint(constraint)
	constraint.b.addConstraint(constraint)
	space.constraints = append(space.constraints, constraint)
	constraint.space = space
	return constraint
}

func (space *Space) RemoveConstraint(constraint *Constraint) {
	assert(constraint.space == space, "Constraint is not in this space")
	assert(space.locked == 0, "Space is locked")

	for i, c := range space.constraints {
		if c == constraint {
			space.constraints = append(space.constraints[:i], space.constraints[i+1:]...)
			break
		}
	}
	constraint.a.RemoveConstraint(constraint)
	constraint.b.RemoveConstraint(constraint)
	constraint.space = nil
}

func (space *Space) Step(dt float64) {
	if dt == 0 {
		return
	}

	space.stamp++

	prev_dt := space.curr_dt
	space.curr_dt = dt

	bodies := space.bodies
	constraints := space.constraints

	space.Lock()
	{
		for _, body := range bodies {
			body.integratePosition(body, dt)
		}

		// Prestep the constraints.
		for _, constraint := range constraints {
			if constraint.PreSolve != nil {
				constraint.PreSolve(constraint, space)
			}

			constraint.Class.PreStep(dt)
		}

		// Integrate velocities.
		damping := math.Pow(space.damping, dt)
		for _, body := range bodies {
			body.integrateVelocity(body, damping, dt)
		}

		// Apply cached impulses
		var dt_coef float64
		if prev_dt != 0 {
			dt_coef = dt / prev_dt
		}
		for _, constraint := range constraints {
			constraint.Class.ApplyCachedImpulse(dt_coef)
		}

		// Run the impulse solver.
		for i := uint(0); i < space.Iterations; i++ {
			for _, constraint := range constraints {
				constraint.Class.ApplyImpulse(dt)
			}
		}

		// Run the constraint post-solve callbacks
		for _, constraint := range constraints {
			if constraint.PostSolve != nil {
				constraint.PostSolve(constraint, space)
			}
		}
	}
	space.Unlock()
}

func (space *Space) Lock() {
	space.locked++
}

func (space *Space) Unlock() {
	space.locked--
	assert(space.locked >= 0, "Space lock underflow")
}

func (space *Space) IsLocked() bool {
	return space.locked > 0
}
