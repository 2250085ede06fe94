package scs

type Constrainer interface {
	PreStep(dt float64)
	ApplyCachedImpulse(dt_coef float64)
	ApplyImpulse(dt float64)
	GetImpulse() float64
}

type ConstraintPreSolveFunc func(*Constraint, *Space)
type ConstraintPostSolveFunc func(*Constraint, *Space)

type Constraint struct {
	Class Constrainer
	space *Space

	a, b *Body

	PreSolve  ConstraintPreSolveFunc
	PostSolve ConstraintPostSolveFunc

	UserData interface{}
}

func NewConstraint(class Constrainer, a, b *Body) *Constraint {
	return &Constraint{
		Class: class,
		a:     a,
		b:     b,
	}
}

func (c *Constraint) BodyA() *Body {
	return c.a
}

func (c *Constraint) BodyB() *Body {
	return c.b
}

// SetBodies rebinds both endpoints. Only valid before the constraint is added to a space.
func (c *Constraint) SetBodies(a, b *Body) {
	assert(c.space == nil, "Cannot rebind a constraint that is already in a space")
	c.a = a
	c.b = b
}

func (c *Constraint) Space() *Space {
	return c.space
}
