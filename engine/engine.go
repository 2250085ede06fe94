// Package engine models the torque source that drives the clutch: a single
// crankshaft body accelerated by a throttle-scaled torque curve.
package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/elevatorguy/engine-sim/internal/units"
	"github.com/elevatorguy/engine-sim/scs"
)

var ErrInvalidParameters = errors.New("invalid engine parameters")

// CurvePoint is one sample of the full-throttle torque curve.
type CurvePoint struct {
	RPM    float64 `json:"rpm" mapstructure:"rpm"`
	Torque float64 `json:"torque" mapstructure:"torque"` // N·m
}

type Parameters struct {
	TorqueCurve     []CurvePoint
	IdleRPM         float64
	Redline         float64
	IdleThrottle    float64 // minimum throttle held below idle
	FlywheelInertia float64 // kg·m²
	Friction        float64 // N·m per rad/s
}

type Engine struct {
	params     Parameters
	crankshaft *scs.Body
	throttle   float64
}

func New(params Parameters) (*Engine, error) {
	if params.FlywheelInertia <= 0 {
		return nil, fmt.Errorf("%w: flywheel inertia must be positive", ErrInvalidParameters)
	}
	if params.Redline <= params.IdleRPM {
		return nil, fmt.Errorf("%w: redline %v must exceed idle %v", ErrInvalidParameters, params.Redline, params.IdleRPM)
	}
	if len(params.TorqueCurve) < 2 {
		return nil, fmt.Errorf("%w: torque curve needs at least two points", ErrInvalidParameters)
	}

	curve := make([]CurvePoint, len(params.TorqueCurve))
	copy(curve, params.TorqueCurve)
	sort.Slice(curve, func(i, j int) bool { return curve[i].RPM < curve[j].RPM })
	params.TorqueCurve = curve

	crankshaft := scs.NewBody(1, params.FlywheelInertia)
	crankshaft.SetAngularVelocity(units.AngularVelocity(params.IdleRPM, units.RPM))

	return &Engine{
		params:     params,
		crankshaft: crankshaft,
	}, nil
}

// AddToSpace registers the crankshaft with the solver.
func (e *Engine) AddToSpace(space *scs.Space) {
	space.AddBody(e.crankshaft)
}

func (e *Engine) OutputCrankshaft() *scs.Body {
	return e.crankshaft
}

func (e *Engine) Speed() float64 {
	return e.crankshaft.AngularVelocity()
}

func (e *Engine) RPM() float64 {
	return units.ToRPM(e.crankshaft.AngularVelocity())
}

func (e *Engine) Redline() float64 {
	return e.params.Redline
}

func (e *Engine) IdleRPM() float64 {
	return e.params.IdleRPM
}

func (e *Engine) Throttle() float64 {
	return e.throttle
}

func (e *Engine) SetThrottle(throttle float64) {
	e.throttle = scs.Clamp01(throttle)
}

// TorqueAt interpolates the full-throttle curve. Outside the curve it is zero.
func (e *Engine) TorqueAt(rpm float64) float64 {
	curve := e.params.TorqueCurve
	for i := 0; i < len(curve)-1; i++ {
		lo, hi := curve[i], curve[i+1]
		if rpm >= lo.RPM && rpm <= hi.RPM {
			if hi.RPM == lo.RPM {
				return lo.Torque
			}
			return scs.Lerp(lo.Torque, hi.Torque, (rpm-lo.RPM)/(hi.RPM-lo.RPM))
		}
	}
	return 0
}

// DriveTorque is the torque the engine produces this tick before friction.
func (e *Engine) DriveTorque() float64 {
	rpm := e.RPM()
	if rpm >= e.params.Redline {
		// rev limiter
		return 0
	}

	throttle := e.throttle
	if rpm < e.params.IdleRPM && throttle < e.params.IdleThrottle {
		throttle = e.params.IdleThrottle
	}
	return throttle * e.TorqueAt(rpm)
}

// Update accumulates the net engine torque on the crankshaft for the next solver step.
func (e *Engine) Update(dt float64) {
	torque := e.DriveTorque() - e.params.Friction*e.crankshaft.AngularVelocity()
	e.crankshaft.ApplyTorque(torque)
}
