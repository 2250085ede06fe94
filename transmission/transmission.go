// Package transmission couples an engine's output shaft to the drivetrain
// rotating mass through a pressure-modulated clutch, a discrete gear table and an
// optional continuously variable (sliding disk) mode.
//
// Ratio changes are instantaneous. Whenever the effective ratio changes, the
// vehicle inertia reflected onto the drivetrain body is recomputed and its
// angular velocity rescaled so that rotational kinetic energy is conserved.
//
// A Transmission is not safe for concurrent use. The host serializes Update,
// solver steps and gear or disk changes on one goroutine.
package transmission

import (
	"errors"
	"fmt"
	"math"

	"github.com/elevatorguy/engine-sim/internal/units"
	"github.com/elevatorguy/engine-sim/scs"
)

const (
	Neutral = -1

	defaultDiskMin      = 0.7
	defaultDiskMax      = 3.1
	defaultDiskPosition = 1.0
)

var (
	ErrNotInitialized    = errors.New("transmission not initialized")
	ErrNotAttached       = errors.New("transmission not added to a system")
	ErrAlreadyAttached   = errors.New("transmission already added to a system")
	ErrInvalidParameters = errors.New("invalid transmission parameters")
	ErrDegenerateGearing = errors.New("vehicle gearing yields a non-positive inertia")
)

// Engine is the torque source on the input side of the clutch.
type Engine interface {
	OutputCrankshaft() *scs.Body
	RPM() float64
	Redline() float64
}

// Vehicle supplies the properties the drivetrain inertia is reflected through.
type Vehicle interface {
	Mass() float64
	DiffRatio() float64
	TireRadius() float64
}

// DiskPolicy picks a new disk position from the engine state each slide update.
// It receives the current position and returns the desired one.
type DiskPolicy func(rpm, redline, position float64) float64

// Parameters are consumed once by Initialize. Ratios are ordered from the
// highest (first gear) to the lowest (top gear).
type Parameters struct {
	GearRatios      []float64
	MaxClutchTorque float64
}

type Transmission struct {
	clutch       *scs.ClutchConstraint
	rotatingMass *scs.Body
	vehicle      Vehicle
	engine       Engine

	diskPosition float64
	diskMin      float64
	diskMax      float64

	gear        int
	pendingGear int
	gearRatios  []float64

	// ratio last reflected onto the rotating mass
	appliedRatio float64

	maxClutchTorque float64
	clutchPressure  float64
	maySlide        bool

	// DiskPolicy is nil unless the host installs one.
	DiskPolicy DiskPolicy
}

func New() *Transmission {
	return &Transmission{
		clutch:          scs.NewClutchConstraint(nil, nil),
		gear:            Neutral,
		pendingGear:     Neutral,
		maxClutchTorque: units.Torque(1000, units.FtLb),
		diskPosition:    defaultDiskPosition,
		diskMin:         defaultDiskMin,
		diskMax:         defaultDiskMax,
	}
}

// Initialize copies the gear table and clutch capacity. It may be called again
// to replace the table; an engaged gear outside the new table drops to neutral.
func (t *Transmission) Initialize(params Parameters) error {
	if len(params.GearRatios) == 0 {
		return fmt.Errorf("%w: at least one gear ratio is required", ErrInvalidParameters)
	}
	for i, r := range params.GearRatios {
		if !(r > 0) || math.IsInf(r, 0) {
			return fmt.Errorf("%w: gear %d ratio %v must be positive", ErrInvalidParameters, i, r)
		}
	}
	if !(params.MaxClutchTorque > 0) {
		return fmt.Errorf("%w: max clutch torque %v must be positive", ErrInvalidParameters, params.MaxClutchTorque)
	}

	t.gearRatios = append([]float64(nil), params.GearRatios...)
	t.maxClutchTorque = params.MaxClutchTorque

	if n := len(t.gearRatios); n > 1 {
		t.diskMax = t.gearRatios[0]
		t.diskMin = t.gearRatios[n-1]
	}

	if t.gear >= len(t.gearRatios) {
		t.gear = Neutral
	}
	return nil
}

// AddToSystem binds the clutch between the engine output and the drivetrain
// body and registers it with the space. Both bodies must already be in space.
func (t *Transmission) AddToSystem(space *scs.Space, rotatingMass *scs.Body, vehicle Vehicle, engine Engine) error {
	if t.rotatingMass != nil {
		return ErrAlreadyAttached
	}

	t.rotatingMass = rotatingMass
	t.vehicle = vehicle
	t.engine = engine

	t.clutch.SetBodies(engine.OutputCrankshaft(), rotatingMass)
	space.AddConstraint(t.clutch.Constraint)
	return nil
}

// Update projects clutch pressure onto the clutch torque bounds and, in
// variable mode, re-derives the drivetrain inertia from the disk position.
// dt is unused.
func (t *Transmission) Update(dt float64) error {
	if t.gear == Neutral {
		t.clutch.SetTorqueBounds(0, 0)
	} else {
		limit := t.maxClutchTorque * t.clutchPressure
		t.clutch.SetTorqueBounds(-limit, limit)
	}

	if t.maySlide {
		return t.SlideGear()
	}
	return nil
}

// ChangeGear engages newGear, or neutral for -1. Out of range requests, and
// positive gears while the sliding disk is unlocked, are ignored.
func (t *Transmission) ChangeGear(newGear int) error {
	if len(t.gearRatios) == 0 {
		return ErrNotInitialized
	}
	if t.maySlide && newGear > 0 {
		return nil
	}
	if newGear < Neutral || newGear >= len(t.gearRatios) {
		return nil
	}

	if newGear != Neutral {
		if t.rotatingMass == nil {
			return ErrNotAttached
		}
		if err := t.remap(t.gearRatios[newGear]); err != nil {
			return err
		}
	}

	t.gear = newGear
	return nil
}

// SlideGear applies the ratio selected by the disk position.
func (t *Transmission) SlideGear() error {
	if err := t.ready(); err != nil {
		return err
	}

	rpm := t.engine.RPM()
	redline := t.engine.Redline()
	if t.DiskPolicy != nil {
		if position := t.DiskPolicy(rpm, redline, t.diskPosition); isFinite(position) {
			t.diskPosition = scs.Clamp01(position)
		}
	}

	return t.remap(t.diskRatio())
}

func (t *Transmission) diskRatio() float64 {
	return t.diskMin + scs.Clamp01(t.diskPosition)*(t.diskMax-t.diskMin)
}

// remap reflects the vehicle mass through ratio onto the drivetrain body while
// holding its rotational kinetic energy constant.
func (t *Transmission) remap(ratio float64) error {
	m := t.vehicle.Mass()
	f := t.vehicle.TireRadius() / (t.vehicle.DiffRatio() * ratio)
	newI := m * f * f
	if !(newI > 0) || math.IsInf(newI, 0) {
		return fmt.Errorf("%w: mass %v, factor %v", ErrDegenerateGearing, m, f)
	}

	body := t.rotatingMass
	e := body.RotationalEnergy()
	w := math.Sqrt(2 * e / newI)
	if body.AngularVelocity() < 0 {
		w = -w
	}

	body.SetMoment(newI)
	body.SetVelocity(0)
	body.SetMass(m)
	body.SetAngularVelocity(w)
	t.appliedRatio = ratio
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (t *Transmission) ready() error {
	if len(t.gearRatios) == 0 {
		return ErrNotInitialized
	}
	if t.rotatingMass == nil {
		return ErrNotAttached
	}
	return nil
}

// UnlockSlidingDisk enables variable mode. An engaged gear becomes gear 0,
// with the ratio governed by the disk position.
func (t *Transmission) UnlockSlidingDisk() {
	t.maySlide = true
	if t.gear > Neutral {
		t.gear = 0
	}
}

// LockSlidingDisk returns to discrete mode. The drivetrain keeps the last disk
// ratio until the next gear change.
func (t *Transmission) LockSlidingDisk() {
	t.maySlide = false
}

func (t *Transmission) IsVariable() bool {
	return t.maySlide
}

func (t *Transmission) Gear() int {
	return t.gear
}

// PendingGear is always Neutral; shifts are applied immediately.
func (t *Transmission) PendingGear() int {
	return t.pendingGear
}

func (t *Transmission) GearCount() int {
	return len(t.gearRatios)
}

func (t *Transmission) GearRatio(gear int) float64 {
	return t.gearRatios[gear]
}

func (t *Transmission) GearRatios() []float64 {
	return append([]float64(nil), t.gearRatios...)
}

// EffectiveRatio is the ratio currently reflected onto the drivetrain, or 0 in
// neutral. In variable mode it follows the disk position.
func (t *Transmission) EffectiveRatio() float64 {
	switch {
	case t.gear == Neutral:
		return 0
	case t.maySlide:
		return t.diskRatio()
	default:
		return t.appliedRatio
	}
}

func (t *Transmission) MaxClutchTorque() float64 {
	return t.maxClutchTorque
}

// SetClutchPressure stores pressure as given. Values outside [0, 1] scale the
// torque limit proportionally; a negative pressure yields the same window as its
// magnitude.
func (t *Transmission) SetClutchPressure(pressure float64) {
	t.clutchPressure = pressure
}

func (t *Transmission) ClutchPressure() float64 {
	return t.clutchPressure
}

// SetDiskPosition is ignored while the sliding disk is locked and for
// non-finite positions.
func (t *Transmission) SetDiskPosition(position float64) {
	if t.maySlide && isFinite(position) {
		t.diskPosition = scs.Clamp01(position)
	}
}

func (t *Transmission) DiskPosition() float64 {
	return t.diskPosition
}

func (t *Transmission) DiskBounds() (min, max float64) {
	return t.diskMin, t.diskMax
}

func (t *Transmission) Clutch() *scs.ClutchConstraint {
	return t.clutch
}
