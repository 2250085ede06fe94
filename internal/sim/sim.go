// Package sim steps an engine, clutch, transmission and vehicle through the
// constraint solver on a fixed timestep, driven by a scripted sequence of
// driver inputs.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/elevatorguy/engine-sim/engine"
	"github.com/elevatorguy/engine-sim/internal/storage"
	"github.com/elevatorguy/engine-sim/internal/telemetry"
	"github.com/elevatorguy/engine-sim/scs"
	"github.com/elevatorguy/engine-sim/transmission"
	"github.com/elevatorguy/engine-sim/vehicle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var ErrInvalidConfig = errors.New("invalid simulator config")

// Command is one scripted driver input applied once simulation time reaches At
// seconds. Nil fields are left unchanged.
type Command struct {
	At       float64
	Gear     *int
	Clutch   *float64
	Throttle *float64
	Disk     *float64
	Variable *bool
}

type Config struct {
	StepsPerSecond int
	Iterations     uint
	SampleEvery    int // ticks between telemetry samples, 0 disables sampling
	Script         []Command
}

// Recorder persists shift events.
type Recorder interface {
	RecordShift(event *storage.ShiftEvent) error
}

// Sink receives telemetry samples.
type Sink interface {
	Record(ctx context.Context, s telemetry.Sample) error
}

// Dependencies are the optional collaborators of a Simulator. A nil Recorder
// or Sink disables that output.
type Dependencies struct {
	Logger   zerolog.Logger
	Recorder Recorder
	Sink     Sink
}

// Summary describes the state at the end of a run.
type Summary struct {
	Ticks        int64
	SimTime      float64
	FinalGear    int
	EngineRPM    float64
	VehicleSpeed float64 // m/s
	Shifts       int
	Rejected     int
}

type Simulator struct {
	cfg  Config
	deps Dependencies
	dt   float64

	space        *scs.Space
	engine       *engine.Engine
	vehicle      *vehicle.Vehicle
	rotatingMass *scs.Body
	transmission *transmission.Transmission

	script  []Command
	next    int
	ticks   int64
	simTime float64

	shifts   int
	rejected int

	gearChanges  metric.Int64Counter
	rejectShifts metric.Int64Counter
	engineRPM    metric.Float64Histogram
}

func New(cfg Config, tp transmission.Parameters, ep engine.Parameters, vp vehicle.Parameters, deps Dependencies) (*Simulator, error) {
	if cfg.StepsPerSecond <= 0 {
		return nil, fmt.Errorf("%w: steps per second must be positive", ErrInvalidConfig)
	}
	if cfg.Iterations == 0 {
		return nil, fmt.Errorf("%w: solver iterations must be positive", ErrInvalidConfig)
	}

	eng, err := engine.New(ep)
	if err != nil {
		return nil, err
	}
	veh, err := vehicle.New(vp)
	if err != nil {
		return nil, err
	}

	tr := transmission.New()
	if err := tr.Initialize(tp); err != nil {
		return nil, err
	}

	space := scs.NewSpace()
	space.Iterations = cfg.Iterations

	rotatingMass := veh.NewRotatingMass()
	eng.AddToSpace(space)
	space.AddBody(rotatingMass)
	if err := tr.AddToSystem(space, rotatingMass, veh, eng); err != nil {
		return nil, err
	}

	script := append([]Command(nil), cfg.Script...)
	sort.SliceStable(script, func(i, j int) bool { return script[i].At < script[j].At })

	s := &Simulator{
		cfg:          cfg,
		deps:         deps,
		dt:           1 / float64(cfg.StepsPerSecond),
		space:        space,
		engine:       eng,
		vehicle:      veh,
		rotatingMass: rotatingMass,
		transmission: tr,
		script:       script,
	}

	m := meter()
	s.gearChanges, err = m.Int64Counter(
		"drivetrain.gear.changes",
		metric.WithDescription("Accepted gear change requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gear change counter: %w", err)
	}
	s.rejectShifts, err = m.Int64Counter(
		"drivetrain.gear.rejected",
		metric.WithDescription("Gear change requests that left the gear unchanged"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejected shift counter: %w", err)
	}
	s.engineRPM, err = m.Float64Histogram(
		"drivetrain.engine.rpm",
		metric.WithDescription("Engine speed at each telemetry sample"),
		metric.WithUnit("{rpm}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rpm histogram: %w", err)
	}

	return s, nil
}

// Step advances the simulation by one tick.
func (s *Simulator) Step(ctx context.Context) error {
	if err := s.applyScript(ctx); err != nil {
		return err
	}

	if err := s.transmission.Update(s.dt); err != nil {
		return fmt.Errorf("transmission update: %w", err)
	}
	s.engine.Update(s.dt)
	s.vehicle.Update(s.rotatingMass, s.dt)
	s.space.Step(s.dt)

	s.ticks++
	s.simTime = float64(s.ticks) * s.dt

	if s.cfg.SampleEvery > 0 && s.ticks%int64(s.cfg.SampleEvery) == 0 {
		s.sample(ctx)
	}
	return nil
}

// Run steps until duration of simulated time has elapsed or ctx is done.
func (s *Simulator) Run(ctx context.Context, duration time.Duration) (Summary, error) {
	total := int64(math.Round(duration.Seconds() * float64(s.cfg.StepsPerSecond)))
	s.deps.Logger.Info().
		Int64("ticks", total).
		Float64("dt", s.dt).
		Int("gears", s.transmission.GearCount()).
		Msg("Simulation started")

	for i := int64(0); i < total; i++ {
		select {
		case <-ctx.Done():
			s.deps.Logger.Warn().Int64("ticks", s.ticks).Msg("Simulation interrupted")
			return s.Summary(), ctx.Err()
		default:
		}
		if err := s.Step(ctx); err != nil {
			return s.Summary(), err
		}
	}

	summary := s.Summary()
	s.deps.Logger.Info().
		Int64("ticks", summary.Ticks).
		Int("gear", summary.FinalGear).
		Float64("rpm", summary.EngineRPM).
		Float64("speed", summary.VehicleSpeed).
		Int("shifts", summary.Shifts).
		Msg("Simulation finished")
	return summary, nil
}

// Shift requests a gear change and records its effect on the drivetrain.
func (s *Simulator) Shift(ctx context.Context, gear int) error {
	rm := s.rotatingMass
	from := s.transmission.Gear()
	event := &storage.ShiftEvent{
		SimTime:       s.simTime,
		RequestedGear: gear,
		FromGear:      from,
		EngineRPM:     s.engine.RPM(),
		SpeedBefore:   rm.AngularVelocity(),
		EnergyBefore:  rm.RotationalEnergy(),
	}

	if err := s.transmission.ChangeGear(gear); err != nil {
		return fmt.Errorf("change gear %d: %w", gear, err)
	}

	to := s.transmission.Gear()
	event.ToGear = to
	event.Accepted = to == gear
	event.SpeedAfter = rm.AngularVelocity()
	event.EnergyAfter = rm.RotationalEnergy()
	event.MomentAfter = rm.Moment()

	attrs := metric.WithAttributes(attribute.Int("gear", gear))
	if event.Accepted {
		s.shifts++
		s.gearChanges.Add(ctx, 1, attrs)
		s.deps.Logger.Info().
			Int("from", from).
			Int("to", to).
			Float64("rpm", event.EngineRPM).
			Float64("speedBefore", event.SpeedBefore).
			Float64("speedAfter", event.SpeedAfter).
			Msg("Gear changed")
	} else {
		s.rejected++
		s.rejectShifts.Add(ctx, 1, attrs)
		s.deps.Logger.Debug().
			Int("requested", gear).
			Int("gear", to).
			Bool("variable", s.transmission.IsVariable()).
			Msg("Gear change ignored")
	}

	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.RecordShift(event); err != nil {
			s.deps.Logger.Error().Err(err).Msg("Failed to record shift event")
		}
	}
	return nil
}

func (s *Simulator) applyScript(ctx context.Context) error {
	for s.next < len(s.script) && s.script[s.next].At <= s.simTime {
		cmd := s.script[s.next]
		s.next++

		if cmd.Variable != nil {
			if *cmd.Variable {
				s.transmission.UnlockSlidingDisk()
			} else {
				s.transmission.LockSlidingDisk()
			}
		}
		if cmd.Throttle != nil {
			s.engine.SetThrottle(*cmd.Throttle)
		}
		if cmd.Clutch != nil {
			s.transmission.SetClutchPressure(*cmd.Clutch)
		}
		if cmd.Disk != nil {
			s.transmission.SetDiskPosition(*cmd.Disk)
		}
		if cmd.Gear != nil {
			if err := s.Shift(ctx, *cmd.Gear); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Simulator) sample(ctx context.Context) {
	rpm := s.engine.RPM()
	s.engineRPM.Record(ctx, rpm, metric.WithAttributes(attribute.Int("gear", s.transmission.Gear())))

	if s.deps.Sink == nil {
		return
	}

	clutch := s.transmission.Clutch()
	minTorque, maxTorque := clutch.TorqueBounds()
	err := s.deps.Sink.Record(ctx, telemetry.Sample{
		Time:            time.Now(),
		SimTime:         s.simTime,
		Gear:            s.transmission.Gear(),
		Variable:        s.transmission.IsVariable(),
		Throttle:        s.engine.Throttle(),
		EngineRPM:       rpm,
		DrivetrainSpeed: s.rotatingMass.AngularVelocity(),
		VehicleSpeed:    s.vehicle.Speed(s.rotatingMass),
		ClutchPressure:  s.transmission.ClutchPressure(),
		ClutchTorque:    clutch.Torque(),
		MinTorque:       minTorque,
		MaxTorque:       maxTorque,
		EffectiveRatio:  s.transmission.EffectiveRatio(),
		DiskPosition:    s.transmission.DiskPosition(),
	})
	if err != nil {
		s.deps.Logger.Warn().Err(err).Msg("Failed to record telemetry sample")
	}
}

func (s *Simulator) Summary() Summary {
	return Summary{
		Ticks:        s.ticks,
		SimTime:      s.simTime,
		FinalGear:    s.transmission.Gear(),
		EngineRPM:    s.engine.RPM(),
		VehicleSpeed: s.vehicle.Speed(s.rotatingMass),
		Shifts:       s.shifts,
		Rejected:     s.rejected,
	}
}

func (s *Simulator) Ticks() int64 {
	return s.ticks
}

func (s *Simulator) SimTime() float64 {
	return s.simTime
}

func (s *Simulator) Engine() *engine.Engine {
	return s.engine
}

func (s *Simulator) Vehicle() *vehicle.Vehicle {
	return s.vehicle
}

func (s *Simulator) RotatingMass() *scs.Body {
	return s.rotatingMass
}

func (s *Simulator) Transmission() *transmission.Transmission {
	return s.transmission
}

func (s *Simulator) Space() *scs.Space {
	return s.space
}
