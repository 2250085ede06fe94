package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/elevatorguy/engine-sim/engine"
	"github.com/elevatorguy/engine-sim/internal/storage"
	"github.com/elevatorguy/engine-sim/internal/telemetry"
	"github.com/elevatorguy/engine-sim/transmission"
	"github.com/elevatorguy/engine-sim/vehicle"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	events []storage.ShiftEvent
}

func (r *fakeRecorder) RecordShift(event *storage.ShiftEvent) error {
	r.events = append(r.events, *event)
	return nil
}

type fakeSink struct {
	samples []telemetry.Sample
}

func (s *fakeSink) Record(_ context.Context, sample telemetry.Sample) error {
	s.samples = append(s.samples, sample)
	return nil
}

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool { return &v }

func testParams() (transmission.Parameters, engine.Parameters, vehicle.Parameters) {
	tp := transmission.Parameters{
		GearRatios:      []float64{3.5, 2.0, 1.3, 1.0},
		MaxClutchTorque: 1350,
	}
	ep := engine.Parameters{
		TorqueCurve: []engine.CurvePoint{
			{RPM: 0, Torque: 120},
			{RPM: 3000, Torque: 260},
			{RPM: 7000, Torque: 200},
		},
		IdleRPM:         800,
		Redline:         6500,
		IdleThrottle:    0.1,
		FlywheelInertia: 0.2,
		Friction:        0.02,
	}
	vp := vehicle.Parameters{
		Mass:              1200,
		DiffRatio:         4,
		TireRadius:        0.3,
		DragCoefficient:   0.4,
		RollingResistance: 12,
	}
	return tp, ep, vp
}

func newTestSimulator(t *testing.T, script []Command) (*Simulator, *fakeRecorder, *fakeSink) {
	t.Helper()
	rec := &fakeRecorder{}
	sink := &fakeSink{}
	tp, ep, vp := testParams()
	s, err := New(Config{
		StepsPerSecond: 100,
		Iterations:     10,
		SampleEvery:    10,
		Script:         script,
	}, tp, ep, vp, Dependencies{
		Logger:   zerolog.Nop(),
		Recorder: rec,
		Sink:     sink,
	})
	require.NoError(t, err)
	return s, rec, sink
}

func TestNew_InvalidConfig(t *testing.T) {
	tp, ep, vp := testParams()

	_, err := New(Config{StepsPerSecond: 0, Iterations: 10}, tp, ep, vp, Dependencies{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{StepsPerSecond: 100, Iterations: 0}, tp, ep, vp, Dependencies{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	tp.GearRatios = nil
	_, err = New(Config{StepsPerSecond: 100, Iterations: 10}, tp, ep, vp, Dependencies{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, transmission.ErrInvalidParameters)
}

func TestRun_NeutralIdle(t *testing.T) {
	s, rec, sink := newTestSimulator(t, nil)

	summary, err := s.Run(context.Background(), time.Second)
	require.NoError(t, err)

	assert.Equal(t, int64(100), summary.Ticks)
	assert.Equal(t, transmission.Neutral, summary.FinalGear)
	assert.Equal(t, 0.0, summary.VehicleSpeed)
	assert.Empty(t, rec.events)
	assert.Len(t, sink.samples, 10)

	min, max := s.Transmission().Clutch().TorqueBounds()
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 0.0, max)
}

func TestRun_TickCountRounds(t *testing.T) {
	s, _, _ := newTestSimulator(t, nil)

	summary, err := s.Run(context.Background(), 290*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(29), summary.Ticks)
}

func TestRun_LaunchAndUpshift(t *testing.T) {
	s, rec, sink := newTestSimulator(t, []Command{
		{At: 1, Gear: intPtr(1)},
		{At: 0, Gear: intPtr(0), Clutch: floatPtr(1), Throttle: floatPtr(1)},
	})

	summary, err := s.Run(context.Background(), 2*time.Second)
	require.NoError(t, err)

	require.Len(t, rec.events, 2)
	assert.Equal(t, 2, summary.Shifts)
	assert.Equal(t, 1, summary.FinalGear)
	assert.Greater(t, summary.VehicleSpeed, 0.0)

	launch := rec.events[0]
	assert.Equal(t, transmission.Neutral, launch.FromGear)
	assert.Equal(t, 0, launch.ToGear)
	assert.True(t, launch.Accepted)

	upshift := rec.events[1]
	assert.Equal(t, 0, upshift.FromGear)
	assert.Equal(t, 1, upshift.ToGear)
	assert.True(t, upshift.Accepted)
	assert.Greater(t, upshift.SpeedBefore, 0.0)
	assert.Greater(t, upshift.SpeedAfter, upshift.SpeedBefore)
	assert.InDelta(t, upshift.EnergyBefore, upshift.EnergyAfter, 1e-6*upshift.EnergyBefore)
	assert.InDelta(t, 1200*math.Pow(0.3/(4*2.0), 2), upshift.MomentAfter, 1e-9)

	last := sink.samples[len(sink.samples)-1]
	assert.Equal(t, 1, last.Gear)
	assert.Equal(t, 2.0, last.EffectiveRatio)
	assert.Equal(t, -1350.0, last.MinTorque)
	assert.Equal(t, 1350.0, last.MaxTorque)
}

func TestShift_Rejected(t *testing.T) {
	s, rec, _ := newTestSimulator(t, []Command{
		{At: 0, Gear: intPtr(9)},
		{At: 0, Variable: boolPtr(true)},
		{At: 0, Gear: intPtr(2)},
	})

	summary, err := s.Run(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, rec.events, 2)
	for _, e := range rec.events {
		assert.False(t, e.Accepted)
		assert.Equal(t, transmission.Neutral, e.ToGear)
	}
	assert.Equal(t, 2, summary.Rejected)
	assert.Equal(t, 0, summary.Shifts)
	assert.True(t, s.Transmission().IsVariable())
}

func TestRun_VariableMode(t *testing.T) {
	s, _, sink := newTestSimulator(t, []Command{
		{At: 0, Gear: intPtr(0), Clutch: floatPtr(1), Throttle: floatPtr(0.5)},
		{At: 0.5, Variable: boolPtr(true), Disk: floatPtr(0.5)},
	})

	_, err := s.Run(context.Background(), time.Second)
	require.NoError(t, err)

	tr := s.Transmission()
	assert.True(t, tr.IsVariable())
	assert.Equal(t, 0, tr.Gear())
	assert.Equal(t, 0.5, tr.DiskPosition())

	lo, hi := tr.DiskBounds()
	ratio := lo + 0.5*(hi-lo)
	assert.InDelta(t, ratio, tr.EffectiveRatio(), 1e-12)

	f := 0.3 / (4 * ratio)
	assert.InDelta(t, 1200*f*f, s.RotatingMass().Moment(), 1e-9)

	last := sink.samples[len(sink.samples)-1]
	assert.True(t, last.Variable)
}

func TestRun_ContextCancelled(t *testing.T) {
	s, _, _ := newTestSimulator(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := s.Run(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), summary.Ticks)
}
