package camera

import (
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gps_flyover_video/internal/geo"
	"gps_flyover_video/internal/journey"
	"gps_flyover_video/internal/surface"
	"gps_flyover_video/internal/surface/surfacetest"
	"gps_flyover_video/internal/track"
)

type fixture struct {
	ctrl     *Controller
	surface  *surfacetest.Surface
	clock    *surface.SimClock
	prefetch *surfacetest.Prefetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		surface:  &surfacetest.Surface{},
		clock:    surface.NewSimClock(),
		prefetch: &surfacetest.Prefetcher{},
	}
	ctrl, err := New(surface.Env{
		Surface:    f.surface,
		Scheduler:  f.clock,
		Prefetcher: f.prefetch,
		Log:        logger,
	}, DefaultConfig())
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

// path builds a straight journey of n points moving dLat/dLon per point
// with elevation ele(i).
func path(t *testing.T, n int, dLat, dLon float64, ele func(i int) float64) *journey.Journey {
	t.Helper()
	raw := make([]track.RawPoint, n)
	for i := range raw {
		raw[i] = track.RawPoint{
			Lat:          46 + float64(i)*dLat,
			Lon:          8 + float64(i)*dLon,
			Elevation:    ele(i),
			HasElevation: true,
		}
	}
	tr, err := track.Build(raw, track.DefaultOptions())
	require.NoError(t, err)
	j, err := journey.Single(tr, journey.DefaultAssembleOptions())
	require.NoError(t, err)
	return j
}

func flat(int) float64 { return 0 }

// stalledPath holds still for the first still points, then heads north.
func stalledPath(t *testing.T, n, still int) *journey.Journey {
	t.Helper()
	raw := make([]track.RawPoint, n)
	for i := range raw {
		moved := math.Max(float64(i-still+1), 0)
		raw[i] = track.RawPoint{Lat: 46 + moved*0.001, Lon: 8}
	}
	tr, err := track.Build(raw, track.DefaultOptions())
	require.NoError(t, err)
	j, err := journey.Single(tr, journey.DefaultAssembleOptions())
	require.NoError(t, err)
	return j
}

func TestNoPathIsNoop(t *testing.T) {
	f := newFixture(t)

	called := false
	f.ctrl.Update(0.5, time.Second)
	f.ctrl.Snap(0.5)
	f.ctrl.StartCinematicSequence(func() { called = true })
	f.ctrl.ZoomOutToWholeTrack()
	f.ctrl.Reset()
	f.clock.Advance(time.Minute)

	assert.False(t, called)
	assert.Empty(t, f.surface.Calls)
	assert.Equal(t, 0, f.clock.PendingTimers())
	assert.Equal(t, Target{}, f.ctrl.Target(0.5))
}

func TestTargetBearing(t *testing.T) {
	tests := []struct {
		name       string
		dLat, dLon float64
		expected   float64
	}{
		{"north", 0.001, 0, 0},
		{"east", 0, 0.001, 90},
		{"south", -0.001, 0, 180},
		{"west", 0, -0.001, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ctrl.Load(path(t, 2000, tt.dLat, tt.dLon, flat))
			got := f.ctrl.Target(0.3).Bearing
			assert.InDelta(t, 0, geo.SignedDelta(tt.expected, got), 0.1)
		})
	}
}

func TestTargetBearingAtEndKeepsState(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Load(path(t, 100, 0, 0.001, flat))
	f.ctrl.state.Bearing = 42

	assert.Equal(t, 42.0, f.ctrl.Target(1).Bearing)
}

func TestTerrainRisk(t *testing.T) {
	f := newFixture(t)
	preset := f.ctrl.Preset()

	f.ctrl.Load(path(t, 1000, 0.001, 0, flat))
	low := f.ctrl.Target(0.5)
	assert.Equal(t, 0.0, low.Risk)
	assert.InDelta(t, preset.Zoom, low.Zoom, 1e-9)
	assert.InDelta(t, preset.Pitch, low.Pitch, 1e-9)

	f.ctrl.Load(path(t, 1000, 0.001, 0, func(int) float64 { return 3000 }))
	high := f.ctrl.Target(0.5)
	assert.Equal(t, 1.0, high.Risk)
	assert.Less(t, high.Zoom, low.Zoom)
	assert.Less(t, high.Pitch, low.Pitch)
	assert.GreaterOrEqual(t, high.Zoom, preset.Zoom-DefaultConfig().ZoomEnvelope)
	assert.GreaterOrEqual(t, high.Pitch, preset.Pitch-DefaultConfig().PitchEnvelope)

	// ~10% grade either way, mid elevation ~1100 m so slope drives the risk
	f.ctrl.Load(path(t, 1000, 0.001, 0, func(i int) float64 { return float64(i-400) * 11.1 }))
	ascent := f.ctrl.Target(0.5)
	f.ctrl.Load(path(t, 1000, 0.001, 0, func(i int) float64 { return float64(600-i) * 11.1 }))
	descent := f.ctrl.Target(0.5)

	assert.Greater(t, ascent.Slope, 0.0)
	assert.Less(t, descent.Slope, -DefaultConfig().SharpDescent)
	assert.InDelta(t, ascent.Risk, descent.Risk, 1e-6)
	assert.Less(t, ascent.Risk, 1.0)
	assert.Less(t, ascent.Pitch, descent.Pitch)
}

func TestUpdateSmoothing(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Load(path(t, 1000, 0.001, 0, func(i int) float64 { return float64(i) * 3 }))

	start := f.ctrl.State()
	target := f.ctrl.Target(0.5)
	require.NotEqual(t, start.Zoom, target.Zoom)

	f.ctrl.Update(0.5, 0)
	assert.Equal(t, start.Zoom, f.ctrl.State().Zoom)

	// two half steps equal one full step
	f.ctrl.Update(0.5, 100*time.Millisecond)
	f.ctrl.Update(0.5, 100*time.Millisecond)
	twoSteps := f.ctrl.State()

	f.ctrl.Reset()
	f.ctrl.Update(0.5, 200*time.Millisecond)
	oneStep := f.ctrl.State()

	assert.InDelta(t, oneStep.Zoom, twoSteps.Zoom, 1e-9)
	assert.InDelta(t, oneStep.Pitch, twoSteps.Pitch, 1e-9)

	// pitch is the slowest channel
	zoomFrac := (oneStep.Zoom - start.Zoom) / (target.Zoom - start.Zoom)
	pitchFrac := (oneStep.Pitch - start.Pitch) / (target.Pitch - start.Pitch)
	assert.Greater(t, zoomFrac, pitchFrac)

	pose, ok := f.surface.LastCamera()
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), pose.Duration)
	assert.Equal(t, oneStep.Zoom, pose.Zoom)
}

func TestBearingCapAcrossNorth(t *testing.T) {
	f := newFixture(t)
	// heading ~10 degrees
	f.ctrl.Load(path(t, 1000, 0.001, 0.000236, flat))
	target := f.ctrl.Target(0.5).Bearing
	require.InDelta(t, 10, target, 1)

	maxStep := DefaultConfig().MaxBearingStep
	for _, start := range []float64{350, 359, 300, 200} {
		f.ctrl.state.Bearing = start
		prev := start
		for i := 0; i < 30; i++ {
			f.ctrl.Update(0.5, time.Second)
			cur := f.ctrl.State().Bearing
			delta := geo.SignedDelta(prev, cur)
			assert.LessOrEqual(t, math.Abs(delta), maxStep+1e-9)
			assert.GreaterOrEqual(t, cur, 0.0)
			assert.Less(t, cur, 360.0)
			prev = cur
		}
		assert.InDelta(t, 0, geo.SignedDelta(target, prev), 0.5)
	}

	// 359 -> 1 moves forward through north, never the long way round
	f.ctrl.state.Bearing = 359
	f.ctrl.Update(0.5, 50*time.Millisecond)
	assert.Greater(t, geo.SignedDelta(359, f.ctrl.State().Bearing), 0.0)
}

func TestSnap(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Load(path(t, 1000, 0, 0.001, flat))

	f.ctrl.Snap(0.7)
	target := f.ctrl.Target(0.7)
	assert.Equal(t, target.State, f.ctrl.State())

	pose, _ := f.surface.LastCamera()
	assert.Equal(t, target.Center, pose.Center)
}

func TestCinematicSequence(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Load(path(t, 500, 0.001, 0, flat))
	f.surface.Reset()

	done := 0
	f.ctrl.StartCinematicSequence(func() { done++ })

	pose, ok := f.surface.LastCamera()
	require.True(t, ok)
	assert.Equal(t, DefaultConfig().CinematicDuration, pose.Duration)
	assert.Equal(t, 1, f.prefetch.Count())

	f.clock.Advance(time.Second)
	assert.Equal(t, 0, done)
	f.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, done)
}

func TestResetMidCinematicThenLoad(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Load(path(t, 500, 0.001, 0, func(int) float64 { return 2500 }))

	done := false
	f.ctrl.StartCinematicSequence(func() { done = true })
	f.clock.Advance(time.Second)

	f.ctrl.Reset()
	next := path(t, 500, 0, -0.001, flat)
	f.ctrl.Load(next)
	f.surface.Reset()

	f.clock.Advance(10 * time.Second)
	assert.False(t, done)
	assert.Empty(t, f.surface.Calls)

	fresh := newFixture(t)
	fresh.ctrl.Load(next)
	assert.Equal(t, fresh.ctrl.State(), f.ctrl.State())
	assert.InDelta(t, 270, f.ctrl.State().Bearing, 0.5)
}

func TestReloadAfterResetIgnoresOldBearing(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Load(path(t, 500, 0, 0.001, flat))
	require.InDelta(t, 90, f.ctrl.State().Bearing, 0.5)

	f.ctrl.StartCinematicSequence(func() {})
	f.clock.Advance(time.Second)
	f.ctrl.Reset()

	next := stalledPath(t, 500, 20)
	f.ctrl.Load(next)

	fresh := newFixture(t)
	fresh.ctrl.Load(next)
	assert.Equal(t, fresh.ctrl.State(), f.ctrl.State())
	assert.InDelta(t, 0, f.ctrl.State().Bearing, 0.5)
}

func TestStationaryPathKeepsZeroBearing(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Load(path(t, 500, 0, 0.001, flat))
	f.ctrl.Load(stalledPath(t, 50, 50))
	assert.Equal(t, 0.0, f.ctrl.State().Bearing)
}

func TestZoomOutToWholeTrack(t *testing.T) {
	f := newFixture(t)
	p := path(t, 500, 0.001, 0.001, flat)
	f.ctrl.Load(p)
	f.surface.Reset()

	f.ctrl.ZoomOutToWholeTrack()
	f.clock.Advance(DefaultConfig().ZoomOutDelay - time.Millisecond)
	assert.Empty(t, f.surface.Calls)

	f.clock.Advance(time.Millisecond)
	pose, ok := f.surface.LastCamera()
	require.True(t, ok)
	assert.Equal(t, p.Bounds().Center, pose.Center)
	assert.Equal(t, 0.0, pose.Pitch)
	assert.Equal(t, 0.0, pose.Bearing)
	assert.Equal(t, DefaultConfig().ZoomOutDuration, pose.Duration)
	assert.Less(t, pose.Zoom, f.ctrl.Preset().Zoom)

	f.surface.Reset()
	f.ctrl.ZoomOutToWholeTrack()
	f.ctrl.Reset()
	f.surface.Reset()
	f.clock.Advance(time.Minute)
	assert.Empty(t, f.surface.Calls)
}

func TestSetPreset(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.SetPreset("FAR"))
	assert.Equal(t, "far", f.ctrl.Preset().Name)

	err := f.ctrl.SetPreset("drone")
	assert.ErrorIs(t, err, ErrUnknownPreset)
	assert.Equal(t, "far", f.ctrl.Preset().Name)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		err    error
	}{
		{"default", func(c *Config) {}, nil},
		{"no presets", func(c *Config) { c.Presets = nil }, ErrInvalidConfig},
		{"duplicate preset", func(c *Config) { c.Presets = append(c.Presets, Preset{Name: "Close"}) }, ErrInvalidConfig},
		{"unknown default", func(c *Config) { c.DefaultPreset = "drone" }, ErrUnknownPreset},
		{"weights mismatch", func(c *Config) { c.Weights = c.Weights[:2] }, ErrInvalidConfig},
		{"zero speed", func(c *Config) { c.PitchSpeed = 0 }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestNewNeedsSurfaceAndScheduler(t *testing.T) {
	_, err := New(surface.Env{}, DefaultConfig())
	assert.ErrorIs(t, err, surface.ErrIncompleteEnv)

	_, err = New(surface.Env{Surface: &surfacetest.Surface{}}, DefaultConfig())
	assert.ErrorIs(t, err, surface.ErrIncompleteEnv)

	_, err = New(surface.Env{Surface: &surfacetest.Surface{}, Scheduler: surface.NewSimClock()}, DefaultConfig())
	assert.NoError(t, err)
}
