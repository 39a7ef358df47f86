package animation

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gps_flyover_video/internal/camera"
	"gps_flyover_video/internal/hrcolor"
	"gps_flyover_video/internal/journey"
	"gps_flyover_video/internal/surface"
	"gps_flyover_video/internal/surface/surfacetest"
	"gps_flyover_video/internal/track"
)

const frame = 100 * time.Millisecond

type fixture struct {
	player   *Player
	camera   *camera.Controller
	surface  *surfacetest.Surface
	clock    *surface.SimClock
	prefetch *surfacetest.Prefetcher
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		surface:  &surfacetest.Surface{},
		clock:    surface.NewSimClock(),
		prefetch: &surfacetest.Prefetcher{},
	}
	env := surface.Env{
		Surface:    f.surface,
		Scheduler:  f.clock,
		Prefetcher: f.prefetch,
		Log:        logger,
	}
	cam, err := camera.New(env, camera.DefaultConfig())
	require.NoError(t, err)
	f.camera = cam

	player, err := NewPlayer(env, cam, opts)
	require.NoError(t, err)
	f.player = player
	return f
}

func plainOptions() Options {
	opts := DefaultOptions()
	opts.Cinematic = false
	return opts
}

// newTrack builds a ~1.1 km northbound track, short enough to get the
// minimum 15s playback duration.
func newTrack(t *testing.T, lat float64, hr func(i int) float64) *track.Track {
	t.Helper()
	raw := make([]track.RawPoint, 21)
	for i := range raw {
		raw[i] = track.RawPoint{
			Lat:          lat + float64(i)*0.0005,
			Lon:          8,
			Elevation:    500,
			HasElevation: true,
		}
		if hr != nil {
			raw[i].HeartRate = hr(i)
		}
	}
	tr, err := track.Build(raw, track.DefaultOptions())
	require.NoError(t, err)
	return tr
}

func TestNewPlayerValidation(t *testing.T) {
	opts := DefaultOptions()
	opts.Speed = 0
	_, err := NewPlayer(surface.Env{}, nil, opts)
	assert.ErrorIs(t, err, ErrInvalidSpeed)

	opts = DefaultOptions()
	opts.Zones = nil
	_, err = NewPlayer(surface.Env{}, nil, opts)
	assert.ErrorIs(t, err, hrcolor.ErrInvalidZones)

	_, err = NewPlayer(surface.Env{}, nil, DefaultOptions())
	assert.ErrorIs(t, err, surface.ErrIncompleteEnv)

	env := surface.Env{Surface: &surfacetest.Surface{}, Scheduler: surface.NewSimClock()}
	_, err = NewPlayer(env, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoCamera)
}

func TestWithoutJourneyIsNoop(t *testing.T) {
	f := newFixture(t, plainOptions())

	f.player.Start()
	f.player.Seek(0.5)
	f.player.Reset()
	f.clock.Frame(frame)

	assert.Equal(t, Idle, f.player.State().Loop)
	assert.Empty(t, f.surface.Calls)
	assert.True(t, f.clock.Idle())
	assert.ErrorIs(t, f.player.LoadJourney(nil), ErrNoJourney)
}

func TestLoadRendersStartAndOverview(t *testing.T) {
	f := newFixture(t, plainOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))

	assert.Equal(t, []string{"camera", "marker", "trail", "transport"}, f.surface.Sequence())
	marker := f.surface.Geometry(surface.SourceMarker)
	require.Len(t, marker.Features, 1)
	assert.Equal(t, 0.0, marker.Features[0].Properties["progress"])
	// the revealed trail at 0 is the degenerate start segment
	trail := f.surface.Geometry(surface.SourceTrail)
	require.Len(t, trail.Features, 1)
	assert.Empty(t, f.surface.Geometry(surface.SourceTransport).Features)

	st := f.player.State()
	assert.Equal(t, Idle, st.Loop)
	assert.False(t, st.IsAnimating)
	assert.Equal(t, 15*time.Second, f.player.Journey().Duration())
}

func TestFrameOrder(t *testing.T) {
	f := newFixture(t, plainOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))
	f.surface.Reset()

	f.player.Start()
	assert.True(t, f.player.State().IsAnimating)
	require.Equal(t, 1, f.clock.PendingFrames())

	f.clock.Frame(frame)
	assert.Equal(t, []string{"marker", "camera", "trail", "transport"}, f.surface.Sequence())
	assert.Equal(t, 1, f.clock.PendingFrames())
}

func TestFirstFrameHasZeroDelta(t *testing.T) {
	f := newFixture(t, plainOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))

	f.clock.Advance(time.Hour)
	f.player.Start()
	f.clock.Frame(frame)
	assert.Equal(t, time.Duration(0), f.player.State().ElapsedTime)

	f.clock.Frame(frame)
	assert.Equal(t, frame, f.player.State().ElapsedTime)
}

func TestSpeedMultiplier(t *testing.T) {
	f := newFixture(t, plainOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))

	assert.ErrorIs(t, f.player.SetAnimationSpeed(0), ErrInvalidSpeed)
	assert.ErrorIs(t, f.player.SetAnimationSpeed(-1), ErrInvalidSpeed)
	require.NoError(t, f.player.SetAnimationSpeed(3))

	f.player.Start()
	f.clock.Frame(frame)
	f.clock.Frame(time.Second)

	st := f.player.State()
	assert.Equal(t, 3*time.Second, st.ElapsedTime)
	assert.Equal(t, 3.0, st.SpeedMultiplier)
	assert.InDelta(t, 0.2, st.Progress, 1e-9)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t, plainOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))

	f.player.Start()
	f.clock.Frame(frame)
	f.clock.Frame(time.Second)
	require.Equal(t, time.Second, f.player.State().ElapsedTime)

	f.player.Pause()
	assert.Equal(t, Paused, f.player.State().Loop)
	assert.False(t, f.player.State().IsAnimating)

	// the frame scheduled before the pause is dropped
	f.surface.Reset()
	f.clock.Frame(5 * time.Second)
	assert.Empty(t, f.surface.Calls)
	assert.Equal(t, 0, f.clock.PendingFrames())

	// resuming does not jump over the paused wall time
	f.player.Start()
	f.clock.Frame(time.Minute)
	assert.Equal(t, time.Second, f.player.State().ElapsedTime)
	f.clock.Frame(time.Second)
	assert.Equal(t, 2*time.Second, f.player.State().ElapsedTime)

	// pausing twice is harmless
	f.player.Pause()
	f.player.Pause()
	assert.Equal(t, Paused, f.player.State().Loop)
}

func TestSeek(t *testing.T) {
	f := newFixture(t, plainOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))

	f.player.Start()
	f.clock.Frame(frame)
	f.clock.Frame(time.Second)

	f.surface.Reset()
	f.player.Seek(0.5)
	assert.Equal(t, []string{"marker", "camera", "trail", "transport"}, f.surface.Sequence())
	st := f.player.State()
	assert.Equal(t, 0.5, st.Progress)
	assert.Equal(t, 7500*time.Millisecond, st.ElapsedTime)

	// the next frame restarts the delta at zero
	f.clock.Frame(10 * time.Second)
	assert.Equal(t, 0.5, f.player.State().Progress)

	f.player.SetAnimationProgress(-3)
	assert.Equal(t, 0.0, f.player.State().Progress)
	f.player.SetAnimationProgress(7)
	assert.Equal(t, 1.0, f.player.State().Progress)
}

func TestFinishZoomsOut(t *testing.T) {
	f := newFixture(t, plainOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))
	cfg := camera.DefaultConfig()

	f.player.Start()
	f.clock.Frame(frame)
	f.clock.Frame(20 * time.Second)

	st := f.player.State()
	assert.Equal(t, Finished, st.Loop)
	assert.Equal(t, 1.0, st.Progress)
	assert.Equal(t, 15*time.Second, st.ElapsedTime)
	assert.Equal(t, 0, f.clock.PendingFrames())

	f.surface.Reset()
	f.clock.Advance(cfg.ZoomOutDelay)
	pose, ok := f.surface.LastCamera()
	require.True(t, ok)
	assert.Equal(t, cfg.ZoomOutDuration, pose.Duration)

	// finished ignores start until reset
	f.player.Start()
	assert.Equal(t, Finished, f.player.State().Loop)
	f.player.Reset()
	assert.Equal(t, Idle, f.player.State().Loop)
	assert.Equal(t, 0.0, f.player.State().Progress)
}

func TestSeekBackFromFinished(t *testing.T) {
	f := newFixture(t, plainOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))

	f.player.Start()
	f.clock.Frame(frame)
	f.clock.Frame(time.Minute)
	require.Equal(t, Finished, f.player.State().Loop)

	f.player.Seek(0.25)
	assert.Equal(t, Idle, f.player.State().Loop)
	snapped, ok := f.surface.LastCamera()
	require.True(t, ok)
	assert.Zero(t, snapped.Duration)
	assert.NotZero(t, snapped.Pitch)

	// the finished run's zoom-out must not pull the view away
	cfg := camera.DefaultConfig()
	f.clock.Advance(cfg.ZoomOutDelay + cfg.ZoomOutDuration)
	pose, ok := f.surface.LastCamera()
	require.True(t, ok)
	assert.Equal(t, snapped, pose)
	assert.Equal(t, 0, f.clock.PendingTimers())

	f.player.Start()
	assert.True(t, f.player.State().IsAnimating)
}

func TestCinematicPreRoll(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))
	cfg := camera.DefaultConfig()

	f.player.Start()
	assert.True(t, f.player.State().IsAnimating)
	assert.Equal(t, 0, f.clock.PendingFrames())
	pose, ok := f.surface.LastCamera()
	require.True(t, ok)
	assert.Equal(t, cfg.CinematicDuration, pose.Duration)

	f.clock.Advance(cfg.CinematicDuration - time.Millisecond)
	assert.Equal(t, 0, f.clock.PendingFrames())
	f.clock.Advance(time.Millisecond)
	assert.Equal(t, 1, f.clock.PendingFrames())

	f.clock.Frame(frame)
	f.clock.Frame(frame)
	assert.Equal(t, frame, f.player.State().ElapsedTime)
}

func TestResetDuringPreRoll(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))

	f.player.Start()
	f.player.Reset()
	assert.Equal(t, Idle, f.player.State().Loop)

	f.clock.Advance(time.Minute)
	assert.Equal(t, 0, f.clock.PendingFrames())
	assert.True(t, f.clock.Idle())
}

func TestPauseDuringPreRoll(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))

	f.player.Start()
	f.player.Pause()
	f.clock.Advance(time.Minute)
	assert.Equal(t, 0, f.clock.PendingFrames())

	// resuming skips the pre-roll
	f.player.Start()
	assert.Equal(t, 1, f.clock.PendingFrames())
}

func TestPrefetchLooksAhead(t *testing.T) {
	f := newFixture(t, plainOptions())
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, nil)))

	f.player.Start()
	f.clock.Frame(frame)
	require.Equal(t, 1, f.prefetch.Count())

	// 2s of 15s ahead of the start
	ahead := f.player.Journey().Sample(2.0 / 15)
	req := f.prefetch.Requests[0]
	assert.InDelta(t, ahead.Lat, req.Center.Lat(), 1e-9)
	assert.InDelta(t, f.camera.State().Zoom, req.Zoom, 1e-9)

	f.clock.Frame(frame)
	assert.Equal(t, 2, f.prefetch.Count())
}

func TestColorModes(t *testing.T) {
	f := newFixture(t, plainOptions())
	hr := func(i int) float64 {
		if i < 10 {
			return 100
		}
		return 180
	}
	require.NoError(t, f.player.LoadTrack(newTrack(t, 46, hr)))
	f.player.Seek(1)

	fixed := f.surface.Geometry(surface.SourceTrail)
	require.Len(t, fixed.Features, 1)
	assert.Equal(t, DefaultOptions().TrailColor, fixed.Features[0].Properties["color"])

	f.player.SetColorMode(ColorHeartRate)
	colored := f.surface.Geometry(surface.SourceTrail)
	require.Len(t, colored.Features, 2)
	zones := hrcolor.ZonesFromMaxHR(hrcolor.DefaultMaxHR)
	assert.Equal(t, zones[hrcolor.ZoneIndex(100, zones)].Color, colored.Features[0].Properties["color"])
	assert.Equal(t, zones[hrcolor.ZoneIndex(180, zones)].Color, colored.Features[1].Properties["color"])

	require.NoError(t, f.player.SetZones([]hrcolor.Zone{{Name: "all", Min: 0, Max: 250, Color: "#000000"}}))
	rezoned := f.surface.Geometry(surface.SourceTrail)
	for _, feat := range rezoned.Features {
		assert.Equal(t, "#000000", feat.Properties["color"])
	}
	assert.Error(t, f.player.SetZones(nil))
}

func TestJourneyWithTransport(t *testing.T) {
	f := newFixture(t, plainOptions())
	j, err := journey.Assemble([]journey.Part{
		{Track: newTrack(t, 46, nil)},
		{Transport: journey.Train},
		{Track: newTrack(t, 47, nil)},
	}, journey.DefaultAssembleOptions())
	require.NoError(t, err)
	require.NoError(t, f.player.LoadJourney(j))

	f.player.Seek(1)
	trail := f.surface.Geometry(surface.SourceTrail)
	transport := f.surface.Geometry(surface.SourceTransport)
	assert.Len(t, trail.Features, 2)
	require.Len(t, transport.Features, 1)
	assert.Equal(t, "train", transport.Features[0].Properties["mode"])
	assert.Equal(t, DefaultOptions().TransportColor, transport.Features[0].Properties["color"])
}

func TestSetFollowPreset(t *testing.T) {
	f := newFixture(t, plainOptions())
	require.NoError(t, f.player.SetFollowPreset("far"))
	assert.Equal(t, "far", f.camera.Preset().Name)
	assert.ErrorIs(t, f.player.SetFollowPreset("nope"), camera.ErrUnknownPreset)
}

func TestParseColorMode(t *testing.T) {
	m, err := ParseColorMode("heartRate")
	require.NoError(t, err)
	assert.Equal(t, ColorHeartRate, m)

	m, err = ParseColorMode("")
	require.NoError(t, err)
	assert.Equal(t, ColorFixed, m)

	_, err = ParseColorMode("rainbow")
	assert.Error(t, err)
}
