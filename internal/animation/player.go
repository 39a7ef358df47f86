// Package animation drives playback: it advances elapsed time per frame,
// derives progress through the journey timing and pushes marker, camera
// and trail updates to the surface in that order.
package animation

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"gps_flyover_video/internal/camera"
	"gps_flyover_video/internal/hrcolor"
	"gps_flyover_video/internal/journey"
	"gps_flyover_video/internal/metrics"
	"gps_flyover_video/internal/surface"
	"gps_flyover_video/internal/track"
)

// CameraController is the part of the camera the player drives.
type CameraController interface {
	Load(p camera.Path)
	Reset()
	Cancel()
	Update(progress float64, dt time.Duration)
	Snap(progress float64)
	State() camera.State
	StartCinematicSequence(done func())
	ZoomOutToWholeTrack()
	SetPreset(name string) error
}

type Options struct {
	Speed          float64
	Cinematic      bool
	LookAhead      time.Duration // simulated time ahead used for prefetch
	TrailColor     string
	TransportColor string
	Zones          []hrcolor.Zone
	ChunkSize      int
	ColorMode      ColorMode
	Assemble       journey.AssembleOptions
}

func DefaultOptions() Options {
	return Options{
		Speed:          1,
		Cinematic:      true,
		LookAhead:      2 * time.Second,
		TrailColor:     "#fc4c02",
		TransportColor: "#607d8b",
		Zones:          hrcolor.ZonesFromMaxHR(hrcolor.DefaultMaxHR),
		ChunkSize:      hrcolor.DefaultChunkSize,
		Assemble:       journey.DefaultAssembleOptions(),
	}
}

// Player owns the animation state. Like the camera it runs on the
// scheduler's execution context only.
type Player struct {
	env    surface.Env
	log    logrus.FieldLogger
	camera CameraController
	opts   Options

	journey     *journey.Journey
	progressive []*hrcolor.Progressive

	state     State
	colorMode ColorMode
	progress  float64
	elapsed   time.Duration
	speed     float64

	lastFrame    time.Duration
	hasLastFrame bool
	preRoll      bool

	// epoch drops scheduled frames and pre-roll callbacks on pause, reset
	// and load.
	epoch uint64
}

func NewPlayer(env surface.Env, cam CameraController, opts Options) (*Player, error) {
	if opts.Speed <= 0 {
		return nil, ErrInvalidSpeed
	}
	if err := hrcolor.ValidateZones(opts.Zones); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if cam == nil {
		return nil, ErrNoCamera
	}
	env = env.WithDefaults()
	return &Player{
		env:       env,
		log:       env.Log.WithField("component", "player"),
		camera:    cam,
		opts:      opts,
		speed:     opts.Speed,
		colorMode: opts.ColorMode,
	}, nil
}

func (p *Player) setState(s State) {
	p.state = s
	metrics.AnimationState.Set(float64(s))
}

func (p *Player) State() AnimationState {
	return AnimationState{
		Progress:        p.progress,
		ElapsedTime:     p.elapsed,
		IsAnimating:     p.state == Running,
		SpeedMultiplier: p.speed,
		Loop:            p.state,
	}
}

func (p *Player) Journey() *journey.Journey {
	return p.journey
}

// Sample returns the interpolated position at the current progress.
func (p *Player) Sample() (track.Sample, bool) {
	if p.journey == nil {
		return track.Sample{}, false
	}
	return p.journey.Sample(p.progress), true
}

// LoadTrack wraps a single track into a journey and loads it.
func (p *Player) LoadTrack(t *track.Track) error {
	j, err := journey.Single(t, p.opts.Assemble)
	if err != nil {
		return fmt.Errorf("failed to load track: %w", err)
	}
	return p.LoadJourney(j)
}

// LoadJourney replaces the current journey. Pending frames and cinematic
// timers of the previous journey are invalidated.
func (p *Player) LoadJourney(j *journey.Journey) error {
	if j == nil {
		return ErrNoJourney
	}
	p.epoch++
	p.journey = j
	p.progressive = nil
	p.progress = 0
	p.elapsed = 0
	p.hasLastFrame = false
	p.preRoll = false
	p.setState(Idle)
	p.buildColors()

	p.camera.Load(j)
	p.renderMarker()
	p.renderTrail()

	p.log.WithFields(logrus.Fields{
		"legs":     len(j.Legs()),
		"points":   j.TotalPoints(),
		"distance": fmt.Sprintf("%.2f km", j.TotalDistance()),
		"duration": j.Duration(),
	}).Info("Journey loaded")
	return nil
}

func (p *Player) buildColors() {
	p.progressive = make([]*hrcolor.Progressive, len(p.journey.Legs()))
	for i, leg := range p.journey.Legs() {
		if leg.Kind != journey.KindTrack {
			continue
		}
		colors := hrcolor.GenerateColors(leg.Track, p.opts.Zones)
		p.progressive[i] = hrcolor.NewProgressive(leg.Track, colors, p.opts.ChunkSize)
	}
}

// Start begins or resumes playback. It does nothing without a journey or
// when already running or finished.
func (p *Player) Start() {
	if p.journey == nil || p.state == Running || p.state == Finished {
		return
	}
	resuming := p.state == Paused
	p.setState(Running)
	p.hasLastFrame = false

	if !resuming && p.opts.Cinematic && p.progress < 1e-6 {
		p.preRoll = true
		epoch := p.epoch
		p.log.Debug("Waiting for cinematic pre-roll")
		p.camera.StartCinematicSequence(func() {
			if epoch != p.epoch || p.state != Running {
				return
			}
			p.preRoll = false
			p.hasLastFrame = false
			p.scheduleFrame()
		})
		return
	}
	p.log.WithField("progress", p.progress).Info("Animation started")
	p.scheduleFrame()
}

// Pause stops frame scheduling and any pending pre-roll.
func (p *Player) Pause() {
	if p.state != Running {
		return
	}
	p.epoch++
	p.preRoll = false
	p.hasLastFrame = false
	p.setState(Paused)
	p.log.WithField("progress", p.progress).Debug("Animation paused")
}

// Reset returns to progress 0 and cancels pending camera sequences.
func (p *Player) Reset() {
	p.epoch++
	p.preRoll = false
	p.hasLastFrame = false
	p.progress = 0
	p.elapsed = 0
	p.setState(Idle)
	if p.journey == nil {
		return
	}
	p.camera.Reset()
	p.renderMarker()
	p.renderTrail()
}

// SetAnimationProgress seeks. Elapsed time is recomputed from progress and
// the frame-time anchor is dropped so the next frame starts with dt = 0.
func (p *Player) SetAnimationProgress(progress float64) {
	if p.journey == nil {
		return
	}
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}
	p.progress = progress
	p.elapsed = p.journey.ProgressToElapsed(progress)
	p.hasLastFrame = false
	if p.state == Finished && progress < 1 {
		// the pending zoom-out belongs to the finished run
		p.camera.Cancel()
		p.setState(Idle)
	}

	p.renderMarker()
	p.camera.Snap(progress)
	p.renderTrail()
	metrics.AnimationProgress.Set(progress)
	p.log.WithField("progress", progress).Debug("Seek")
}

// Seek is an alias of SetAnimationProgress.
func (p *Player) Seek(progress float64) {
	p.SetAnimationProgress(progress)
}

func (p *Player) SetAnimationSpeed(multiplier float64) error {
	if multiplier <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, multiplier)
	}
	p.speed = multiplier
	return nil
}

func (p *Player) SetColorMode(mode ColorMode) {
	if mode == p.colorMode {
		return
	}
	p.colorMode = mode
	if p.journey != nil {
		p.renderTrail()
	}
}

// SetZones swaps the heart-rate zone table and rebuilds the coloring.
func (p *Player) SetZones(zones []hrcolor.Zone) error {
	if err := hrcolor.ValidateZones(zones); err != nil {
		return err
	}
	p.opts.Zones = zones
	if p.journey != nil {
		p.buildColors()
		p.renderTrail()
	}
	return nil
}

func (p *Player) SetFollowPreset(name string) error {
	return p.camera.SetPreset(name)
}

func (p *Player) scheduleFrame() {
	epoch := p.epoch
	p.env.Scheduler.RequestFrame(func(now time.Duration) {
		if epoch != p.epoch || p.state != Running {
			return
		}
		p.frame(now)
	})
}

func (p *Player) frame(now time.Duration) {
	var dt time.Duration
	if p.hasLastFrame {
		dt = now - p.lastFrame
		if dt < 0 {
			dt = 0
		}
	}
	p.lastFrame = now
	p.hasLastFrame = true

	total := p.journey.Duration()
	p.elapsed += time.Duration(float64(dt) * p.speed)
	finished := p.elapsed >= total
	if finished {
		p.elapsed = total
		p.progress = 1
	} else {
		p.progress = p.journey.ElapsedToProgress(p.elapsed)
	}

	p.renderMarker()
	p.camera.Update(p.progress, dt)
	p.renderTrail()
	p.prefetchAhead()

	metrics.AnimationFrames.Inc()
	metrics.AnimationProgress.Set(p.progress)

	if finished {
		p.setState(Finished)
		p.camera.ZoomOutToWholeTrack()
		p.log.WithField("elapsed", p.elapsed).Info("Animation finished")
		return
	}
	p.scheduleFrame()
}

// prefetchAhead warms tiles for where the marker will be in LookAhead of
// simulated time. It never touches playback state.
func (p *Player) prefetchAhead() {
	if p.opts.LookAhead <= 0 {
		return
	}
	ahead := p.journey.ElapsedToProgress(p.elapsed + p.opts.LookAhead)
	s := p.journey.Sample(ahead)
	p.env.Prefetcher.Prefetch(s.Coord(), p.camera.State().Zoom)
}

func (p *Player) renderMarker() {
	s := p.journey.Sample(p.progress)
	p.env.Surface.SetGeometry(surface.SourceMarker, surface.PointCollection(s.Coord(), map[string]interface{}{
		"distance":  s.Distance,
		"elevation": s.Elevation,
		"speed":     s.Speed,
		"heartRate": s.HeartRate,
		"progress":  p.progress,
	}))
}

func (p *Player) renderTrail() {
	trail := geojson.NewFeatureCollection()
	transport := geojson.NewFeatureCollection()

	for _, leg := range p.journey.Revealed(p.progress) {
		if leg.Kind == journey.KindTransport {
			for _, f := range surface.LineCollection([]orb.LineString{leg.Coordinates}, map[string]interface{}{
				"color": p.opts.TransportColor,
				"mode":  string(leg.Mode),
			}).Features {
				transport.Append(f)
			}
			continue
		}

		var fc *geojson.FeatureCollection
		if p.colorMode == ColorHeartRate && p.progressive[leg.Leg] != nil {
			fc = hrcolor.FeatureCollection(p.progressive[leg.Leg].At(leg.Local))
		} else {
			fc = surface.LineCollection([]orb.LineString{leg.Coordinates}, map[string]interface{}{
				"color": p.opts.TrailColor,
			})
		}
		for _, f := range fc.Features {
			trail.Append(f)
		}
	}

	p.env.Surface.SetGeometry(surface.SourceTrail, trail)
	p.env.Surface.SetGeometry(surface.SourceTransport, transport)
}
