// Package camera implements the terrain-aware follow-behind camera.
package camera

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"gps_flyover_video/internal/geo"
	"gps_flyover_video/internal/surface"
	"gps_flyover_video/internal/track"
)

// Path is what the camera follows. *journey.Journey implements it.
type Path interface {
	Sample(progress float64) track.Sample
	Bounds() track.Bounds
}

type State struct {
	Zoom    float64
	Pitch   float64
	Bearing float64
}

// Target is a computed camera goal at some progress.
type Target struct {
	State
	Center orb.Point
	Risk   float64
	Slope  float64
}

// Controller owns the camera state. It is not safe for concurrent use and
// must run on the scheduler's execution context.
type Controller struct {
	env    surface.Env
	log    logrus.FieldLogger
	cfg    Config
	preset Preset

	path  Path
	state State

	// epoch invalidates pending timers on Load and Reset.
	epoch   uint64
	cancels []func()
}

func New(env surface.Env, cfg Config) (*Controller, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	env = env.WithDefaults()
	preset, _ := cfg.Preset(cfg.DefaultPreset)
	return &Controller{
		env:    env,
		log:    env.Log.WithField("component", "camera"),
		cfg:    cfg,
		preset: preset,
	}, nil
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Preset() Preset {
	return c.preset
}

func (c *Controller) Loaded() bool {
	return c.path != nil
}

// Load switches to a new path. Pending cinematic timers are invalidated,
// the follow state is set to the path's start pose and the surface shows
// the whole path. Nothing of the previous path's state carries over.
func (c *Controller) Load(p Path) {
	c.invalidate()
	c.path = p
	c.state = State{}
	if p == nil {
		return
	}
	c.state = c.Target(0).State
	c.env.Surface.SetCamera(c.Overview(0))
}

// Reset invalidates pending timers and returns to the start pose.
func (c *Controller) Reset() {
	c.invalidate()
	c.state = State{}
	if c.path == nil {
		return
	}
	c.state = c.Target(0).State
	c.env.Surface.SetCamera(c.Overview(0))
}

// Cancel drops pending cinematic and zoom-out timers and leaves the pose
// where it is.
func (c *Controller) Cancel() {
	c.invalidate()
}

func (c *Controller) invalidate() {
	c.epoch++
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
}

// SetPreset changes the baseline zoom and pitch. Smoothing carries the
// camera over to the new preset.
func (c *Controller) SetPreset(name string) error {
	p, err := c.cfg.Preset(name)
	if err != nil {
		return err
	}
	c.preset = p
	c.log.WithFields(logrus.Fields{"preset": p.Name, "zoom": p.Zoom, "pitch": p.Pitch}).Debug("Camera preset changed")
	return nil
}

// Target computes the camera goal at progress.
func (c *Controller) Target(progress float64) Target {
	if c.path == nil {
		return Target{}
	}
	cur := c.path.Sample(progress)
	t := Target{Center: cur.Coord()}

	t.Bearing = c.targetBearing(cur, progress)
	t.Risk, t.Slope = c.terrainRisk(cur, progress)

	zoom := c.preset.Zoom - t.Risk*c.cfg.RiskZoomDrop
	pitch := c.preset.Pitch - t.Risk*c.cfg.RiskPitchDrop
	if t.Slope > 0 && c.cfg.AscentFullSlope > 0 {
		pitch -= c.cfg.AscentPitchDrop * geo.Clamp(t.Slope/c.cfg.AscentFullSlope, 0, 1)
	} else if t.Slope < -c.cfg.SharpDescent {
		pitch += c.cfg.DescentPitchRaise
	}

	t.Zoom = c.clampZoom(zoom)
	t.Pitch = c.clampPitch(pitch)
	return t
}

func (c *Controller) clampZoom(z float64) float64 {
	z = geo.Clamp(z, c.preset.Zoom-c.cfg.ZoomEnvelope, c.preset.Zoom+c.cfg.ZoomEnvelope)
	return geo.Clamp(z, c.cfg.MinZoom, c.cfg.MaxZoom)
}

func (c *Controller) clampPitch(p float64) float64 {
	p = geo.Clamp(p, c.preset.Pitch-c.cfg.PitchEnvelope, c.preset.Pitch+c.cfg.PitchEnvelope)
	return geo.Clamp(p, c.cfg.MinPitch, c.cfg.MaxPitch)
}

// targetBearing is the weighted circular mean of the bearings from the
// current sample to each look-ahead sample. Look-aheads that coincide with
// the current position are skipped. With none left it points at the next
// position that differs, and keeps the bearing when the rest of the path
// stands still.
func (c *Controller) targetBearing(cur track.Sample, progress float64) float64 {
	var sumSin, sumCos, weight float64
	for i, f := range c.cfg.LookAhead {
		ahead := c.path.Sample(math.Min(progress+f, 1))
		if geo.HaversineKm(cur.Coord(), ahead.Coord()) < 1e-6 {
			continue
		}
		b := geo.Bearing(cur.Coord(), ahead.Coord()) * math.Pi / 180
		sumSin += c.cfg.Weights[i] * math.Sin(b)
		sumCos += c.cfg.Weights[i] * math.Cos(b)
		weight += c.cfg.Weights[i]
	}
	if weight == 0 || (sumSin == 0 && sumCos == 0) {
		if next, ok := c.nextMove(cur, progress); ok {
			return geo.Bearing(cur.Coord(), next.Coord())
		}
		return c.state.Bearing
	}
	return geo.NormalizeBearing(math.Atan2(sumSin, sumCos) * 180 / math.Pi)
}

// nextMove searches ahead of progress, doubling the step from the longest
// look-ahead, for a sample away from cur.
func (c *Controller) nextMove(cur track.Sample, progress float64) (track.Sample, bool) {
	step := c.cfg.LookAhead[len(c.cfg.LookAhead)-1]
	if step <= 0 {
		step = 0.001
	}
	for ; progress < 1; step *= 2 {
		ahead := c.path.Sample(math.Min(progress+step, 1))
		if geo.HaversineKm(cur.Coord(), ahead.Coord()) >= 1e-6 {
			return ahead, true
		}
		if progress+step >= 1 {
			break
		}
	}
	return track.Sample{}, false
}

// terrainRisk returns the [0,1] risk score and the signed slope between the
// look-behind and look-ahead samples.
func (c *Controller) terrainRisk(cur track.Sample, progress float64) (float64, float64) {
	span := c.cfg.LookAhead[len(c.cfg.LookAhead)-1]
	behind := c.path.Sample(math.Max(progress-span, 0))
	ahead := c.path.Sample(math.Min(progress+span, 1))

	slope := 0.0
	if meters := geo.HaversineKm(behind.Coord(), ahead.Coord()) * 1000; meters > 1 {
		slope = (ahead.Elevation - behind.Elevation) / meters
	}

	risk := 0.0
	if c.cfg.RiskElevation > 0 {
		risk = cur.Elevation / c.cfg.RiskElevation
	}
	risk = math.Max(risk, math.Abs(slope)*c.cfg.SlopeRisk)
	return geo.Clamp(risk, 0, 1), slope
}

func smoothing(speed float64, dt time.Duration) float64 {
	return 1 - math.Exp(-speed*dt.Seconds())
}

// Update moves the camera toward the target at progress and pushes the pose
// to the surface. dt is the simulated frame delta.
func (c *Controller) Update(progress float64, dt time.Duration) {
	if c.path == nil {
		return
	}
	if dt < 0 {
		dt = 0
	}
	t := c.Target(progress)

	step := geo.SignedDelta(c.state.Bearing, t.Bearing) * smoothing(c.cfg.BearingSpeed, dt)
	if c.cfg.MaxBearingStep > 0 {
		step = geo.Clamp(step, -c.cfg.MaxBearingStep, c.cfg.MaxBearingStep)
	}
	c.state.Bearing = geo.NormalizeBearing(c.state.Bearing + step)
	c.state.Zoom += (t.Zoom - c.state.Zoom) * smoothing(c.cfg.ZoomSpeed, dt)
	c.state.Pitch += (t.Pitch - c.state.Pitch) * smoothing(c.cfg.PitchSpeed, dt)

	c.env.Surface.SetCamera(c.pose(t.Center, 0))
}

// Snap jumps straight to the target at progress, used after a seek.
func (c *Controller) Snap(progress float64) {
	if c.path == nil {
		return
	}
	t := c.Target(progress)
	c.state = t.State
	c.env.Surface.SetCamera(c.pose(t.Center, 0))
}

func (c *Controller) pose(center orb.Point, d time.Duration) surface.CameraPose {
	return surface.CameraPose{
		Center:   center,
		Zoom:     c.state.Zoom,
		Pitch:    c.state.Pitch,
		Bearing:  c.state.Bearing,
		Duration: d,
	}
}

// Overview is a north-up, top-down pose fitting the whole path.
func (c *Controller) Overview(d time.Duration) surface.CameraPose {
	if c.path == nil {
		return surface.CameraPose{}
	}
	b := c.path.Bounds()
	zoom := geo.FitZoom(b.Bound(), c.cfg.ViewportWidth, c.cfg.ViewportHeight, c.cfg.ViewportPad, c.cfg.TileSize)
	return surface.CameraPose{
		Center:   b.Center,
		Zoom:     geo.Clamp(zoom, c.cfg.MinZoom, c.cfg.MaxZoom),
		Duration: d,
	}
}

// StartCinematicSequence eases from the current view to the start pose and
// calls done when the easing has finished. Reset or Load before then drops
// the callback.
func (c *Controller) StartCinematicSequence(done func()) {
	if c.path == nil {
		return
	}
	t := c.Target(0)
	c.env.Prefetcher.Prefetch(t.Center, t.Zoom)

	c.state = t.State
	c.env.Surface.SetCamera(c.pose(t.Center, c.cfg.CinematicDuration))
	c.log.WithField("duration", c.cfg.CinematicDuration).Debug("Cinematic start sequence")

	epoch := c.epoch
	c.cancels = append(c.cancels, c.env.Scheduler.AfterFunc(c.cfg.CinematicDuration, func() {
		if epoch != c.epoch {
			return
		}
		if done != nil {
			done()
		}
	}))
}

// ZoomOutToWholeTrack eases to the overview after ZoomOutDelay.
func (c *Controller) ZoomOutToWholeTrack() {
	if c.path == nil {
		return
	}
	epoch := c.epoch
	c.cancels = append(c.cancels, c.env.Scheduler.AfterFunc(c.cfg.ZoomOutDelay, func() {
		if epoch != c.epoch || c.path == nil {
			return
		}
		overview := c.Overview(c.cfg.ZoomOutDuration)
		c.env.Prefetcher.Prefetch(overview.Center, overview.Zoom)
		c.env.Surface.SetCamera(overview)
		c.log.Debug("Zoomed out to whole track")
	}))
}
