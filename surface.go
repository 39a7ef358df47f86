package main

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"gps_flyover_video/internal/geo"
	"gps_flyover_video/internal/surface"
)

// frameSnapshot is everything the renderer needs for one video frame.
type frameSnapshot struct {
	Number   int
	At       time.Duration
	Camera   surface.CameraPose
	Geometry map[string]*geojson.FeatureCollection
}

// videoSurface records what the player asks for and plays camera easings
// back against the simulated clock.
type videoSurface struct {
	now func() time.Duration

	from  surface.CameraPose
	to    surface.CameraPose
	start time.Duration

	geometry map[string]*geojson.FeatureCollection
}

var _ surface.Surface = (*videoSurface)(nil)

func newVideoSurface(now func() time.Duration) *videoSurface {
	return &videoSurface{
		now:      now,
		geometry: make(map[string]*geojson.FeatureCollection),
	}
}

// SetCamera starts an easing from wherever the camera is right now.
func (s *videoSurface) SetCamera(pose surface.CameraPose) {
	now := s.now()
	s.from = s.cameraAt(now)
	s.to = pose
	s.start = now
}

// SetGeometry keeps the latest collection per source. Collections are
// treated as immutable once handed over.
func (s *videoSurface) SetGeometry(sourceID string, fc *geojson.FeatureCollection) {
	s.geometry[sourceID] = fc
}

// cameraAt returns the eased pose at now. The result always has Duration 0.
func (s *videoSurface) cameraAt(now time.Duration) surface.CameraPose {
	to := s.to
	to.Duration = 0
	if s.to.Duration <= 0 {
		return to
	}
	elapsed := now - s.start
	if elapsed >= s.to.Duration {
		return to
	}
	t := easeInOutCubic(float64(elapsed) / float64(s.to.Duration))
	return surface.CameraPose{
		Center:  lerpPoint(s.from.Center, s.to.Center, t),
		Zoom:    geo.Lerp(s.from.Zoom, s.to.Zoom, t),
		Pitch:   geo.Lerp(s.from.Pitch, s.to.Pitch, t),
		Bearing: geo.NormalizeBearing(s.from.Bearing + geo.SignedDelta(s.from.Bearing, s.to.Bearing)*t),
	}
}

// Settled reports whether no camera easing is in flight at now.
func (s *videoSurface) Settled(now time.Duration) bool {
	return s.to.Duration <= 0 || now-s.start >= s.to.Duration
}

func (s *videoSurface) Snapshot(number int, now time.Duration) frameSnapshot {
	geometry := make(map[string]*geojson.FeatureCollection, len(s.geometry))
	for id, fc := range s.geometry {
		geometry[id] = fc
	}
	return frameSnapshot{
		Number:   number,
		At:       now,
		Camera:   s.cameraAt(now),
		Geometry: geometry,
	}
}

func easeInOutCubic(t float64) float64 {
	t = geo.Clamp(t, 0, 1)
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := -2*t + 2
	return 1 - f*f*f/2
}

func lerpPoint(a, b orb.Point, t float64) orb.Point {
	if a == (orb.Point{}) {
		return b
	}
	return geo.Interpolate(a, b, t)
}
