package main

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gps_flyover_video/internal/surface"
)

type fakeNow struct{ now time.Duration }

func (f *fakeNow) Now() time.Duration { return f.now }

func TestVideoSurfaceJump(t *testing.T) {
	clock := &fakeNow{}
	s := newVideoSurface(clock.Now)

	s.SetCamera(surface.CameraPose{Center: orb.Point{8, 46}, Zoom: 12, Pitch: 40, Bearing: 90})
	snap := s.Snapshot(0, 0)
	assert.Equal(t, orb.Point{8, 46}, snap.Camera.Center)
	assert.Equal(t, 12.0, snap.Camera.Zoom)
	assert.Zero(t, snap.Camera.Duration)
	assert.True(t, s.Settled(0))
}

func TestVideoSurfaceEasing(t *testing.T) {
	clock := &fakeNow{}
	s := newVideoSurface(clock.Now)
	s.SetCamera(surface.CameraPose{Center: orb.Point{8, 46}, Zoom: 10, Pitch: 0, Bearing: 350})

	clock.now = time.Second
	s.SetCamera(surface.CameraPose{Center: orb.Point{9, 47}, Zoom: 14, Pitch: 60, Bearing: 10, Duration: 2 * time.Second})

	start := s.cameraAt(time.Second)
	assert.Equal(t, orb.Point{8, 46}, start.Center)
	assert.False(t, s.Settled(time.Second))

	mid := s.cameraAt(2 * time.Second)
	assert.InDelta(t, 8.5, mid.Center.Lon(), 1e-9)
	assert.InDelta(t, 46.5, mid.Center.Lat(), 1e-9)
	assert.InDelta(t, 12, mid.Zoom, 1e-9)
	assert.InDelta(t, 30, mid.Pitch, 1e-9)
	assert.InDelta(t, 0, mid.Bearing, 1e-9, "bearing takes the short way through north")

	early := s.cameraAt(1500 * time.Millisecond)
	assert.Less(t, early.Zoom, 11.0, "ease-in starts slowly")

	end := s.cameraAt(3 * time.Second)
	assert.Equal(t, 14.0, end.Zoom)
	assert.Equal(t, 10.0, end.Bearing)
	assert.True(t, s.Settled(3*time.Second))
}

func TestVideoSurfaceRetargetMidEase(t *testing.T) {
	clock := &fakeNow{}
	s := newVideoSurface(clock.Now)
	s.SetCamera(surface.CameraPose{Center: orb.Point{8, 46}, Zoom: 10})
	s.SetCamera(surface.CameraPose{Center: orb.Point{8, 46}, Zoom: 14, Duration: time.Second})

	clock.now = 500 * time.Millisecond
	s.SetCamera(surface.CameraPose{Center: orb.Point{8, 46}, Zoom: 16, Duration: time.Second})

	// continues from the half-way zoom, no jump
	assert.InDelta(t, 12, s.cameraAt(500*time.Millisecond).Zoom, 1e-9)
}

func TestVideoSurfaceSnapshotGeometry(t *testing.T) {
	s := newVideoSurface((&fakeNow{}).Now)
	marker := surface.PointCollection(orb.Point{8, 46}, map[string]interface{}{"speed": 20.0})
	s.SetGeometry(surface.SourceMarker, marker)

	snap := s.Snapshot(3, time.Second)
	assert.Equal(t, 3, snap.Number)
	assert.Equal(t, time.Second, snap.At)
	require.Contains(t, snap.Geometry, surface.SourceMarker)

	s.SetGeometry(surface.SourceMarker, surface.PointCollection(orb.Point{9, 47}, nil))
	assert.Same(t, marker, snap.Geometry[surface.SourceMarker], "snapshots keep what was current when taken")
}

func TestEaseInOutCubic(t *testing.T) {
	assert.Equal(t, 0.0, easeInOutCubic(-1))
	assert.Equal(t, 0.5, easeInOutCubic(0.5))
	assert.Equal(t, 1.0, easeInOutCubic(2))
	assert.Less(t, easeInOutCubic(0.25), 0.25)
	assert.Greater(t, easeInOutCubic(0.75), 0.75)
}
