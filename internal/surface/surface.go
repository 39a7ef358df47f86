// Package surface defines what the animation engine needs from whatever
// draws the map: a camera, named geometry sources, a frame scheduler and an
// optional tile prefetcher.
package surface

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

// Geometry source ids written by the player.
const (
	SourceMarker    = "marker"
	SourceTrail     = "trail"
	SourceTransport = "transport"
)

// CameraPose is a target camera. Duration 0 jumps, anything else eases.
type CameraPose struct {
	Center   orb.Point
	Zoom     float64
	Pitch    float64 // degrees from nadir
	Bearing  float64 // degrees clockwise from north
	Duration time.Duration
}

type Surface interface {
	SetCamera(pose CameraPose)
	SetGeometry(sourceID string, fc *geojson.FeatureCollection)
}

// Scheduler runs callbacks on the engine's single execution context.
type Scheduler interface {
	// RequestFrame runs fn once before the next repaint.
	RequestFrame(fn func(now time.Duration))
	// AfterFunc runs fn after d. The returned cancel is idempotent.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// Prefetcher warms tile caches. It must not block.
type Prefetcher interface {
	Prefetch(center orb.Point, zoom float64)
}

type nopPrefetcher struct{}

func (nopPrefetcher) Prefetch(orb.Point, float64) {}

// NopPrefetcher ignores every request.
var NopPrefetcher Prefetcher = nopPrefetcher{}

// Env is handed to every engine component constructor.
type Env struct {
	Surface    Surface
	Scheduler  Scheduler
	Prefetcher Prefetcher
	Log        logrus.FieldLogger
}

// ErrIncompleteEnv is returned by constructors handed an Env without a
// Surface or a Scheduler.
var ErrIncompleteEnv = errors.New("env needs a surface and a scheduler")

// Validate checks the capabilities that have no default.
func (e Env) Validate() error {
	if e.Surface == nil {
		return fmt.Errorf("%w: surface is nil", ErrIncompleteEnv)
	}
	if e.Scheduler == nil {
		return fmt.Errorf("%w: scheduler is nil", ErrIncompleteEnv)
	}
	return nil
}

// WithDefaults fills in a no-op prefetcher and a discarding logger.
func (e Env) WithDefaults() Env {
	if e.Prefetcher == nil {
		e.Prefetcher = NopPrefetcher
	}
	if e.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.Log = l
	}
	return e
}

// PointCollection wraps a single point feature.
func PointCollection(p orb.Point, props map[string]interface{}) *geojson.FeatureCollection {
	f := geojson.NewFeature(p)
	for k, v := range props {
		f.Properties[k] = v
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	return fc
}

// LineCollection wraps line strings, one feature each, skipping lines
// with fewer than two points.
func LineCollection(lines []orb.LineString, props map[string]interface{}) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, ls := range lines {
		if len(ls) < 2 {
			continue
		}
		f := geojson.NewFeature(ls)
		for k, v := range props {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}
