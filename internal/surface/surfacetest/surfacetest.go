// Package surfacetest provides recording doubles for the surface interfaces.
package surfacetest

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"gps_flyover_video/internal/surface"
)

type CallKind int

const (
	CallCamera CallKind = iota
	CallGeometry
)

type Call struct {
	Kind     CallKind
	Pose     surface.CameraPose
	SourceID string
	FC       *geojson.FeatureCollection
}

// Surface records every command in order.
type Surface struct {
	mu    sync.Mutex
	Calls []Call
}

func (s *Surface) SetCamera(pose surface.CameraPose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{Kind: CallCamera, Pose: pose})
}

func (s *Surface) SetGeometry(sourceID string, fc *geojson.FeatureCollection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{Kind: CallGeometry, SourceID: sourceID, FC: fc})
}

func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
}

// Cameras returns the recorded camera poses.
func (s *Surface) Cameras() []surface.CameraPose {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []surface.CameraPose
	for _, c := range s.Calls {
		if c.Kind == CallCamera {
			out = append(out, c.Pose)
		}
	}
	return out
}

// LastCamera returns the most recent pose and whether there was one.
func (s *Surface) LastCamera() (surface.CameraPose, bool) {
	cams := s.Cameras()
	if len(cams) == 0 {
		return surface.CameraPose{}, false
	}
	return cams[len(cams)-1], true
}

// Geometry returns the latest collection set on sourceID.
func (s *Surface) Geometry(sourceID string) *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.Calls) - 1; i >= 0; i-- {
		if s.Calls[i].Kind == CallGeometry && s.Calls[i].SourceID == sourceID {
			return s.Calls[i].FC
		}
	}
	return nil
}

// Sequence returns a compact trace such as "marker", "camera", "trail".
func (s *Surface) Sequence() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Calls))
	for _, c := range s.Calls {
		if c.Kind == CallCamera {
			out = append(out, "camera")
		} else {
			out = append(out, c.SourceID)
		}
	}
	return out
}

type PrefetchRequest struct {
	Center orb.Point
	Zoom   float64
}

// Prefetcher records prefetch requests.
type Prefetcher struct {
	mu       sync.Mutex
	Requests []PrefetchRequest
}

func (p *Prefetcher) Prefetch(center orb.Point, zoom float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, PrefetchRequest{Center: center, Zoom: zoom})
}

func (p *Prefetcher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
