package hrcolor

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"gps_flyover_video/internal/track"
)

type ColorSegment struct {
	StartIndex  int
	EndIndex    int
	Color       string
	Coordinates orb.LineString
}

// GenerateColors maps every point to its zone color. Points without a heart
// rate get NeutralColor.
func GenerateColors(t *track.Track, zones []Zone) []string {
	colors := make([]string, t.Len())
	for i := range colors {
		z := ZoneIndex(t.Point(i).HeartRate, zones)
		if z < 0 {
			colors[i] = NeutralColor
			continue
		}
		colors[i] = zones[z].Color
	}
	return colors
}

// BuildSegments splits the track into runs of chunkSize steps. Consecutive
// runs share their boundary point and each run takes the color of its
// midpoint, which gives a stepped coloring.
func BuildSegments(t *track.Track, colors []string, chunkSize int) []ColorSegment {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	n := t.Len()
	if n < 2 || len(colors) != n {
		return nil
	}
	segments := make([]ColorSegment, 0, (n-2)/chunkSize+1)
	for start := 0; start < n-1; start += chunkSize {
		end := start + chunkSize
		if end > n-1 {
			end = n - 1
		}
		coords := make(orb.LineString, 0, end-start+1)
		for i := start; i <= end; i++ {
			coords = append(coords, t.Point(i).Coord())
		}
		segments = append(segments, ColorSegment{
			StartIndex:  start,
			EndIndex:    end,
			Color:       colors[(start+end)/2],
			Coordinates: coords,
		})
	}
	return segments
}

// Progressive serves the colored trail revealed up to some progress. The
// fully revealed chunks come from the static partition; only the chunk
// under the marker is rebuilt per call.
type Progressive struct {
	track    *track.Track
	segments []ColorSegment
}

func NewProgressive(t *track.Track, colors []string, chunkSize int) *Progressive {
	return &Progressive{track: t, segments: BuildSegments(t, colors, chunkSize)}
}

// Segments returns the static full-track partition.
func (p *Progressive) Segments() []ColorSegment {
	return p.segments
}

func (p *Progressive) At(progress float64) []ColorSegment {
	n := p.track.Len()
	if len(p.segments) == 0 {
		return nil
	}
	s := p.track.Interpolate(progress)
	f := s.Index
	lo := int(math.Floor(f))
	if lo > n-1 {
		lo = n - 1
	}

	done := 0
	for done < len(p.segments) && p.segments[done].EndIndex <= lo {
		done++
	}
	out := p.segments[:done:done]
	if done == len(p.segments) {
		return out
	}

	cur := p.segments[done]
	if f <= float64(cur.StartIndex) {
		return out
	}
	coords := make(orb.LineString, 0, lo-cur.StartIndex+2)
	for i := cur.StartIndex; i <= lo; i++ {
		coords = append(coords, p.track.Point(i).Coord())
	}
	coords = append(coords, s.Coord())
	return append(out, ColorSegment{
		StartIndex:  cur.StartIndex,
		EndIndex:    lo,
		Color:       cur.Color,
		Coordinates: coords,
	})
}

// FeatureCollection renders the segments as LineString features carrying a
// "color" property.
func FeatureCollection(segments []ColorSegment) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, seg := range segments {
		if len(seg.Coordinates) < 2 {
			continue
		}
		f := geojson.NewFeature(seg.Coordinates)
		f.Properties["color"] = seg.Color
		f.Properties["startIndex"] = seg.StartIndex
		f.Properties["endIndex"] = seg.EndIndex
		fc.Append(f)
	}
	return fc
}
