package track

import (
	"math"
	"time"

	"github.com/paulmach/orb"

	"gps_flyover_video/internal/geo"
)

// Sample is an interpolated position along a track.
type Sample struct {
	Lat, Lon  float64
	Elevation float64
	Distance  float64
	Speed     float64
	HeartRate float64 // 0 when absent
	Time      time.Time
	Progress  float64
	Index     float64 // fractional point index
}

func (s Sample) Coord() orb.Point {
	return orb.Point{s.Lon, s.Lat}
}

func clampProgress(progress float64) float64 {
	if math.IsNaN(progress) {
		return 0
	}
	return geo.Clamp(progress, 0, 1)
}

// fractionalIndex maps progress uniformly over the point count.
func (t *Track) fractionalIndex(progress float64) float64 {
	return clampProgress(progress) * float64(len(t.points)-1)
}

// Interpolate blends the two points bracketing progress. Progress is
// index-linear: it is uniform over points, not over distance.
func (t *Track) Interpolate(progress float64) Sample {
	progress = clampProgress(progress)
	f := t.fractionalIndex(progress)
	lo := int(math.Floor(f))
	hi := int(math.Ceil(f))
	if hi >= len(t.points) {
		hi = len(t.points) - 1
	}
	ratio := f - float64(lo)

	a, b := t.points[lo], t.points[hi]
	s := Sample{
		Lat:       geo.Lerp(a.Lat, b.Lat, ratio),
		Lon:       geo.Lerp(a.Lon, b.Lon, ratio),
		Elevation: geo.Lerp(a.Elevation, b.Elevation, ratio),
		Distance:  geo.Lerp(a.Distance, b.Distance, ratio),
		Speed:     geo.Lerp(a.Speed, b.Speed, ratio),
		Progress:  progress,
		Index:     f,
	}

	switch {
	case a.HeartRate > 0 && b.HeartRate > 0:
		s.HeartRate = geo.Lerp(a.HeartRate, b.HeartRate, ratio)
	case a.HeartRate > 0:
		s.HeartRate = a.HeartRate
	case b.HeartRate > 0:
		s.HeartRate = b.HeartRate
	}

	switch {
	case !a.Time.IsZero() && !b.Time.IsZero():
		s.Time = a.Time.Add(time.Duration(ratio * float64(b.Time.Sub(a.Time))))
	case !a.Time.IsZero():
		s.Time = a.Time
	case !b.Time.IsZero():
		s.Time = b.Time
	}
	return s
}

// RevealedCoordinates returns points 0..floor(f) followed by the interpolated
// point at progress. Its length never shrinks as progress grows.
func (t *Track) RevealedCoordinates(progress float64) orb.LineString {
	f := t.fractionalIndex(progress)
	lo := int(math.Floor(f))
	ls := make(orb.LineString, 0, lo+2)
	for i := 0; i <= lo; i++ {
		ls = append(ls, t.points[i].Coord())
	}
	return append(ls, t.Interpolate(progress).Coord())
}

// ProgressAtDistance returns the progress at which the interpolated distance
// first reaches km.
func (t *Track) ProgressAtDistance(km float64) float64 {
	n := len(t.points)
	if n < 2 || km <= 0 {
		return 0
	}
	if km >= t.points[n-1].Distance {
		return 1
	}
	for i := 1; i < n; i++ {
		if t.points[i].Distance < km {
			continue
		}
		a, b := t.points[i-1].Distance, t.points[i].Distance
		ratio := 0.0
		if b > a {
			ratio = (km - a) / (b - a)
		}
		return (float64(i-1) + ratio) / float64(n-1)
	}
	return 1
}

// IndexAtDistance returns the first point index whose distance is >= km,
// or Len() when the track is shorter.
func (t *Track) IndexAtDistance(km float64) int {
	for i, p := range t.points {
		if p.Distance >= km {
			return i
		}
	}
	return len(t.points)
}

// IndexAtOffset returns the first point recorded at least offset after the
// first point, or Len() when none is. Tracks without time return 0.
func (t *Track) IndexAtOffset(offset time.Duration) int {
	start := t.points[0].Time
	if start.IsZero() {
		return 0
	}
	for i, p := range t.points {
		if !p.Time.IsZero() && p.Time.Sub(start) >= offset {
			return i
		}
	}
	return len(t.points)
}
