// Package track holds the immutable track model built from recorded points:
// cumulative distance, derived speed, summary statistics, bounds and the
// progress interpolator used by every other engine component.
package track

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"gps_flyover_video/internal/geo"
)

// DefaultEstimatedSpeedKmh is used for points that carry no timestamps.
const DefaultEstimatedSpeedKmh = 15.0

// RawPoint is what activity loaders produce.
type RawPoint struct {
	Lat, Lon     float64
	Elevation    float64
	HasElevation bool
	Time         time.Time
	HeartRate    float64 // 0 when absent
}

// Point is one validated sample of a built track.
type Point struct {
	Lat, Lon  float64
	Elevation float64
	Time      time.Time // zero when absent
	Index     int
	Distance  float64 // km from the first point
	Speed     float64 // km/h
	HeartRate float64 // 0 when absent
}

func (p Point) Coord() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

type HeartRateStats struct {
	Avg, Min, Max float64
	Coverage      float64 // fraction of points carrying a heart rate
}

type Stats struct {
	TotalDistance float64 // km
	TotalDuration time.Duration
	ElevationGain float64
	MinElevation  float64
	MaxElevation  float64
	HeartRate     *HeartRateStats
}

type Bounds struct {
	North, South, East, West float64
	Center                   orb.Point
}

// Bound returns the bounds as an orb.Bound for zoom fitting.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}

type Options struct {
	EstimatedSpeedKmh float64
	Log               logrus.FieldLogger
}

func DefaultOptions() Options {
	return Options{EstimatedSpeedKmh: DefaultEstimatedSpeedKmh}
}

// Track is immutable once built.
type Track struct {
	points []Point
	hasEle []bool
	stats  Stats
	bounds Bounds
}

// Build validates the raw points and derives distance, speed, stats and bounds.
// Points with out-of-range or NaN coordinates are skipped. A *ParseError is
// returned when nothing survives.
func Build(raw []RawPoint, opts Options) (*Track, error) {
	if opts.EstimatedSpeedKmh <= 0 {
		opts.EstimatedSpeedKmh = DefaultEstimatedSpeedKmh
	}

	t := &Track{
		points: make([]Point, 0, len(raw)),
		hasEle: make([]bool, 0, len(raw)),
	}
	skipped := 0
	for _, rp := range raw {
		if !geo.ValidLatLon(rp.Lat, rp.Lon) {
			skipped++
			continue
		}
		p := Point{Lat: rp.Lat, Lon: rp.Lon, Time: rp.Time, Index: len(t.points)}
		if rp.HasElevation && !math.IsNaN(rp.Elevation) {
			p.Elevation = rp.Elevation
		}
		if rp.HeartRate > 0 && !math.IsNaN(rp.HeartRate) {
			p.HeartRate = rp.HeartRate
		}
		t.points = append(t.points, p)
		t.hasEle = append(t.hasEle, rp.HasElevation && !math.IsNaN(rp.Elevation))
	}

	if len(t.points) == 0 {
		return nil, &ParseError{Total: len(raw), Skipped: skipped, Err: ErrNoValidPoints}
	}
	if skipped > 0 && opts.Log != nil {
		opts.Log.WithFields(logrus.Fields{"skipped": skipped, "kept": len(t.points)}).Debug("Skipped invalid track points")
	}

	t.computeDistanceAndSpeed(opts.EstimatedSpeedKmh)
	t.computeStats()
	t.computeBounds()
	return t, nil
}

func (t *Track) computeDistanceAndSpeed(estimated float64) {
	pts := t.points
	hasSpeed := false
	for i := 1; i < len(pts); i++ {
		d := geo.HaversineKm(pts[i-1].Coord(), pts[i].Coord())
		pts[i].Distance = pts[i-1].Distance + d

		var dt float64
		if !pts[i].Time.IsZero() && !pts[i-1].Time.IsZero() {
			dt = pts[i].Time.Sub(pts[i-1].Time).Seconds()
		}
		switch {
		case dt > 0:
			pts[i].Speed = d / dt * 3600
			hasSpeed = true
		case hasSpeed:
			pts[i].Speed = pts[i-1].Speed
		default:
			pts[i].Speed = estimated
		}
	}
	if len(pts) > 1 {
		pts[0].Speed = pts[1].Speed
	} else {
		pts[0].Speed = estimated
	}
}

func (t *Track) computeStats() {
	pts := t.points
	s := Stats{TotalDistance: pts[len(pts)-1].Distance}

	var first, last time.Time
	for _, p := range pts {
		if p.Time.IsZero() {
			continue
		}
		if first.IsZero() {
			first = p.Time
		}
		last = p.Time
	}
	if !first.IsZero() && last.After(first) {
		s.TotalDuration = last.Sub(first)
	}

	seenEle := false
	prevEle := 0.0
	for i, p := range pts {
		if !t.hasEle[i] {
			continue
		}
		if !seenEle {
			s.MinElevation, s.MaxElevation = p.Elevation, p.Elevation
			seenEle = true
		} else {
			if p.Elevation > prevEle {
				s.ElevationGain += p.Elevation - prevEle
			}
			s.MinElevation = math.Min(s.MinElevation, p.Elevation)
			s.MaxElevation = math.Max(s.MaxElevation, p.Elevation)
		}
		prevEle = p.Elevation
	}

	var hrSum float64
	hrCount := 0
	hr := HeartRateStats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, p := range pts {
		if p.HeartRate <= 0 {
			continue
		}
		hrSum += p.HeartRate
		hrCount++
		hr.Min = math.Min(hr.Min, p.HeartRate)
		hr.Max = math.Max(hr.Max, p.HeartRate)
	}
	if hrCount > 0 {
		hr.Avg = hrSum / float64(hrCount)
		hr.Coverage = float64(hrCount) / float64(len(pts))
		s.HeartRate = &hr
	}

	t.stats = s
}

func (t *Track) computeBounds() {
	b := Bounds{North: -90, South: 90, East: -180, West: 180}
	for _, p := range t.points {
		b.North = math.Max(b.North, p.Lat)
		b.South = math.Min(b.South, p.Lat)
		b.East = math.Max(b.East, p.Lon)
		b.West = math.Min(b.West, p.Lon)
	}
	b.Center = orb.Point{(b.East + b.West) / 2, (b.North + b.South) / 2}
	t.bounds = b
}

func (t *Track) Len() int {
	return len(t.points)
}

func (t *Track) Point(i int) Point {
	return t.points[i]
}

func (t *Track) Stats() Stats {
	return t.stats
}

func (t *Track) Bounds() Bounds {
	return t.bounds
}

// Points returns a copy of the track points.
func (t *Track) Points() []Point {
	out := make([]Point, len(t.points))
	copy(out, t.points)
	return out
}

// Coordinates returns the whole track as a line string.
func (t *Track) Coordinates() orb.LineString {
	ls := make(orb.LineString, len(t.points))
	for i, p := range t.points {
		ls[i] = p.Coord()
	}
	return ls
}

func (t *Track) Start() Point {
	return t.points[0]
}

func (t *Track) End() Point {
	return t.points[len(t.points)-1]
}

// Slice returns a new track built from points [from, to). Distance and speed
// are recomputed so the slice starts at 0 km.
func (t *Track) Slice(from, to int, opts Options) (*Track, error) {
	if from < 0 {
		from = 0
	}
	if to > len(t.points) {
		to = len(t.points)
	}
	if from >= to {
		return nil, &ParseError{Err: ErrNoValidPoints}
	}
	raw := make([]RawPoint, 0, to-from)
	for i := from; i < to; i++ {
		p := t.points[i]
		raw = append(raw, RawPoint{
			Lat:          p.Lat,
			Lon:          p.Lon,
			Elevation:    p.Elevation,
			HasElevation: t.hasEle[i],
			Time:         p.Time,
			HeartRate:    p.HeartRate,
		})
	}
	return Build(raw, opts)
}
