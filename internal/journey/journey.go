package journey

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"gps_flyover_video/internal/geo"
	"gps_flyover_video/internal/track"
)

var (
	ErrEmptyJourney      = errors.New("journey has no tracks")
	ErrDanglingTransport = errors.New("transport leg must sit between two tracks")
	ErrUnknownTransport  = errors.New("unknown transport mode")
	ErrInvalidPart       = errors.New("part must carry either a track or a transport mode")
)

type TransportMode string

const (
	Walk  TransportMode = "walk"
	Bike  TransportMode = "bike"
	Car   TransportMode = "car"
	Train TransportMode = "train"
	Boat  TransportMode = "boat"
	Plane TransportMode = "plane"
)

var transportModes = []TransportMode{Walk, Bike, Car, Train, Boat, Plane}

// ParseTransportMode accepts the lower-case mode names.
func ParseTransportMode(s string) (TransportMode, error) {
	m := TransportMode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range transportModes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTransport, s)
}

// Part is one input of Assemble: either a recorded track or a transport leg.
type Part struct {
	Track     *track.Track
	Transport TransportMode
}

type AssembleOptions struct {
	SecondsPerKm       float64
	MinTrackDuration   time.Duration
	MaxTrackDuration   time.Duration
	TransportDurations map[TransportMode]time.Duration
	TransportPoints    int
	TrackOptions       track.Options
}

func DefaultAssembleOptions() AssembleOptions {
	return AssembleOptions{
		SecondsPerKm:     4,
		MinTrackDuration: 15 * time.Second,
		MaxTrackDuration: 90 * time.Second,
		TransportDurations: map[TransportMode]time.Duration{
			Walk:  3 * time.Second,
			Bike:  3 * time.Second,
			Car:   4 * time.Second,
			Train: 5 * time.Second,
			Boat:  5 * time.Second,
			Plane: 6 * time.Second,
		},
		TransportPoints: 32,
		TrackOptions:    track.DefaultOptions(),
	}
}

// Leg is one assembled part of a journey, placed in the global index space.
type Leg struct {
	Kind           Kind
	Mode           TransportMode
	Track          *track.Track
	Offset         int     // global index of the leg's first point
	DistanceOffset float64 // km travelled before the leg
}

type Journey struct {
	legs        []Leg
	timing      *Timing
	totalPoints int
	bounds      track.Bounds
}

// TrackDuration is the playback duration given to a recorded track.
func (o AssembleOptions) TrackDuration(km float64) time.Duration {
	d := time.Duration(km * o.SecondsPerKm * float64(time.Second))
	if o.MinTrackDuration > 0 && d < o.MinTrackDuration {
		d = o.MinTrackDuration
	}
	if o.MaxTrackDuration > 0 && d > o.MaxTrackDuration {
		d = o.MaxTrackDuration
	}
	return d
}

// Single wraps one track into a journey.
func Single(t *track.Track, opts AssembleOptions) (*Journey, error) {
	return Assemble([]Part{{Track: t}}, opts)
}

// Assemble joins tracks and transport legs into one journey. Transport legs
// are synthesised along the great circle between the neighbouring tracks.
func Assemble(parts []Part, opts AssembleOptions) (*Journey, error) {
	if opts.TransportPoints < 2 {
		opts.TransportPoints = 2
	}

	hasTrack := false
	for i, p := range parts {
		if (p.Track == nil) == (p.Transport == "") {
			return nil, fmt.Errorf("part %d: %w", i, ErrInvalidPart)
		}
		if p.Track != nil {
			hasTrack = true
			continue
		}
		if i == 0 || i == len(parts)-1 || parts[i-1].Track == nil || parts[i+1].Track == nil {
			return nil, fmt.Errorf("part %d (%s): %w", i, p.Transport, ErrDanglingTransport)
		}
		if _, err := ParseTransportMode(string(p.Transport)); err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
	}
	if !hasTrack {
		return nil, ErrEmptyJourney
	}

	j := &Journey{}
	segments := make([]Segment, 0, len(parts))
	offset := 0
	distance := 0.0
	for i, p := range parts {
		leg := Leg{Kind: KindTrack, Track: p.Track, Offset: offset, DistanceOffset: distance}
		var dur time.Duration
		if p.Track == nil {
			t, err := transportTrack(parts[i-1].Track.End(), parts[i+1].Track.Start(), opts)
			if err != nil {
				return nil, fmt.Errorf("part %d: %w", i, err)
			}
			leg.Kind = KindTransport
			leg.Mode = p.Transport
			leg.Track = t
			dur = opts.TransportDurations[p.Transport]
		} else {
			dur = opts.TrackDuration(p.Track.Stats().TotalDistance)
		}

		n := leg.Track.Len()
		segments = append(segments, Segment{
			Kind:       leg.Kind,
			StartIndex: offset,
			EndIndex:   offset + n - 1,
			Duration:   dur,
		})
		j.legs = append(j.legs, leg)
		offset += n - 1
		distance += leg.Track.Stats().TotalDistance
	}

	j.timing = BuildTiming(segments)
	j.totalPoints = offset + 1
	j.bounds = unionBounds(j.legs)
	return j, nil
}

func transportTrack(from, to track.Point, opts AssembleOptions) (*track.Track, error) {
	line := geo.GreatCircle(from.Coord(), to.Coord(), opts.TransportPoints)
	raw := make([]track.RawPoint, len(line))
	for i, c := range line {
		f := float64(i) / float64(len(line)-1)
		raw[i] = track.RawPoint{
			Lat:          c.Lat(),
			Lon:          c.Lon(),
			Elevation:    geo.Lerp(from.Elevation, to.Elevation, f),
			HasElevation: true,
		}
	}
	return track.Build(raw, opts.TrackOptions)
}

func unionBounds(legs []Leg) track.Bounds {
	b := legs[0].Track.Bounds()
	for _, l := range legs[1:] {
		lb := l.Track.Bounds()
		b.North = math.Max(b.North, lb.North)
		b.South = math.Min(b.South, lb.South)
		b.East = math.Max(b.East, lb.East)
		b.West = math.Min(b.West, lb.West)
	}
	b.Center = orb.Point{(b.East + b.West) / 2, (b.North + b.South) / 2}
	return b
}

func (j *Journey) Timing() *Timing {
	return j.timing
}

func (j *Journey) TotalPoints() int {
	return j.totalPoints
}

func (j *Journey) Duration() time.Duration {
	return j.timing.TotalDuration
}

func (j *Journey) Bounds() track.Bounds {
	return j.bounds
}

func (j *Journey) Legs() []Leg {
	return j.legs
}

func (j *Journey) TotalDistance() float64 {
	last := j.legs[len(j.legs)-1]
	return last.DistanceOffset + last.Track.Stats().TotalDistance
}

// ProgressToElapsed and ElapsedToProgress bind the timing model to this
// journey's global point count.
func (j *Journey) ProgressToElapsed(progress float64) time.Duration {
	return j.timing.ProgressToElapsed(progress, j.totalPoints)
}

func (j *Journey) ElapsedToProgress(elapsed time.Duration) float64 {
	return j.timing.ElapsedToProgress(elapsed, j.totalPoints)
}

// Locate returns the leg index owning progress and the local progress in it.
func (j *Journey) Locate(progress float64) (int, float64) {
	return j.timing.Locate(progress, j.totalPoints)
}

// Sample interpolates the journey at a global progress. Distance is
// cumulative over the whole journey and Progress is the global progress.
func (j *Journey) Sample(progress float64) track.Sample {
	i, local := j.Locate(progress)
	leg := j.legs[i]
	s := leg.Track.Interpolate(local)
	s.Distance += leg.DistanceOffset
	s.Index += float64(leg.Offset)
	s.Progress = clamp01(progress)
	return s
}

// RevealedLeg is the part of one leg drawn so far.
type RevealedLeg struct {
	Leg         int
	Kind        Kind
	Mode        TransportMode
	Local       float64
	Coordinates orb.LineString
}

// Revealed returns one polyline per leg reached at progress.
func (j *Journey) Revealed(progress float64) []RevealedLeg {
	cur, local := j.Locate(progress)
	out := make([]RevealedLeg, 0, cur+1)
	for i := 0; i <= cur; i++ {
		leg := j.legs[i]
		p := 1.0
		if i == cur {
			p = local
		}
		out = append(out, RevealedLeg{
			Leg:         i,
			Kind:        leg.Kind,
			Mode:        leg.Mode,
			Local:       p,
			Coordinates: leg.Track.RevealedCoordinates(p),
		})
	}
	return out
}
