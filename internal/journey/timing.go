// Package journey maps a single global playback progress onto the segments
// of a multi-part journey and back.
package journey

import (
	"math"
	"time"

	"gps_flyover_video/internal/geo"
)

type Kind int

const (
	KindTrack Kind = iota
	KindTransport
)

func (k Kind) String() string {
	if k == KindTransport {
		return "transport"
	}
	return "track"
}

// Segment is one time- and index-bounded part of a journey. StartIndex and
// EndIndex address the global point-index space; consecutive segments share
// their boundary index. A negative StartIndex means the segment has no index
// bounds and is mapped proportionally by duration.
type Segment struct {
	Kind       Kind
	StartIndex int
	EndIndex   int
	StartTime  time.Duration
	EndTime    time.Duration
	Duration   time.Duration
}

func (s Segment) indexed() bool {
	return s.StartIndex >= 0 && s.EndIndex >= s.StartIndex
}

type Timing struct {
	Segments      []Segment
	TotalDuration time.Duration
}

// BuildTiming lays the segments end to end on the time axis.
func BuildTiming(segments []Segment) *Timing {
	t := &Timing{Segments: make([]Segment, len(segments))}
	var at time.Duration
	for i, s := range segments {
		if s.Duration < 0 {
			s.Duration = 0
		}
		s.StartTime = at
		s.EndTime = at + s.Duration
		at = s.EndTime
		t.Segments[i] = s
	}
	t.TotalDuration = at
	return t
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return geo.Clamp(v, 0, 1)
}

func (t *Timing) proportional() bool {
	if len(t.Segments) == 0 {
		return true
	}
	for _, s := range t.Segments {
		if !s.indexed() {
			return true
		}
	}
	return false
}

// locateIndex finds the first segment whose index range contains g.
func (t *Timing) locateIndex(g float64) (int, float64, bool) {
	for i, s := range t.Segments {
		if g < float64(s.StartIndex) || g > float64(s.EndIndex) {
			continue
		}
		span := float64(s.EndIndex - s.StartIndex)
		if span <= 0 || s.Duration <= 0 {
			return i, 0, true
		}
		return i, clamp01((g - float64(s.StartIndex)) / span), true
	}
	return 0, 0, false
}

// locateTime finds the first segment whose time range contains elapsed.
// Elapsed past the end clamps to the last segment at local progress 1.
func (t *Timing) locateTime(elapsed time.Duration) (int, float64) {
	last := len(t.Segments) - 1
	if elapsed >= t.TotalDuration {
		return last, 1
	}
	if elapsed < 0 {
		elapsed = 0
	}
	for i, s := range t.Segments {
		if elapsed < s.StartTime || elapsed > s.EndTime {
			continue
		}
		if s.Duration <= 0 {
			return i, 0
		}
		return i, clamp01(float64(elapsed-s.StartTime) / float64(s.Duration))
	}
	return last, 1
}

// ProgressToElapsed maps a global progress onto the journey's time axis.
func (t *Timing) ProgressToElapsed(progress float64, totalPointCount int) time.Duration {
	progress = clamp01(progress)
	if !t.proportional() && totalPointCount > 1 {
		g := progress * float64(totalPointCount-1)
		if i, local, ok := t.locateIndex(g); ok {
			s := t.Segments[i]
			return s.StartTime + time.Duration(local*float64(s.Duration))
		}
	}
	return time.Duration(progress * float64(t.TotalDuration))
}

// ElapsedToProgress is the inverse of ProgressToElapsed.
func (t *Timing) ElapsedToProgress(elapsed time.Duration, totalPointCount int) float64 {
	if t.TotalDuration <= 0 {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if !t.proportional() && totalPointCount > 1 {
		i, local := t.locateTime(elapsed)
		s := t.Segments[i]
		g := float64(s.StartIndex) + local*float64(s.EndIndex-s.StartIndex)
		return clamp01(g / float64(totalPointCount-1))
	}
	return clamp01(float64(elapsed) / float64(t.TotalDuration))
}

// Locate returns the segment that owns progress and the local progress inside it.
func (t *Timing) Locate(progress float64, totalPointCount int) (int, float64) {
	if len(t.Segments) == 0 {
		return -1, 0
	}
	progress = clamp01(progress)
	if !t.proportional() && totalPointCount > 1 {
		if i, local, ok := t.locateIndex(progress * float64(totalPointCount-1)); ok {
			return i, local
		}
	}
	if t.TotalDuration <= 0 {
		if progress >= 1 {
			return len(t.Segments) - 1, 1
		}
		return 0, 0
	}
	return t.locateTime(time.Duration(progress * float64(t.TotalDuration)))
}
