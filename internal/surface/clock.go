package surface

import (
	"sort"
	"time"
)

type simTimer struct {
	at        time.Duration
	seq       int
	fn        func()
	cancelled bool
}

// SimClock is a Scheduler driven by explicit Frame calls instead of a
// display. The video pipeline uses it to render at an exact framerate.
type SimClock struct {
	now    time.Duration
	frames []func(time.Duration)
	timers []*simTimer
	seq    int
}

func NewSimClock() *SimClock {
	return &SimClock{}
}

func (c *SimClock) Now() time.Duration {
	return c.now
}

func (c *SimClock) RequestFrame(fn func(now time.Duration)) {
	c.frames = append(c.frames, fn)
}

func (c *SimClock) AfterFunc(d time.Duration, fn func()) func() {
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &simTimer{at: c.now + d, seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return func() { t.cancelled = true }
}

// PendingFrames is the number of frame callbacks waiting for the next Frame.
func (c *SimClock) PendingFrames() int {
	return len(c.frames)
}

// PendingTimers counts timers that are neither fired nor cancelled.
func (c *SimClock) PendingTimers() int {
	n := 0
	for _, t := range c.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Idle reports whether nothing is left to run.
func (c *SimClock) Idle() bool {
	return len(c.frames) == 0 && c.PendingTimers() == 0
}

// Advance moves the clock forward by d, firing due timers in order.
func (c *SimClock) Advance(d time.Duration) {
	c.now += d
	c.fireDue()
}

// Frame advances the clock by dt and runs the frame callbacks that were
// requested before the call. Callbacks requested while running wait for
// the next Frame.
func (c *SimClock) Frame(dt time.Duration) {
	c.Advance(dt)
	frames := c.frames
	c.frames = nil
	for _, fn := range frames {
		fn(c.now)
	}
}

func (c *SimClock) fireDue() {
	for {
		live := c.timers[:0]
		var due []*simTimer
		for _, t := range c.timers {
			switch {
			case t.cancelled:
			case t.at <= c.now:
				due = append(due, t)
			default:
				live = append(live, t)
			}
		}
		c.timers = live
		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at != due[j].at {
				return due[i].at < due[j].at
			}
			return due[i].seq < due[j].seq
		})
		for _, t := range due {
			if !t.cancelled {
				t.cancelled = true
				t.fn()
			}
		}
	}
}
