// Package live serves the animation to browsers: a real-time scheduler
// runs the engine on one goroutine and a WebSocket hub streams camera and
// geometry commands to every connected map.
package live

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler is a wall-clock surface.Scheduler. Frame callbacks, timers and
// queued tasks all run on the goroutine executing Run.
type Scheduler struct {
	interval time.Duration
	tasks    chan func()
	done     chan struct{}

	mu     sync.Mutex
	frames []func(now time.Duration)
}

func NewScheduler(fps float64) *Scheduler {
	if fps <= 0 {
		fps = 60
	}
	return &Scheduler{
		interval: time.Duration(float64(time.Second) / fps),
		tasks:    make(chan func(), 64),
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) RequestFrame(fn func(now time.Duration)) {
	s.mu.Lock()
	s.frames = append(s.frames, fn)
	s.mu.Unlock()
}

func (s *Scheduler) AfterFunc(d time.Duration, fn func()) func() {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		s.Do(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Do queues fn on the loop goroutine. It reports false once Run has
// returned. Calling Do from the loop itself can block when the queue is full.
func (s *Scheduler) Do(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.tasks <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Run drives the loop until ctx is cancelled. It must be called once.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.tasks:
			fn()
		case t := <-ticker.C:
			s.mu.Lock()
			frames := s.frames
			s.frames = nil
			s.mu.Unlock()

			now := t.Sub(start)
			for _, fn := range frames {
				fn(now)
			}
		}
	}
}
