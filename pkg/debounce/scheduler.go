package debounce

import (
	"sync"
	"time"
)

// Handle identifies a call scheduled with Scheduler.Schedule.
type Handle uint64

// Scheduler runs functions after a delay and lets callers cancel them by handle.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	next    Handle
	pending map[Handle]Timer
}

// NewScheduler returns a Scheduler driven by clock. A nil clock uses RealClock.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{
		clock:   clock,
		pending: make(map[Handle]Timer),
	}
}

// Schedule runs fn once after delay and returns a handle for Cancel.
func (s *Scheduler) Schedule(fn func(), delay time.Duration) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	s.pending[h] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.pending[h]
		delete(s.pending, h)
		s.mu.Unlock()

		if live {
			fn()
		}
	})
	return h
}

// Cancel stops the scheduled call. It reports whether the call was still pending.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	t, ok := s.pending[h]
	delete(s.pending, h)
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.Stop()
	return true
}

// Len returns the number of calls still waiting to run.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
