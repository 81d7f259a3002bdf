package debounce

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of triggers into a single trailing call.
//
// Every Trigger restarts the delay; the most recent fn runs once the delay
// elapses with no further triggers. At most one call runs at a time. If the
// delay elapses while a call is still running, the next call starts as
// soon as the running one returns.
//
// All methods are safe for concurrent use.
type Debouncer struct {
	sched *Scheduler
	delay time.Duration

	mu      sync.Mutex
	idle    *sync.Cond
	handle  Handle
	gen     uint64
	armed   bool
	fn      func()
	running bool
	rerun   bool
	closed  bool
}

// New returns a Debouncer that waits delay after the last trigger.
// A nil clock uses RealClock.
func New(delay time.Duration, clock Clock) *Debouncer {
	d := &Debouncer{
		sched: NewScheduler(clock),
		delay: delay,
	}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Delay returns the configured quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Trigger (re)starts the delay. When it elapses, fn runs. Triggers after
// Close are ignored.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.fn = fn
	if d.armed {
		d.sched.Cancel(d.handle)
	}
	d.armed = true
	d.gen++
	gen := d.gen
	d.handle = d.sched.Schedule(func() { d.fire(gen) }, d.delay)
}

// fire is the scheduler callback for the trigger of generation gen.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || !d.armed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.armed = false
	if d.running {
		d.rerun = true
		d.mu.Unlock()
		return
	}
	d.runLocked()
	d.mu.Unlock()
}

// runLocked runs the pending fn, and any rerun queued meanwhile, with d.mu
// released around each call. d.mu must be held on entry and is held on return.
func (d *Debouncer) runLocked() {
	d.running = true
	for {
		fn := d.fn
		d.mu.Unlock()
		if fn != nil {
			fn()
		}
		d.mu.Lock()

		if !d.rerun || d.closed {
			break
		}
		d.rerun = false
	}
	d.rerun = false
	d.running = false
	d.idle.Broadcast()
}

// Pending reports whether a call is waiting for its delay or queued behind
// a running call.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed || d.rerun
}

// Flush runs the pending call now, on the caller's goroutine, after any
// running call returns. It reports whether a call was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.running {
		d.idle.Wait()
	}
	if d.closed {
		return false
	}
	if d.armed {
		d.sched.Cancel(d.handle)
		d.armed = false
	} else if !d.rerun {
		return false
	}
	d.rerun = false
	d.runLocked()
	return true
}

// Cancel drops a pending call. A call that is already running is not
// interrupted.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	if d.armed {
		d.sched.Cancel(d.handle)
		d.armed = false
	}
	d.rerun = false
}

// Wait blocks until no call is running.
func (d *Debouncer) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.running {
		d.idle.Wait()
	}
}

// Close cancels any pending call and stops accepting triggers. It does not
// wait for a running call; use Wait for that.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.closed = true
}
