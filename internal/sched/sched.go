// Package sched provides the timer abstractions the sync session runs on: a clock that
// schedules cancellable one-shot tasks, a debouncer and a fixed-interval repeater.
//
// The session never touches time.Timer directly, so tests drive it with FakeClock.
package sched

import (
	"sync"
	"time"
)

// Task is a scheduled callback that can be cancelled.
type Task interface {
	// Stop cancels the task. It returns false if the task already ran or was stopped.
	Stop() bool
}

// Clock schedules one-shot callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Task
}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

// Debouncer delays fn until no Trigger has happened for the configured delay.
// Each Trigger restarts the delay, so a burst of triggers runs fn once.
type Debouncer struct {
	clock Clock
	delay time.Duration
	fn    func()

	mu   sync.Mutex
	task Task
	gen  uint64
}

// NewDebouncer creates a debouncer. fn runs on the clock's callback goroutine.
func NewDebouncer(clock Clock, delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{clock: clock, delay: delay, fn: fn}
}

// Trigger (re)starts the delay.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.task != nil {
		d.task.Stop()
	}
	d.gen++
	gen := d.gen
	d.task = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// A stale timer that could not be stopped in time.
	if gen != d.gen || d.task == nil {
		d.mu.Unlock()
		return
	}
	d.task = nil
	d.mu.Unlock()

	d.fn()
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.task != nil
}

// Cancel drops a scheduled run. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.task == nil {
		return false
	}
	d.task.Stop()
	d.task = nil
	d.gen++
	return true
}

// Repeater runs fn every interval until stopped. The next run is scheduled after fn
// returns, so runs never overlap.
type Repeater struct {
	clock    Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	task    Task
	stopped bool
}

// Every starts a repeater whose first run is one interval from now.
func Every(clock Clock, interval time.Duration, fn func()) *Repeater {
	r := &Repeater{clock: clock, interval: interval, fn: fn}
	r.mu.Lock()
	r.task = clock.AfterFunc(interval, r.run)
	r.mu.Unlock()
	return r
}

func (r *Repeater) run() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.fn()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.task = r.clock.AfterFunc(r.interval, r.run)
	}
}

// Stop cancels future runs. A run already in progress completes.
func (r *Repeater) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.task != nil {
		r.task.Stop()
	}
}
