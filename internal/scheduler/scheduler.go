// Package scheduler provides the Scheduler capability from spec.md
// section 9's design notes: now()/afterDelay(d, fn)/yield()/defer(fn,
// continuation), injected into the manager and facade so tests can drive
// time deterministically instead of sleeping on a wall clock.
package scheduler

import (
	"runtime"
	"sync"
	"time"
)

// Scheduler abstracts the event loop's relationship with time and
// blocking work.
type Scheduler interface {
	// Now returns the current time.
	Now() time.Time
	// AfterDelay invokes fn once, after d has elapsed. It returns a
	// Cancel func that prevents fn from firing if called before then.
	AfterDelay(d time.Duration, fn func()) (cancel func())
	// Yield gives other goroutines a chance to run between drain
	// batches (spec.md 4.4: "Draining is non-blocking; it yields after
	// each batch").
	Yield()
	// Defer runs blockingFn on a worker goroutine and invokes
	// continuation with its result back "on the loop" — in this
	// implementation that just means "on whatever goroutine calls back",
	// since Go has no single loop thread; callers are expected to pair
	// this with a generation check (spec.md section 5).
	Defer(blockingFn func() (interface{}, error), continuation func(interface{}, error))
}

// RealScheduler is the production Scheduler, backed by the real clock
// and goroutines/timers.
type RealScheduler struct{}

// NewRealScheduler returns a RealScheduler.
func NewRealScheduler() *RealScheduler { return &RealScheduler{} }

func (RealScheduler) Now() time.Time { return time.Now() }

func (RealScheduler) AfterDelay(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

func (RealScheduler) Yield() {
	runtime.Gosched()
}

func (RealScheduler) Defer(blockingFn func() (interface{}, error), continuation func(interface{}, error)) {
	go func() {
		v, err := blockingFn()
		continuation(v, err)
	}()
}

// FakeScheduler is a manually-advanced Scheduler for deterministic tests
// (SPEC_FULL.md "Test tooling" section). Advance(d) fires any timers
// whose deadline has now elapsed, in deadline order.
type FakeScheduler struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	nextID  uint64
	pending []func() // Defer continuations queued for the next Advance/RunPending
}

type fakeTimer struct {
	id       uint64
	deadline time.Time
	fn       func()
	fired    bool
	canceled bool
}

// NewFakeScheduler returns a FakeScheduler starting at the given time.
func NewFakeScheduler(start time.Time) *FakeScheduler {
	return &FakeScheduler{now: start}
}

func (s *FakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *FakeScheduler) AfterDelay(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	t := &fakeTimer{id: id, deadline: s.now.Add(d), fn: fn}
	s.timers = append(s.timers, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, timer := range s.timers {
			if timer.id == id {
				timer.canceled = true
			}
		}
	}
}

func (s *FakeScheduler) Yield() {
	// deterministic tests don't need a real yield; runtime.Gosched isn't
	// necessary since FakeScheduler-driven tests are single-goroutine by
	// construction.
}

func (s *FakeScheduler) Defer(blockingFn func() (interface{}, error), continuation func(interface{}, error)) {
	s.mu.Lock()
	s.pending = append(s.pending, func() {
		v, err := blockingFn()
		continuation(v, err)
	})
	s.mu.Unlock()
}

// PendingTimers reports how many armed, unfired timers exist, letting a
// test wait for a retry to be scheduled before advancing the clock.
func (s *FakeScheduler) PendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.fired && !t.canceled {
			n++
		}
	}
	return n
}

// RunPending executes any Defer callbacks queued so far, synchronously.
func (s *FakeScheduler) RunPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// Advance moves the fake clock forward by d, firing (in deadline order)
// every non-canceled timer whose deadline is now <= the new time.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	now := s.now
	var due []*fakeTimer
	var remaining []*fakeTimer
	for _, t := range s.timers {
		if !t.fired && !t.canceled && !t.deadline.After(now) {
			due = append(due, t)
		} else if !t.fired {
			remaining = append(remaining, t)
		}
	}
	s.timers = remaining
	s.mu.Unlock()

	for i := 0; i < len(due); i++ {
		for j := i + 1; j < len(due); j++ {
			if due[j].deadline.Before(due[i].deadline) {
				due[i], due[j] = due[j], due[i]
			}
		}
	}
	for _, t := range due {
		t.fired = true
		t.fn()
	}
}
