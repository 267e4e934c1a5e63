package nudge

import (
	"sync"
	"time"
)

// DefaultInterval is the idle time after which a nudge fires.
const DefaultInterval = 60 * time.Second

// State is the scheduler's position in its arm/fire cycle.
type State int

const (
	// Stopped: no timer is pending.
	Stopped State = iota
	// Armed: a timer is counting toward the idle threshold.
	Armed
	// Idle: the threshold was reached and the nudge is being delivered.
	// The scheduler re-arms before leaving fire, so callers only observe
	// this state from inside the fire callback.
	Idle
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Armed:
		return "armed"
	case Idle:
		return "idle"
	}
	return "unknown"
}

// FireFunc is called when the idle threshold is reached. It runs while the
// scheduler holds its lock, so it must not call back into the Scheduler and
// should hand slow work to another goroutine.
type FireFunc func(at time.Time)

// Scheduler owns the single idle timer of one session.
//
// Arm starts or restarts the countdown, Cancel tears it down. When the
// countdown completes the FireFunc runs and a fresh countdown starts in the
// same critical section, so an Arm racing with expiry can neither produce a
// second nudge nor be lost.
type Scheduler struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	onFire   FireFunc

	timer Timer
	gen   uint64
	state State
	fired int
}

// NewScheduler creates a stopped scheduler. A nil clock uses SystemClock; a
// non-positive interval uses DefaultInterval.
func NewScheduler(interval time.Duration, clock Clock, onFire FireFunc) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		clock:    clock,
		interval: interval,
		onFire:   onFire,
	}
}

// Arm cancels any pending timer and starts a fresh countdown. It is used
// both when the session starts and on every committed interaction.
func (s *Scheduler) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked()
}

// Cancel stops the pending timer, if any. A cancelled scheduler never fires
// until it is armed again.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.gen++
	s.state = Stopped
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fired returns how many nudges this scheduler has delivered.
func (s *Scheduler) Fired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Interval returns the idle threshold.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) armLocked() {
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.interval, func() { s.fire(gen) })
	s.state = Armed
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A newer Arm or a Cancel superseded this timer after it was already
	// committed to firing.
	if gen != s.gen || s.state != Armed {
		return
	}

	s.timer = nil
	s.state = Idle
	s.fired++
	if s.onFire != nil {
		s.onFire(s.clock.Now())
	}
	s.armLocked()
}
