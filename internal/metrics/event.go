package metrics

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// EventKind identifies what a pointer event represents.
type EventKind string

const (
	KindFill  EventKind = "fill"
	KindDraw  EventKind = "draw"
	KindErase EventKind = "erase"
	KindMove  EventKind = "move"
	KindNudge EventKind = "nudge"
)

// ParseEventKind accepts a kind name in any letter case.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindFill, KindDraw, KindErase, KindMove, KindNudge:
		return k, nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Committed reports whether the kind is a committed canvas action. Only
// committed events are classified into quadrants and reset the idle timer.
func (k EventKind) Committed() bool {
	return k == KindFill || k == KindDraw || k == KindErase
}

// Positioned reports whether events of this kind must carry a position.
func (k EventKind) Positioned() bool {
	return k.Committed() || k == KindMove
}

// Position is a point in canvas pixel space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is one entry in a session log.
type Event struct {
	Kind     EventKind `json:"kind"`
	Position *Position `json:"position,omitempty"`

	// Timestamp is milliseconds since the session started.
	Timestamp int64 `json:"timestamp"`
}

// Validate checks that the event is well formed for its kind.
func (e Event) Validate() error {
	if _, err := ParseEventKind(string(e.Kind)); err != nil {
		return err
	}
	if e.Kind.Positioned() && e.Position == nil {
		return fmt.Errorf("%s event requires a position", e.Kind)
	}
	if e.Kind == KindNudge && e.Position != nil {
		return errors.New("nudge event must not carry a position")
	}
	if e.Timestamp < 0 {
		return fmt.Errorf("timestamp must not be negative, got %d", e.Timestamp)
	}
	return nil
}

// Log is an append-only, arrival-ordered event sequence. It is safe for
// one writer and any number of concurrent readers.
type Log struct {
	mu     sync.RWMutex
	events []Event
}

// Append adds e to the end of the log.
func (l *Log) Append(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// Snapshot returns a copy of the events recorded so far.
func (l *Log) Snapshot() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
