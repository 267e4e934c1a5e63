package care

import (
	"fmt"
	"strings"
	"time"

	"github.com/ironsheep/coloring-care/internal/metrics"
	"github.com/ironsheep/coloring-care/internal/nudge"
)

// Mode selects whether interactions are measured.
type Mode string

const (
	ModeFun  Mode = "fun"
	ModeCare Mode = "care"
)

// ParseMode accepts "fun" or "care" in any letter case.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeFun, ModeCare:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// session is one live care session: its log and its idle scheduler.
type session struct {
	id        string
	startedAt time.Time
	canvas    metrics.Canvas
	log       metrics.Log
	scheduler *nudge.Scheduler
}

// offset is the session-relative timestamp of at, in milliseconds.
func (s *session) offset(at time.Time) int64 {
	ms := at.Sub(s.startedAt).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

func (s *session) compute(now time.Time, opts metrics.Options) metrics.SessionMetrics {
	return metrics.Compute(s.log.Snapshot(), s.canvas, now.Sub(s.startedAt), opts)
}

// SessionInfo describes the live session of a tracker.
type SessionInfo struct {
	TrackerID  string         `json:"trackerId"`
	SessionID  string         `json:"sessionId"`
	Mode       Mode           `json:"mode"`
	StartedAt  time.Time      `json:"startedAt"`
	Canvas     metrics.Canvas `json:"canvas"`
	EventCount int            `json:"eventCount"`
	NudgeCount int            `json:"nudgeCount"`
	NudgeState string         `json:"nudgeState"`
}

// EventInput is an event as submitted by a client. A nil Timestamp is
// stamped with the time since the session started.
type EventInput struct {
	Kind      string            `json:"kind"`
	Position  *metrics.Position `json:"position,omitempty"`
	Timestamp *int64            `json:"timestamp,omitempty"`
}

// NudgeNotice is delivered to the client when a session goes idle.
// Message is empty when no encouragement could be generated.
type NudgeNotice struct {
	TrackerID  string    `json:"trackerId"`
	SessionID  string    `json:"sessionId"`
	At         time.Time `json:"at"`
	NudgeCount int       `json:"nudgeCount"`
	Message    string    `json:"message,omitempty"`
}
