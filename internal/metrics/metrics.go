package metrics

import (
	"fmt"
	"time"
)

// Options tunes metric computation.
type Options struct {
	// TremorThreshold is the micro-movement distance in pixels.
	TremorThreshold float64 `json:"tremor_threshold"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{TremorThreshold: DefaultTremorThreshold}
}

// Validate reports options Compute cannot use.
func (o Options) Validate() error {
	if o.TremorThreshold <= 0 {
		return fmt.Errorf("tremor threshold must be positive, got %v", o.TremorThreshold)
	}
	return nil
}

// Canvas is the drawing surface the events were recorded on.
type Canvas struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SessionMetrics is a read-only snapshot derived from a session log.
type SessionMetrics struct {
	NeglectRatio     float64          `json:"neglectRatio"`
	QuadrantActivity QuadrantActivity `json:"quadrantActivity"`
	TremorScore      float64          `json:"tremorScore"`
	TotalTimeSeconds float64          `json:"totalTimeSeconds"`
	NudgeCount       int              `json:"nudgeCount"`

	// Supporting counts, useful for judging how much data backs the ratios.
	EventCount     int            `json:"eventCount"`
	QuadrantCounts QuadrantCounts `json:"quadrantCounts"`
	MoveEventCount int            `json:"moveEventCount"`
}

// Compute derives SessionMetrics from the full event log.
//
// It is a pure function of its arguments and is meant to be called again
// whenever fresh numbers are needed; nothing is carried between calls.
// elapsed is the wall-clock time since the session started, idle gaps
// included.
func Compute(events []Event, canvas Canvas, elapsed time.Duration, opts Options) SessionMetrics {
	counts := CountQuadrants(events, canvas.Width, canvas.Height)

	var nudges, moves int
	for _, e := range events {
		switch e.Kind {
		case KindNudge:
			nudges++
		case KindMove:
			if e.Position != nil {
				moves++
			}
		}
	}

	threshold := opts.TremorThreshold
	if threshold <= 0 {
		threshold = DefaultTremorThreshold
	}

	return SessionMetrics{
		NeglectRatio:     counts.NeglectRatio(),
		QuadrantActivity: counts.Activity(),
		TremorScore:      TremorScore(events, threshold),
		TotalTimeSeconds: elapsed.Seconds(),
		NudgeCount:       nudges,
		EventCount:       len(events),
		QuadrantCounts:   counts,
		MoveEventCount:   moves,
	}
}
