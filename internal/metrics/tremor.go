package metrics

import "math"

// DefaultTremorThreshold is the distance in pixels below which a step
// between consecutive moves counts as a micro-movement.
const DefaultTremorThreshold = 3.0

// TremorScore returns the fraction of consecutive move pairs whose distance
// is strictly between 0 and threshold.
//
// Only move events with a position are considered, in log order. Identical
// consecutive samples are not jitter and never count. Fewer than two moves
// yield 0.
func TremorScore(events []Event, threshold float64) float64 {
	var (
		prev  *Position
		pairs int
		ticks int
	)
	for _, e := range events {
		if e.Kind != KindMove || e.Position == nil {
			continue
		}
		if prev != nil {
			d := math.Hypot(e.Position.X-prev.X, e.Position.Y-prev.Y)
			if d > 0 && d < threshold {
				ticks++
			}
			pairs++
		}
		prev = e.Position
	}
	if pairs == 0 {
		return 0
	}
	return float64(ticks) / float64(pairs)
}
