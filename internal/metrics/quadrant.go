package metrics

// Quadrant is one quarter of the canvas.
type Quadrant int

const (
	TopLeft Quadrant = iota
	TopRight
	BottomLeft
	BottomRight
)

func (q Quadrant) String() string {
	switch q {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomLeft:
		return "bottom-left"
	case BottomRight:
		return "bottom-right"
	}
	return "unknown"
}

// Left reports whether q is on the left half of the canvas.
func (q Quadrant) Left() bool {
	return q == TopLeft || q == BottomLeft
}

// Classify places a point into a quadrant of a width x height canvas.
// Points on the midlines belong to the right or bottom side.
func Classify(p Position, width, height int) Quadrant {
	midX := float64(width) / 2
	midY := float64(height) / 2

	left := p.X < midX
	top := p.Y < midY
	switch {
	case top && left:
		return TopLeft
	case top:
		return TopRight
	case left:
		return BottomLeft
	default:
		return BottomRight
	}
}

// QuadrantCounts holds raw per-quadrant event counts.
type QuadrantCounts struct {
	TopLeft     int `json:"topLeft"`
	TopRight    int `json:"topRight"`
	BottomLeft  int `json:"bottomLeft"`
	BottomRight int `json:"bottomRight"`
}

// Total returns the number of classified events.
func (c QuadrantCounts) Total() int {
	return c.TopLeft + c.TopRight + c.BottomLeft + c.BottomRight
}

// Left returns the number of events in the two left quadrants.
func (c QuadrantCounts) Left() int {
	return c.TopLeft + c.BottomLeft
}

// QuadrantActivity is the percentage of classified events in each quadrant.
type QuadrantActivity struct {
	TopLeft     float64 `json:"topLeft"`
	TopRight    float64 `json:"topRight"`
	BottomLeft  float64 `json:"bottomLeft"`
	BottomRight float64 `json:"bottomRight"`
}

// NoActivity is reported when nothing was classified. It marks missing data,
// not a balanced distribution.
var NoActivity = QuadrantActivity{TopLeft: 25, TopRight: 25, BottomLeft: 25, BottomRight: 25}

// Sum returns the total of the four percentages.
func (a QuadrantActivity) Sum() float64 {
	return a.TopLeft + a.TopRight + a.BottomLeft + a.BottomRight
}

// CountQuadrants classifies every committed event that has a position.
// Move and nudge events are ignored.
func CountQuadrants(events []Event, width, height int) QuadrantCounts {
	var c QuadrantCounts
	for _, e := range events {
		if !e.Kind.Committed() || e.Position == nil {
			continue
		}
		switch Classify(*e.Position, width, height) {
		case TopLeft:
			c.TopLeft++
		case TopRight:
			c.TopRight++
		case BottomLeft:
			c.BottomLeft++
		case BottomRight:
			c.BottomRight++
		}
	}
	return c
}

// Activity converts counts to percentages. With no classified events it
// returns NoActivity.
func (c QuadrantCounts) Activity() QuadrantActivity {
	total := c.Total()
	if total == 0 {
		return NoActivity
	}
	t := float64(total)
	return QuadrantActivity{
		TopLeft:     float64(c.TopLeft) / t * 100,
		TopRight:    float64(c.TopRight) / t * 100,
		BottomLeft:  float64(c.BottomLeft) / t * 100,
		BottomRight: float64(c.BottomRight) / t * 100,
	}
}

// NeglectRatio is the share of classified events on the left half, or 0.5
// when nothing was classified. Near 0 suggests left-side neglect, near 1
// right-side neglect.
func (c QuadrantCounts) NeglectRatio() float64 {
	total := c.Total()
	if total == 0 {
		return 0.5
	}
	return float64(c.Left()) / float64(total)
}
