package report

import (
	"fmt"
	"strings"

	"github.com/ironsheep/coloring-care/internal/metrics"
)

// AnalysisInput is what the clinical summary is written from.
type AnalysisInput struct {
	NeglectRatio     float64                   `json:"neglectRatio"`
	QuadrantActivity *metrics.QuadrantActivity `json:"quadrantActivity,omitempty"`
	TremorScore      float64                   `json:"tremorScore"`
	NudgeCount       int                       `json:"nudgeCount"`
	// Context optionally names the subject of the picture, e.g. "a lighthouse".
	Context string `json:"context,omitempty"`
}

// InputFromMetrics copies the reported fields out of computed metrics.
func InputFromMetrics(m metrics.SessionMetrics, context string) AnalysisInput {
	quadrants := m.QuadrantActivity
	return AnalysisInput{
		NeglectRatio:     m.NeglectRatio,
		QuadrantActivity: &quadrants,
		TremorScore:      m.TremorScore,
		NudgeCount:       m.NudgeCount,
		Context:          context,
	}
}

const encouragementPrompt = `You are a supportive caregiver assistant. A dementia patient has been working on a coloring activity. Please provide a brief, encouraging message (2-3 sentences) to gently nudge them to continue. Be warm, positive, and supportive. Keep it simple and easy to understand.`

const analysisGuidance = `Analyze the patient's spatial awareness using the 4-quadrant data. In clinical practice:
- Horizontal Neglect (Left vs Right): Most common in post-stroke or Alzheimer's patients. A 90%+ right-side bias suggests classic Left-Sided Neglect.
- Vertical Neglect (Top vs Bottom): Often seen in Progressive Supranuclear Palsy (PSP) or advanced dementia. If activity is concentrated in the bottom 40% of the screen, this may indicate vertical gaze palsy or altitudinal neglect.

Based on the quadrant activity distribution, provide a 3-sentence summary for a family caregiver:
1. First sentence: Comment on spatial awareness and attention distribution. Specifically analyze if there's horizontal neglect (left vs right bias), vertical neglect (top vs bottom bias), or quadrant-specific neglect patterns. For example, if Top-Left is <5% and Top-Right is >45%, this indicates significant left-sided and potentially top neglect.
2. Second sentence: Comment on motor control and hand stability based on the tremor score.
3. Third sentence: Comment on engagement level based on nudges used and overall participation.

Keep the language clear, compassionate, and informative. Focus on what the quadrant data suggests about the patient's current state, with particular attention to both horizontal and vertical spatial neglect patterns.`

// BuildAnalysisPrompt renders the neuropsychologist prompt for in.
func BuildAnalysisPrompt(in AnalysisInput) string {
	var b strings.Builder

	b.WriteString("Act as a clinical neuropsychologist. A dementia patient colored a photo")
	if in.Context != "" {
		fmt.Fprintf(&b, " of %s", in.Context)
	}
	b.WriteString(". \n\nMetrics:\n")
	fmt.Fprintf(&b, "- Neglect Ratio: %.3f (0.5 is balanced, closer to 0 or 1 indicates spatial neglect - "+
		"values closer to 0 suggest left-sided neglect, values closer to 1 suggest right-sided neglect)", in.NeglectRatio)
	if q := in.QuadrantActivity; q != nil {
		fmt.Fprintf(&b, "\n- Quadrant Activity Distribution:\n"+
			"  * Top-Left: %.1f%%\n"+
			"  * Top-Right: %.1f%%\n"+
			"  * Bottom-Left: %.1f%%\n"+
			"  * Bottom-Right: %.1f%%",
			q.TopLeft, q.TopRight, q.BottomLeft, q.BottomRight)
	}
	fmt.Fprintf(&b, "\n- Tremor Score: %.3f (higher indicates more micro-movements/jitter)", in.TremorScore)
	fmt.Fprintf(&b, "\n- Nudges used: %d\n\n", in.NudgeCount)
	b.WriteString(analysisGuidance)

	return b.String()
}
