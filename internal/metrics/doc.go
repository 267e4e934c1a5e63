// Package metrics derives motor and attention signals from a coloring
// session's pointer events.
//
// A session is recorded as an append-only Log of Events. Compute turns a
// snapshot of that log into SessionMetrics:
//   - QuadrantActivity: share of committed actions (fill, draw, erase) in
//     each quarter of the canvas
//   - NeglectRatio: share of committed actions on the left half
//   - TremorScore: fraction of consecutive pointer moves that are small
//     non-zero steps
//   - TotalTimeSeconds and NudgeCount
//
// Metrics are always recomputed from the whole log; nothing is updated
// incrementally. Summarize aggregates stored sessions for the overview
// dashboard.
package metrics
