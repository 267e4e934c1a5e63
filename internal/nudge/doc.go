// Package nudge detects inactivity during a care session.
//
// A Scheduler keeps exactly one idle timer. Committed interactions re-arm
// it; when it expires the session is nudged and the timer starts again, so
// an inactive user is nudged once per interval. Tests drive the scheduler
// with FakeClock instead of waiting on real time.
package nudge
