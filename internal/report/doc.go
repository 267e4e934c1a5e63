// Package report writes caregiver-facing text with a generative model: a
// short clinical summary of a finished session and encouragement messages
// for idle patients.
package report
