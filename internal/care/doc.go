// Package care runs care-mode sessions for connected clients.
//
// A Tracker follows one client. In care mode, loading a template starts a
// session that records pointer events and owns an idle scheduler; the
// session ends on a mode switch, a new template, or Finalize, which computes
// the metrics and hands them to the report and store collaborators.
package care
