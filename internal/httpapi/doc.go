// Package httpapi serves the coloring app over HTTP with gin.
//
// REST routes cover template processing and upload, the gallery, stored
// sessions and the caregiver report endpoints. Errors come back as
// {"error": "..."} with 400 for bad input, 404 for unknown ids, 422 when the
// outline pipeline cannot produce an image and 503 when storage or the
// report service is not configured.
//
// GET /ws/care upgrades to a WebSocket that owns one care tracker. Messages
// in both directions use the envelope {"type", "payload", "timestamp"}.
// Clients send mode, template, event, metrics and finalize; the server
// answers with session, metrics, finalized and error, and pushes nudge when
// the session goes idle.
package httpapi
