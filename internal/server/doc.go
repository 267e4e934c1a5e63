// Package server implements the MCP (Model Context Protocol) server for the
// coloring app.
//
// This package provides a JSON-RPC 2.0 server that exposes outline extraction,
// canvas fills, care-session tracking and caregiver reports to MCP-compatible
// clients.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// When a care session sits idle for the nudge interval the server pushes a
// notifications/session/nudge message carrying the tracker id, session id,
// nudge count and an encouragement text when one could be generated.
//
// # Available Tools
//
// Templates and canvas:
//   - outline_extract: Photo to black-on-white line art
//   - canvas_fill: Flood-fill a region of a canvas
//
// Care sessions:
//   - session_open, session_close: Tracker lifecycle
//   - session_set_mode: Switch between fun and care mode
//   - session_load_template: Start a session on a new canvas
//   - session_record_event: Log fill, draw, erase and move events
//   - session_metrics: Current session metrics
//   - session_finalize: Report, save and store a finished session
//
// Reports:
//   - report_analyze: Caregiver summary from metrics
//   - report_encouragement: Short encouraging message
//
// Gallery and history:
//   - gallery_save, gallery_list, gallery_delete
//   - sessions_stats: Totals, averages and trends over stored sessions
//
// Images are given as exactly one of path, url or image_base64. PNG results
// come back as png_base64 unless output_path is set.
//
// # Outline Caching
//
// Outline results are cached by input digest and options, so repeated
// requests for the same photo skip the edge pipeline.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(server.Options{Config: cfg, Store: st, Log: logger})
//	if err := srv.Run(ctx); err != nil {
//	    logger.Fatal("server stopped", zap.Error(err))
//	}
package server
