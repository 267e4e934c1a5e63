package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var imageSourceProperties = map[string]interface{}{
	"path": map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to a PNG or JPEG file",
	},
	"url": map[string]interface{}{
		"type":        "string",
		"description": "http(s) URL of a PNG or JPEG image",
	},
	"image_base64": map[string]interface{}{
		"type":        "string",
		"description": "Base64-encoded PNG or JPEG bytes",
	},
}

var trackerIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "Tracker id returned by session_open",
}

// withProperties merges extra schema properties over base.
func withProperties(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Templates and canvas
		{
			Name:        "outline_extract",
			Description: "Turn a photo into a black-on-white line-art coloring template. Give exactly one of path, url or image_base64. Returns dimensions, outline statistics and the PNG (base64, or written to output_path).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(imageSourceProperties, map[string]interface{}{
					"max_dimension": map[string]interface{}{
						"type":        "integer",
						"description": "Longest side after downscaling. Default 2000",
						"default":     2000,
					},
					"low_threshold": map[string]interface{}{
						"type":        "number",
						"description": "Canny low threshold on the 0-255 scale. Default 20",
						"default":     20,
					},
					"high_threshold": map[string]interface{}{
						"type":        "number",
						"description": "Canny high threshold on the 0-255 scale. Default 40",
						"default":     40,
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional file to write the PNG to instead of returning base64",
					},
				}),
			},
		},
		{
			Name:        "canvas_fill",
			Description: "Flood-fill the region under a point with a color, stopping at outlines. Reads from path or image_base64.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(imageSourceProperties, map[string]interface{}{
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "Seed X coordinate (clamped into the image)",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Seed Y coordinate (clamped into the image)",
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Fill color as hex, e.g. \"#FF8800\"",
					},
					"tolerance": map[string]interface{}{
						"type":        "integer",
						"description": "Per-channel tolerance for matching the seed color. Default 30",
						"default":     30,
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional file to write the PNG to instead of returning base64",
					},
				}),
				"required": []string{"x", "y", "color"},
			},
		},

		// Care sessions
		{
			Name:        "session_open",
			Description: "Open a tracker for one coloring client. Returns its tracker_id. Nudges for its sessions arrive as notifications/session/nudge.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"mode": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"fun", "care"},
						"description": "Initial mode. Default fun",
						"default":     "fun",
					},
				},
			},
		},
		{
			Name:        "session_set_mode",
			Description: "Switch a tracker between fun and care mode. Leaving care mode discards the live session.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tracker_id": trackerIDProperty,
					"mode": map[string]interface{}{
						"type": "string",
						"enum": []string{"fun", "care"},
					},
				},
				"required": []string{"tracker_id", "mode"},
			},
		},
		{
			Name:        "session_load_template",
			Description: "Start a new care session on a canvas of the given size, discarding any previous session. Requires care mode.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tracker_id": trackerIDProperty,
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Canvas width in pixels",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Canvas height in pixels",
					},
				},
				"required": []string{"tracker_id", "width", "height"},
			},
		},
		{
			Name:        "session_record_event",
			Description: "Record a pointer event in the live care session. fill, draw and erase restart the idle timer; move does not.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tracker_id": trackerIDProperty,
					"kind": map[string]interface{}{
						"type": "string",
						"enum": []string{"fill", "draw", "erase", "move"},
					},
					"x": map[string]interface{}{
						"type":        "number",
						"description": "Canvas X coordinate",
					},
					"y": map[string]interface{}{
						"type":        "number",
						"description": "Canvas Y coordinate",
					},
					"timestamp": map[string]interface{}{
						"type":        "integer",
						"description": "Milliseconds since the session started. Defaults to now",
					},
				},
				"required": []string{"tracker_id", "kind", "x", "y"},
			},
		},
		{
			Name:        "session_metrics",
			Description: "Compute neglect ratio, quadrant activity, tremor score, elapsed time and nudge count for the live session.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tracker_id": trackerIDProperty,
				},
				"required": []string{"tracker_id"},
			},
		},
		{
			Name:        "session_finalize",
			Description: "Finish the live session: compute metrics, write the caregiver report, save the canvas to the gallery and store the session. Give the canvas (path or base64) or an existing image_id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tracker_id": trackerIDProperty,
					"canvas_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the rendered canvas PNG",
					},
					"canvas_base64": map[string]interface{}{
						"type":        "string",
						"description": "Base64-encoded canvas PNG",
					},
					"image_id": map[string]interface{}{
						"type":        "string",
						"description": "Id of an already saved gallery image",
					},
					"context": map[string]interface{}{
						"type":        "string",
						"description": "What the picture shows, e.g. \"a lighthouse\"",
					},
					"user_id": map[string]interface{}{
						"type": "string",
					},
					"skip_report": map[string]interface{}{
						"type":        "boolean",
						"description": "Do not call the text-generation service",
						"default":     false,
					},
				},
				"required": []string{"tracker_id"},
			},
		},
		{
			Name:        "session_close",
			Description: "Close a tracker and discard its session.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tracker_id": trackerIDProperty,
				},
				"required": []string{"tracker_id"},
			},
		},

		// Reports
		{
			Name:        "report_analyze",
			Description: "Write a three-sentence caregiver summary from session metrics.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"neglect_ratio": map[string]interface{}{
						"type":        "number",
						"description": "Left share of committed actions, 0-1",
					},
					"tremor_score": map[string]interface{}{
						"type": "number",
					},
					"nudge_count": map[string]interface{}{
						"type": "integer",
					},
					"quadrant_activity": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"topLeft":     map[string]interface{}{"type": "number"},
							"topRight":    map[string]interface{}{"type": "number"},
							"bottomLeft":  map[string]interface{}{"type": "number"},
							"bottomRight": map[string]interface{}{"type": "number"},
						},
					},
					"context": map[string]interface{}{
						"type": "string",
					},
				},
				"required": []string{"neglect_ratio", "tremor_score", "nudge_count"},
			},
		},
		{
			Name:        "report_encouragement",
			Description: "Generate a short, warm message encouraging the patient to keep coloring.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},

		// Gallery and history
		{
			Name:        "gallery_save",
			Description: "Save a finished picture to the gallery. JPEG input is stored as PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type": "string",
					},
					"image_base64": map[string]interface{}{
						"type": "string",
					},
					"user_id": map[string]interface{}{
						"type": "string",
					},
				},
			},
		},
		{
			Name:        "gallery_list",
			Description: "List saved gallery images, newest first.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "gallery_delete",
			Description: "Delete a gallery image and its stored file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type": "string",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "sessions_stats",
			Description: "Summarize stored sessions: totals, averages, 30-day activity and recent trends.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
