package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/config"
)

// splitImage is black on the left half and white on the right, which gives
// the outline extractor one strong vertical edge.
func splitImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

// walledImage is white with a one-pixel black column at x = wall.
func walledImage(width, height, wall int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x == wall {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

// createTestImageFile writes img as a PNG in a temp dir and returns its path
func createTestImageFile(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.png")
	if err := os.WriteFile(path, pngBytes(t, img), 0o644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path
}

// callTool sends a tools/call request through handleRequest.
func callTool(t *testing.T, s *Server, name string, args interface{}) *MCPResponse {
	t.Helper()
	params := map[string]interface{}{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// decodeResult unmarshals the text content of a successful tool call.
func decodeResult(t *testing.T, resp *MCPResponse, into interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("content: got %#v", result["content"])
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), into); err != nil {
		t.Fatalf("failed to decode tool result: %v", err)
	}
}

func expectToolError(t *testing.T, resp *MCPResponse, contains string) {
	t.Helper()
	if resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", resp.Error.Code)
	}
	if data, _ := resp.Error.Data.(string); !strings.Contains(data, contains) {
		t.Errorf("Error data %q should contain %q", data, contains)
	}
}

type outlineResponse struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	SourceWidth  int    `json:"source_width"`
	SourceFormat string `json:"source_format"`
	Scaled       bool   `json:"scaled"`
	Stats        struct {
		EdgePixels int `json:"edge_pixels"`
	} `json:"stats"`
	OutputPath  string `json:"output_path"`
	PNGBase64   string `json:"png_base64"`
	SnapshotURL string `json:"snapshot_url"`
}

func TestHandleToolsCall_OutlineExtract_Base64(t *testing.T) {
	s := newTestEnv(t, nil).server
	data := pngBytes(t, splitImage(64, 48))

	var got outlineResponse
	decodeResult(t, callTool(t, s, "outline_extract", map[string]interface{}{
		"image_base64": base64.StdEncoding.EncodeToString(data),
	}), &got)

	if got.Width != 64 || got.Height != 48 || got.Scaled {
		t.Errorf("dimensions: got %dx%d scaled=%v", got.Width, got.Height, got.Scaled)
	}
	if got.SourceFormat != "png" {
		t.Errorf("source format: got %q", got.SourceFormat)
	}
	if got.Stats.EdgePixels == 0 {
		t.Error("split image should produce outline pixels")
	}
	if got.SnapshotURL != "" {
		t.Error("snapshots are off by default")
	}

	raw, err := base64.StdEncoding.DecodeString(got.PNGBase64)
	if err != nil {
		t.Fatalf("png_base64 is not base64: %v", err)
	}
	out, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 48 {
		t.Errorf("output bounds: got %v", out.Bounds())
	}
}

func TestHandleToolsCall_OutlineExtract_PathAndOutput(t *testing.T) {
	s := newTestEnv(t, nil).server
	input := createTestImageFile(t, splitImage(200, 100))
	output := filepath.Join(t.TempDir(), "outline.png")

	var got outlineResponse
	decodeResult(t, callTool(t, s, "outline_extract", map[string]interface{}{
		"path":          input,
		"max_dimension": 50,
		"output_path":   output,
	}), &got)

	if got.Width != 50 || got.Height != 25 || !got.Scaled {
		t.Errorf("scaled dimensions: got %dx%d scaled=%v", got.Width, got.Height, got.Scaled)
	}
	if got.SourceWidth != 200 {
		t.Errorf("source width: got %d", got.SourceWidth)
	}
	if got.OutputPath != output || got.PNGBase64 != "" {
		t.Errorf("expected file output only, got %+v", got)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}

func TestHandleToolsCall_OutlineExtract_URL(t *testing.T) {
	data := pngBytes(t, splitImage(40, 40))
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photo.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer ts.Close()

	s := newTestEnv(t, nil).server

	var got outlineResponse
	decodeResult(t, callTool(t, s, "outline_extract", map[string]interface{}{
		"url": ts.URL + "/photo.png",
	}), &got)
	if got.Width != 40 {
		t.Errorf("width: got %d", got.Width)
	}

	expectToolError(t, callTool(t, s, "outline_extract", map[string]interface{}{
		"url": ts.URL + "/missing.png",
	}), "unexpected status")
}

func TestHandleToolsCall_OutlineExtract_Snapshot(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Storage.SnapshotTemplates = true
	})

	var got outlineResponse
	decodeResult(t, callTool(t, env.server, "outline_extract", map[string]interface{}{
		"image_base64": base64.StdEncoding.EncodeToString(pngBytes(t, splitImage(32, 32))),
	}), &got)

	if !strings.HasPrefix(got.SnapshotURL, "/objects/processed-templates/") {
		t.Errorf("snapshot url: got %q", got.SnapshotURL)
	}
}

func TestHandleToolsCall_OutlineExtract_Errors(t *testing.T) {
	s := newTestEnv(t, nil).server
	path := createTestImageFile(t, splitImage(10, 10))

	tests := []struct {
		name     string
		args     map[string]interface{}
		contains string
	}{
		{
			"no source",
			map[string]interface{}{},
			"exactly one of",
		},
		{
			"two sources",
			map[string]interface{}{"path": path, "image_base64": "AAAA"},
			"exactly one of",
		},
		{
			"bad base64",
			map[string]interface{}{"image_base64": "***"},
			"invalid image_base64",
		},
		{
			"not an image",
			map[string]interface{}{"image_base64": base64.StdEncoding.EncodeToString([]byte("hello"))},
			"decode",
		},
		{
			"missing file",
			map[string]interface{}{"path": "/nonexistent/image.png"},
			"no such file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectToolError(t, callTool(t, s, "outline_extract", tt.args), tt.contains)
		})
	}
}

func TestHandleToolsCall_CanvasFill(t *testing.T) {
	s := newTestEnv(t, nil).server
	path := createTestImageFile(t, walledImage(20, 10, 10))

	var got struct {
		FilledPixels int    `json:"filled_pixels"`
		Color        string `json:"color"`
		PNGBase64    string `json:"png_base64"`
	}
	decodeResult(t, callTool(t, s, "canvas_fill", map[string]interface{}{
		"path":  path,
		"x":     2,
		"y":     2,
		"color": "#FF8800",
	}), &got)

	if got.FilledPixels != 100 {
		t.Errorf("filled pixels: got %d, want 100 (left of the wall)", got.FilledPixels)
	}

	raw, _ := base64.StdEncoding.DecodeString(got.PNGBase64)
	out, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	r, g, b, _ := out.At(2, 2).RGBA()
	if r>>8 != 0xFF || g>>8 != 0x88 || b>>8 != 0x00 {
		t.Errorf("seed pixel: got %d,%d,%d", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = out.At(15, 5).RGBA()
	if r>>8 != 0xFF || g>>8 != 0xFF || b>>8 != 0xFF {
		t.Error("fill crossed the outline")
	}
}

func TestHandleToolsCall_CanvasFill_Errors(t *testing.T) {
	s := newTestEnv(t, nil).server
	path := createTestImageFile(t, walledImage(10, 10, 5))

	expectToolError(t, callTool(t, s, "canvas_fill", map[string]interface{}{
		"path": path, "x": 1, "y": 1, "color": "not-a-color",
	}), "invalid color")

	expectToolError(t, callTool(t, s, "canvas_fill", map[string]interface{}{
		"url": "http://example.com/a.png", "x": 1, "y": 1, "color": "#000",
	}), "path or image_base64")
}

func TestHandleToolsCall_CareSessionFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.server

	var opened struct {
		TrackerID string `json:"trackerId"`
		Mode      string `json:"mode"`
	}
	decodeResult(t, callTool(t, s, "session_open", nil), &opened)
	if opened.Mode != "fun" {
		t.Errorf("default mode: got %q", opened.Mode)
	}
	tracker := opened.TrackerID

	// Loading a template needs care mode.
	expectToolError(t, callTool(t, s, "session_load_template", map[string]interface{}{
		"tracker_id": tracker, "width": 800, "height": 600,
	}), "care mode")

	decodeResult(t, callTool(t, s, "session_set_mode", map[string]interface{}{
		"tracker_id": tracker, "mode": "care",
	}), &opened)
	if opened.Mode != "care" {
		t.Fatalf("mode after switch: got %q", opened.Mode)
	}

	var info struct {
		SessionID  string `json:"sessionId"`
		NudgeState string `json:"nudgeState"`
	}
	decodeResult(t, callTool(t, s, "session_load_template", map[string]interface{}{
		"tracker_id": tracker, "width": 800, "height": 600,
	}), &info)
	if info.SessionID == "" || info.NudgeState != "armed" {
		t.Fatalf("load_template: %+v", info)
	}

	events := []map[string]interface{}{
		{"kind": "fill", "x": 100, "y": 100},
		{"kind": "draw", "x": 600, "y": 500},
		{"kind": "move", "x": 300, "y": 300},
	}
	for _, ev := range events {
		ev["tracker_id"] = tracker
		var recorded struct {
			Kind string `json:"kind"`
		}
		decodeResult(t, callTool(t, s, "session_record_event", ev), &recorded)
		if recorded.Kind != ev["kind"] {
			t.Errorf("recorded kind: got %q, want %v", recorded.Kind, ev["kind"])
		}
	}

	var m struct {
		NeglectRatio   float64 `json:"neglectRatio"`
		EventCount     int     `json:"eventCount"`
		MoveEventCount int     `json:"moveEventCount"`
	}
	decodeResult(t, callTool(t, s, "session_metrics", map[string]interface{}{"tracker_id": tracker}), &m)
	if m.EventCount != 3 || m.MoveEventCount != 1 {
		t.Errorf("metrics counts: %+v", m)
	}
	if m.NeglectRatio != 0.5 {
		t.Errorf("neglect ratio: got %v, want 0.5", m.NeglectRatio)
	}

	canvas := base64.StdEncoding.EncodeToString(pngBytes(t, splitImage(16, 12)))
	var fin struct {
		SessionID string `json:"sessionId"`
		Analysis  string `json:"analysis"`
		Image     *struct {
			ID         string `json:"id"`
			StorageURL string `json:"storageUrl"`
		} `json:"image"`
		Session struct {
			ImageID string `json:"imageId"`
		} `json:"session"`
	}
	decodeResult(t, callTool(t, s, "session_finalize", map[string]interface{}{
		"tracker_id":    tracker,
		"canvas_base64": canvas,
		"skip_report":   true,
	}), &fin)
	if fin.SessionID != info.SessionID {
		t.Errorf("finalized session: got %q, want %q", fin.SessionID, info.SessionID)
	}
	if fin.Analysis != "" {
		t.Error("skip_report should leave analysis empty")
	}
	if fin.Image == nil || fin.Session.ImageID != fin.Image.ID {
		t.Fatalf("finalize should save the canvas and link it: %+v", fin)
	}

	// The session is gone after finalizing.
	expectToolError(t, callTool(t, s, "session_metrics", map[string]interface{}{"tracker_id": tracker}), "no active care session")

	var stats struct {
		TotalSessions int   `json:"totalSessions"`
		TotalImages   int64 `json:"totalImages"`
	}
	decodeResult(t, callTool(t, s, "sessions_stats", nil), &stats)
	if stats.TotalSessions != 1 || stats.TotalImages != 1 {
		t.Errorf("stats: %+v", stats)
	}

	var closed struct {
		Closed bool `json:"closed"`
	}
	decodeResult(t, callTool(t, s, "session_close", map[string]interface{}{"tracker_id": tracker}), &closed)
	if !closed.Closed {
		t.Error("session_close should report closed")
	}
	expectToolError(t, callTool(t, s, "session_close", map[string]interface{}{"tracker_id": tracker}), "tracker not found")
}

func TestHandleToolsCall_RecordEvent_Errors(t *testing.T) {
	s := newTestEnv(t, nil).server

	var opened struct {
		TrackerID string `json:"trackerId"`
	}
	decodeResult(t, callTool(t, s, "session_open", map[string]interface{}{"mode": "care"}), &opened)
	decodeResult(t, callTool(t, s, "session_load_template", map[string]interface{}{
		"tracker_id": opened.TrackerID, "width": 100, "height": 100,
	}), &struct{}{})

	tests := []struct {
		name     string
		args     map[string]interface{}
		contains string
	}{
		{"x without y", map[string]interface{}{"kind": "fill", "x": 1}, "together"},
		{"unknown kind", map[string]interface{}{"kind": "smudge", "x": 1, "y": 1}, "smudge"},
		{"nudge injected", map[string]interface{}{"kind": "nudge", "x": 1, "y": 1}, "nudge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.args["tracker_id"] = opened.TrackerID
			expectToolError(t, callTool(t, s, "session_record_event", tt.args), tt.contains)
		})
	}

	expectToolError(t, callTool(t, s, "session_record_event", map[string]interface{}{
		"tracker_id": "missing", "kind": "fill", "x": 1, "y": 1,
	}), "tracker not found")
}

func TestHandleToolsCall_Reports(t *testing.T) {
	s := newTestEnv(t, nil).server

	var analysis struct {
		Analysis string `json:"analysis"`
	}
	decodeResult(t, callTool(t, s, "report_analyze", map[string]interface{}{
		"neglect_ratio": 0.5,
		"tremor_score":  0.1,
		"nudge_count":   0,
		"context":       "a lighthouse",
	}), &analysis)
	if analysis.Analysis != "Attention was evenly spread." {
		t.Errorf("analysis: got %q", analysis.Analysis)
	}

	var enc struct {
		Message string `json:"message"`
	}
	decodeResult(t, callTool(t, s, "report_encouragement", nil), &enc)
	if enc.Message != "You're doing great!" {
		t.Errorf("encouragement: got %q", enc.Message)
	}

	// Zero is a valid value; absence is not.
	expectToolError(t, callTool(t, s, "report_analyze", map[string]interface{}{
		"neglect_ratio": 0.5,
	}), "required")
}

func TestHandleToolsCall_Gallery(t *testing.T) {
	s := newTestEnv(t, nil).server
	path := createTestImageFile(t, splitImage(8, 8))

	var saved struct {
		ID         string `json:"id"`
		StorageURL string `json:"storageUrl"`
	}
	decodeResult(t, callTool(t, s, "gallery_save", map[string]interface{}{"path": path}), &saved)
	if saved.ID == "" || !strings.HasPrefix(saved.StorageURL, "/objects/gallery/") {
		t.Fatalf("saved: %+v", saved)
	}

	var list struct {
		Images []struct {
			ID string `json:"id"`
		} `json:"images"`
	}
	decodeResult(t, callTool(t, s, "gallery_list", nil), &list)
	if len(list.Images) != 1 || list.Images[0].ID != saved.ID {
		t.Errorf("list: %+v", list)
	}

	decodeResult(t, callTool(t, s, "gallery_delete", map[string]interface{}{"id": saved.ID}), &struct{}{})
	decodeResult(t, callTool(t, s, "gallery_list", nil), &list)
	if len(list.Images) != 0 {
		t.Errorf("list after delete: %+v", list)
	}

	expectToolError(t, callTool(t, s, "gallery_delete", map[string]interface{}{"id": saved.ID}), "not found")
}

func TestHandleToolsCall_WithoutStoreOrReporter(t *testing.T) {
	s := New(Options{Config: config.Default(), Log: zap.NewNop()})
	defer s.trackers.Shutdown()

	for _, name := range []string{"gallery_list", "sessions_stats"} {
		t.Run(name, func(t *testing.T) {
			expectToolError(t, callTool(t, s, name, nil), "storage is not configured")
		})
	}

	expectToolError(t, callTool(t, s, "report_encouragement", nil), "not configured")
}

func TestHandleToolsCall_InvalidTool(t *testing.T) {
	s := newTestEnv(t, nil).server
	expectToolError(t, callTool(t, s, "nonexistent_tool", nil), "unknown tool")
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestEnv(t, nil).server
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})

	if resp == nil || resp.Error == nil {
		t.Fatal("Expected error for invalid params")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("Error code: got %d, want -32602", resp.Error.Code)
	}
}

func TestExecuteTool_InvalidJSON(t *testing.T) {
	s := newTestEnv(t, nil).server
	for _, name := range []string{"outline_extract", "canvas_fill", "session_open", "report_analyze"} {
		if _, err := s.executeTool(context.Background(), name, json.RawMessage(`{invalid`)); err == nil {
			t.Errorf("%s: expected error for invalid JSON", name)
		}
	}
}
