package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/care"
	"github.com/ironsheep/coloring-care/internal/imaging"
	"github.com/ironsheep/coloring-care/internal/metrics"
	"github.com/ironsheep/coloring-care/internal/report"
)

// errNoStore is returned by tools that need persistence when none is set up.
var errNoStore = errors.New("storage is not configured")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "outline_extract", "session_open").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Debug("Tool failed", zap.String("tool", params.Name), zap.Error(err))
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Templates and canvas
	case "outline_extract":
		return s.handleOutlineExtract(ctx, args)
	case "canvas_fill":
		return s.handleCanvasFill(args)

	// Care sessions
	case "session_open":
		return s.handleSessionOpen(args)
	case "session_set_mode":
		return s.handleSessionSetMode(args)
	case "session_load_template":
		return s.handleSessionLoadTemplate(args)
	case "session_record_event":
		return s.handleSessionRecordEvent(args)
	case "session_metrics":
		return s.handleSessionMetrics(args)
	case "session_finalize":
		return s.handleSessionFinalize(ctx, args)
	case "session_close":
		return s.handleSessionClose(args)

	// Reports
	case "report_analyze":
		return s.handleReportAnalyze(ctx, args)
	case "report_encouragement":
		return s.handleReportEncouragement(ctx)

	// Gallery and history
	case "gallery_save":
		return s.handleGallerySave(ctx, args)
	case "gallery_list":
		return s.handleGalleryList(ctx)
	case "gallery_delete":
		return s.handleGalleryDelete(ctx, args)
	case "sessions_stats":
		return s.handleSessionsStats(ctx)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Image input helpers ===

// imageSource names where a tool reads its image from. Exactly one field
// must be set.
type imageSource struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	ImageBase64 string `json:"image_base64"`
}

func (s *Server) readImage(ctx context.Context, src imageSource) ([]byte, error) {
	set := 0
	for _, v := range []string{src.Path, src.URL, src.ImageBase64} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of path, url or image_base64 is required")
	}

	switch {
	case src.Path != "":
		return os.ReadFile(src.Path)
	case src.URL != "":
		s.mu.RLock()
		timeout, limit := s.fetchTimeout, s.maxFetchBytes
		s.mu.RUnlock()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return imaging.Fetch(ctx, s.client, src.URL, limit)
	default:
		data, err := base64.StdEncoding.DecodeString(src.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid image_base64: %w", err)
		}
		return data, nil
	}
}

// pngOutput is the image part of a tool result: written to OutputPath when
// one was given, inline base64 otherwise.
type pngOutput struct {
	OutputPath string `json:"output_path,omitempty"`
	PNGBase64  string `json:"png_base64,omitempty"`
}

func writePNG(data []byte, outputPath string) (pngOutput, error) {
	if outputPath == "" {
		return pngOutput{PNGBase64: base64.StdEncoding.EncodeToString(data)}, nil
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return pngOutput{}, fmt.Errorf("failed to write output: %w", err)
	}
	return pngOutput{OutputPath: outputPath}, nil
}

// === Template Handlers ===

type outlineExtractArgs struct {
	imageSource
	MaxDimension  int     `json:"max_dimension"`
	LowThreshold  float64 `json:"low_threshold"`
	HighThreshold float64 `json:"high_threshold"`
	OutputPath    string  `json:"output_path"`
}

type outlineExtractResult struct {
	*imaging.OutlineResult
	pngOutput
	SnapshotURL string `json:"snapshot_url,omitempty"`
}

func (s *Server) handleOutlineExtract(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a outlineExtractArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	s.mu.RLock()
	opts := s.outline
	snapshot := s.snapshot
	s.mu.RUnlock()
	if a.MaxDimension != 0 {
		opts.MaxDimension = a.MaxDimension
	}
	if a.LowThreshold != 0 {
		opts.LowThreshold = a.LowThreshold
	}
	if a.HighThreshold != 0 {
		opts.HighThreshold = a.HighThreshold
	}

	data, err := s.readImage(ctx, a.imageSource)
	if err != nil {
		return nil, err
	}
	res, err := s.cache.Extract(data, opts)
	if err != nil {
		return nil, err
	}

	out, err := writePNG(res.PNG, a.OutputPath)
	if err != nil {
		return nil, err
	}
	result := outlineExtractResult{OutlineResult: res, pngOutput: out}

	if snapshot && s.store != nil {
		result.SnapshotURL = s.snapshotOutline(ctx, data, res.PNG)
	}
	return result, nil
}

// snapshotOutline stores the input/output pair; failures are only logged.
func (s *Server) snapshotOutline(ctx context.Context, input, output []byte) string {
	inputPNG, err := imaging.ToPNG(input)
	if err != nil {
		s.log.Warn("Could not convert outline input for snapshot", zap.Error(err))
		return ""
	}
	snap, err := s.store.SnapshotOutline(ctx, inputPNG, output)
	if err != nil {
		s.log.Warn("Could not store outline snapshot", zap.Error(err))
		return ""
	}
	return snap.OutputURL
}

type canvasFillArgs struct {
	imageSource
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Color      string `json:"color"`
	Tolerance  *int   `json:"tolerance"`
	OutputPath string `json:"output_path"`
}

type canvasFillResult struct {
	*imaging.FillResult
	pngOutput
}

func (s *Server) handleCanvasFill(args json.RawMessage) (interface{}, error) {
	var a canvasFillArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	tolerance := imaging.DefaultFillTolerance
	if a.Tolerance != nil {
		tolerance = *a.Tolerance
	}

	// Canvas fills never fetch remote images.
	if a.URL != "" {
		return nil, errors.New("canvas_fill reads from path or image_base64")
	}
	data, err := s.readImage(context.Background(), a.imageSource)
	if err != nil {
		return nil, err
	}
	img, _, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}

	filled, res, err := imaging.FloodFill(img, a.X, a.Y, a.Color, tolerance)
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.EncodePNG(filled)
	if err != nil {
		return nil, err
	}
	out, err := writePNG(encoded, a.OutputPath)
	if err != nil {
		return nil, err
	}
	return canvasFillResult{FillResult: res, pngOutput: out}, nil
}

// === Care Session Handlers ===

type trackerArgs struct {
	TrackerID string `json:"tracker_id"`
}

func (s *Server) tracker(args json.RawMessage) (*care.Tracker, error) {
	var a trackerArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.trackers.Get(a.TrackerID)
}

func (s *Server) handleSessionOpen(args json.RawMessage) (interface{}, error) {
	var a struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	mode := care.ModeFun
	if a.Mode != "" {
		m, err := care.ParseMode(a.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	t := s.trackers.Open()
	t.SetMode(mode)
	info, _ := t.Session()
	return info, nil
}

func (s *Server) handleSessionSetMode(args json.RawMessage) (interface{}, error) {
	var a struct {
		trackerArgs
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	mode, err := care.ParseMode(a.Mode)
	if err != nil {
		return nil, err
	}
	t, err := s.trackers.Get(a.TrackerID)
	if err != nil {
		return nil, err
	}
	t.SetMode(mode)
	info, _ := t.Session()
	return info, nil
}

func (s *Server) handleSessionLoadTemplate(args json.RawMessage) (interface{}, error) {
	var a struct {
		trackerArgs
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	t, err := s.trackers.Get(a.TrackerID)
	if err != nil {
		return nil, err
	}
	return t.LoadTemplate(metrics.Canvas{Width: a.Width, Height: a.Height})
}

type recordEventArgs struct {
	trackerArgs
	Kind      string   `json:"kind"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Timestamp *int64   `json:"timestamp"`
}

func (s *Server) handleSessionRecordEvent(args json.RawMessage) (interface{}, error) {
	var a recordEventArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	t, err := s.trackers.Get(a.TrackerID)
	if err != nil {
		return nil, err
	}

	in := care.EventInput{Kind: a.Kind, Timestamp: a.Timestamp}
	if a.X != nil || a.Y != nil {
		if a.X == nil || a.Y == nil {
			return nil, errors.New("x and y must be given together")
		}
		in.Position = &metrics.Position{X: *a.X, Y: *a.Y}
	}
	return t.Record(in)
}

func (s *Server) handleSessionMetrics(args json.RawMessage) (interface{}, error) {
	t, err := s.tracker(args)
	if err != nil {
		return nil, err
	}
	return t.Metrics()
}

type sessionFinalizeArgs struct {
	trackerArgs
	CanvasPath   string  `json:"canvas_path"`
	CanvasBase64 string  `json:"canvas_base64"`
	ImageID      string  `json:"image_id"`
	Context      string  `json:"context"`
	UserID       *string `json:"user_id"`
	SkipReport   bool    `json:"skip_report"`
}

func (s *Server) handleSessionFinalize(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a sessionFinalizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	t, err := s.trackers.Get(a.TrackerID)
	if err != nil {
		return nil, err
	}

	req := care.FinalizeRequest{
		ImageID:    a.ImageID,
		Context:    a.Context,
		UserID:     a.UserID,
		SkipReport: a.SkipReport,
	}
	if a.CanvasPath != "" || a.CanvasBase64 != "" {
		data, err := s.readImage(ctx, imageSource{Path: a.CanvasPath, ImageBase64: a.CanvasBase64})
		if err != nil {
			return nil, err
		}
		req.CanvasPNG = data
	}
	return t.Finalize(ctx, req)
}

func (s *Server) handleSessionClose(args json.RawMessage) (interface{}, error) {
	var a trackerArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := s.trackers.Close(a.TrackerID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"closed": true, "tracker_id": a.TrackerID}, nil
}

// === Report Handlers ===

func (s *Server) handleReportAnalyze(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a struct {
		NeglectRatio     *float64                  `json:"neglect_ratio"`
		TremorScore      *float64                  `json:"tremor_score"`
		NudgeCount       *int                      `json:"nudge_count"`
		QuadrantActivity *metrics.QuadrantActivity `json:"quadrant_activity"`
		Context          string                    `json:"context"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.NeglectRatio == nil || a.TremorScore == nil || a.NudgeCount == nil {
		return nil, errors.New("neglect_ratio, tremor_score and nudge_count are required")
	}

	analysis, err := s.reporter.Analyze(ctx, report.AnalysisInput{
		NeglectRatio:     *a.NeglectRatio,
		QuadrantActivity: a.QuadrantActivity,
		TremorScore:      *a.TremorScore,
		NudgeCount:       *a.NudgeCount,
		Context:          a.Context,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"analysis": analysis}, nil
}

func (s *Server) handleReportEncouragement(ctx context.Context) (interface{}, error) {
	msg, err := s.reporter.Encourage(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": msg}, nil
}

// === Gallery Handlers ===

func (s *Server) handleGallerySave(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	var a struct {
		Path        string  `json:"path"`
		ImageBase64 string  `json:"image_base64"`
		UserID      *string `json:"user_id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	data, err := s.readImage(ctx, imageSource{Path: a.Path, ImageBase64: a.ImageBase64})
	if err != nil {
		return nil, err
	}
	pngData, err := imaging.ToPNG(data)
	if err != nil {
		return nil, err
	}
	return s.store.SaveGalleryImage(ctx, pngData, a.UserID)
}

func (s *Server) handleGalleryList(ctx context.Context) (interface{}, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	images, err := s.store.ListGalleryImages(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"images": images}, nil
}

func (s *Server) handleGalleryDelete(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	var a struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := s.store.DeleteGalleryImage(ctx, a.ID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": true, "id": a.ID}, nil
}

func (s *Server) handleSessionsStats(ctx context.Context) (interface{}, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	return s.store.Overview(ctx)
}
