package server

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gocloud.dev/blob/memblob"

	"github.com/ironsheep/coloring-care/internal/config"
	"github.com/ironsheep/coloring-care/internal/nudge"
	"github.com/ironsheep/coloring-care/internal/report"
	"github.com/ironsheep/coloring-care/internal/store"
)

// scriptedGenerator answers every prompt with a fixed text.
type scriptedGenerator struct {
	text string
}

func (g scriptedGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	if strings.Contains(prompt, "encouraging message") {
		return "You're doing great!", nil
	}
	return g.text, nil
}

type testEnv struct {
	server *Server
	clock  *nudge.FakeClock
	store  *store.Store
	cfg    *config.Config
}

// newTestEnv builds a server over SQLite in a temp dir, an in-memory
// bucket, a fake clock and a scripted text generator.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	db, err := store.OpenDB(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "server.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	st, err := store.New(db, memblob.OpenBucket(nil), "/objects", zap.NewNop())
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clock := nudge.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	srv := New(Options{
		Config:   cfg,
		Reporter: report.New(scriptedGenerator{text: "Attention was evenly spread."}, cfg.Report, zap.NewNop()),
		Store:    st,
		Clock:    clock,
		Log:      zap.NewNop(),
		Version:  "test",
	})
	t.Cleanup(srv.trackers.Shutdown)

	return &testEnv{server: srv, clock: clock, store: st, cfg: cfg}
}

func TestNew(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.server
	if s.cache == nil {
		t.Fatal("New() did not initialize cache")
	}
	if s.trackers == nil {
		t.Fatal("New() did not initialize trackers")
	}
	if s.outline.MaxDimension != 2000 || s.outline.LowThreshold != 20 || s.outline.HighThreshold != 40 {
		t.Errorf("outline defaults not applied: %+v", s.outline)
	}
}

func TestNew_WithoutReporter(t *testing.T) {
	s := New(Options{Config: config.Default(), Log: zap.NewNop()})
	defer s.trackers.Shutdown()
	if s.reporter == nil || s.reporter.Configured() {
		t.Error("server without reporter should get an unconfigured client")
	}
	if s.store != nil {
		t.Error("store should stay nil")
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{
			"string id",
			`{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`,
			"test-1",
			"tools/list",
		},
		{
			"number id",
			`{"jsonrpc":"2.0","id":42,"method":"ping"}`,
			float64(42), // JSON numbers decode as float64
			"ping",
		},
		{
			"null id",
			`{"jsonrpc":"2.0","id":null,"method":"initialize"}`,
			nil,
			"initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
		})
	}
}

func TestMCPResponse_WithError(t *testing.T) {
	resp := MCPResponse{
		JSONRPC: "2.0",
		ID:      1,
		Error: &MCPError{
			Code:    -32601,
			Message: "Method not found",
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if strings.Contains(string(data), `"result"`) {
		t.Errorf("error response should omit result: %s", data)
	}

	var decoded MCPResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != -32601 {
		t.Errorf("Error: got %+v", decoded.Error)
	}
}

func TestHandleRequest_Initialize(t *testing.T) {
	s := newTestEnv(t, nil).server
	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
	}

	resp := s.handleRequest(context.Background(), req)

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}

	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	if !ok {
		t.Fatal("serverInfo should be a map")
	}
	if serverInfo["name"] != "coloring-care" || serverInfo["version"] != "test" {
		t.Errorf("serverInfo: got %v", serverInfo)
	}
}

func TestHandleRequest_Ping(t *testing.T) {
	s := newTestEnv(t, nil).server
	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: "ping-1", Method: "ping"})

	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ID != "ping-1" {
		t.Errorf("ID: got %v, want ping-1", resp.ID)
	}
}

func TestHandleRequest_NotificationsInitialized(t *testing.T) {
	s := newTestEnv(t, nil).server
	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", Method: "notifications/initialized"})

	// Notifications don't get responses
	if resp != nil {
		t.Error("notifications/initialized should return nil response")
	}
}

func TestHandleRequest_MethodNotFound(t *testing.T) {
	s := newTestEnv(t, nil).server
	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "nonexistent/method"})

	if resp == nil || resp.Error == nil {
		t.Fatal("Expected error for unknown method")
	}
	if resp.Error.Code != -32601 {
		t.Errorf("Error code: got %d, want -32601", resp.Error.Code)
	}
}

// stdioClient drives Serve over pipes.
type stdioClient struct {
	t   *testing.T
	in  *io.PipeWriter
	dec *json.Decoder
	id  int
}

func (c *stdioClient) send(method string, params interface{}) {
	c.t.Helper()
	c.id++
	req := map[string]interface{}{"jsonrpc": "2.0", "id": c.id, "method": method}
	if params != nil {
		req["params"] = params
	}
	line, err := json.Marshal(req)
	if err != nil {
		c.t.Fatal(err)
	}
	if _, err := c.in.Write(append(line, '\n')); err != nil {
		c.t.Fatalf("write failed: %v", err)
	}
}

// next reads one message from the server.
func (c *stdioClient) next() map[string]interface{} {
	c.t.Helper()
	done := make(chan map[string]interface{}, 1)
	go func() {
		var msg map[string]interface{}
		if err := c.dec.Decode(&msg); err != nil {
			done <- nil
			return
		}
		done <- msg
	}()
	select {
	case msg := <-done:
		if msg == nil {
			c.t.Fatal("failed to decode server message")
		}
		return msg
	case <-time.After(5 * time.Second):
		c.t.Fatal("timed out waiting for server message")
		return nil
	}
}

// toolText extracts and decodes the text content of a tools/call response.
func toolText(t *testing.T, msg map[string]interface{}, into interface{}) {
	t.Helper()
	if msg["error"] != nil {
		t.Fatalf("unexpected error: %v", msg["error"])
	}
	result := msg["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	if err := json.Unmarshal([]byte(text), into); err != nil {
		t.Fatalf("bad tool text %q: %v", text, err)
	}
}

func TestServe_NudgeNotification(t *testing.T) {
	env := newTestEnv(t, nil)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	served := make(chan error, 1)
	go func() {
		served <- env.server.Serve(context.Background(), inR, outW)
		outW.Close()
	}()

	c := &stdioClient{t: t, in: inW, dec: json.NewDecoder(outR)}

	c.send("initialize", nil)
	if msg := c.next(); msg["result"] == nil {
		t.Fatalf("initialize failed: %v", msg)
	}

	c.send("tools/call", map[string]interface{}{
		"name":      "session_open",
		"arguments": map[string]interface{}{"mode": "care"},
	})
	var opened struct {
		TrackerID string `json:"trackerId"`
		Mode      string `json:"mode"`
	}
	toolText(t, c.next(), &opened)
	if opened.TrackerID == "" || opened.Mode != "care" {
		t.Fatalf("session_open: %+v", opened)
	}

	c.send("tools/call", map[string]interface{}{
		"name":      "session_load_template",
		"arguments": map[string]interface{}{"tracker_id": opened.TrackerID, "width": 800, "height": 600},
	})
	var info struct {
		SessionID string `json:"sessionId"`
	}
	toolText(t, c.next(), &info)

	env.clock.Advance(60 * time.Second)

	msg := c.next()
	if msg["method"] != NudgeMethod {
		t.Fatalf("expected nudge notification, got %v", msg)
	}
	if _, hasID := msg["id"]; hasID {
		t.Error("notifications must not carry an id")
	}
	params := msg["params"].(map[string]interface{})
	if params["sessionId"] != info.SessionID || params["message"] != "You're doing great!" {
		t.Errorf("notification params: %v", params)
	}

	inW.Close()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after input closed")
	}
}

func TestServe_SkipsMalformedLines(t *testing.T) {
	env := newTestEnv(t, nil)
	input := "not json\n\n" + `{"jsonrpc":"2.0","id":7,"method":"ping"}` + "\n"
	var out strings.Builder

	if err := env.server.Serve(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], `"id":7`) {
		t.Errorf("expected one ping response, got %q", out.String())
	}
}

func TestApplyConfig(t *testing.T) {
	env := newTestEnv(t, nil)

	cfg := config.Default()
	cfg.Outline.MaxDimension = 16
	cfg.Storage.SnapshotTemplates = true
	env.server.ApplyConfig(cfg)

	if env.server.outline.MaxDimension != 16 || !env.server.snapshot {
		t.Errorf("tunables not applied: %+v", env.server.outline)
	}
}
