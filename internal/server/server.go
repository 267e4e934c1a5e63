package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/care"
	"github.com/ironsheep/coloring-care/internal/config"
	"github.com/ironsheep/coloring-care/internal/imaging"
	"github.com/ironsheep/coloring-care/internal/metrics"
	"github.com/ironsheep/coloring-care/internal/nudge"
	"github.com/ironsheep/coloring-care/internal/report"
	"github.com/ironsheep/coloring-care/internal/store"
)

// NudgeMethod is the notification pushed when a care session goes idle.
const NudgeMethod = "notifications/session/nudge"

// maxRequestLine bounds a single JSON-RPC line; base64 images make these
// much larger than typical requests.
const maxRequestLine = 64 << 20

// Store is the persistence the server's tools need. *store.Store
// implements it.
type Store interface {
	care.Store
	ListGalleryImages(ctx context.Context) ([]store.GalleryImage, error)
	DeleteGalleryImage(ctx context.Context, id string) error
	SnapshotOutline(ctx context.Context, input, output []byte) (*store.Snapshot, error)
	Overview(ctx context.Context) (metrics.Overview, error)
}

// Server handles MCP protocol communication
type Server struct {
	log      *zap.Logger
	version  string
	cache    *imaging.OutlineCache
	client   *http.Client
	reporter *report.Client
	store    Store
	trackers *care.Manager

	// tunables, replaced on config reload
	mu            sync.RWMutex
	outline       imaging.OutlineOptions
	fetchTimeout  time.Duration
	maxFetchBytes int64
	snapshot      bool

	outMu sync.Mutex
	enc   *json.Encoder
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Options configures a Server. Config and Log are required; a nil Store
// disables the gallery and session tools.
type Options struct {
	Config   *config.Config
	Reporter *report.Client
	Store    Store
	Clock    nudge.Clock
	Log      *zap.Logger
	Version  string
}

// New creates a new MCP server instance
func New(opts Options) *Server {
	log := opts.Log.Named("mcp")
	reporter := opts.Reporter
	if reporter == nil {
		reporter = report.New(nil, opts.Config.Report, log)
	}

	s := &Server{
		log:      log,
		version:  opts.Version,
		cache:    imaging.NewOutlineCache(opts.Config.Outline.CacheEntries),
		client:   &http.Client{},
		reporter: reporter,
		store:    opts.Store,
	}
	s.applyTunables(opts.Config)

	s.trackers = care.NewManager(care.SettingsFromConfig(opts.Config), care.Deps{
		Clock:    opts.Clock,
		Reporter: reporter,
		Store:    opts.Store,
		Notify:   s.notifyNudge,
		Log:      log,
	})
	return s
}

// ApplyConfig swaps in reloaded tunables. Running sessions keep their nudge
// interval; new work uses the new values.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.applyTunables(cfg)
	s.trackers.UpdateSettings(care.SettingsFromConfig(cfg))
	s.log.Info("Applied reloaded configuration",
		zap.Int("max_dimension", cfg.Outline.MaxDimension),
		zap.Duration("nudge_interval", cfg.Nudge.Interval),
	)
}

func (s *Server) applyTunables(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outline = imaging.OutlineOptions{
		MaxDimension:  cfg.Outline.MaxDimension,
		LowThreshold:  cfg.Outline.LowThreshold,
		HighThreshold: cfg.Outline.HighThreshold,
	}
	s.fetchTimeout = cfg.Outline.FetchTimeout
	s.maxFetchBytes = cfg.Outline.MaxFetchBytes
	s.snapshot = cfg.Storage.SnapshotTemplates
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses and
// notifications to w until r is exhausted. Open trackers are closed on
// return.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	defer s.trackers.Shutdown()

	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxRequestLine)

	s.outMu.Lock()
	s.enc = json.NewEncoder(w)
	s.outMu.Unlock()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn("Failed to parse request", zap.Error(err))
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			s.write(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// write encodes one message; responses and nudge notifications share the
// output stream.
func (s *Server) write(v interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.enc == nil {
		return
	}
	if err := s.enc.Encode(v); err != nil {
		s.log.Error("Failed to encode message", zap.Error(err))
	}
}

func (s *Server) notifyNudge(n care.NudgeNotice) {
	s.write(&MCPNotification{
		JSONRPC: "2.0",
		Method:  NudgeMethod,
		Params:  n,
	})
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "coloring-care",
				"version": s.version,
			},
		},
	}
}
