package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/care"
	"github.com/ironsheep/coloring-care/internal/config"
	"github.com/ironsheep/coloring-care/internal/imaging"
	"github.com/ironsheep/coloring-care/internal/metrics"
	"github.com/ironsheep/coloring-care/internal/nudge"
	"github.com/ironsheep/coloring-care/internal/report"
	"github.com/ironsheep/coloring-care/internal/store"
)

// Store is the persistence the HTTP routes need. *store.Store implements it.
type Store interface {
	care.Store
	ListGalleryImages(ctx context.Context) ([]store.GalleryImage, error)
	DeleteGalleryImage(ctx context.Context, id string) error
	SaveTemplate(ctx context.Context, data []byte, ext string) (*store.TemplateUpload, error)
	SnapshotOutline(ctx context.Context, input, output []byte) (*store.Snapshot, error)
	Overview(ctx context.Context) (metrics.Overview, error)
	ReadObject(ctx context.Context, key string) ([]byte, string, error)
}

// Options configures an API. Config and Log are required.
type Options struct {
	Config   *config.Config
	Reporter *report.Client
	Store    Store
	Clock    nudge.Clock
	Log      *zap.Logger
	Version  string
}

// API serves the REST routes and the care WebSocket.
type API struct {
	log      *zap.Logger
	version  string
	cache    *imaging.OutlineCache
	client   *http.Client
	reporter *report.Client
	store    Store
	trackers *care.Manager

	mu  sync.RWMutex
	cfg *config.Config

	clientsMu sync.RWMutex
	clients   map[string]*wsClient // by tracker id
}

// New creates the API and its tracker manager.
func New(opts Options) *API {
	log := opts.Log.Named("http")
	reporter := opts.Reporter
	if reporter == nil {
		reporter = report.New(nil, opts.Config.Report, log)
	}

	a := &API{
		log:      log,
		version:  opts.Version,
		cache:    imaging.NewOutlineCache(opts.Config.Outline.CacheEntries),
		client:   &http.Client{},
		reporter: reporter,
		store:    opts.Store,
		cfg:      opts.Config,
		clients:  make(map[string]*wsClient),
	}
	a.trackers = care.NewManager(care.SettingsFromConfig(opts.Config), care.Deps{
		Clock:    opts.Clock,
		Reporter: reporter,
		Store:    opts.Store,
		Notify:   a.notifyNudge,
		Log:      log,
	})
	return a
}

// ApplyConfig swaps in reloaded settings for new requests and sessions.
func (a *API) ApplyConfig(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.trackers.UpdateSettings(care.SettingsFromConfig(cfg))
}

func (a *API) config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Handler returns the gin engine with all routes configured.
func (a *API) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(a.log))

	router.GET("/healthz", a.handleHealth)
	router.GET("/ws/care", a.handleCareSocket)

	api := router.Group("/api")
	{
		api.POST("/process-template", a.handleProcessTemplate)
		api.POST("/upload-template", a.handleUploadTemplate)

		api.GET("/gallery", a.handleListGallery)
		api.POST("/gallery", a.handleSaveGallery)
		api.DELETE("/gallery/:id", a.handleDeleteGallery)

		api.POST("/sessions", a.handleSaveSession)
		api.GET("/sessions/stats", a.handleSessionStats)

		api.POST("/gemini/analyze", a.handleAnalyze)
		api.POST("/gemini/encouragement", a.handleEncouragement)
	}

	// Stored objects are served locally only when their public URLs are
	// relative to this server.
	if base := strings.TrimSuffix(a.config().Storage.PublicBaseURL, "/"); strings.HasPrefix(base, "/") && base != "" {
		router.GET(base+"/*key", a.handleObject)
	}

	return router
}

// Serve runs the HTTP server on addr until ctx is cancelled, then closes
// every tracker.
func (a *API) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		a.Close()
		return err
	case <-ctx.Done():
	}

	a.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	a.Close()
	return err
}

// Close drops socket clients and ends every care session.
func (a *API) Close() {
	a.closeClients()
	a.trackers.Shutdown()
}
