package watch

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/conduit-lang/hmr/internal/hmr"
	"github.com/conduit-lang/hmr/internal/loader"
)

//go:embed assets/client.js
var clientScript string

// Routes served by the dev server
const (
	RouteSocket  = "/__hmr/ws"
	RouteClient  = "/__hmr/client.js"
	RouteGraph   = "/__hmr/graph"
	RouteStatus  = "/__hmr/status"
	RouteUpdate  = "/__hmr/update"
	RouteMetrics = "/metrics"
)

// DevServer watches module sources and drives hot update cycles
type DevServer struct {
	// Components
	watcher      *FileWatcher
	builder      *IncrementalBuilder
	registry     *loader.Registry
	engine       *hmr.Engine
	reloadServer *ReloadServer
	assetWatcher *AssetWatcher
	metrics      *Metrics
	router       chi.Router
	httpServer   *http.Server
	listener     net.Listener
	logger       *zap.Logger
	moduleLogger *zap.Logger

	// Configuration
	config DevServerConfig

	// State
	isBuilding  bool
	pending     []string
	buildMutex  sync.Mutex
	engineMutex sync.Mutex
	loaded      bool
	lastResult  *hmr.Result
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// DevServerConfig holds configuration for the dev server
type DevServerConfig struct {
	Address        string
	ManifestPath   string
	WatchDirs      []string // defaults to the manifest's directory
	WatchPatterns  []string
	IgnorePatterns []string
	Debounce       time.Duration
	Metrics        bool
	Logger         *zap.Logger
}

// DefaultDevServerConfig returns the configuration used when none is given
func DefaultDevServerConfig() *DevServerConfig {
	return &DevServerConfig{
		Address:        "localhost:3000",
		ManifestPath:   "modules.yaml",
		WatchPatterns:  []string{"*.js", "*.ts", "*.css", "*.yaml", "*.yml"},
		IgnorePatterns: []string{"*.swp", "*.swo", "node_modules", "build", "dist"},
		Debounce:       100 * time.Millisecond,
		Metrics:        true,
	}
}

// NewDevServer creates a new development server
func NewDevServer(config *DevServerConfig) (*DevServer, error) {
	if config == nil {
		config = DefaultDevServerConfig()
	}
	cfg := *config
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = "modules.yaml"
	}
	if len(cfg.WatchDirs) == 0 {
		cfg.WatchDirs = []string{filepath.Dir(cfg.ManifestPath)}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ds := &DevServer{
		builder:      NewIncrementalBuilder(cfg.ManifestPath, loader.PathResolver{}, logger),
		reloadServer: NewReloadServer(logger),
		logger:       logger.Named("devserver"),
		moduleLogger: logger,
		config:       cfg,
	}
	ds.resetInstance()
	ds.assetWatcher = NewAssetWatcher(ds.reloadServer, logger)
	if cfg.Metrics {
		ds.metrics = NewMetrics(func() float64 { return float64(ds.reloadServer.ConnectionCount()) })
	}

	var err error
	ds.watcher, err = NewFileWatcher(WatcherOptions{
		Dirs:     cfg.WatchDirs,
		Patterns: cfg.WatchPatterns,
		Ignored:  cfg.IgnorePatterns,
		Debounce: cfg.Debounce,
		Logger:   logger,
	}, ds.handleFileChange)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ds.router = ds.routes()
	return ds, nil
}

// Start performs the initial load and starts watching and serving
func (ds *DevServer) Start() error {
	ds.logger.Info("starting development server", zap.String("address", ds.config.Address))

	if err := ds.load(); err != nil {
		// Keep watching so a fix to the manifest can recover.
		ds.logger.Error("initial load failed", zap.Error(err))
	}

	if err := ds.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	if err := ds.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	ds.logger.Info("development server ready",
		zap.String("client", "http://"+ds.Addr()+RouteClient),
		zap.String("socket", "ws://"+ds.Addr()+RouteSocket),
	)
	return nil
}

// Stop stops the development server
func (ds *DevServer) Stop() error {
	ds.stopOnce.Do(func() {
		ds.logger.Info("stopping development server")

		if ds.watcher != nil {
			if err := ds.watcher.Stop(); err != nil {
				ds.logger.Warn("failed to stop watcher", zap.Error(err))
			}
		}
		if ds.reloadServer != nil {
			ds.reloadServer.Close()
		}
		if ds.httpServer != nil {
			ds.httpServer.Close()
		}
		ds.wg.Wait()
	})
	return nil
}

// Handler returns the HTTP handler of the dev server
func (ds *DevServer) Handler() http.Handler {
	return ds.router
}

// Addr returns the address the server listens on
func (ds *DevServer) Addr() string {
	if ds.listener != nil {
		return ds.listener.Addr().String()
	}
	return ds.config.Address
}

// load builds the manifest and seeds the engine
func (ds *DevServer) load() error {
	ds.engineMutex.Lock()
	defer ds.engineMutex.Unlock()
	return ds.loadLocked()
}

// resetInstance replaces the registry and engine with empty ones, standing in
// for a freshly started program.
func (ds *DevServer) resetInstance() {
	resolver := loader.PathResolver{}
	ds.registry = loader.NewRegistry(resolver, ds.moduleLogger)
	ds.engine = hmr.NewEngine(ds.registry, hmr.WithLogger(ds.moduleLogger), hmr.WithResolver(resolver))
	ds.loaded = false
}

func (ds *DevServer) loadLocked() error {
	build, err := ds.builder.FullBuild()
	if err != nil {
		ds.reportBuildError(err)
		return err
	}
	return ds.seedLocked(build)
}

func (ds *DevServer) seedLocked(build *BuildResult) error {
	// The engine counts as loaded even when an entry fails to execute; later
	// cycles can still fix the failing module.
	ds.loaded = true
	for from, to := range build.Update.Aliases {
		ds.registry.Alias(from, to)
	}
	if err := ds.engine.Load(build.Update.Graph, build.Update.Definitions, build.Entries...); err != nil {
		return fmt.Errorf("failed to load modules: %w", err)
	}
	return nil
}

// handleFileChange handles a debounced batch of file system changes. Batches
// arriving during a cycle are queued and processed right after it.
func (ds *DevServer) handleFileChange(files []string) error {
	ds.buildMutex.Lock()
	if ds.isBuilding {
		ds.pending = append(ds.pending, files...)
		ds.buildMutex.Unlock()
		ds.logger.Debug("update in progress, queued changes", zap.Strings("files", files))
		return nil
	}
	ds.isBuilding = true
	ds.buildMutex.Unlock()

	var errs []error
	for {
		if err := ds.processChanges(files); err != nil {
			errs = append(errs, err)
		}

		ds.buildMutex.Lock()
		files = ds.pending
		ds.pending = nil
		if len(files) == 0 {
			ds.isBuilding = false
			ds.buildMutex.Unlock()
			return errors.Join(errs...)
		}
		ds.buildMutex.Unlock()
	}
}

func (ds *DevServer) processChanges(files []string) error {
	impact := AnalyzeImpact(files, ds.builder)

	ds.engineMutex.Lock()
	loaded := ds.loaded
	ds.engineMutex.Unlock()
	if !loaded {
		// Without a successful build the source set is unknown.
		impact = &ChangeImpact{Scope: ScopeModule, Modules: files}
	}

	if impact.Scope == ScopeNone {
		return nil
	}

	ds.reloadServer.NotifyBuilding(files)

	if impact.Scope == ScopeModule {
		ds.logger.Info("modules changed", zap.Strings("files", impact.Modules))
		res, err := ds.cycle(impact.Modules)
		if err != nil {
			return err
		}
		if res.Outcome == hmr.OutcomeReload {
			// The page reload picks up the assets as well.
			return nil
		}
	}

	if len(impact.Assets) > 0 {
		ds.assetWatcher.HandleAssetChange(impact.Assets)
	}
	return nil
}

// cycle rebuilds the manifest and runs one update cycle
func (ds *DevServer) cycle(files []string) (*hmr.Result, error) {
	ds.engineMutex.Lock()
	if !ds.loaded {
		err := ds.loadLocked()
		ds.engineMutex.Unlock()
		if err != nil {
			return nil, err
		}
		ds.reloadServer.NotifyReload("modules loaded")
		return &hmr.Result{Outcome: hmr.OutcomeReload}, nil
	}

	build, err := ds.builder.IncrementalBuild(files)
	if err != nil {
		ds.engineMutex.Unlock()
		ds.reportBuildError(err)
		return nil, err
	}

	res, err := ds.engine.Update(build.Update)
	if err == nil {
		ds.lastResult = res
	}
	if err == nil && res.Outcome == hmr.OutcomeReload {
		// Clients restart from this build, so the server-side instance does too.
		ds.resetInstance()
		if seedErr := ds.seedLocked(build); seedErr != nil {
			ds.logger.Warn("reload left failing modules", zap.Error(seedErr))
		}
	}
	ds.engineMutex.Unlock()
	if err != nil {
		return nil, err
	}

	if ds.metrics != nil {
		ds.metrics.ObserveCycle(res)
	}
	for _, failure := range res.Failed {
		ds.logger.Error("module failed during update",
			zap.String("cycle", res.Cycle),
			zap.String("module", string(failure.ID)),
			zap.String("phase", failure.Phase),
			zap.Error(failure.Err),
		)
	}

	ds.reloadServer.NotifyResult(res)
	return res, nil
}

func (ds *DevServer) reportBuildError(err error) {
	ds.logger.Error("build failed", zap.Error(err))
	if ds.metrics != nil {
		ds.metrics.ObserveBuildError()
	}
	ds.reloadServer.NotifyError(&ErrorInfo{
		Message: err.Error(),
		File:    ds.builder.ManifestPath(),
		Phase:   "build",
	})
}

// startHTTPServer starts serving the dev server routes
func (ds *DevServer) startHTTPServer() error {
	listener, err := net.Listen("tcp", ds.config.Address)
	if err != nil {
		return err
	}
	ds.listener = listener

	ds.httpServer = &http.Server{
		Handler:           ds.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ds.wg.Add(1)
	go func() {
		defer ds.wg.Done()
		if err := ds.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ds.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

func (ds *DevServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(ds.logger, RouteSocket))
	r.Use(middleware.Recoverer)
	r.Use(localCORS)

	r.Get(RouteSocket, ds.reloadServer.HandleWebSocket)
	r.Get(RouteClient, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write([]byte(clientScript))
	})
	r.Get(RouteGraph, ds.handleGraph)
	r.Get(RouteStatus, ds.handleStatus)
	r.Post(RouteUpdate, ds.handleUpdate)
	if ds.metrics != nil {
		r.Method(http.MethodGet, RouteMetrics, ds.metrics.Handler())
	}

	return r
}

// handleGraph exports the dependency graph as json, dot or mermaid
func (ds *DevServer) handleGraph(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")

	ds.engineMutex.Lock()
	graph := ds.engine.Graph()
	var body []byte
	var contentType string
	var err error
	switch format {
	case "", "json":
		contentType = "application/json"
		body, err = json.Marshal(graph.Snapshot())
	case "dot":
		contentType = "text/vnd.graphviz"
		body = []byte(graph.DOT())
	case "mermaid":
		contentType = "text/plain; charset=utf-8"
		body = []byte(graph.Mermaid())
	default:
		ds.engineMutex.Unlock()
		http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
		return
	}
	ds.engineMutex.Unlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

// Status is the payload of the status route
type Status struct {
	Loaded    bool          `json:"loaded"`
	Building  bool          `json:"building"`
	Modules   int           `json:"modules"`
	Nodes     int           `json:"nodes"`
	Clients   int           `json:"clients"`
	LastBuild time.Time     `json:"lastBuild,omitempty"`
	LastCycle *CycleSummary `json:"lastCycle,omitempty"`
}

// CycleSummary describes the most recent update cycle
type CycleSummary struct {
	Cycle      string   `json:"cycle"`
	Outcome    string   `json:"outcome"`
	Updated    []string `json:"updated,omitempty"`
	Unresolved []string `json:"unresolved,omitempty"`
	Added      []string `json:"added,omitempty"`
	Removed    []string `json:"removed,omitempty"`
	Failed     []string `json:"failed,omitempty"`
	Passes     int      `json:"passes"`
	DurationMs float64  `json:"durationMs"`
}

// Status reports the current state of the server
func (ds *DevServer) Status() Status {
	ds.buildMutex.Lock()
	building := ds.isBuilding
	ds.buildMutex.Unlock()

	ds.engineMutex.Lock()
	defer ds.engineMutex.Unlock()

	st := Status{
		Loaded:    ds.loaded,
		Building:  building,
		Modules:   len(ds.engine.Definitions()),
		Nodes:     ds.engine.Graph().Len(),
		Clients:   ds.reloadServer.ConnectionCount(),
		LastBuild: ds.builder.LastBuild(),
	}
	if res := ds.lastResult; res != nil {
		st.LastCycle = &CycleSummary{
			Cycle:      res.Cycle,
			Outcome:    res.Outcome.String(),
			Updated:    hmr.Strings(res.Updated),
			Unresolved: hmr.Strings(res.Unresolved),
			Added:      hmr.Strings(res.Changes.Added),
			Removed:    hmr.Strings(res.Changes.Removed),
			Passes:     res.Passes,
			DurationMs: float64(res.Duration.Microseconds()) / 1000,
		}
		for _, f := range res.Failed {
			st.LastCycle.Failed = append(st.LastCycle.Failed, string(f.ID))
		}
	}
	return st
}

func (ds *DevServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ds.Status())
}

// handleUpdate forces a cycle as if the manifest had changed
func (ds *DevServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := ds.handleFileChange([]string{ds.builder.ManifestPath()}); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	ds.handleStatus(w, r)
}
