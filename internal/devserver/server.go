// Package devserver serves the destination directory during development
// and pushes live reload events to connected browsers.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/stage"
)

// Config configures a Server.
type Config struct {
	Host string
	Port int
	// Status, when set, is exposed as JSON at /__status.
	Status *stage.StatusTracker
	// Metrics, when set, is mounted at /metrics.
	Metrics  http.Handler
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Server is the development HTTP server. It is inactive until Init.
type Server struct {
	cfg Config

	mu     sync.Mutex
	active bool
	root   string
	hub    *LiveReloadHub
	srv    *http.Server
	ln     net.Listener
	served chan struct{}
}

func New(cfg Config) *Server {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg}
}

// Init binds the listener and starts serving rootDir. Calling Init on an
// active server is an error.
func (s *Server) Init(ctx context.Context, rootDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return ferrors.ServerError("dev server already running").
			WithContext("addr", s.ln.Addr().String()).
			Build()
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryServer, "failed to bind dev server").
			Fatal().
			WithContext("addr", addr).
			Build()
	}

	hub := NewLiveReloadHub(s.cfg.Recorder)
	srv := &http.Server{
		Handler:           chain(s.cfg.Logger, ferrors.NewHTTPErrorAdapter(s.cfg.Logger))(s.routes(rootDir, hub)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Logger.Error("Dev server stopped", logfields.Error(err))
		}
	}()

	s.active = true
	s.root = rootDir
	s.hub = hub
	s.srv = srv
	s.ln = ln
	s.served = served

	s.cfg.Logger.Info("Dev server listening",
		slog.String("url", "http://"+ln.Addr().String()+"/"),
		logfields.Path(rootDir))
	return nil
}

func (s *Server) routes(rootDir string, hub *LiveReloadHub) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(liveReloadPath, hub)
	mux.HandleFunc(liveReloadScriptPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(liveReloadScript))
	})
	mux.HandleFunc(statusPath, s.handleStatus)
	if s.cfg.Metrics != nil {
		mux.Handle(metricsPath, s.cfg.Metrics)
	}
	mux.Handle("/", noCache(injectLiveReload(http.FileServer(http.Dir(rootDir)))))
	return mux
}

type statusResponse struct {
	Healthy bool              `json:"healthy"`
	Clients int               `json:"livereload_clients"`
	Stages  []stage.RunStatus `json:"stages"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Healthy: true, Stages: []stage.RunStatus{}}
	if s.cfg.Status != nil {
		resp.Healthy = s.cfg.Status.Healthy()
		resp.Stages = s.cfg.Status.Snapshot()
	}
	s.mu.Lock()
	if s.hub != nil {
		resp.Clients = s.hub.Clients()
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !resp.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Addr returns the bound address, or "" when inactive.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ""
	}
	return s.ln.Addr().String()
}

// Active reports whether the server is serving.
func (s *Server) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Notify tells connected browsers that category c changed. It is a no-op
// while the server is inactive.
func (s *Server) Notify(c asset.Category) {
	s.mu.Lock()
	hub := s.hub
	active := s.active
	s.mu.Unlock()
	if !active {
		return
	}
	hub.Broadcast(ReloadEvent{Hash: newHash(), Category: c})
}

// Shutdown disconnects live reload clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	hub, srv, served := s.hub, s.srv, s.served
	s.mu.Unlock()

	hub.Shutdown()
	if err := srv.Shutdown(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryServer, "dev server shutdown failed").Build()
	}
	<-served
	s.cfg.Logger.Info("Dev server stopped")
	return nil
}
