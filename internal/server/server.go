// Package server is the development server: it serves the output root with
// a live-reload client injected into HTML pages, and exposes the reload
// websocket, a status page, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/scheduler"
	"github.com/conneroisu/kiln/internal/version"
)

// StatusSource reports the per-class status.
type StatusSource interface {
	Status() []scheduler.Status
}

// Options configures a Server.
type Options struct {
	Addr string
	// Root is the directory served, typically the output root.
	Root   afero.Fs
	Hub    http.Handler
	Status StatusSource
	// Registry backs /metrics; nil disables the endpoint.
	Registry *prometheus.Registry
	// Title prefixes the status page.
	Title  string
	Open   bool
	Logger logging.Logger
}

// Server serves the built site.
type Server struct {
	opts   Options
	router chi.Router
	logger logging.Logger

	mu         sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Title == "" {
		opts.Title = "kiln"
	}
	s := &Server{opts: opts, logger: opts.Logger.WithComponent("server")}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", s.handleHealth)
	r.Get(reloadScriptPath, s.handleReloadScript)
	if s.opts.Hub != nil {
		r.Handle("/__kiln/ws", s.opts.Hub)
	}
	if s.opts.Status != nil {
		r.Get("/__kiln/status", s.handleStatus)
		r.Get("/__kiln/status.json", s.handleStatusJSON)
	}
	if s.opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{}))
	}
	if s.opts.Root != nil {
		r.Get("/*", s.handleStatic)
		r.Head("/*", s.handleStatic)
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Short()})
}

func (s *Server) handleReloadScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = io.WriteString(w, reloadClient)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	templ.Handler(StatusPage(s.opts.Title, s.opts.Status.Status())).ServeHTTP(w, r)
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Status.Status())
}

// handleStatic serves files below Root. Directories serve their index.html
// and HTML responses get the live-reload client.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	info, err := s.opts.Root.Stat(name)
	if err == nil && info.IsDir() {
		name = path.Join(name, "index.html")
		info, err = s.opts.Root.Stat(name)
	}
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	f, err := s.opts.Root.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Cache-Control", "no-cache")
	if ext := path.Ext(name); ext != ".html" && ext != ".htm" {
		http.ServeContent(w, r, name, info.ModTime(), f)
		return
	}

	doc, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "cannot read file", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, name, info.ModTime(), strings.NewReader(string(InjectReloadScript(doc))))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	addr := "http://" + ln.Addr().String()
	s.logger.Info(ctx, "Serving", "url", addr)
	if s.opts.Open {
		go s.openBrowser(ctx, addr)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) openBrowser(ctx context.Context, target string) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		s.logger.Warn(ctx, err, "Refusing to open browser", "url", target)
		return
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", u.String())
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", u.String())
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", u.String())
	default:
		s.logger.Warn(ctx, nil, "Cannot open browser on this platform", "os", runtime.GOOS)
		return
	}
	if err := cmd.Start(); err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser")
	}
}
