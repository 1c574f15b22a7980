// Package api is the HTTP surface of tilegw: a parent router that mounts one
// project under /projects/{name} and the project server that dispatches
// tile, metadata, poll, export and reload requests.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/mattjoyce/tilegw/internal/events"
	"github.com/mattjoyce/tilegw/internal/metrics"
	"github.com/mattjoyce/tilegw/internal/project"
)

// Config holds API server configuration.
type Config struct {
	Listen string
	// ProjectName is the {name} segment the project is mounted under.
	ProjectName string
	CORSOrigins []string
	// LoadWait bounds how long a request waits for the project to load; 0 waits
	// as long as the client does.
	LoadWait time.Duration
	// ExportRatePerMinute and ExportBurst throttle /export/; 0 disables the limit.
	ExportRatePerMinute int
	ExportBurst         int
	MetricsPath         string
}

// Server is the parent router.
type Server struct {
	config    Config
	project   *project.Project
	projects  *ProjectServer
	events    *events.Hub
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	mu     sync.RWMutex
	routes map[string]http.HandlerFunc
}

// New creates the parent server. hub and m may be nil.
func New(config Config, proj *project.Project, hub *events.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	if config.ProjectName == "" {
		config.ProjectName = "project"
	}
	s := &Server{
		config:    config,
		project:   proj,
		events:    hub,
		metrics:   m,
		logger:    logger,
		startedAt: time.Now(),
		routes:    make(map[string]http.HandlerFunc),
	}
	var limiter *rate.Limiter
	if config.ExportRatePerMinute > 0 {
		burst := config.ExportBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(config.ExportRatePerMinute)/60), burst)
	}
	s.projects = &ProjectServer{
		parent:   s,
		project:  proj,
		metrics:  m,
		logger:   logger.With("component", "project-server"),
		loadWait: config.LoadWait,
		exports:  limiter,
	}
	s.HandleProjectRoute("/status/", s.handleStatus)
	return s
}

// ProjectURL is the canonical URL path of the mounted project.
func (s *Server) ProjectURL() string {
	return "/projects/" + s.config.ProjectName + "/"
}

// HandleProjectRoute registers fn for an exact project-relative path such as
// "/status/". Built-in project paths take precedence.
func (s *Server) HandleProjectRoute(path string, fn http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = fn
}

func (s *Server) projectRoute(path string) (http.HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.routes[path]
	return fn, ok
}

func (s *Server) hasProjectRoute(path string) bool {
	_, ok := s.projectRoute(path)
	return ok
}

// Redirect sends a permanent redirect to url.
func (s *Server) Redirect(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusMovedPermanently)
}

// NotFound writes the 404 response.
func (s *Server) NotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotFound, "not found: "+r.URL.Path)
}

// Start starts the HTTP server and blocks until ctx ends or serving fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // exports can be slow
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "project_url", s.ProjectURL())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the full middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.NotFound(s.NotFound)
	r.Get("/healthz", s.handleHealthz)
	if s.events != nil {
		r.Get("/events", s.handleEvents)
	}
	if s.metrics != nil && s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, s.metrics.Handler())
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		s.Redirect(w, r, s.ProjectURL())
	})
	r.HandleFunc("/projects/{name}", s.serveProject)
	r.HandleFunc("/projects/{name}/*", s.serveProject)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost},
	}).Handler(r)
}

func (s *Server) serveProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name != s.config.ProjectName {
		s.NotFound(w, r)
		return
	}
	rel := strings.TrimPrefix(r.URL.Path, "/projects/"+name)
	s.projects.Serve(w, r, rel)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
