package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/otel/trace"

	_ "github.com/raysh454/auditai/docs/swagger" // registers the OpenAPI document
	"github.com/raysh454/auditai/internal/app"
	"github.com/raysh454/auditai/internal/logging"
	"github.com/raysh454/auditai/internal/tracing"
)

// Server is the HTTP, SSE and WebSocket API surface of auditai.
type Server struct {
	app      *app.Application
	cfg      app.ServerConfig
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
	tracer   trace.Tracer
}

// New creates a Server on top of a wired Application. The Application
// stays owned by the caller.
func New(a *app.Application) *Server {
	r := chi.NewRouter()
	s := &Server{
		app:    a,
		cfg:    a.Config.Server,
		router: r,
		logger: a.Logger.With(logging.Field{Key: "component", Value: "server"}),
		tracer: tracing.Tracer("server"),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.originAllowed}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/scan", s.optionsHandler("POST"))
	r.Options("/analysis", s.optionsHandler("POST"))

	r.Get("/health", s.handleHealth)

	// Scans
	r.Post("/scan", s.handleStartScan)
	r.Get("/scan/{id}", s.handleGetScan)
	r.Get("/scan/{id}/events", s.handleScanEvents)
	r.Get("/scan/{id}/report.pdf", s.handleScanReport)
	r.Get("/scans", s.handleListScans)

	// AI analysis
	r.Get("/api/ai/providers/status", s.handleProviderStatus)
	r.Post("/analysis", s.handleStartAnalysis)
	r.Get("/analysis/{id}", s.handleGetAnalysis)
	r.Get("/analysis/{id}/events", s.handleAnalysisEvents)
	r.Get("/analysis/{id}/report.pdf", s.handleAnalysisReport)

	// Jobs of any kind
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Get("/ws/jobs/{id}", s.handleJobWS)

	r.Handle("/metrics", s.app.Metrics.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case slices.Contains(s.cfg.AllowedOrigins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.cfg.AllowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// instrument logs every request and records it by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.app.Metrics.HTTPRequest(r.Method, route, status, elapsed)
		s.logger.Info("http_request",
			logging.Field{Key: "method", Value: r.Method},
			logging.Field{Key: "path", Value: r.URL.Path},
			logging.Field{Key: "status", Value: status},
			logging.Field{Key: "duration_ms", Value: elapsed.Milliseconds()})
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe. Request
// contexts derive from base, so canceling base ends open event streams.
func (s *Server) HTTPServer(base context.Context) *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // allow streaming
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

// Run serves until ctx is done, then shuts the listener down within the
// configured timeout. Open event streams are ended first.
func (s *Server) Run(ctx context.Context) error {
	base, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	srv := s.HTTPServer(base)
	srv.RegisterOnShutdown(cancelStreams)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", logging.Field{Key: "addr", Value: srv.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("http shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http: %w", err)
	}
	return nil
}
