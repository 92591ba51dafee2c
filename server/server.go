package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/neocode24/dify-a2a-gateway/manager"
	"github.com/neocode24/dify-a2a-gateway/mcp"
	"github.com/neocode24/dify-a2a-gateway/session"
)

// ServiceName is reported by the health endpoint and the MCP server.
const ServiceName = "dify-a2a-gateway"

// Server routes HTTP requests to the task manager.
type Server struct {
	manager  *manager.Manager
	cache    session.Cache
	logger   *slog.Logger
	version  string
	upstream string
	origins  []string
	agui     bool
	mcp      bool

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithCache sets the session cache whose health is reported.
func WithCache(c session.Cache) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithUpstream sets the upstream provider name reported by /health.
func WithUpstream(name string) Option {
	return func(s *Server) {
		s.upstream = name
	}
}

// WithCORSOrigins sets the allowed origins. "*" allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithAGUI enables or disables the /agui endpoint.
func WithAGUI(enabled bool) Option {
	return func(s *Server) {
		s.agui = enabled
	}
}

// WithMCP enables or disables the /mcp endpoint.
func WithMCP(enabled bool) Option {
	return func(s *Server) {
		s.mcp = enabled
	}
}

// New creates a Server. The AG-UI and MCP endpoints are enabled by default.
func New(m *manager.Manager, opts ...Option) *Server {
	s := &Server{
		manager:  m,
		logger:   slog.Default(),
		version:  "dev",
		upstream: "dify",
		origins:  []string{"*"},
		agui:     true,
		mcp:      true,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.origins))

	r.Get("/health", s.health)
	for _, path := range []string{"/a2a", "/tasks/get", "/tasks/list", "/tasks/cancel"} {
		r.HandleFunc(path, s.rpc)
	}
	if s.agui {
		r.HandleFunc("/agui", s.runAGUI)
	}
	if s.mcp {
		r.Handle("/mcp", mcp.Handler(m,
			mcp.WithName(ServiceName),
			mcp.WithVersion(s.version),
			mcp.WithLogger(s.logger),
		))
	}

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status     string         `json:"status"`
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	Upstream   string         `json:"upstream"`
	ActiveRuns int            `json:"active_runs"`
	Session    session.Health `json:"session"`
}

// health reports service status. An enabled session cache that is failing
// makes the service degraded.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:     "ok",
		Service:    ServiceName,
		Version:    s.version,
		Upstream:   s.upstream,
		ActiveRuns: s.manager.ActiveRuns(),
		Session:    session.CheckHealth(ctx, s.cache),
	}
	if resp.Session.Degraded() {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// corsMiddleware adds CORS headers for cross-origin clients.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
				"Content-Type", "Authorization", "Mcp-Session-Id", "Mcp-Protocol-Version",
			}, ", "))

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
