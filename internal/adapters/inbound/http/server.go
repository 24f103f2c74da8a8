package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., ":8080")
	Addr string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration

	// RequestTimeout bounds handler execution, including feed probes.
	RequestTimeout time.Duration

	// RateLimitRPM caps requests per minute. Zero disables limiting.
	RateLimitRPM int

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string

	// APIKeys are the bearer tokens accepted on API routes. Empty leaves
	// the API open.
	APIKeys []string

	// Logger for the server
	Logger *slog.Logger
}

// ServerConfigDefaults returns a config with default values.
func ServerConfigDefaults() ServerConfig {
	return ServerConfig{
		Addr:           ":8080",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		RequestTimeout: 25 * time.Second,
		Logger:         slog.Default(),
	}
}

// Server serves the API and health endpoints.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewRouter builds the router with middleware, health and API routes.
func NewRouter(config ServerConfig, handler *Handler, health *Health) chi.Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = ServerConfigDefaults().RequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(config.Logger.With("component", "http")))
	r.Use(middleware.Recoverer)
	r.Use(CORS(config.CORSOrigins))

	// Probes bypass rate limiting, authentication and timeouts.
	health.RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(config.RateLimitRPM))
		r.Use(APIKey(config.APIKeys))
		r.Use(middleware.Timeout(config.RequestTimeout))
		handler.RegisterRoutes(r)
	})
	return r
}

// NewServer creates a new API server.
func NewServer(config ServerConfig, handler *Handler, health *Health) *Server {
	defaults := ServerConfigDefaults()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Server{
		server: &http.Server{
			Addr:         config.Addr,
			Handler:      NewRouter(config, handler, health),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		},
		logger: config.Logger.With("component", "api-server"),
	}
}

// Start begins listening for requests.
// This is non-blocking - it starts the server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("starting API server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
