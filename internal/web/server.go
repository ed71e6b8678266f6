package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facepass/internal/access"
	"github.com/kozaktomas/facepass/internal/config"
	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/web/handlers"
	"github.com/kozaktomas/facepass/internal/web/middleware"
)

// Dependencies are the services the HTTP API exposes. Index and
// Broadcaster may be nil.
type Dependencies struct {
	Identity      IdentityService
	Processor     handlers.AccessProcessor
	Broadcaster   *access.Broadcaster
	Extractor     handlers.FaceExtractor
	Index         handlers.NearestFinder
	Users         database.UserReader
	Descriptors   database.DescriptorReader
	Registers     database.RegisterReader
	Notifications database.NotificationWriter
	Dashboard     database.DashboardReader
	Sessions      database.SessionStore
	HealthChecks  map[string]handlers.Pinger
	Logger        *logrus.Logger
}

// IdentityService is everything the user and auth endpoints need.
type IdentityService interface {
	handlers.IdentityService
	handlers.Authenticator
}

// Server represents the web server
type Server struct {
	config         *config.Config
	router         *chi.Mux
	httpServer     *http.Server
	sessionManager *middleware.SessionManager
	logger         *logrus.Logger
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	r := chi.NewRouter()

	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	// Create session manager with optional persistence
	sessionManager := middleware.NewSessionManager(cfg.Web.SessionSecret, cfg.Web.SessionTTL, deps.Sessions)

	s := &Server{
		config:         cfg,
		router:         r,
		sessionManager: sessionManager,
		logger:         deps.Logger,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	// Set up routes
	s.setupRoutes(deps)

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         cfg.Web.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open; handlers bound their own work
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SessionManager returns the manager session store of the server
func (s *Server) SessionManager() *middleware.SessionManager {
	return s.sessionManager
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")

	// Stop the session cleanup goroutine
	if s.sessionManager != nil {
		s.sessionManager.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
