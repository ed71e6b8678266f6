package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/facepass/internal/web/handlers"
	"github.com/kozaktomas/facepass/internal/web/middleware"
)

func (s *Server) setupRoutes(deps Dependencies) {
	sm := s.sessionManager

	// Create handlers
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)
	authHandler := handlers.NewAuthHandler(deps.Identity, sm)
	usersHandler := handlers.NewUsersHandler(deps.Identity)
	accessHandler := handlers.NewAccessHandler(deps.Processor, deps.Broadcaster)
	facesHandler := handlers.NewFacesHandler(deps.Extractor, deps.Index)
	registersHandler := handlers.NewRegistersHandler(deps.Registers)
	notificationsHandler := handlers.NewNotificationsHandler(deps.Notifications)
	dashboardHandler := handlers.NewDashboardHandler(handlers.DashboardSources{
		Users:         deps.Users,
		Descriptors:   deps.Descriptors,
		Registers:     deps.Registers,
		Notifications: deps.Notifications,
		Dashboard:     deps.Dashboard,
	})
	configHandler := handlers.NewConfigHandler(s.config)
	usersHandler.OnChange(dashboardHandler.InvalidateCache)

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		// Auth routes
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// Self-registration is public; the account stays pending until approved
		r.Post("/users", usersHandler.Register)
		r.Get("/users/status", usersHandler.Status)

		// Terminals submit captures with the device token
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireDeviceToken(s.config.Access.DeviceToken, sm))
			r.Post("/access/attempts", accessHandler.Attempt)
		})

		// Manager routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sm))

			// Users
			r.Get("/users", usersHandler.List)
			r.Get("/users/{id}", usersHandler.Get)
			r.Put("/users/{id}", usersHandler.Update)
			r.Post("/users/{id}/approve", usersHandler.Approve)
			r.Delete("/users/{id}", usersHandler.Delete)
			r.Put("/users/{id}/face", usersHandler.EnrollFace)
			r.Post("/users/{id}/verify", usersHandler.Verify)

			// Faces
			r.Post("/faces/nearest", facesHandler.Nearest)

			// Access log
			r.Get("/registers", registersHandler.List)
			r.Get("/registers/stats", registersHandler.Stats)
			r.Get("/access/events", accessHandler.Events)

			// Dashboard
			r.Get("/dashboard", dashboardHandler.Get)

			// Notifications
			r.Get("/notifications", notificationsHandler.List)
			r.Post("/notifications/{id}/read", notificationsHandler.MarkRead)
			r.Delete("/notifications/{id}", notificationsHandler.Delete)

			// Config
			r.Get("/config", configHandler.Get)
		})
	})
}
