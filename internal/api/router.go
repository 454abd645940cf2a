package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/museum-robotics/tourguide-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Browsers cannot set headers on WebSocket requests; the ticket
		// query parameter authenticates instead.
		r.Get(wsPath, s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/auth/me", s.handleMe)

			r.Route("/robot", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermRobotsRead)).Get("/connection-status", s.handleConnectionStatus)
				r.With(s.requirePermission(auth.PermRobotsRead)).Get("/state", s.handleRobotState)
				r.With(s.requirePermission(auth.PermRobotsControl)).Post("/connect", s.handleRobotConnect)
				r.With(s.requirePermission(auth.PermUsersRead)).Get("/audit", s.handleListAudit)

				r.Group(func(r chi.Router) {
					r.Use(s.requireRobotSession)

					r.With(s.requirePermission(auth.PermRobotsRead)).Get("/topics", s.handleTopics)
					r.With(s.requirePermission(auth.PermRobotsRead)).Get("/client-count", s.handleClientCount)
					r.With(s.requirePermission(auth.PermRobotsUpdate)).Post("/send-generated-audio/{id}", s.handleSendGeneratedAudio)
					r.With(s.requireRobotControl).Post("/start-tour/{id}", s.handleStartTour)
				})
			})

			r.Route("/tours", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermToursRead))
				r.Get("/", s.handleListTours)
				r.Get("/{id}", s.handleGetTour)
			})
		})
	})

	return r
}

// handleHealth returns the server health status. The robot session is
// reported but does not make the server unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"version":             s.version,
		"robot_authenticated": s.robot.IsAuthenticated(),
	})
}
