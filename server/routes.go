package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrisense/geogateway/users"
)

func (s *Server) initRoutes() {
	api := s.APIMiddleware()
	authed := append(s.APIMiddleware(), s.WithSession, s.RequireAuth)
	admin := append(s.APIMiddleware(), s.WithSession, s.RequireAuth, s.RequireRole(users.RoleAdmin))

	// Authentication
	s.RegisterRouteFunc("POST /auth/login", ChainMiddleware(s.LoginHandler, api...))
	s.RegisterRouteFunc("POST /auth/login/guest", ChainMiddleware(s.GuestLoginHandler, api...))
	s.RegisterRouteFunc("POST /auth/refresh", ChainMiddleware(s.RefreshHandler, api...))
	s.RegisterRouteFunc("POST /auth/logout", ChainMiddleware(s.LogoutHandler, authed...))

	// Profile
	s.RegisterRouteFunc("GET /me", ChainMiddleware(s.ProfileHandler, authed...))
	s.RegisterRouteFunc("PUT /me", ChainMiddleware(s.ProfileUpdateHandler, authed...))

	// Map tiles: public layers stay reachable in guest mode, so the session
	// middleware runs without the auth requirement.
	s.RegisterRouteFunc("GET /tiles/{z}/{x}/{y}", ChainMiddleware(s.TileHandler, append(s.APIMiddleware(), s.WithSession)...))

	// Data API proxy: rides the caller's session; guest mode reaches the
	// public layers only, enforced by the data API itself.
	s.RegisterRouteFunc("GET /api/{path...}", ChainMiddleware(s.DataProxyHandler, append(s.APIMiddleware(), s.WithSession)...))

	// User management
	s.RegisterRouteFunc("GET /admin/users", ChainMiddleware(s.ListUsersHandler, admin...))
	s.RegisterRouteFunc("POST /admin/users", ChainMiddleware(s.CreateUserHandler, admin...))
	s.RegisterRouteFunc("DELETE /admin/users/{email}", ChainMiddleware(s.DeleteUserHandler, admin...))
	s.RegisterRouteFunc("PUT /admin/users/{email}/blocked", ChainMiddleware(s.SetUserBlockedHandler, admin...))

	// CORS preflight for every route; CorsMiddleware answers requests that
	// carry an Origin header before this handler runs.
	s.RegisterRouteFunc("OPTIONS /", ChainMiddleware(s.PreflightHandler, api...))

	// Operational
	s.RegisterRouteFunc("GET /healthz", s.HealthHandler)
	s.RegisterRouteHandler("GET /metrics", promhttp.Handler())
}

// PreflightHandler answers same-origin OPTIONS requests.
func (s *Server) PreflightHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
