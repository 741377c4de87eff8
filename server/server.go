package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agrisense/geogateway/apiclient"
	"github.com/agrisense/geogateway/auth"
	"github.com/agrisense/geogateway/internal/config"
	"github.com/agrisense/geogateway/session"
	"github.com/agrisense/geogateway/tiles"
	"github.com/agrisense/geogateway/token"
	"github.com/agrisense/geogateway/users"
)

// Deps holds all service dependencies for the Server.
type Deps struct {
	Auth     *auth.Service    // Authentication and token issuing
	Sessions *session.Manager // Session token lifecycle
	Issuer   *token.Issuer    // Access token verification
	Users    users.UserRepo   // Repository for user data
	Tiles    *tiles.Cache     // Cached external tile sessions
	DataAPI  *apiclient.Client
}

// Server is the HTTP surface of the gateway: auth endpoints, the tile proxy,
// user management, and operational routes.
type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config *config.Config
	log    zerolog.Logger

	auth     *auth.Service
	sessions *session.Manager
	issuer   *token.Issuer
	users    users.UserRepo
	tiles    *tiles.Cache
	dataAPI  *apiclient.Client
}

func New(cfg *config.Config, log zerolog.Logger, deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, fmt.Errorf("[Server New] auth service is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("[Server New] session manager is required")
	}
	if deps.Issuer == nil {
		return nil, fmt.Errorf("[Server New] token issuer is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("[Server New] user repo is required")
	}
	if deps.Tiles == nil {
		return nil, fmt.Errorf("[Server New] tile cache is required")
	}
	if deps.DataAPI == nil {
		return nil, fmt.Errorf("[Server New] data API client is required")
	}

	s := &Server{
		env:      cfg.Env,
		mux:      http.NewServeMux(),
		config:   cfg,
		log:      log,
		auth:     deps.Auth,
		sessions: deps.Sessions,
		issuer:   deps.Issuer,
		users:    deps.Users,
		tiles:    deps.Tiles,
		dataAPI:  deps.DataAPI,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	fmt.Printf("[%-19s] %s\n", displayMethod, path)
}
