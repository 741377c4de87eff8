package server

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/agrisense/geogateway/session"
	"github.com/agrisense/geogateway/token"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         any    `json:"user,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LoginHandler exchanges credentials for a token pair.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid login request")
		return
	}

	result, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		s.log.Warn().Str("email", req.Email).Err(err).Msg("login failed")
		errorJSON(w, statusForError(err), "login failed")
		return
	}

	s.sessions.Propagate(result.Pair, token.OriginLogin)

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  result.Pair.AccessToken,
		RefreshToken: result.Pair.RefreshToken,
		User:         result.User,
	})
}

// GuestLoginHandler issues an anonymous token pair for public map layers.
func (s *Server) GuestLoginHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.auth.Guest()
	if err != nil {
		s.log.Error().Err(err).Msg("guest login failed")
		errorJSON(w, statusForError(err), "guest login failed")
		return
	}

	s.sessions.Propagate(result.Pair, token.OriginGuest)

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  result.Pair.AccessToken,
		RefreshToken: result.Pair.RefreshToken,
	})
}

// RefreshHandler exchanges a refresh token for a renewed pair. The refresh
// token may arrive in the body or in the X-Refresh-Token header.
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(r, &req); err != nil {
		req.RefreshToken = r.Header.Get("X-Refresh-Token")
	}
	if req.RefreshToken == "" {
		errorJSON(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	result, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.log.Warn().Err(err).Msg("token refresh rejected")
		errorJSON(w, http.StatusUnauthorized, "refresh rejected")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// LogoutHandler marks the caller logged out and drops the propagated token.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	if err := s.auth.Logout(claims.Email); err != nil {
		s.log.Warn().Str("email", claims.Email).Err(err).Msg("logout failed")
		errorJSON(w, statusForError(err), "logout failed")
		return
	}

	s.sessions.Propagate(token.Pair{}, token.OriginGuest)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// ProfileHandler returns the caller's stored profile.
func (s *Server) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	user, err := s.users.GetByID(claims.Subject)
	if err != nil {
		errorJSON(w, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// DataProxyHandler forwards read requests to the data API with the caller's
// own evaluated bearer token. The shared client token is not read here: it
// belongs to the last request that propagated, not necessarily this one.
func (s *Server) DataProxyHandler(w http.ResponseWriter, r *http.Request) {
	path := "/" + r.PathValue("path")
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	var payload json.RawMessage
	if err := s.dataAPI.GetWithBearer(r.Context(), path, BearerFromContext(r.Context()), &payload); err != nil {
		s.log.Warn().Str("path", path).Err(err).Msg("data API request failed")
		errorJSON(w, http.StatusBadGateway, "data API unavailable")
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

type profileUpdateRequest struct {
	Email     string `json:"email" validate:"omitempty,email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ProfileUpdateHandler merges updated profile fields into the caller's
// record. Tokens are untouched; a profile edit never forces a re-login.
func (s *Server) ProfileUpdateHandler(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req profileUpdateRequest
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid profile update")
		return
	}

	user, err := s.users.GetByID(claims.Subject)
	if err != nil {
		errorJSON(w, http.StatusNotFound, "user not found")
		return
	}

	sess := &session.Session{User: user}
	s.sessions.MergeUser(sess, session.UserUpdate{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})

	if err := s.users.Upsert(user); err != nil {
		s.log.Error().Err(err).Msg("profile update failed")
		errorJSON(w, http.StatusInternalServerError, "profile update failed")
		return
	}

	writeJSON(w, http.StatusOK, user)
}
