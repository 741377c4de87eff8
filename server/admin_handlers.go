package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agrisense/geogateway/users"
)

type createUserRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	Username  string   `json:"username" validate:"required"`
	Password  string   `json:"password" validate:"required"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Roles     []string `json:"roles" validate:"required,min=1,dive,oneof=admin analyst viewer"`
}

type setBlockedRequest struct {
	Blocked bool `json:"blocked"`
}

// ListUsersHandler returns a page of registered users. Pagination uses the
// offset and limit query parameters; limit defaults to 50.
func (s *Server) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	list, err := s.users.List(offset, limit)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "error listing users")
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// CreateUserHandler registers a new user with the given roles.
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid user request")
		return
	}

	if err := users.ValidatePasswordStrength(req.Password); err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	if existing, _ := s.users.GetByEmail(req.Email); existing != nil {
		errorJSON(w, http.StatusConflict, "user already exists")
		return
	}

	hash, err := users.HashPassword(req.Password)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "error creating user")
		return
	}

	user := &users.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		DateJoined:   time.Now().UTC(),
		Roles:        users.RolesFromStrings(req.Roles),
		Verified:     true,
	}

	if err := s.users.Upsert(user); err != nil {
		s.log.Error().Str("email", req.Email).Err(err).Msg("user creation failed")
		errorJSON(w, http.StatusInternalServerError, "error creating user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// DeleteUserHandler removes a user by email.
func (s *Server) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")

	if err := s.users.Delete(email); err != nil {
		errorJSON(w, statusForError(err), "error deleting user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SetUserBlockedHandler blocks or unblocks a user. A blocked user cannot log
// in and any refresh attempt is rejected.
func (s *Server) SetUserBlockedHandler(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")

	var req setBlockedRequest
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := s.users.SetBlocked(email, req.Blocked); err != nil {
		errorJSON(w, statusForError(err), "error updating user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"email": email, "blocked": req.Blocked})
}
