package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/agrisense/geogateway/auth"
	gwerrors "github.com/agrisense/geogateway/internal/errors"
	"github.com/agrisense/geogateway/session"
	"github.com/agrisense/geogateway/token"
	"github.com/agrisense/geogateway/users"
)

type contextKey string

const (
	claimsContextKey contextKey = "claims"
	bearerContextKey contextKey = "bearer"
)

// ClaimsFromContext returns the verified access-token claims attached by
// WithSession, or nil for an anonymous request.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*token.Claims)
	return claims
}

// BearerFromContext returns the caller's evaluated access token, or "" for
// an anonymous request. Handlers forwarding upstream must use this rather
// than the shared client token, which concurrent requests overwrite.
func BearerFromContext(ctx context.Context) string {
	bearer, _ := ctx.Value(bearerContextKey).(string)
	return bearer
}

func pairFromRequest(r *http.Request) token.Pair {
	var pair token.Pair
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		pair.AccessToken = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	pair.RefreshToken = strings.TrimSpace(r.Header.Get("X-Refresh-Token"))
	return pair
}

// WithSession evaluates the caller's token pair before the handler runs. A
// pair whose access token is still valid passes through untouched; a stale
// pair is refreshed in place and the renewed tokens are echoed back in the
// X-Access-Token and X-Refresh-Token response headers so the caller can
// replace its stored pair. An unrecoverable pair ends the request with 401.
// Requests without credentials proceed in guest mode.
func (s *Server) WithSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pair := pairFromRequest(r)

		evaluated, err := s.sessions.Evaluate(r.Context(), pair)
		if err != nil {
			if session.IsTerminal(err) {
				s.sessions.Propagate(token.Pair{}, token.OriginGuest)
				errorJSON(w, http.StatusUnauthorized, "session expired, please log in again")
				return
			}
			errorJSON(w, http.StatusInternalServerError, "session evaluation failed")
			return
		}

		if evaluated.Empty() {
			s.sessions.Propagate(token.Pair{}, token.OriginGuest)
			next(w, r)
			return
		}

		claims, err := s.issuer.VerifyAccess(evaluated.AccessToken)
		if err != nil {
			s.log.Warn().Err(err).Msg("access token verification failed")
			errorJSON(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		if evaluated != pair {
			w.Header().Set("X-Access-Token", evaluated.AccessToken)
			w.Header().Set("X-Refresh-Token", evaluated.RefreshToken)
		}

		s.sessions.Propagate(evaluated, claims.Origin)

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		ctx = context.WithValue(ctx, bearerContextKey, evaluated.AccessToken)
		next(w, r.WithContext(ctx))
	}
}

// RequireAuth rejects anonymous and guest-originated requests.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || claims.Origin == token.OriginGuest {
			errorJSON(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// RequireRole rejects authenticated callers that do not hold the given role.
func (s *Server) RequireRole(role users.RoleType) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				errorJSON(w, http.StatusUnauthorized, "authentication required")
				return
			}
			for _, held := range claims.Roles {
				if held == string(role) {
					next(w, r)
					return
				}
			}
			errorJSON(w, http.StatusForbidden, "insufficient permissions")
		}
	}
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case gwerrors.Is(err, gwerrors.ErrInvalidCredentials),
		gwerrors.Is(err, gwerrors.ErrTokenExpired),
		gwerrors.Is(err, gwerrors.ErrRefreshTokenExpired),
		gwerrors.Is(err, gwerrors.ErrTerminalSession):
		return http.StatusUnauthorized
	case gwerrors.Is(err, auth.UserPasswordsDontMatchErr), gwerrors.Is(err, auth.InvalidRefreshTokenErr):
		return http.StatusUnauthorized
	case gwerrors.Is(err, gwerrors.ErrUserBlocked), gwerrors.Is(err, auth.UserBlockedErr):
		return http.StatusForbidden
	case gwerrors.Is(err, gwerrors.ErrUserNotFound), gwerrors.Is(err, gwerrors.ErrNotFound),
		gwerrors.Is(err, auth.UserNotFoundErr):
		return http.StatusNotFound
	case gwerrors.Is(err, gwerrors.ErrSessionCreation), gwerrors.Is(err, gwerrors.ErrUpstreamTile):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
