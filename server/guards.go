package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
	"github.com/eve-tools/pingboard/roles"
)

// RequireAllOf rejects requests whose character lacks any of the listed
// roles. Anonymous requests get 401, authenticated ones without the roles
// get 403.
func (s *Server) RequireAllOf(required ...roles.Role) func(http.HandlerFunc) http.HandlerFunc {
	return s.guardMiddleware(func(r *http.Request, cr *roles.CharacterRoles) error {
		return cr.RequireAllOf(r.Context(), required...)
	})
}

// RequireOneOf rejects requests whose character holds none of the listed
// roles.
func (s *Server) RequireOneOf(required ...roles.Role) func(http.HandlerFunc) http.HandlerFunc {
	return s.guardMiddleware(func(r *http.Request, cr *roles.CharacterRoles) error {
		return cr.RequireOneOf(r.Context(), required...)
	})
}

// RequireAllFreshOf is RequireAllOf with the group cache bypassed, for
// operations where acting on stale membership is worse than the extra
// upstream round trip.
func (s *Server) RequireAllFreshOf(required ...roles.Role) func(http.HandlerFunc) http.HandlerFunc {
	return s.guardMiddleware(func(r *http.Request, cr *roles.CharacterRoles) error {
		return cr.RequireAllFreshOf(r.Context(), required...)
	})
}

// RequireOneFreshOf is RequireOneOf with the group cache bypassed.
func (s *Server) RequireOneFreshOf(required ...roles.Role) func(http.HandlerFunc) http.HandlerFunc {
	return s.guardMiddleware(func(r *http.Request, cr *roles.CharacterRoles) error {
		return cr.RequireOneFreshOf(r.Context(), required...)
	})
}

func (s *Server) guardMiddleware(check func(*http.Request, *roles.CharacterRoles) error) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rs := RequestSessionFrom(r)
			if rs == nil {
				s.writeError(w, apperrors.ErrUnauthenticated)
				return
			}
			if err := check(r, rs.Roles()); err != nil {
				s.writeError(w, err)
				return
			}
			next(w, r)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP status codes. Upstream failures
// surface as 502 so the client can tell our fault from EVE's.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	var respErr *apperrors.ResponseError
	switch {
	case apperrors.Is(err, apperrors.ErrUnauthenticated):
		status, message = http.StatusUnauthorized, "authentication required"
	case apperrors.Is(err, apperrors.ErrForbidden):
		status, message = http.StatusForbidden, "insufficient roles"
	case apperrors.Is(err, apperrors.ErrInvalidRequest):
		status, message = http.StatusBadRequest, "invalid request"
	case apperrors.Is(err, apperrors.ErrSessionNotFound):
		status, message = http.StatusUnauthorized, "session not found"
	case apperrors.Is(err, apperrors.ErrUnknownSession):
		status, message = http.StatusBadRequest, "unknown session"
	case apperrors.Is(err, apperrors.ErrInvalidToken):
		status, message = http.StatusBadGateway, "upstream returned an invalid token"
	case apperrors.Is(err, apperrors.ErrUpstreamUnreachable):
		status, message = http.StatusBadGateway, "upstream unreachable"
	case apperrors.As(err, &respErr):
		status, message = http.StatusBadGateway, "upstream request failed"
	}

	if status >= http.StatusInternalServerError {
		log.Err(err).Msg("Request failed")
	}

	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Failed to encode response body")
	}
}
