package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
	"github.com/eve-tools/pingboard/roles"
	"github.com/eve-tools/pingboard/sessions"
)

// LoginHandler starts the EVE SSO login flow. It rotates the session,
// remembers where to send the user afterwards and redirects to the SSO
// authorize endpoint with a state bound to the new session.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := RequestSessionFrom(r)

		session, err := rs.Reset(r.Context(), sessions.SessionData{
			PostLoginRedirect: extractPath(r.URL.Query().Get("redirect")),
		})
		if err != nil {
			s.writeError(w, errors.Wrap(err, "[LoginHandler]"))
			return
		}

		http.Redirect(w, r, s.sso.LoginURL(session.ID), http.StatusFound)
	}
}

// CallbackHandler finishes the login flow: it exchanges the authorization
// code, verifies the identity token, confirms the character is known to
// the membership service and binds the character to a fresh session.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := RequestSessionFrom(r)
		session := rs.Session()
		if session == nil {
			s.writeError(w, errors.Wrap(apperrors.ErrSessionNotFound, "[CallbackHandler]"))
			return
		}

		identity, err := s.sso.HandleCallback(r.Context(), session.ID, r.URL.Query())
		if err != nil {
			s.writeError(w, errors.Wrap(err, "[CallbackHandler] callback"))
			return
		}

		// Warm the group cache and make sure the membership service knows
		// this character at all before letting the login through.
		if _, err := s.groups.GetGroups(r.Context(), identity.CharacterID, true); err != nil {
			var respErr *apperrors.ResponseError
			if apperrors.As(err, &respErr) && respErr.Status == http.StatusNotFound {
				s.writeJSON(w, http.StatusUnauthorized, errorResponse{
					Error: "You need to have a neucore account for this to work!",
				})
				return
			}
			s.writeError(w, errors.Wrap(err, "[CallbackHandler] groups"))
			return
		}

		redirect := session.PostLoginRedirect
		if redirect == "" {
			redirect = "/"
		}

		if _, err := rs.Reset(r.Context(), sessions.SessionData{
			Character: &sessions.Character{ID: identity.CharacterID, Name: identity.Name},
		}); err != nil {
			s.writeError(w, errors.Wrap(err, "[CallbackHandler] bind session"))
			return
		}

		log.Info().Int64("characterId", identity.CharacterID).Str("name", identity.Name).Msg("Character logged in")
		http.Redirect(w, r, redirect, http.StatusFound)
	}
}

// LogoutHandler drops the session and its cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := RequestSessionFrom(r)
		if err := rs.Clear(r.Context()); err != nil {
			s.writeError(w, errors.Wrap(err, "[LogoutHandler]"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type meCharacter struct {
	ID    int64        `json:"id"`
	Name  string       `json:"name"`
	Roles []roles.Role `json:"roles"`
}

type meResponse struct {
	IsLoggedIn bool         `json:"isLoggedIn"`
	Character  *meCharacter `json:"character,omitempty"`
}

// MeHandler reports the logged-in character and its resolved roles.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := RequestSessionFrom(r)
		session := rs.Session()
		if session == nil || session.Character == nil {
			s.writeJSON(w, http.StatusOK, meResponse{IsLoggedIn: false})
			return
		}

		characterRoles, err := rs.Roles().Roles(r.Context(), false)
		if err != nil {
			s.writeError(w, errors.Wrap(err, "[MeHandler] roles"))
			return
		}
		if characterRoles == nil {
			characterRoles = []roles.Role{}
		}

		s.writeJSON(w, http.StatusOK, meResponse{
			IsLoggedIn: true,
			Character: &meCharacter{
				ID:    session.Character.ID,
				Name:  session.Character.Name,
				Roles: characterRoles,
			},
		})
	}
}

// extractPath reduces a user-supplied redirect target to its local path
// component, dropping scheme, host and query, so the login flow cannot be
// used as an open redirect.
func extractPath(redirect string) string {
	if redirect == "" {
		return "/"
	}
	u, err := url.Parse(redirect)
	if err != nil {
		return "/"
	}
	path := u.Path
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return "/"
	}
	return path
}
