package server

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/eve-tools/pingboard/internal/config"
	"github.com/eve-tools/pingboard/roles"
	"github.com/eve-tools/pingboard/sessions"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const contextKeySession ContextKey = "request_session"

// RequestSession is the per-request capability value built by the session
// middleware. It carries the current session (nil while anonymous), the
// role-checking capability for the bound character, and the operations to
// replace or drop the session together with its cookie.
type RequestSession struct {
	server  *Server
	w       http.ResponseWriter
	session *sessions.Session
}

// RequestSessionFrom returns the RequestSession the middleware attached to
// the request, or nil when the middleware did not run.
func RequestSessionFrom(r *http.Request) *RequestSession {
	rs, _ := r.Context().Value(contextKeySession).(*RequestSession)
	return rs
}

// Session returns the current session, nil while anonymous.
func (rs *RequestSession) Session() *sessions.Session {
	return rs.session
}

// Roles returns the role-checking capability for the session's character.
func (rs *RequestSession) Roles() *roles.CharacterRoles {
	var character *sessions.Character
	if rs.session != nil {
		character = rs.session.Character
	}
	return rs.server.roles.ForCharacter(character)
}

// Reset deletes the current session (if any) and creates a new one with the
// given content, re-issuing the cookie.
func (rs *RequestSession) Reset(ctx context.Context, data sessions.SessionData) (sessions.Session, error) {
	if rs.session != nil {
		if err := rs.server.sessions.DeleteSession(ctx, rs.session.ID); err != nil {
			return sessions.Session{}, errors.Wrap(err, "[RequestSession.Reset] delete")
		}
	}

	data.ExpiresAt = rs.server.nowTime().Add(rs.server.config.SessionTimeout)
	session, err := rs.server.sessions.CreateSession(ctx, data)
	if err != nil {
		return sessions.Session{}, errors.Wrap(err, "[RequestSession.Reset] create")
	}

	rs.server.setSessionCookie(rs.w, session.ID, session.ExpiresAt)
	rs.session = &session
	return session, nil
}

// Clear deletes the current session and clears the cookie.
func (rs *RequestSession) Clear(ctx context.Context) error {
	if rs.session != nil {
		if err := rs.server.sessions.DeleteSession(ctx, rs.session.ID); err != nil {
			return errors.Wrap(err, "[RequestSession.Clear] delete")
		}
		rs.session = nil
	}
	rs.server.clearSessionCookie(rs.w)
	return nil
}

// SessionMiddleware resolves the session cookie into a RequestSession and
// implements sliding expiration: the session (and cookie) expiry is pushed
// to now+sessionTimeout, but only once the session has aged past the
// refresh interval, so not every request costs a store write.
func (s *Server) SessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := &RequestSession{server: s, w: w}

		if sessionID, presented := s.sessionIDFromCookie(r); presented {
			session, err := s.sessions.GetSession(r.Context(), sessionID)
			if err != nil {
				s.writeError(w, errors.Wrap(err, "[SessionMiddleware] get session"))
				return
			}
			if session != nil {
				rs.session = session
				s.maybeRefreshSession(w, r, rs)
			} else {
				// The cookie references an expired or unknown session,
				// so there is no point in keeping it.
				s.clearSessionCookie(w)
			}
		}

		ctx := context.WithValue(r.Context(), contextKeySession, rs)
		next(w, r.WithContext(ctx))
	}
}

// sessionIDFromCookie reads and, when signing is configured, verifies the
// session cookie. The second return reports whether any cookie was
// presented at all, valid or not.
func (s *Server) sessionIDFromCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(config.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	sessionID, ok := s.signer.Verify(cookie.Value)
	if !ok {
		log.Warn().Msg("Rejected session cookie with invalid signature")
		return "", true
	}
	return sessionID, true
}

func (s *Server) maybeRefreshSession(w http.ResponseWriter, r *http.Request, rs *RequestSession) {
	if s.config.SessionRefreshInterval < 0 {
		return
	}

	now := s.nowTime()
	sessionAge := now.Add(s.config.SessionTimeout).Sub(rs.session.ExpiresAt)
	if sessionAge < s.config.SessionRefreshInterval {
		return
	}

	refreshed := *rs.session
	refreshed.ExpiresAt = now.Add(s.config.SessionTimeout)
	if err := s.sessions.UpdateSession(r.Context(), refreshed); err != nil {
		// The session is still valid as loaded; skipping one refresh
		// beats failing the request.
		log.Err(err).Str("sessionId", rs.session.ID).Msg("Failed to refresh session")
		return
	}
	rs.session = &refreshed
	s.setSessionCookie(w, refreshed.ID, refreshed.ExpiresAt)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    s.signer.Sign(sessionID),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
