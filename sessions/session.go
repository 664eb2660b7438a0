// Package sessions defines the server-side session model and the storage
// contract it lives behind. A session is identified by an opaque cookie
// value and, once the owner has completed the SSO login, carries the bound
// character identity.
package sessions

import (
	"context"
	"time"
)

// Character is the EVE character bound to a session after a successful
// OAuth2 exchange.
type Character struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Session is a single server-side session record.
type Session struct {
	ID                string     `json:"id"`                          // Opaque unguessable identifier (UUID)
	ExpiresAt         time.Time  `json:"expiresAt"`                   // When the session stops being valid
	PostLoginRedirect string     `json:"postLoginRedirect,omitempty"` // Path to send the user to after login
	Character         *Character `json:"character,omitempty"`         // Bound identity, nil while anonymous
}

// SessionData is the caller-supplied part of a session; the provider
// allocates the ID.
type SessionData struct {
	ExpiresAt         time.Time
	PostLoginRedirect string
	Character         *Character
}

// Provider defines the interface for session storage operations. The
// in-memory implementation is one conforming instance; the contract is the
// interface, not the backing store.
type Provider interface {
	// CreateSession allocates a fresh unguessable id and stores the record
	CreateSession(ctx context.Context, data SessionData) (Session, error)

	// GetSession returns the record, or nil if it is absent or expired.
	// Expiry is lazy: an expired record may not have been physically
	// removed yet, but it is never returned.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// UpdateSession replaces the record for session.ID. Fails with
	// ErrUnknownSession if no such record exists.
	UpdateSession(ctx context.Context, session Session) error

	// DeleteSession removes the record; no-op if absent
	DeleteSession(ctx context.Context, sessionID string) error
}
