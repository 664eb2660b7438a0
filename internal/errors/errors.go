package errors

import (
	"errors"
	"fmt"
)

// Common error types for the ping-board backend. Route handlers and
// middleware translate these into HTTP responses; nothing below the HTTP
// layer writes a status code itself.
var (
	// OAuth2 login flow errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidToken   = errors.New("invalid identity token")

	// Upstream errors (EVE SSO, Neucore)
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// Guard errors
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient roles")

	// Session errors
	ErrUnknownSession  = errors.New("unknown session")
	ErrSessionNotFound = errors.New("session not found")
)

// ResponseError reports that an upstream service (EVE SSO, Neucore)
// answered with a non-success status code. Callers branch on Status, e.g.
// the login flow maps a 404 from the membership service to a user-facing
// "you need an account" message.
type ResponseError struct {
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.Status)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
