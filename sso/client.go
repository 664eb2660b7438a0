// Package sso takes care of interacting with EVE SSO.
// https://docs.esi.evetech.net/docs/sso/
package sso

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
)

// EVE SSO endpoints and defaults.
const (
	DefaultAuthorizeURL = "https://login.eveonline.com/v2/oauth/authorize/"
	DefaultTokenURL     = "https://login.eveonline.com/v2/oauth/token"
	DefaultIssuer       = "login.eveonline.com"
	DefaultStateTimeout = 300 * time.Second
)

// Config holds the EVE SSO application credentials as obtained from
// https://developers.eveonline.com/.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Scopes to request; EVE SSO allows an empty scope list for
	// authentication-only logins.
	Scopes []string

	// AuthorizeURL, TokenURL and Issuer default to the EVE SSO endpoints.
	AuthorizeURL string
	TokenURL     string
	Issuer       string

	// StateTimeout is how long an issued OAuth2 login state stays valid.
	// Defaults to 5 minutes.
	StateTimeout time.Duration
}

// loginState correlates an outbound authorization redirect with the session
// that initiated it.
type loginState struct {
	sessionID string
	createdAt time.Time
}

// Client performs the OAuth2 authorization-code login flow: it issues
// single-use CSRF state tokens, exchanges callback codes for tokens and
// validates the returned identity token.
type Client struct {
	oauth        *oauth2.Config
	issuer       string
	stateTimeout time.Duration
	nowTime      func() time.Time

	mu          sync.Mutex
	loginStates map[string]loginState
	stop        chan struct{}
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// NewClient creates an SSO client from the given config.
func NewClient(config Config, options ...Option) (*Client, error) {
	if config.ClientID == "" {
		return nil, errors.New("[sso.NewClient] ClientID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("[sso.NewClient] ClientSecret is required")
	}
	if config.RedirectURI == "" {
		return nil, errors.New("[sso.NewClient] RedirectURI is required")
	}

	authorizeURL := config.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = DefaultAuthorizeURL
	}
	tokenURL := config.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	issuer := config.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	stateTimeout := config.StateTimeout
	if stateTimeout <= 0 {
		stateTimeout = DefaultStateTimeout
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authorizeURL,
				TokenURL: tokenURL,
			},
		},
		issuer:       issuer,
		stateTimeout: stateTimeout,
		nowTime:      time.Now,
		loginStates:  make(map[string]loginState),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// LoginURL builds a URL a user can be redirected to to log them in using
// EVE SSO. The generated state token is bound to the given session.
func (c *Client) LoginURL(sessionID string) string {
	state := uuid.NewString()

	c.mu.Lock()
	c.loginStates[state] = loginState{
		sessionID: sessionID,
		createdAt: c.nowTime(),
	}
	c.mu.Unlock()

	return c.oauth.AuthCodeURL(state)
}

// HandleCallback performs the OAuth2 token exchange with the EVE SSO server.
// Should be called when the user was redirected back to the application.
//
// The state from the callback query is consumed exactly once: replaying the
// same callback, or presenting a state issued for another session, fails
// with ErrInvalidRequest.
func (c *Client) HandleCallback(ctx context.Context, sessionID string, query url.Values) (*Identity, error) {
	state := query.Get("state")
	if state == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[Client.HandleCallback] missing state")
	}

	// Consume the state unconditionally, before any further checks. This
	// single-use property is the CSRF/replay defence.
	c.mu.Lock()
	stateData, found := c.loginStates[state]
	delete(c.loginStates, state)
	c.mu.Unlock()

	if !found || stateData.sessionID != sessionID {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[Client.HandleCallback] invalid state")
	}

	code := query.Get("code")
	if code == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[Client.HandleCallback] missing code")
	}

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return nil, errors.Wrap(
				&apperrors.ResponseError{Status: status, Body: string(retrieveErr.Body)},
				"[Client.HandleCallback] token exchange rejected",
			)
		}
		return nil, errors.Wrap(apperrors.ErrUpstreamUnreachable, "[Client.HandleCallback] token exchange failed")
	}

	identity, err := ParseIdentity(token.AccessToken, c.oauth.ClientID, c.issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.HandleCallback]")
	}
	return identity, nil
}

// StartAutoCleanup starts regularly checking for and removing expired login
// states. Calling it again restarts the sweep with the new interval.
func (c *Client) StartAutoCleanup(interval time.Duration) {
	c.StopAutoCleanup()
	if interval <= 0 {
		interval = c.stateTimeout
	}

	stop := make(chan struct{})
	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}

// StopAutoCleanup stops any previously started automatic cleanup of login
// states.
func (c *Client) StopAutoCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Cleanup removes all login states older than the state timeout.
func (c *Client) Cleanup() {
	expirationTime := c.nowTime().Add(-c.stateTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for state, data := range c.loginStates {
		if data.createdAt.Before(expirationTime) {
			delete(c.loginStates, state)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Removed expired login states")
	}
}
