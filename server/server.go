// Package server wires the session, SSO and role components into an HTTP
// surface. Routing stays thin: handlers translate between HTTP and the
// domain packages and nothing else.
package server

import (
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/eve-tools/pingboard/internal/config"
	"github.com/eve-tools/pingboard/roles"
	"github.com/eve-tools/pingboard/sessions"
	"github.com/eve-tools/pingboard/sso"
)

// Deps holds all external dependencies for the Server.
type Deps struct {
	Sessions sessions.Provider
	SSO      *sso.Client
	Groups   roles.GroupsProvider
	Roles    *roles.Resolver
}

// Server is the HTTP front of the ping board backend.
type Server struct {
	mux      *http.ServeMux
	config   config.Config
	sessions sessions.Provider
	sso      *sso.Client
	groups   roles.GroupsProvider
	roles    *roles.Resolver
	signer   *cookieSigner
	nowTime  func() time.Time
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// New creates the Server and registers its routes.
func New(cfg config.Config, deps Deps, options ...Option) (*Server, error) {
	if deps.Sessions == nil {
		return nil, errors.New("[server.New] Sessions provider is required")
	}
	if deps.SSO == nil {
		return nil, errors.New("[server.New] SSO client is required")
	}
	if deps.Groups == nil {
		return nil, errors.New("[server.New] Groups provider is required")
	}
	if deps.Roles == nil {
		return nil, errors.New("[server.New] Roles resolver is required")
	}
	if len(cfg.CookieKeys) == 0 && !cfg.IsDev() {
		return nil, errors.New("[server.New] COOKIE_KEY must be set when running in production")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   cfg,
		sessions: deps.Sessions,
		sso:      deps.SSO,
		groups:   deps.Groups,
		roles:    deps.Roles,
		signer:   newCookieSigner(cfg.CookieKeys),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	base := []func(http.HandlerFunc) http.HandlerFunc{
		s.RecoverMiddleware,
		s.LoggingMiddleware,
		s.SessionMiddleware,
	}

	s.mux.HandleFunc("GET /auth/login", ChainMiddleware(s.LoginHandler(), base...))
	s.mux.HandleFunc("GET /auth/callback", ChainMiddleware(s.CallbackHandler(), base...))
	s.mux.HandleFunc("POST /auth/logout", ChainMiddleware(s.LogoutHandler(), base...))
	s.mux.HandleFunc("GET /api/me", ChainMiddleware(s.MeHandler(), base...))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
