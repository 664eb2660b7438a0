package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eve-tools/pingboard/internal/config"
	"github.com/eve-tools/pingboard/neucore"
	"github.com/eve-tools/pingboard/roles"
	"github.com/eve-tools/pingboard/server"
	"github.com/eve-tools/pingboard/sessions"
	"github.com/eve-tools/pingboard/sessions/memorystore"
	"github.com/eve-tools/pingboard/sessions/redisstore"
	"github.com/eve-tools/pingboard/sso"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			returnError = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	// A missing .env file is fine, the environment may be set by the host.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	setupLogging(cfg)
	displayAppname(cfg.AppName)

	sessionProvider, cleanupSessions, err := newSessionProvider(cfg)
	if err != nil {
		return err
	}
	defer cleanupSessions()

	ssoClient, err := sso.NewClient(sso.Config{
		ClientID:     cfg.SSOClientID,
		ClientSecret: cfg.SSOClientSecret,
		RedirectURI:  cfg.SSORedirectURI,
		StateTimeout: cfg.StateTimeout,
	})
	if err != nil {
		return fmt.Errorf("sso.NewClient: %w", err)
	}
	ssoClient.StartAutoCleanup(cfg.CleanupInterval)
	defer ssoClient.StopAutoCleanup()

	coreClient, err := neucore.NewClient(neucore.Config{
		BaseURL:  cfg.CoreURL,
		AppID:    cfg.CoreAppID,
		AppToken: cfg.CoreAppToken,
	})
	if err != nil {
		return fmt.Errorf("neucore.NewClient: %w", err)
	}
	groupCache := neucore.NewGroupCache(coreClient, cfg.GroupCacheTTL)

	resolver, err := roles.NewResolver(roles.MappingFromGroups(cfg.GroupsByRole), groupCache)
	if err != nil {
		return fmt.Errorf("roles.NewResolver: %w", err)
	}

	srv, err := server.New(cfg, server.Deps{
		Sessions: sessionProvider,
		SSO:      ssoClient,
		Groups:   groupCache,
		Roles:    resolver,
	})
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// newSessionProvider picks the session backing store: Redis when REDIS_URL
// is set, in-memory otherwise. The returned cleanup stops background sweeps
// and closes connections.
func newSessionProvider(cfg config.Config) (sessions.Provider, func(), error) {
	if cfg.RedisURL == "" {
		provider := memorystore.New()
		provider.StartAutoCleanup(cfg.CleanupInterval)
		log.Info().Msg("Using in-memory session store")
		return provider, provider.StopAutoCleanup, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := redis.NewClient(opts)
	provider, err := redisstore.New(client)
	if err != nil {
		return nil, nil, fmt.Errorf("redisstore.New: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Using Redis session store")
	return provider, func() { _ = client.Close() }, nil
}

func setupLogging(cfg config.Config) {
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
