// Package config reads the server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eve-tools/pingboard/roles"
)

// SessionCookieName is the name of the session cookie.
const SessionCookieName = "pingboard-session"

// Config holds everything the server needs to run.
type Config struct {
	Port    string
	Env     string
	AppName string

	// EVE SSO application credentials
	SSOClientID     string
	SSOClientSecret string
	SSORedirectURI  string
	StateTimeout    time.Duration

	// Neucore application credentials
	CoreURL      string
	CoreAppID    string
	CoreAppToken string

	GroupCacheTTL time.Duration

	SessionTimeout         time.Duration
	SessionRefreshInterval time.Duration
	CleanupInterval        time.Duration

	// CookieKeys sign session cookies; required outside development
	CookieKeys []string

	// RedisURL selects the Redis session provider when set
	RedisURL string

	// GroupsByRole maps each application role to the Neucore groups that
	// grant it
	GroupsByRole map[roles.Role][]string
}

// Load builds a Config from the environment. It fails on missing required
// variables so a misconfigured server refuses to start instead of limping.
func Load() (Config, error) {
	c := Config{
		Port:    GetEnv("PORT", "3000"),
		Env:     GetEnv("ENV", "DEV"),
		AppName: GetEnv("APP_NAME", "Ping Board"),

		CoreURL:      os.Getenv("CORE_URL"),
		CoreAppID:    os.Getenv("CORE_APP_ID"),
		CoreAppToken: os.Getenv("CORE_APP_TOKEN"),

		SSOClientID:     os.Getenv("SSO_CLIENT_ID"),
		SSOClientSecret: os.Getenv("SSO_CLIENT_SECRET"),
		SSORedirectURI:  os.Getenv("SSO_REDIRECT_URI"),

		RedisURL: os.Getenv("REDIS_URL"),
	}

	for name, value := range map[string]string{
		"SSO_CLIENT_ID":     c.SSOClientID,
		"SSO_CLIENT_SECRET": c.SSOClientSecret,
		"SSO_REDIRECT_URI":  c.SSORedirectURI,
		"CORE_URL":          c.CoreURL,
		"CORE_APP_ID":       c.CoreAppID,
		"CORE_APP_TOKEN":    c.CoreAppToken,
	} {
		if value == "" {
			return Config{}, fmt.Errorf("missing env variable: %s", name)
		}
	}

	var err error
	if c.StateTimeout, err = getSeconds("SSO_STATE_TIMEOUT", 300); err != nil {
		return Config{}, err
	}
	if c.GroupCacheTTL, err = getSeconds("CORE_GROUP_CACHE_TTL", 60); err != nil {
		return Config{}, err
	}
	if c.SessionTimeout, err = getSeconds("SESSION_TIMEOUT", int((24 * time.Hour).Seconds())); err != nil {
		return Config{}, err
	}
	if c.SessionRefreshInterval, err = getSeconds("SESSION_REFRESH_INTERVAL", int(time.Hour.Seconds())); err != nil {
		return Config{}, err
	}
	if c.CleanupInterval, err = getSeconds("CLEANUP_INTERVAL", 300); err != nil {
		return Config{}, err
	}

	if keys := os.Getenv("COOKIE_KEY"); keys != "" {
		c.CookieKeys = strings.Fields(keys)
	}

	c.GroupsByRole = map[roles.Role][]string{
		roles.EventsRead:         strings.Fields(os.Getenv("GROUPS_READ_EVENTS")),
		roles.EventsWrite:        strings.Fields(os.Getenv("GROUPS_WRITE_EVENTS")),
		roles.Ping:               strings.Fields(os.Getenv("GROUPS_PING")),
		roles.PingTemplatesWrite: strings.Fields(os.Getenv("GROUPS_WRITE_PING_TEMPLATES")),
	}

	return c, nil
}

// IsDev reports whether the server runs in development mode. Unsigned
// session cookies are only tolerated here.
func (c Config) IsDev() bool {
	return strings.EqualFold(c.Env, "DEV") || strings.EqualFold(c.Env, "development")
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// GetEnv returns the value of envVar, or defaultValue if it is unset or
// empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getSeconds(envVar string, defaultSeconds int) (time.Duration, error) {
	raw := GetEnv(envVar, strconv.Itoa(defaultSeconds))
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q", envVar, raw)
	}
	return time.Duration(seconds) * time.Second, nil
}
