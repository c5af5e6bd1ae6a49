// Package config provides the configuration surface of the collection service clients:
// environment defaults, an optional configuration file, and per-call overrides.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/effective-security/patchwork/pkg/transport"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
)

// Environment variables read by FromEnv.
const (
	EnvURL        = "PATCHWORKMCP_URL"
	EnvAPIURL     = "PATCHWORKMCP_API_URL"
	EnvAPIKey     = "PATCHWORKMCP_API_KEY"
	EnvServerSlug = "PATCHWORKMCP_SERVER_SLUG"
)

// Defaults
const (
	// DefaultURL is the base URL of the feedback client.
	DefaultURL = "https://patchworkmcp.com"
	// DefaultAPIURL is the base URL of the middleware, heartbeat and feedback.
	DefaultAPIURL = "https://app.patchworkmcp.com"
	// UnknownServerSlug is reported when no server slug is configured.
	UnknownServerSlug = "unknown"

	DefaultHeartbeatIntervalSeconds = 60
	DefaultHeartbeatTimeoutSeconds  = 10
	DefaultRequestTimeoutSeconds    = 15
)

// Config of the client library
type Config struct {
	// URL specifies the base URL used by the feedback client
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// APIURL specifies the base URL used by the middleware
	APIURL string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	// APIKey specifies the team API key, sent as Bearer token
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// ServerSlug identifies the hosting server
	ServerSlug string `json:"server_slug,omitempty" yaml:"server_slug,omitempty"`

	HeartbeatIntervalSeconds int `json:"heartbeat_interval_seconds,omitempty" yaml:"heartbeat_interval_seconds,omitempty"`
	HeartbeatTimeoutSeconds  int `json:"heartbeat_timeout_seconds,omitempty" yaml:"heartbeat_timeout_seconds,omitempty"`
	RequestTimeoutSeconds    int `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty"`
}

// FromEnv returns the configuration from the environment variables,
// with defaults for the base URLs.
func FromEnv() *Config {
	cfg := new(Config)
	cfg.applyEnv()
	return cfg
}

// Load returns the configuration from file,
// empty values are populated from the environment.
// If file is empty, the configuration is loaded from the environment only.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.URL = TrimURL(values.StringsCoalesce(c.URL, os.Getenv(EnvURL), DefaultURL))
	c.APIURL = TrimURL(values.StringsCoalesce(c.APIURL, os.Getenv(EnvAPIURL), DefaultAPIURL))
	c.APIKey = values.StringsCoalesce(c.APIKey, os.Getenv(EnvAPIKey))
	c.ServerSlug = values.StringsCoalesce(c.ServerSlug, os.Getenv(EnvServerSlug))
}

// Slug returns the configured server slug, or "unknown".
func (c *Config) Slug() string {
	return values.StringsCoalesce(c.ServerSlug, UnknownServerSlug)
}

// HeartbeatInterval returns the interval between heartbeats.
func (c *Config) HeartbeatInterval() time.Duration {
	return seconds(c.HeartbeatIntervalSeconds, DefaultHeartbeatIntervalSeconds)
}

// HeartbeatTimeout returns the timeout of a single heartbeat request.
func (c *Config) HeartbeatTimeout() time.Duration {
	return seconds(c.HeartbeatTimeoutSeconds, DefaultHeartbeatTimeoutSeconds)
}

// Transport returns the HTTP client configuration.
func (c *Config) Transport() transport.Config {
	tc := transport.DefaultConfig()
	tc.Timeout = seconds(c.RequestTimeoutSeconds, DefaultRequestTimeoutSeconds)
	return tc
}

// TrimURL removes trailing slashes from the base URL.
func TrimURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

func seconds(val, def int) time.Duration {
	if val <= 0 {
		val = def
	}
	return time.Duration(val) * time.Second
}
