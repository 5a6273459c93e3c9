// Package config provides configuration loading from YAML files.
package config

import (
	"net/url"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Session SessionConfig `yaml:"session"`
	Auth    AuthConfig    `yaml:"auth"`
	Lastfm  LastfmConfig  `yaml:"lastfm"`
	Discogs DiscogsConfig `yaml:"discogs"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
	// AppOrigin is where auth callbacks redirect the browser back to.
	AppOrigin string `yaml:"app_origin" default:"http://localhost:5173"`
}

// StoreConfig selects and configures the keyed store backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend" default:"badger" validate:"oneof=badger memory"`
	Settings map[string]any `yaml:"settings"`
}

// SessionConfig configures stored playback sessions.
type SessionConfig struct {
	TTLHours int `yaml:"ttl_hours" default:"48" validate:"gt=0"`
}

// AuthConfig configures the credential exchange flows.
type AuthConfig struct {
	StateTTLMinutes int `yaml:"state_ttl_minutes" default:"10" validate:"gt=0"`
}

// LastfmConfig holds the listening-service application credentials.
// Credentials are deliberately not required: their absence surfaces as a
// runtime configuration error, not a startup failure.
type LastfmConfig struct {
	APIKey       string `yaml:"api_key"`
	SharedSecret string `yaml:"shared_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// DiscogsConfig holds the catalog application credentials and limits.
type DiscogsConfig struct {
	ConsumerKey       string `yaml:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret"`
	CallbackURL       string `yaml:"callback_url"`
	UserAgent         string `yaml:"user_agent" default:"vinylog/1.0 +https://github.com/oyama27/vinylog"`
	RequestsPerMinute int    `yaml:"requests_per_minute" default:"60" validate:"gt=0"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.Lastfm.APIKey = v
	}
	if v := os.Getenv("LASTFM_SHARED_SECRET"); v != "" {
		c.Lastfm.SharedSecret = v
	}
	if v := os.Getenv("DISCOGS_CONSUMER_KEY"); v != "" {
		c.Discogs.ConsumerKey = v
	}
	if v := os.Getenv("DISCOGS_CONSUMER_SECRET"); v != "" {
		c.Discogs.ConsumerSecret = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateURLs(); err != nil {
		return err
	}

	return nil
}

// validateURLs checks that every configured URL is absolute. Empty values
// are allowed; they disable the flow that needs them.
func (c *Config) validateURLs() error {
	urls := []struct {
		name  string
		value string
	}{
		{"server.app_origin", c.Server.AppOrigin},
		{"lastfm.callback_url", c.Lastfm.CallbackURL},
		{"discogs.callback_url", c.Discogs.CallbackURL},
	}
	for _, entry := range urls {
		if entry.value == "" {
			continue
		}
		u, err := url.Parse(entry.value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.Newf("%s must be an absolute URL, got %q", entry.name, entry.value)
		}
	}
	return nil
}

// LastfmConfigured reports whether the listening-service credentials are
// complete enough to build a client.
func (c *Config) LastfmConfigured() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.SharedSecret != ""
}

// SessionTTL returns the stored session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// StateTTL returns the one-time auth state lifetime.
func (c *Config) StateTTL() time.Duration {
	return time.Duration(c.Auth.StateTTLMinutes) * time.Minute
}
