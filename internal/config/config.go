// Package config loads authbridge settings from flags, environment
// (AUTHBRIDGE_*) and an optional YAML file through viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "AUTHBRIDGE"

const (
	RefreshModeJSON   = "json"
	RefreshModeOAuth2 = "oauth2"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Session     SessionConfig     `mapstructure:"session"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	Gate        GateConfig        `mapstructure:"gate"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BackendConfig describes the backend API
type BackendConfig struct {
	URL          string        `mapstructure:"url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RefreshMode  string        `mapstructure:"refresh_mode"` // json or oauth2
	TokenURL     string        `mapstructure:"token_url"`    // oauth2 mode only
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
}

// RedisConfig selects the shared store. An empty URL uses in-memory stores.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// SessionConfig holds web session settings
type SessionConfig struct {
	Secret       string        `mapstructure:"secret"`
	TTL          time.Duration `mapstructure:"ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// CredentialsConfig holds credential cache settings
type CredentialsConfig struct {
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
}

// RefreshConfig holds refresh behaviour
type RefreshConfig struct {
	SingleFlight bool `mapstructure:"single_flight"`
}

// GateConfig holds redirect targets of the access gates
type GateConfig struct {
	SignInPath    string `mapstructure:"sign_in_path"`
	AcquirePath   string `mapstructure:"acquire_path"`
	CallbackParam string `mapstructure:"callback_param"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// SetDefaults registers every key so environment overrides are picked up
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("backend.url", "http://localhost:9000")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.refresh_mode", RefreshModeJSON)
	v.SetDefault("backend.token_url", "")
	v.SetDefault("backend.client_id", "")
	v.SetDefault("backend.client_secret", "")

	v.SetDefault("redis.url", "")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cookie_name", "authbridge_session")
	v.SetDefault("session.cookie_secure", true)
	v.SetDefault("session.cache_ttl", 10*time.Second)

	v.SetDefault("credentials.lookup_timeout", 5*time.Second)
	v.SetDefault("credentials.default_ttl", 30*24*time.Hour)

	v.SetDefault("refresh.single_flight", false)

	v.SetDefault("gate.sign_in_path", "/auth/signin")
	v.SetDefault("gate.acquire_path", "/auth/credentials")
	v.SetDefault("gate.callback_param", "callbackUrl")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.no_color", false)
}

// New returns a viper instance with defaults and environment binding
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}

	if _, err := url.ParseRequestURI(c.Backend.URL); err != nil {
		return fmt.Errorf("invalid backend url %q: %w", c.Backend.URL, err)
	}

	switch c.Backend.RefreshMode {
	case RefreshModeJSON:
	case RefreshModeOAuth2:
		if c.Backend.TokenURL == "" {
			return fmt.Errorf("backend token_url is required for oauth2 refresh mode")
		}
	default:
		return fmt.Errorf("unsupported refresh mode: %s", c.Backend.RefreshMode)
	}

	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 bytes")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}

	if c.Credentials.LookupTimeout <= 0 {
		return fmt.Errorf("credential lookup timeout must be positive")
	}

	if !strings.HasPrefix(c.Gate.SignInPath, "/") || !strings.HasPrefix(c.Gate.AcquirePath, "/") {
		return fmt.Errorf("gate paths must be absolute")
	}
	if c.Gate.CallbackParam == "" {
		return fmt.Errorf("gate callback parameter is required")
	}

	return nil
}
