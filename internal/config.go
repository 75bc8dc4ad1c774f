package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/records"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Store StoreConfig       `yaml:"store"`
	Sync  SyncConfig        `yaml:"sync"`
	Rules RulesConfig       `yaml:"rules"`
	Auth  AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig selects the key-value backend and the key namespace.
type StoreConfig struct {
	Driver  string `yaml:"driver"`
	Path    string `yaml:"path"`
	Prefix  string `yaml:"prefix"`
	Version string `yaml:"version"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(kv.DriverSQLite, kv.DriverPebble, kv.DriverMemory)),
		validation.Field(&c.Path, validation.When(c.Driver != kv.DriverMemory, validation.Required)),
		validation.Field(&c.Version, validation.Required),
	)
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	SourceMode      string        `yaml:"source_mode"`
	HistoryLimit    int           `yaml:"history_limit"`
	HistoryThrottle time.Duration `yaml:"history_throttle"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SourceMode, validation.Required),
		validation.Field(&c.HistoryLimit, validation.Min(0)),
	)
}

// RulesConfig points at an optional directory of YAML rule files.
type RulesConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the rules configuration.
func (c *RulesConfig) Validate() error {
	if c.Watch && c.Dir == "" {
		return fmt.Errorf("rules: watch is enabled but dir is empty")
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Driver:  kv.DriverSQLite,
			Path:    "./data/cardsync.db",
			Version: "v1",
		},
		Sync: SyncConfig{
			SourceMode:      records.DefaultSourceModeID,
			HistoryLimit:    ledger.DefaultHistoryLimit,
			HistoryThrottle: 2 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
