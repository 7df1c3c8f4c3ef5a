package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app" toml:"app"`
	Docs      DocsConfig        `yaml:"docs" toml:"docs"`
	Notebooks NotebooksConfig   `yaml:"notebooks" toml:"notebooks"`
	SQLite    SQLiteConfig      `yaml:"sqlite" toml:"sqlite"`
	Executor  ExecutorConfig    `yaml:"executor" toml:"executor"`
	Auth      AuthConfig        `yaml:"auth" toml:"auth"`
	SSE       SSEConfig         `yaml:"sse" toml:"sse"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Docs.Validate(); err != nil {
		return err
	}
	if err := c.Notebooks.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Executor.Validate(); err != nil {
		return err
	}
	if err := c.SSE.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	HTTP     HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
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

// DocsConfig holds the path to the Markdown pages.
type DocsConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Validate validates the docs configuration.
func (c *DocsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// NotebooksConfig lists the directories notebook URLs are resolved against,
// in search order.
type NotebooksConfig struct {
	SrcDirs []string `yaml:"src_dirs" toml:"src_dirs"`
}

// Validate validates the notebooks configuration.
func (c *NotebooksConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SrcDirs, validation.Required, validation.Each(validation.Required)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ExecutorConfig configures the jupyter process that executes notebooks.
type ExecutorConfig struct {
	Command        string `yaml:"command" toml:"command"`
	Kernel         string `yaml:"kernel" toml:"kernel"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Timeout returns the per-cell timeout; zero means unlimited.
func (c *ExecutorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the executor configuration.
func (c *ExecutorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Min(0)),
	)
}

// SSEConfig tunes the live-reload event stream.
type SSEConfig struct {
	// ListThrottleMS is the minimum gap between pages.changed events.
	ListThrottleMS int `yaml:"list_throttle_ms" toml:"list_throttle_ms"`
}

// ListThrottle returns ListThrottleMS as a duration.
func (c *SSEConfig) ListThrottle() time.Duration {
	return time.Duration(c.ListThrottleMS) * time.Millisecond
}

// Validate validates the SSE configuration.
func (c *SSEConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ListThrottleMS, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration of the preview API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
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
		Docs: DocsConfig{
			Path: "./docs",
		},
		Notebooks: NotebooksConfig{
			SrcDirs: []string{"./notebooks"},
		},
		SQLite: SQLiteConfig{
			Path: "./nbsync.db",
		},
		Executor: ExecutorConfig{
			Command: "jupyter",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		SSE: SSEConfig{
			ListThrottleMS: 2000,
		},
	}
}
