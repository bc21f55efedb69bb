package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vigor/internal/retry"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// DefaultUser is the user acting when none is configured or sent.
const DefaultUser = "local"

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Inbox  InboxConfig       `yaml:"inbox"`
	Auth   AuthConfig        `yaml:"auth"`
	CORS   CORSConfig        `yaml:"cors"`
	Events EventsConfig      `yaml:"events"`
	Cache  CacheConfig       `yaml:"cache"`
	Retry  RetryConfig       `yaml:"retry"`
	Client ClientConfig      `yaml:"client"`
}

// Normalize fills defaults that depend on other fields.
func (c *Config) Normalize() {
	// Empty mode means disabled.
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthModeDisabled
	}
	if c.Inbox.DefaultUser == "" {
		c.Inbox.DefaultUser = DefaultUser
	}
	if c.Client.User == "" {
		c.Client.User = DefaultUser
	}
	if c.Client.Token == "" && c.Auth.Mode == AuthModeToken {
		c.Client.Token = c.Auth.Token
	}
	c.Client.BaseURL = strings.TrimRight(c.Client.BaseURL, "/")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"sqlite", &c.SQLite},
		{"inbox", &c.Inbox},
		{"auth", &c.Auth},
		{"cors", &c.CORS},
		{"events", &c.Events},
		{"cache", &c.Cache},
		{"retry", &c.Retry},
		{"client", &c.Client},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
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
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// InboxConfig holds the import inbox settings.
//
// Batches dropped into Path are imported at start and, when Watch is set,
// whenever a file appears.
type InboxConfig struct {
	Path           string        `yaml:"path"`
	Watch          bool          `yaml:"watch"`
	Debounce       time.Duration `yaml:"debounce"`
	DeleteImported bool          `yaml:"delete_imported"`
	DefaultUser    string        `yaml:"default_user"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.DefaultUser, validation.Required, validation.Length(1, 64)),
	)
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

// CORSConfig lists the browser origins allowed to call the API.
// Empty disables CORS handling.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Validate validates the CORS configuration.
func (c *CORSConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AllowedOrigins, validation.Each(validation.Required)),
	)
}

// EventsConfig holds SSE broker settings.
type EventsConfig struct {
	// DashboardThrottle is the minimum gap between dashboard.updated events per user.
	DashboardThrottle time.Duration `yaml:"dashboard_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DashboardThrottle, validation.Min(time.Duration(0))),
	)
}

// CacheConfig holds client-side query cache settings.
type CacheConfig struct {
	MaxEntries      int           `yaml:"max_entries"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	Coalesce        bool          `yaml:"coalesce"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxEntries, validation.Required, validation.Min(1)),
		validation.Field(&c.DefaultTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.JanitorInterval, validation.Min(time.Duration(0))),
	)
}

// RetryConfig holds the backoff policy for client calls.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// Validate validates the retry configuration.
func (c *RetryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.InitialDelay, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxDelay, validation.Required, validation.Min(c.InitialDelay)),
		validation.Field(&c.AttemptTimeout, validation.Min(time.Duration(0))),
	)
}

// Policy converts the configuration into a retry.Policy.
func (c *RetryConfig) Policy(logger *slog.Logger) retry.Policy {
	return retry.Policy{
		MaxRetries:     c.MaxRetries,
		InitialDelay:   c.InitialDelay,
		MaxDelay:       c.MaxDelay,
		AttemptTimeout: c.AttemptTimeout,
		Logger:         logger,
	}
}

var httpURLRe = regexp.MustCompile(`^https?://[^/\s]+`)

// ClientConfig holds the settings of the CLI commands that talk to a
// running server.
type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	User    string        `yaml:"user"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required,
			validation.Match(httpURLRe).Error("must be an http(s) URL")),
		validation.Field(&c.User, validation.Required, validation.Length(1, 64)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:            8080,
				ShutdownTimeout: 10 * time.Second,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./vigor.db",
		},
		Inbox: InboxConfig{
			Path:        "./inbox",
			Watch:       true,
			Debounce:    300 * time.Millisecond,
			DefaultUser: DefaultUser,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Events: EventsConfig{
			DashboardThrottle: 2 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries:      256,
			DefaultTTL:      5 * time.Minute,
			JanitorInterval: time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			AttemptTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			BaseURL: "http://localhost:8080/api",
			User:    DefaultUser,
			Timeout: 15 * time.Second,
		},
	}
}
