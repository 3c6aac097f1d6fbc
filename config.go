package goConsole

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix of every environment variable read by [LoadConfig].
const EnvPrefix = "GOCONSOLE_"

// Config holds every tunable of a Store and its collaborators.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	API        APIConfig        `envPrefix:"API_"`
	Credential CredentialConfig `envPrefix:"CREDENTIAL_"`
	Guard      GuardConfig      `envPrefix:"GUARD_"`
	Events     EventsConfig     `envPrefix:"EVENTS_"`
	Metrics    MetricsConfig    `envPrefix:"METRICS_"`
	Log        LogConfig        `envPrefix:"LOG_"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig describes the remote admin API.
type APIConfig struct {
	BaseURL     string        `env:"BASE_URL"`
	LoginPath   string        `env:"LOGIN_PATH"`
	ProfilePath string        `env:"PROFILE_PATH"`
	Timeout     time.Duration `env:"TIMEOUT"`
	UserAgent   string        `env:"USER_AGENT"`
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CredentialBackend selects where the credential token is persisted.
type CredentialBackend string

const (
	// CredentialMemory keeps the token in process memory only.
	CredentialMemory CredentialBackend = "memory"
	// CredentialFile persists the token in a 0600 file.
	CredentialFile CredentialBackend = "file"
	// CredentialRedis persists the token in redis.
	CredentialRedis CredentialBackend = "redis"
)

// CredentialConfig describes credential persistence.
type CredentialConfig struct {
	Backend CredentialBackend `env:"BACKEND"`
	// Key is the single well-known key the token is stored under.
	Key         string        `env:"KEY"`
	FilePath    string        `env:"FILE_PATH"`
	RedisAddr   string        `env:"REDIS_ADDR"`
	RedisPrefix string        `env:"REDIS_PREFIX"`
	TTL         time.Duration `env:"TTL"` // 0 = no expiry
	// SkipExpired treats a stored JWT whose exp has passed as rejected
	// without calling the profile endpoint. Opaque tokens are always fetched.
	SkipExpired bool `env:"SKIP_EXPIRED"`
}

/*
====================================
GUARD CONFIG
====================================
*/

// GuardConfig describes how the HTTP guard answers non-Allow decisions.
type GuardConfig struct {
	LoginPath         string        `env:"LOGIN_PATH"`
	ReturnToParam     string        `env:"RETURN_TO_PARAM"`
	LoadingRetryAfter time.Duration `env:"LOADING_RETRY_AFTER"`
}

// EventsConfig controls the session event dispatcher.
type EventsConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// LogConfig selects the slog handler built by commands.
type LogConfig struct {
	Level  string `env:"LEVEL"`  // debug, info, warn, error
	Format string `env:"FORMAT"` // text or json
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:     "http://127.0.0.1:8080",
			LoginPath:   "/auth/login",
			ProfilePath: "/profile",
			Timeout:     10 * time.Second,
			UserAgent:   "goConsole",
		},
		Credential: CredentialConfig{
			Backend:     CredentialFile,
			Key:         "goconsole:token",
			RedisPrefix: "gc",
			TTL:         0,
			SkipExpired: true,
		},
		Guard: GuardConfig{
			LoginPath:         "/login",
			ReturnToParam:     "next",
			LoadingRetryAfter: time.Second,
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig starts from [DefaultConfig], overlays GOCONSOLE_* environment
// variables and validates the result.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// API
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("API BaseURL must be set")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if !strings.HasPrefix(c.API.LoginPath, "/") {
		return errors.New("API LoginPath must start with /")
	}
	if !strings.HasPrefix(c.API.ProfilePath, "/") {
		return errors.New("API ProfilePath must start with /")
	}
	if c.API.Timeout <= 0 {
		return errors.New("API Timeout must be > 0")
	}

	// Credential
	switch c.Credential.Backend {
	case CredentialMemory, CredentialFile:
	case CredentialRedis:
		if strings.TrimSpace(c.Credential.RedisAddr) == "" {
			return errors.New("Credential RedisAddr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("Credential Backend %q is not one of memory, file, redis", c.Credential.Backend)
	}
	if strings.TrimSpace(c.Credential.Key) == "" {
		return errors.New("Credential Key must be set")
	}
	if c.Credential.TTL < 0 {
		return errors.New("Credential TTL must be >= 0")
	}

	// Guard
	if !strings.HasPrefix(c.Guard.LoginPath, "/") {
		return errors.New("Guard LoginPath must start with /")
	}
	if c.Guard.LoadingRetryAfter < 0 {
		return errors.New("Guard LoadingRetryAfter must be >= 0")
	}

	// Events
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when Events are enabled")
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("Log Level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("Log Format %q is not one of text, json", c.Log.Format)
	}

	return nil
}
