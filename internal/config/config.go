// Package config loads the run configuration from the environment, with
// command-line flags taking precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Environment variable names.
const (
	EnvUsername       = "BH_USERNAME"
	EnvPassword       = "BH_PASSWORD"
	EnvListName       = "BH_LIST_NAME"
	EnvCacheCookies   = "BH_CACHE_COOKIES"
	EnvWorkers        = "BH_WORKERS"
	EnvRetries        = "BH_RETRIES"
	EnvCookieFile     = "BH_COOKIE_FILE"
	EnvRedisURL       = "BH_REDIS_URL"
	EnvChallengeToken = "BH_CHALLENGE_TOKEN"
	EnvBaseURL        = "BH_BASE_URL"
	EnvAppID          = "BH_APP_ID"
	EnvOutputDir      = "BH_OUTPUT_DIR"
	EnvLogLevel       = "BH_LOG_LEVEL"
	EnvLogPretty      = "BH_LOG_PRETTY"
	EnvMetricsAddr    = "BH_METRICS_ADDR"
)

var (
	// ErrRequired indicates a missing mandatory setting.
	ErrRequired = errors.New("required")

	// ErrInvalid indicates a setting that cannot be parsed or is out of range.
	ErrInvalid = errors.New("invalid value")
)

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config is the complete run configuration.
type Config struct {
	Username string
	Password string

	ListName string

	// CacheCookies enables session reuse across runs.
	CacheCookies bool
	CookieFile   string

	// RedisURL selects the Redis session store instead of CookieFile.
	RedisURL string

	// ChallengeToken is a pre-solved challenge response.
	ChallengeToken string

	Workers int
	Retries int

	BaseURL string
	AppID   string

	OutputDir string

	LogLevel  string
	LogPretty bool

	// MetricsAddr serves /metrics when set, e.g. ":9090".
	MetricsAddr string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ListName:     "Merkliste",
		CacheCookies: false,
		CookieFile:   ".cache/cookies.json",
		Workers:      3,
		Retries:      1,
		BaseURL:      "https://www.buecherhallen.de",
		OutputDir:    "output",
		LogLevel:     "info",
		LogPretty:    true,
	}
}

// LookupFunc reads an environment variable; os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// FromEnv overlays environment variables on the defaults. Only malformed
// values fail here; missing required settings are reported by Validate.
func FromEnv(lookup LookupFunc) (Config, error) {
	cfg := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	setString := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) error {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return &ConfigError{Field: key, Err: fmt.Errorf("%w: %q is not a boolean", ErrInvalid, v)}
			}
			*dst = b
		}
		return nil
	}
	setInt := func(key string, dst *int) error {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return &ConfigError{Field: key, Err: fmt.Errorf("%w: %q is not an integer", ErrInvalid, v)}
			}
			*dst = n
		}
		return nil
	}

	setString(EnvUsername, &cfg.Username)
	// the password is taken verbatim
	if v, ok := lookup(EnvPassword); ok {
		cfg.Password = v
	}
	setString(EnvListName, &cfg.ListName)
	setString(EnvCookieFile, &cfg.CookieFile)
	setString(EnvRedisURL, &cfg.RedisURL)
	setString(EnvChallengeToken, &cfg.ChallengeToken)
	setString(EnvBaseURL, &cfg.BaseURL)
	setString(EnvAppID, &cfg.AppID)
	setString(EnvOutputDir, &cfg.OutputDir)
	setString(EnvLogLevel, &cfg.LogLevel)
	setString(EnvMetricsAddr, &cfg.MetricsAddr)

	if err := setBool(EnvCacheCookies, &cfg.CacheCookies); err != nil {
		return cfg, err
	}
	if err := setBool(EnvLogPretty, &cfg.LogPretty); err != nil {
		return cfg, err
	}
	if err := setInt(EnvWorkers, &cfg.Workers); err != nil {
		return cfg, err
	}
	if err := setInt(EnvRetries, &cfg.Retries); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// BindFlags registers flags for the non-secret settings, defaulting to the
// current values of cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.ListName, "list", "l", cfg.ListName, "name of the list to report")
	fs.BoolVar(&cfg.CacheCookies, "cache-cookies", cfg.CacheCookies, "reuse the session across runs")
	fs.StringVar(&cfg.CookieFile, "cookie-file", cfg.CookieFile, "session cache file")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for the session cache (overrides --cookie-file)")
	fs.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "parallel item requests")
	fs.IntVarP(&cfg.Retries, "retries", "r", cfg.Retries, "additional attempts per item")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "catalog base URL")
	fs.StringVar(&cfg.AppID, "app-id", cfg.AppID, "catalog application id")
	fs.StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "report output directory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "human-readable console logs")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
}

// Validate checks required settings and ranges.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Username) == "":
		return &ConfigError{Field: EnvUsername, Err: ErrRequired}
	case c.Password == "":
		return &ConfigError{Field: EnvPassword, Err: ErrRequired}
	case strings.TrimSpace(c.ListName) == "":
		return &ConfigError{Field: EnvListName, Err: ErrRequired}
	case c.AppID == "":
		return &ConfigError{Field: EnvAppID, Err: ErrRequired}
	case c.Workers < 1:
		return &ConfigError{Field: EnvWorkers, Err: fmt.Errorf("%w: must be >= 1 (got %d)", ErrInvalid, c.Workers)}
	case c.Retries < 0:
		return &ConfigError{Field: EnvRetries, Err: fmt.Errorf("%w: must be >= 0 (got %d)", ErrInvalid, c.Retries)}
	case c.CacheCookies && c.RedisURL == "" && strings.TrimSpace(c.CookieFile) == "":
		return &ConfigError{Field: EnvCookieFile, Err: ErrRequired}
	case strings.TrimSpace(c.OutputDir) == "":
		return &ConfigError{Field: EnvOutputDir, Err: ErrRequired}
	}
	return nil
}

// String returns a loggable representation without secrets.
func (c Config) String() string {
	return fmt.Sprintf("Config{List: %s, CacheCookies: %t, Workers: %d, Retries: %d, BaseURL: %s, Output: %s}",
		c.ListName, c.CacheCookies, c.Workers, c.Retries, c.BaseURL, c.OutputDir)
}
