package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func validEnv() map[string]string {
	return map[string]string{
		EnvUsername: "A123456",
		EnvPassword: " secret ",
		EnvAppID:    "app",
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(validEnv()))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "Merkliste", cfg.ListName)
	assert.False(t, cfg.CacheCookies)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 1, cfg.Retries)
	assert.Equal(t, ".cache/cookies.json", cfg.CookieFile)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, " secret ", cfg.Password, "password is not trimmed")
}

func TestFromEnv_Overrides(t *testing.T) {
	env := validEnv()
	env[EnvListName] = "Urlaub"
	env[EnvCacheCookies] = "true"
	env[EnvWorkers] = "8"
	env[EnvRetries] = "0"
	env[EnvRedisURL] = "redis://localhost:6379/2"
	env[EnvLogPretty] = "false"

	cfg, err := FromEnv(envMap(env))
	require.NoError(t, err)

	assert.Equal(t, "Urlaub", cfg.ListName)
	assert.True(t, cfg.CacheCookies)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 0, cfg.Retries)
	assert.Equal(t, "redis://localhost:6379/2", cfg.RedisURL)
	assert.False(t, cfg.LogPretty)
}

func TestFromEnv_Malformed(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{EnvWorkers, "many"},
		{EnvRetries, "1.5"},
		{EnvCacheCookies, "yes please"},
		{EnvLogPretty, "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			env := validEnv()
			env[tt.key] = tt.value

			_, err := FromEnv(envMap(env))

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.key, cfgErr.Field)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{name: "missing username", modify: func(c *Config) { c.Username = " " }, wantField: EnvUsername},
		{name: "missing password", modify: func(c *Config) { c.Password = "" }, wantField: EnvPassword},
		{name: "missing app id", modify: func(c *Config) { c.AppID = "" }, wantField: EnvAppID},
		{name: "empty list name", modify: func(c *Config) { c.ListName = "" }, wantField: EnvListName},
		{name: "zero workers", modify: func(c *Config) { c.Workers = 0 }, wantField: EnvWorkers},
		{name: "negative retries", modify: func(c *Config) { c.Retries = -1 }, wantField: EnvRetries},
		{name: "cache without location", modify: func(c *Config) { c.CacheCookies = true; c.CookieFile = "" }, wantField: EnvCookieFile},
		{name: "empty output dir", modify: func(c *Config) { c.OutputDir = "" }, wantField: EnvOutputDir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromEnv(envMap(validEnv()))
			require.NoError(t, err)
			tt.modify(&cfg)

			var cfgErr *ConfigError
			require.ErrorAs(t, cfg.Validate(), &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestBindFlags_OverrideEnv(t *testing.T) {
	env := validEnv()
	env[EnvWorkers] = "5"
	cfg, err := FromEnv(envMap(env))
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, &cfg)
	require.NoError(t, fs.Parse([]string{"--retries", "4", "-l", "Andere"}))

	assert.Equal(t, 5, cfg.Workers, "env value kept when flag not given")
	assert.Equal(t, 4, cfg.Retries)
	assert.Equal(t, "Andere", cfg.ListName)
}

func TestConfig_StringHidesSecrets(t *testing.T) {
	cfg, err := FromEnv(envMap(validEnv()))
	require.NoError(t, err)

	s := cfg.String()
	assert.False(t, strings.Contains(s, "secret"))
	assert.False(t, strings.Contains(s, "A123456"))
}
