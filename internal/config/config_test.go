package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexustalent/sessionauth"
)

const secret = "0123456789abcdef0123456789abcdef"

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessionauth.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.ListenAddr)
	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 7*24*time.Hour, c.Auth.TTL)
	assert.Equal(t, "app_session", c.Auth.CookieName)
	assert.Equal(t, LegacyNone, c.Legacy.Backend)
	assert.Equal(t, []string{"dashboard"}, c.Gate.ProtectedPrefixes)
	assert.Equal(t, []string{"pt", "en", "fr"}, c.Gate.Locales)
	assert.Equal(t, "pt", c.Gate.DefaultLocale)
	assert.False(t, c.Production())
}

func TestLoadFromEnv(t *testing.T) {
	cfg, err := Load(nil, envOf(map[string]string{
		"AUTH_SECRET":            secret,
		"APP_ENV":                "production",
		"PRIMARY_AUTH_URL":       "https://id.example.com",
		"PRIMARY_ANON_KEY":       "anon",
		"FALLBACK_DATABASE_URL":  "postgres://localhost/app",
		"LEGACY_SESSION_BACKEND": "redis",
		"LEGACY_REDIS_ADDR":      "redis:6379",
		"UPSTREAM_URL":           "http://web:3000",
		"LISTEN_ADDR":            ":9000",
		"LOG_LEVEL":              "debug",
		"METRICS_ENABLED":        "false",
	}), io.Discard)
	require.NoError(t, err)

	assert.Equal(t, secret, cfg.Auth.Secret)
	assert.True(t, cfg.Production())
	assert.Equal(t, "https://id.example.com", cfg.Primary.URL)
	assert.Equal(t, "postgres://localhost/app", cfg.Fallback.DatabaseURL)
	assert.Equal(t, LegacyRedis, cfg.Legacy.Backend)
	assert.Equal(t, "redis:6379", cfg.Legacy.RedisAddr)
	assert.Equal(t, "http://web:3000", cfg.UpstreamURL)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeTOML(t, `
listen_addr = ":7000"
upstream_url = "http://from-file:3000"
shutdown_timeout = "3s"

[auth]
secret = "file-secret-file-secret-file-sec"
ttl = "24h"

[fallback]
database_url = "postgres://file/app"

[gate]
protected_prefixes = ["dashboard", "account"]
locales = ["pt", "en"]
default_locale = "en"

[log]
format = "json"
`)

	env := envOf(map[string]string{
		EnvConfigPath: path,
		"LISTEN_ADDR": ":7100",
	})
	cfg, err := Load([]string{"-listen", ":7200", "-log-level", "warn"}, env, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, ":7200", cfg.ListenAddr, "flag beats env and file")
	assert.Equal(t, "http://from-file:3000", cfg.UpstreamURL, "file beats default")
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TTL)
	assert.Equal(t, []string{"dashboard", "account"}, cfg.Gate.ProtectedPrefixes)
	assert.Equal(t, "en", cfg.Gate.DefaultLocale)
	assert.Equal(t, "app_session", cfg.Auth.CookieName, "keys absent from the file keep their default")
}

func TestLoadConfigFlagBeatsEnvPath(t *testing.T) {
	good := writeTOML(t, `
[auth]
secret = "`+secret+`"
[fallback]
database_url = "postgres://flag/app"
`)
	env := envOf(map[string]string{EnvConfigPath: filepath.Join(t.TempDir(), "missing.toml")})

	cfg, err := Load([]string{"-config", good}, env, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/app", cfg.Fallback.DatabaseURL)
}

func TestLoadRejectsUnknownTOMLKeys(t *testing.T) {
	path := writeTOML(t, `
[auth]
secret = "x"
sekret = "typo"
`)
	_, err := Load([]string{"-config", path}, envOf(nil), io.Discard)
	require.ErrorIs(t, err, sessionauth.ErrConfiguration)
	assert.Contains(t, err.Error(), "auth.sekret")
}

func TestLoadFlagErrors(t *testing.T) {
	_, err := Load([]string{"-no-such-flag"}, envOf(nil), io.Discard)
	require.Error(t, err)

	_, err = Load([]string{"-h"}, envOf(nil), io.Discard)
	assert.True(t, IsHelp(err))

	_, err = Load(nil, envOf(map[string]string{"METRICS_ENABLED": "sometimes"}), io.Discard)
	require.ErrorIs(t, err, sessionauth.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.LoadDefaults()
		c.Auth.Secret = secret
		c.Fallback.DatabaseURL = "postgres://localhost/app"
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults with secret and store", func(*Config) {}, true},
		{"missing secret", func(c *Config) { c.Auth.Secret = "" }, false},
		{"no store", func(c *Config) { c.Fallback.DatabaseURL = "" }, false},
		{"primary only", func(c *Config) {
			c.Fallback.DatabaseURL = ""
			c.Primary.URL = "https://id.example.com"
			c.Primary.AnonKey = "anon"
		}, true},
		{"primary without key", func(c *Config) { c.Primary.URL = "https://id.example.com" }, false},
		{"unknown legacy backend", func(c *Config) { c.Legacy.Backend = "memcached" }, false},
		{"redis legacy without addr", func(c *Config) {
			c.Legacy.Backend = LegacyRedis
			c.Legacy.RedisAddr = ""
		}, false},
		{"primary legacy without primary", func(c *Config) { c.Legacy.Backend = LegacyPrimary }, false},
		{"bad environment", func(c *Config) { c.Environment = "staging" }, false},
		{"bad upstream", func(c *Config) { c.UpstreamURL = "web:3000" }, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"migrate without fallback", func(c *Config) {
			c.Fallback.DatabaseURL = ""
			c.Fallback.MigrateOnStart = true
			c.Primary.URL = "https://id.example.com"
			c.Primary.AnonKey = "anon"
		}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, sessionauth.ErrConfiguration)
		})
	}
}

func TestEngineConfig(t *testing.T) {
	var c Config
	c.LoadDefaults()
	c.Auth.Secret = secret
	c.Auth.CookieDomain = "example.com"
	c.Environment = "production"
	c.Gate.Locales = []string{"en", "fr"}
	c.Gate.DefaultLocale = "en"
	c.Audit.Enabled = true

	out, err := c.EngineConfig()
	require.NoError(t, err)

	assert.Equal(t, []byte(secret), out.Codec.Secret)
	assert.Equal(t, "example.com", out.Cookie.Domain)
	assert.True(t, out.Security.ProductionMode)
	assert.Equal(t, []string{"en", "fr"}, out.Gate.Locales)
	assert.Equal(t, "en", out.Gate.DefaultLocale)
	assert.True(t, out.Audit.Enabled)
	assert.True(t, out.Metrics.Enabled)

	c.Gate.Locales[0] = "xx"
	assert.Equal(t, "en", out.Gate.Locales[0], "engine config must not alias server config slices")
}

func TestEngineConfigEnforcesProductionSecretLength(t *testing.T) {
	var c Config
	c.LoadDefaults()
	c.Auth.Secret = "short"
	c.Environment = "production"

	_, err := c.EngineConfig()
	require.ErrorIs(t, err, sessionauth.ErrConfiguration)
}
