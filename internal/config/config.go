// Package config loads the sessionauthd server settings.
//
// Values are applied in order: built-in defaults, an optional TOML file,
// environment variables, then command-line flags. Later sources win.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nexustalent/sessionauth"
)

// Legacy session backends.
const (
	LegacyNone    = "none"
	LegacyRedis   = "redis"
	LegacyPrimary = "primary"
)

// EnvConfigPath names the variable holding the TOML file path when -config
// is not given.
const EnvConfigPath = "SESSIONAUTH_CONFIG"

// Config holds runtime settings for sessionauthd.
type Config struct {
	ListenAddr string `toml:"listen_addr"`
	// Environment is "development" or "production". Production forces
	// Secure cookies and the minimum secret length.
	Environment     string        `toml:"environment"`
	UpstreamURL     string        `toml:"upstream_url"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	Log      LogConfig      `toml:"log"`
	Auth     AuthConfig     `toml:"auth"`
	Primary  PrimaryConfig  `toml:"primary"`
	Fallback FallbackConfig `toml:"fallback"`
	Legacy   LegacyConfig   `toml:"legacy"`
	Gate     GateConfig     `toml:"gate"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Audit    AuditConfig    `toml:"audit"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type AuthConfig struct {
	Secret       string        `toml:"secret"`
	TTL          time.Duration `toml:"ttl"`
	CookieName   string        `toml:"cookie_name"`
	CookieDomain string        `toml:"cookie_domain"`
	StoreTimeout time.Duration `toml:"store_timeout"`
}

// PrimaryConfig points at the managed identity provider. An empty URL
// disables the primary store.
type PrimaryConfig struct {
	URL               string `toml:"url"`
	AnonKey           string `toml:"anon_key"`
	DatabaseURL       string `toml:"database_url"`
	AccessTokenCookie string `toml:"access_token_cookie"`
}

// FallbackConfig points at the Postgres database holding public.users. An
// empty DatabaseURL disables the fallback store.
type FallbackConfig struct {
	DatabaseURL    string `toml:"database_url"`
	MigrateOnStart bool   `toml:"migrate_on_start"`
	MaxOpenConns   int    `toml:"max_open_conns"`
}

// LegacyConfig selects the secondary session mechanism consulted by the
// gatekeeper after the credential cookie.
type LegacyConfig struct {
	Backend       string        `toml:"backend"`
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	KeyPrefix     string        `toml:"key_prefix"`
	CookieName    string        `toml:"cookie_name"`
	Timeout       time.Duration `toml:"timeout"`
}

type GateConfig struct {
	ProtectedPrefixes []string `toml:"protected_prefixes"`
	Locales           []string `toml:"locales"`
	DefaultLocale     string   `toml:"default_locale"`
}

type MetricsConfig struct {
	Enabled    bool `toml:"enabled"`
	Histograms bool `toml:"histograms"`
	// OTel additionally registers the counters with an OpenTelemetry meter.
	OTel bool `toml:"otel"`
}

type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
}

// LoadDefaults populates c with development defaults. The secret is left
// empty and must be supplied.
func (c *Config) LoadDefaults() {
	lib := sessionauth.DefaultConfig()

	c.ListenAddr = ":8080"
	c.Environment = "development"
	c.ShutdownTimeout = 10 * time.Second
	c.Log = LogConfig{Level: "info", Format: "text"}
	c.Auth = AuthConfig{
		TTL:          lib.Codec.TTL,
		CookieName:   lib.Cookie.Name,
		StoreTimeout: lib.Security.StoreTimeout,
	}
	c.Fallback = FallbackConfig{MaxOpenConns: 10}
	c.Legacy = LegacyConfig{
		Backend:    LegacyNone,
		RedisAddr:  "127.0.0.1:6379",
		KeyPrefix:  "ls",
		CookieName: "legacy_session",
		Timeout:    2 * time.Second,
	}
	c.Gate = GateConfig{
		ProtectedPrefixes: lib.Gate.ProtectedPrefixes,
		Locales:           lib.Gate.Locales,
		DefaultLocale:     lib.Gate.DefaultLocale,
	}
	c.Metrics = MetricsConfig{Enabled: true}
	c.Audit = AuditConfig{BufferSize: lib.Audit.BufferSize}
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load builds a Config from defaults, the TOML file named by -config or
// SESSIONAUTH_CONFIG, the environment, and args. getenv is usually
// os.Getenv. Flag usage errors are written to output.
func Load(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fs, fv := newFlagSet(output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := fv.configPath
	if path == "" {
		path = getenv(EnvConfigPath)
	}
	if path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	fv.apply(fs, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML overlays the settings found in the TOML file at path onto cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: unknown keys in %s: %s", sessionauth.ErrConfiguration, path, strings.Join(keys, ", "))
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&cfg.Auth.Secret, "AUTH_SECRET")
	set(&cfg.Environment, "APP_ENV")
	set(&cfg.Primary.URL, "PRIMARY_AUTH_URL")
	set(&cfg.Primary.AnonKey, "PRIMARY_ANON_KEY")
	set(&cfg.Primary.DatabaseURL, "PRIMARY_DATABASE_URL")
	set(&cfg.Fallback.DatabaseURL, "FALLBACK_DATABASE_URL")
	set(&cfg.Legacy.Backend, "LEGACY_SESSION_BACKEND")
	set(&cfg.Legacy.RedisAddr, "LEGACY_REDIS_ADDR")
	set(&cfg.Legacy.RedisPassword, "LEGACY_REDIS_PASSWORD")
	set(&cfg.UpstreamURL, "UPSTREAM_URL")
	set(&cfg.ListenAddr, "LISTEN_ADDR")
	set(&cfg.Log.Level, "LOG_LEVEL")
	set(&cfg.Log.Format, "LOG_FORMAT")

	if v := strings.TrimSpace(getenv("METRICS_ENABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: METRICS_ENABLED: %v", sessionauth.ErrConfiguration, err)
		}
		cfg.Metrics.Enabled = b
	}
	return nil
}

type flagValues struct {
	configPath string
	listen     string
	upstream   string
	env        string
	logLevel   string
	logFormat  string
	legacy     string
	migrate    bool
}

func newFlagSet(output io.Writer) (*flag.FlagSet, *flagValues) {
	fv := &flagValues{}
	fs := flag.NewFlagSet("sessionauthd", flag.ContinueOnError)
	if output == nil {
		output = os.Stderr
	}
	fs.SetOutput(output)

	fs.StringVar(&fv.configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&fv.listen, "listen", "", "address to listen on (e.g. \":8080\")")
	fs.StringVar(&fv.upstream, "upstream", "", "page renderer URL gated requests are proxied to")
	fs.StringVar(&fv.env, "env", "", "development or production")
	fs.StringVar(&fv.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&fv.logFormat, "log-format", "", "text or json")
	fs.StringVar(&fv.legacy, "legacy", "", "legacy session backend: none, redis or primary")
	fs.BoolVar(&fv.migrate, "migrate", false, "apply fallback store migrations on start")
	return fs, fv
}

// apply copies only the flags given on the command line, so an unset flag
// never clobbers a value from the file or environment.
func (fv *flagValues) apply(fs *flag.FlagSet, cfg *Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = fv.listen
		case "upstream":
			cfg.UpstreamURL = fv.upstream
		case "env":
			cfg.Environment = fv.env
		case "log-level":
			cfg.Log.Level = fv.logLevel
		case "log-format":
			cfg.Log.Format = fv.logFormat
		case "legacy":
			cfg.Legacy.Backend = fv.legacy
		case "migrate":
			cfg.Fallback.MigrateOnStart = fv.migrate
		}
	})
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", sessionauth.ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validate reports the first invalid setting as an error wrapping
// sessionauth.ErrConfiguration. Library-level checks run in EngineConfig.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return configErr("AUTH_SECRET is required")
	}
	switch strings.ToLower(c.Environment) {
	case "development", "production":
	default:
		return configErr("environment %q must be development or production", c.Environment)
	}
	if c.ListenAddr == "" {
		return configErr("listen address is required")
	}

	if c.Primary.URL == "" && c.Fallback.DatabaseURL == "" {
		return configErr("no identity store configured: set PRIMARY_AUTH_URL or FALLBACK_DATABASE_URL")
	}
	if c.Primary.URL != "" && c.Primary.AnonKey == "" {
		return configErr("PRIMARY_ANON_KEY is required with PRIMARY_AUTH_URL")
	}
	if c.Fallback.MigrateOnStart && c.Fallback.DatabaseURL == "" {
		return configErr("migrate on start needs FALLBACK_DATABASE_URL")
	}

	switch c.Legacy.Backend {
	case LegacyNone:
	case LegacyRedis:
		if c.Legacy.RedisAddr == "" {
			return configErr("legacy backend redis needs LEGACY_REDIS_ADDR")
		}
	case LegacyPrimary:
		if c.Primary.URL == "" {
			return configErr("legacy backend primary needs PRIMARY_AUTH_URL")
		}
	default:
		return configErr("unknown legacy session backend %q", c.Legacy.Backend)
	}

	if c.UpstreamURL != "" {
		u, err := url.Parse(c.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return configErr("upstream URL %q is invalid", c.UpstreamURL)
		}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return configErr("log format %q must be text or json", c.Log.Format)
	}
	if c.ShutdownTimeout <= 0 {
		return configErr("shutdown timeout must be > 0")
	}
	return nil
}

// EngineConfig translates c into the library configuration and validates it.
func (c *Config) EngineConfig() (sessionauth.Config, error) {
	out := sessionauth.DefaultConfig()

	out.Codec.Secret = []byte(c.Auth.Secret)
	if c.Auth.TTL > 0 {
		out.Codec.TTL = c.Auth.TTL
	}
	if c.Auth.CookieName != "" {
		out.Cookie.Name = c.Auth.CookieName
	}
	out.Cookie.Domain = c.Auth.CookieDomain
	out.Security.ProductionMode = c.Production()
	out.Security.StoreTimeout = c.Auth.StoreTimeout

	if len(c.Gate.ProtectedPrefixes) > 0 {
		out.Gate.ProtectedPrefixes = append([]string(nil), c.Gate.ProtectedPrefixes...)
	}
	if len(c.Gate.Locales) > 0 {
		out.Gate.Locales = append([]string(nil), c.Gate.Locales...)
	}
	if c.Gate.DefaultLocale != "" {
		out.Gate.DefaultLocale = c.Gate.DefaultLocale
	}

	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.Histograms
	out.Audit.Enabled = c.Audit.Enabled
	if c.Audit.BufferSize > 0 {
		out.Audit.BufferSize = c.Audit.BufferSize
	}

	if err := out.Validate(); err != nil {
		return sessionauth.Config{}, err
	}
	return out, nil
}

// IsHelp reports whether err came from a help request.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
