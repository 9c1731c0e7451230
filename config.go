package sessionauth

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds every engine setting. It is copied into the Engine by
// Builder.Build and never read from globals.
type Config struct {
	Codec    CodecConfig
	Cookie   CookieConfig
	Gate     GateConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

/*
====================================
CODEC CONFIG
====================================
*/

// CodecConfig configures the session credential.
type CodecConfig struct {
	// Secret is the HMAC signing key. Required.
	Secret []byte
	TTL    time.Duration
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig describes the transport cookie carrying the credential.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	SameSite http.SameSite
	// Secure forces the Secure attribute outside production mode.
	Secure bool
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig drives request classification and the login redirect.
type GateConfig struct {
	// ProtectedPrefixes are first path segments that require a session,
	// matched bare (/dashboard) or behind any two-letter segment (/en/dashboard).
	ProtectedPrefixes []string
	Locales           []string
	DefaultLocale     string
	LoginSegment      string
	RedirectParam     string

	// DashboardRoles are the roles with a dedicated dashboard area; other
	// roles land on DefaultDashboardRole.
	DashboardRoles       []string
	DefaultDashboardRole string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures the password schemes.
type PasswordConfig struct {
	BcryptCost  int
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds environment-level switches.
type SecurityConfig struct {
	ProductionMode bool
	// MinSecretBytes is enforced on Codec.Secret in production mode.
	MinSecretBytes int
	// StoreTimeout bounds each store call made by Authenticate. Zero leaves
	// the caller's deadline in charge.
	StoreTimeout time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Codec: CodecConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Cookie: CookieConfig{
			Name:     "app_session",
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
		},
		Gate: GateConfig{
			ProtectedPrefixes:    []string{"dashboard"},
			Locales:              []string{"pt", "en", "fr"},
			DefaultLocale:        "pt",
			LoginSegment:         "login",
			RedirectParam:        "redirect",
			DashboardRoles:       []string{"admin", "recruiter", "instructor", "student"},
			DefaultDashboardRole: "student",
		},
		Password: PasswordConfig{
			BcryptCost:  bcrypt.DefaultCost,
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode: false,
			MinSecretBytes: 32,
			StoreTimeout:   5 * time.Second,
		},
	}
}

// DefaultConfig returns the built-in defaults. Codec.Secret is left empty and
// must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Codec.Secret = cloneBytes(cfg.Codec.Secret)
	out.Gate.ProtectedPrefixes = cloneStrings(cfg.Gate.ProtectedPrefixes)
	out.Gate.Locales = cloneStrings(cfg.Gate.Locales)
	out.Gate.DashboardRoles = cloneStrings(cfg.Gate.DashboardRoles)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

/*
====================================
VALIDATION
====================================
*/

var (
	segmentPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	localePattern  = regexp.MustCompile(`^[a-z]{2}$`)
	cookiePattern  = regexp.MustCompile("^[!#$%&'*+.^_`|~0-9A-Za-z-]+$")
)

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validate reports the first invalid setting as an error wrapping ErrConfiguration.
func (c *Config) Validate() error {
	// Codec
	if len(c.Codec.Secret) == 0 {
		return configErr("Codec Secret is required")
	}
	if c.Codec.TTL <= 0 {
		return configErr("Codec TTL must be > 0")
	}
	if c.Security.ProductionMode && len(c.Codec.Secret) < c.Security.MinSecretBytes {
		return configErr("Codec Secret must be at least %d bytes in production", c.Security.MinSecretBytes)
	}

	// Cookie
	if !cookiePattern.MatchString(c.Cookie.Name) {
		return configErr("Cookie Name %q is not a valid cookie name", c.Cookie.Name)
	}
	if c.Cookie.Path == "" || c.Cookie.Path[0] != '/' {
		return configErr("Cookie Path must start with /")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure && !c.Security.ProductionMode {
		return configErr("Cookie SameSite=None requires Secure")
	}

	// Gate
	if len(c.Gate.ProtectedPrefixes) == 0 {
		return configErr("Gate ProtectedPrefixes must not be empty")
	}
	for _, p := range c.Gate.ProtectedPrefixes {
		if !segmentPattern.MatchString(p) {
			return configErr("Gate protected prefix %q must be a single lower-case path segment", p)
		}
	}
	if len(c.Gate.Locales) == 0 {
		return configErr("Gate Locales must not be empty")
	}
	defaultListed := false
	for _, l := range c.Gate.Locales {
		if !localePattern.MatchString(l) {
			return configErr("Gate locale %q must be two lower-case letters", l)
		}
		if l == c.Gate.DefaultLocale {
			defaultListed = true
		}
	}
	if !defaultListed {
		return configErr("Gate DefaultLocale %q is not in Locales", c.Gate.DefaultLocale)
	}
	if !segmentPattern.MatchString(c.Gate.LoginSegment) {
		return configErr("Gate LoginSegment %q must be a single path segment", c.Gate.LoginSegment)
	}
	if c.Gate.RedirectParam == "" {
		return configErr("Gate RedirectParam must not be empty")
	}
	if c.Gate.DefaultDashboardRole == "" {
		return configErr("Gate DefaultDashboardRole must not be empty")
	}

	// Password
	if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
		return configErr("Password BcryptCost must be in [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configErr("Audit BufferSize must be > 0 when enabled")
	}

	if c.Security.StoreTimeout < 0 {
		return configErr("Security StoreTimeout must be >= 0")
	}

	return nil
}
