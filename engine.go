package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nexustalent/sessionauth/internal/audit"
	"github.com/nexustalent/sessionauth/internal/logging"
	"github.com/nexustalent/sessionauth/jwt"
	"github.com/nexustalent/sessionauth/password"
)

// Logger is the structured logger accepted by Builder.WithLogger.
type Logger = logging.Logger

// Engine authenticates logins, mints and verifies session credentials, and
// builds the cookie that carries them.
//
// Engine instances are immutable after Builder.Build and safe for concurrent use.
type Engine struct {
	config    Config
	codec     *jwt.Manager
	verifier  *password.Verifier
	primary   PrimaryStore
	fallback  FallbackStore
	providers []identityProvider
	checks    []healthCheck
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    Logger
	now       func() time.Time
}

type healthCheck struct {
	name   string
	pinger Pinger
}

// Close drains pending audit events. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the configuration the Engine was built with.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// CookieName returns the name of the cookie carrying the session credential.
func (e *Engine) CookieName() string {
	if e == nil {
		return ""
	}
	return e.config.Cookie.Name
}

// Metrics exposes the Engine counters so request middleware can record into them.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of every counter and histogram.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Mint signs claims into a credential.
func (e *Engine) Mint(claims ClaimSet) (string, error) {
	if e == nil || e.codec == nil {
		return "", ErrEngineNotReady
	}
	token, err := e.codec.Mint(claims)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricCredentialMinted)
	return token, nil
}

// Verify checks a credential and returns its claims. Any malformed, tampered
// or expired credential fails with ErrTokenInvalid.
func (e *Engine) Verify(token string) (ClaimSet, error) {
	if e == nil || e.codec == nil {
		return ClaimSet{}, ErrTokenInvalid
	}
	claims, err := e.codec.Verify(token)
	if err != nil {
		e.metricInc(MetricCredentialInvalid)
		return ClaimSet{}, err
	}
	e.metricInc(MetricCredentialValid)
	return claims, nil
}

// Login authenticates identifier and plaintext and mints a credential valid
// for Config.Codec.TTL.
//
// Login fails with ErrInvalidCredentials for any rejected login and with an
// error wrapping ErrUpstreamStore when no store could answer.
func (e *Engine) Login(ctx context.Context, identifier, plaintext string) (*LoginResult, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	identity, err := e.Authenticate(ctx, identifier, plaintext)
	if err != nil {
		return nil, err
	}

	claims := e.codec.NewClaims(identity.ID, identity.Email, identity.Role)
	token, err := e.Mint(claims)
	if err != nil {
		e.logger.Error(ctx, "mint credential failed", "user_id", identity.ID, "error", err)
		return nil, fmt.Errorf("mint credential: %w", err)
	}

	return &LoginResult{
		Identity:  *identity,
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Logout records the end of a session and returns the cookie that clears it
// from the browser. Outstanding copies of the credential stay valid until
// they expire; there is no server-side revocation.
func (e *Engine) Logout(ctx context.Context, token string) *http.Cookie {
	if e == nil {
		return nil
	}
	e.metricInc(MetricLogout)

	var userID, email string
	if token != "" && e.codec != nil {
		if claims, err := e.codec.Verify(token); err == nil {
			userID, email = claims.SubjectID, claims.Email
		}
	}
	e.record(ctx, AuditEvent{EventType: auditEventLogout, UserID: userID, Email: email}, nil)

	return e.ClearSessionCookie()
}

// SessionCookie returns the cookie carrying token until expiresAt.
func (e *Engine) SessionCookie(token string, expiresAt time.Time) *http.Cookie {
	maxAge := int(expiresAt.Sub(e.now()).Seconds())
	if maxAge <= 0 {
		return e.ClearSessionCookie()
	}
	c := e.baseCookie()
	c.Value = token
	c.MaxAge = maxAge
	c.Expires = expiresAt.UTC()
	return c
}

// ClearSessionCookie returns a cookie that deletes the session cookie.
func (e *Engine) ClearSessionCookie() *http.Cookie {
	c := e.baseCookie()
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	return c
}

func (e *Engine) baseCookie() *http.Cookie {
	cfg := e.config.Cookie
	return &http.Cookie{
		Name:     cfg.Name,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		HttpOnly: true,
		SameSite: cfg.SameSite,
		Secure:   cfg.Secure || e.config.Security.ProductionMode,
	}
}

// SessionUser describes the principal behind claims for display, enriched
// with the primary store profile when one exists. The role carried by the
// credential wins over the stored one.
func (e *Engine) SessionUser(ctx context.Context, claims ClaimSet) (*SessionUser, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	user := &SessionUser{
		ID:          claims.SubjectID,
		Email:       claims.Email,
		DisplayName: claims.Email,
		Role:        claims.Role,
	}
	if e.primary == nil {
		return user, nil
	}

	ctx, cancel := e.storeContext(ctx)
	defer cancel()

	profile, err := e.primary.ProfileByID(ctx, claims.SubjectID)
	if err != nil {
		e.logger.Error(ctx, "profile lookup failed", "user_id", claims.SubjectID, "error", err)
		return nil, upstreamErr(err)
	}
	if profile == nil {
		return user, nil
	}
	if profile.DisplayName != "" {
		user.DisplayName = profile.DisplayName
	}
	if profile.AvatarURL != "" {
		avatar := profile.AvatarURL
		user.PhotoURL = &avatar
	}
	if user.Role == "" {
		user.Role = profile.Role
	}
	return user, nil
}

// CheckHealth pings every registered store and reports the first failure
// wrapped in ErrUpstreamStore.
func (e *Engine) CheckHealth(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	for _, c := range e.checks {
		cctx, cancel := e.storeContext(ctx)
		err := c.pinger.Ping(cctx)
		cancel()
		if err != nil {
			e.logger.Warn(ctx, "health check failed", "store", c.name, "error", err)
			return fmt.Errorf("%w: %s: %v", ErrUpstreamStore, c.name, err)
		}
	}
	return nil
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.config.Security.StoreTimeout > 0 {
		return context.WithTimeout(ctx, e.config.Security.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

func upstreamErr(err error) error {
	if errors.Is(err, ErrUpstreamStore) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUpstreamStore, err)
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
