package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the credential lifetime used when Config.TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrConfiguration is returned when the manager has no signing secret.
	ErrConfiguration = errors.New("jwt: signing secret is not configured")
	// ErrClaimsInvalid is returned by Mint for claim sets that cannot be issued.
	ErrClaimsInvalid = errors.New("jwt: claims are not mintable")
	// ErrTokenInvalid is returned by Verify for any malformed, tampered or expired credential.
	ErrTokenInvalid = errors.New("jwt: credential is invalid")
)

// Config configures a Manager.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	// Secret is the HMAC-SHA256 signing key. Rotating it invalidates every outstanding credential.
	Secret []byte
	// TTL is the lifetime applied by NewClaims. Zero means DefaultTTL.
	TTL time.Duration
	// Now overrides the clock used for minting and expiry checks.
	Now func() time.Time
}

// ClaimSet is the payload carried inside a session credential.
type ClaimSet struct {
	SubjectID string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the claim set is past its expiry at now.
// A claim set is still valid at exactly ExpiresAt.
func (c ClaimSet) Expired(now time.Time) bool {
	return now.UnixMilli() > c.ExpiresAt.UnixMilli()
}

// wireClaims keeps the payload keys of credentials already issued to browsers.
// exp is in Unix milliseconds, not the registered-claim seconds.
type wireClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	Exp    int64  `json:"exp"`
}

// The registered-claim getters return nil so the library validator has nothing
// to enforce; expiry is checked by Verify against the manager clock.
func (wireClaims) GetExpirationTime() (*jwt.NumericDate, error) { return nil, nil }
func (wireClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (wireClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (wireClaims) GetIssuer() (string, error)                   { return "", nil }
func (wireClaims) GetSubject() (string, error)                  { return "", nil }
func (wireClaims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// Manager mints and verifies HS256 session credentials.
//
// A Manager is immutable after NewManager and safe for concurrent use.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewManager validates cfg and returns a Manager. An empty secret fails with
// ErrConfiguration; callers treat that as fatal at startup.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrConfiguration
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("%w: negative TTL", ErrConfiguration)
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Manager{
		secret: secret,
		ttl:    cfg.TTL,
		now:    cfg.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// TTL returns the configured credential lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// NewClaims builds a claim set for a freshly authenticated principal that
// expires one TTL from now.
func (m *Manager) NewClaims(subjectID, email, role string) ClaimSet {
	return ClaimSet{
		SubjectID: subjectID,
		Email:     strings.ToLower(email),
		Role:      role,
		ExpiresAt: time.UnixMilli(m.now().Add(m.ttl).UnixMilli()),
	}
}

// Mint signs claims into a compact credential string.
//
// Mint fails with ErrConfiguration on a zero Manager and with ErrClaimsInvalid
// when the subject is empty or ExpiresAt is not in the future.
func (m *Manager) Mint(claims ClaimSet) (string, error) {
	if m == nil || len(m.secret) == 0 {
		return "", ErrConfiguration
	}
	if claims.SubjectID == "" {
		return "", fmt.Errorf("%w: empty subject", ErrClaimsInvalid)
	}
	exp := claims.ExpiresAt.UnixMilli()
	if exp <= m.now().UnixMilli() {
		return "", fmt.Errorf("%w: expiry is not in the future", ErrClaimsInvalid)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, wireClaims{
		UserID: claims.SubjectID,
		Email:  claims.Email,
		Role:   claims.Role,
		Exp:    exp,
	})
	return token.SignedString(m.secret)
}

// Verify checks the structure, signature and expiry of a credential and returns
// its claims. Every failure is reported as ErrTokenInvalid; Verify never panics
// on attacker-controlled input.
func (m *Manager) Verify(token string) (ClaimSet, error) {
	if m == nil || len(m.secret) == 0 {
		return ClaimSet{}, ErrTokenInvalid
	}
	if strings.Count(token, ".") != 2 {
		return ClaimSet{}, ErrTokenInvalid
	}

	var wc wireClaims
	parsed, err := m.parser.ParseWithClaims(token, &wc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ClaimSet{}, ErrTokenInvalid
	}
	if wc.UserID == "" || wc.Exp <= 0 {
		return ClaimSet{}, ErrTokenInvalid
	}

	claims := ClaimSet{
		SubjectID: wc.UserID,
		Email:     wc.Email,
		Role:      wc.Role,
		ExpiresAt: time.UnixMilli(wc.Exp),
	}
	if claims.Expired(m.now()) {
		return ClaimSet{}, ErrTokenInvalid
	}
	return claims, nil
}
