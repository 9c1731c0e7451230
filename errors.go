package sessionauth

import (
	"errors"

	"github.com/nexustalent/sessionauth/jwt"
)

var (
	// ErrConfiguration reports missing or inconsistent configuration. It is fatal at startup.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrInvalidCredentials is the single error returned for any failed login,
	// whether the identifier is unknown or the secret is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUpstreamStore reports an identity or profile store failure unrelated to the credentials.
	ErrUpstreamStore = errors.New("identity store unavailable")
	// ErrUserNotFound is returned by FallbackStore implementations for an empty lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenInvalid is returned for malformed, tampered or expired session credentials.
	ErrTokenInvalid = jwt.ErrTokenInvalid
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
