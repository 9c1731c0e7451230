package sessionauth

import (
	"context"
	"time"

	"github.com/nexustalent/sessionauth/jwt"
)

// ClaimSet is the payload of a session credential.
type ClaimSet = jwt.ClaimSet

// Identity is a principal resolved by Authenticate.
type Identity struct {
	ID    string
	Email string
	Role  string
	// Source names the store that affirmed the credentials. It is meant for
	// logs and metrics; callers must not branch on it.
	Source string
}

// UserRecord is a row of the fallback user store. An empty PasswordHash marks
// an account that can only sign in through federation.
type UserRecord struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
}

// Profile is the primary store's view of a user.
type Profile struct {
	ID          string
	Email       string
	Role        string
	DisplayName string
	AvatarURL   string
}

// PrimaryStore is the managed identity provider consulted first.
//
// SignInWithPassword returns ErrInvalidCredentials for rejected credentials
// and an error wrapping ErrUpstreamStore for anything else. The profile
// lookups return (nil, nil) when no row matches.
type PrimaryStore interface {
	SignInWithPassword(ctx context.Context, email, password string) (Identity, error)
	ProfileByID(ctx context.Context, id string) (*Profile, error)
	ProfileByEmail(ctx context.Context, email string) (*Profile, error)
}

// FallbackStore holds accounts created outside the primary provider.
// UserByEmail returns ErrUserNotFound when no row matches.
type FallbackStore interface {
	UserByEmail(ctx context.Context, email string) (*UserRecord, error)
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LoginResult is returned by Login.
type LoginResult struct {
	Identity  Identity
	Token     string
	ExpiresAt time.Time
}

// SessionUser is the JSON-facing description of the signed-in user.
type SessionUser struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
	Role        string  `json:"role,omitempty"`
}
