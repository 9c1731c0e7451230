package middleware

import (
	"net/http"

	"github.com/nexustalent/sessionauth"
)

// Verdict is the answer of one CredentialChecker.
type Verdict int

const (
	// NotApplicable means the request carries nothing this checker understands.
	NotApplicable Verdict = iota
	// Allow means the request carries a valid session.
	Allow
	// Deny means the request carries something this checker rejected.
	Deny
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "not_applicable"
	}
}

// CredentialChecker inspects a request for one kind of session. Checkers
// that carry claims return them with Allow.
type CredentialChecker interface {
	Check(r *http.Request) (Verdict, *sessionauth.ClaimSet)
}

// TokenVerifier verifies a session credential. *sessionauth.Engine implements it.
type TokenVerifier interface {
	Verify(token string) (sessionauth.ClaimSet, error)
}

// SessionSource reports whether a request carries a live session of the
// secondary mechanism. A missing session is (false, nil).
type SessionSource interface {
	CurrentSession(r *http.Request) (bool, error)
}

// CookieChecker verifies the credential stored in cookie Name.
type CookieChecker struct {
	Name     string
	Verifier TokenVerifier
}

// Check returns NotApplicable without the cookie, Deny for a credential that
// fails verification and Allow with its claims otherwise.
func (c CookieChecker) Check(r *http.Request) (Verdict, *sessionauth.ClaimSet) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return NotApplicable, nil
	}
	if c.Verifier == nil {
		return Deny, nil
	}
	claims, err := c.Verifier.Verify(cookie.Value)
	if err != nil {
		return Deny, nil
	}
	return Allow, &claims
}

// SessionChecker consults a secondary session mechanism. Source failures are
// logged and answered with Deny.
type SessionChecker struct {
	Name   string
	Source SessionSource
	Logger sessionauth.Logger
}

func (c SessionChecker) Check(r *http.Request) (Verdict, *sessionauth.ClaimSet) {
	if c.Source == nil {
		return NotApplicable, nil
	}
	ok, err := c.Source.CurrentSession(r)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warn(r.Context(), "session lookup failed", "checker", c.Name, "error", err)
		}
		return Deny, nil
	}
	if !ok {
		return NotApplicable, nil
	}
	return Allow, nil
}
