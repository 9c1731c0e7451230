package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	sourcePrimary  = "primary"
	sourceFallback = "fallback"
)

// identityProvider is one backend able to affirm an email/secret pair.
//
// authenticate returns the resolved identity, ErrInvalidCredentials when the
// backend does not affirm the pair (unknown account, wrong secret, no local
// password), or an error wrapping ErrUpstreamStore.
type identityProvider interface {
	source() string
	authenticate(ctx context.Context, email, secret string) (Identity, error)
}

type primaryProvider struct {
	store PrimaryStore
}

func (primaryProvider) source() string { return sourcePrimary }

func (p primaryProvider) authenticate(ctx context.Context, email, secret string) (Identity, error) {
	id, err := p.store.SignInWithPassword(ctx, email, secret)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, upstreamErr(err)
	}
	if id.ID == "" {
		return Identity{}, fmt.Errorf("%w: primary store affirmed an identity without id", ErrUpstreamStore)
	}
	id.Email = normalizeIdentifier(id.Email)
	if id.Email == "" {
		id.Email = email
	}
	return id, nil
}

type fallbackProvider struct {
	store    FallbackStore
	verifier interface {
		Matches(plaintext, stored string) bool
	}
	decoy string
}

func (fallbackProvider) source() string { return sourceFallback }

func (p fallbackProvider) authenticate(ctx context.Context, email, secret string) (Identity, error) {
	rec, err := p.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) || (err == nil && rec == nil) {
		p.verifier.Matches(secret, p.decoy)
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, upstreamErr(err)
	}
	if !p.verifier.Matches(secret, rec.PasswordHash) {
		return Identity{}, ErrInvalidCredentials
	}

	resolved := Identity{
		ID:    rec.ID,
		Email: normalizeIdentifier(rec.Email),
		Role:  rec.Role,
	}
	if resolved.Email == "" {
		resolved.Email = email
	}
	return resolved, nil
}

// Authenticate resolves identifier and plaintext to an Identity.
//
// The identifier is trimmed and lower-cased, then offered to the primary
// identity store and, when that does not affirm it, to the fallback store
// with multi-scheme password verification. The first affirming store wins.
//
// Unknown identifiers and wrong secrets both fail with ErrInvalidCredentials.
// When no store affirms and at least one could not be reached, the error
// wraps ErrUpstreamStore so callers can answer "try again". Store errors are
// logged, never returned in detail.
func (e *Engine) Authenticate(ctx context.Context, identifier, plaintext string) (*Identity, error) {
	if e == nil || len(e.providers) == 0 {
		return nil, ErrEngineNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := e.now()
	identity, err := e.authenticate(ctx, identifier, plaintext)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricAuthenticateLatency, e.now().Sub(start))
	}

	email := normalizeIdentifier(identifier)
	switch {
	case err == nil:
		e.metricInc(MetricLoginSuccess)
		e.record(ctx, AuditEvent{
			EventType: auditEventLoginSuccess,
			UserID:    identity.ID,
			Email:     identity.Email,
			Metadata:  map[string]string{"source": identity.Source},
		}, nil)
		e.logger.Info(ctx, "login succeeded", "user_id", identity.ID, "source", identity.Source, "request_id", RequestIDFromContext(ctx))
		return identity, nil
	case errors.Is(err, ErrInvalidCredentials):
		e.metricInc(MetricLoginFailure)
		e.record(ctx, AuditEvent{EventType: auditEventLoginFailure, Email: email}, err)
		return nil, ErrInvalidCredentials
	default:
		e.metricInc(MetricLoginUpstreamError)
		e.record(ctx, AuditEvent{EventType: auditEventLoginError, Email: email}, err)
		e.logger.Error(ctx, "login could not be resolved", "error", err, "request_id", RequestIDFromContext(ctx))
		return nil, err
	}
}

func (e *Engine) authenticate(ctx context.Context, identifier, plaintext string) (*Identity, error) {
	email := normalizeIdentifier(identifier)
	if email == "" || plaintext == "" {
		return nil, ErrInvalidCredentials
	}

	var storeErr error
	for _, p := range e.providers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamStore, err)
		}

		sctx, cancel := e.storeContext(ctx)
		identity, err := p.authenticate(sctx, email, plaintext)
		cancel()

		switch {
		case err == nil:
			identity.Source = p.source()
			if p.source() == sourcePrimary {
				e.metricInc(MetricPrimaryStoreAffirmed)
			} else {
				e.metricInc(MetricFallbackStoreAffirmed)
			}
			identity.Role = e.resolveRole(ctx, identity)
			return &identity, nil
		case errors.Is(err, ErrInvalidCredentials):
			continue
		default:
			e.metricInc(MetricStoreError)
			e.logger.Warn(ctx, "identity store failed", "source", p.source(), "error", err)
			if storeErr == nil {
				storeErr = err
			}
		}
	}

	if storeErr != nil {
		return nil, upstreamErr(storeErr)
	}
	return nil, ErrInvalidCredentials
}

// resolveRole prefers the primary store's role for the resolved id, then for
// the email, and finally the role the affirming store reported. Lookup errors
// never fail the login; an unresolved role is left empty.
func (e *Engine) resolveRole(ctx context.Context, identity Identity) string {
	if e.primary != nil {
		if role, ok := e.lookupRole(ctx, "id", identity.ID, e.primary.ProfileByID); ok {
			return role
		}
		e.metricInc(MetricRoleByEmailFallback)
		if role, ok := e.lookupRole(ctx, "email", identity.Email, e.primary.ProfileByEmail); ok {
			return role
		}
	}
	if identity.Role != "" {
		return identity.Role
	}
	e.metricInc(MetricRoleUnresolved)
	return ""
}

func (e *Engine) lookupRole(
	ctx context.Context,
	by string,
	key string,
	lookup func(context.Context, string) (*Profile, error),
) (string, bool) {
	if key == "" {
		return "", false
	}
	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	profile, err := lookup(sctx, key)
	if err != nil {
		e.logger.Warn(ctx, "role lookup failed", "by", by, "error", err)
		return "", false
	}
	if profile == nil {
		return "", false
	}
	role := strings.TrimSpace(profile.Role)
	return role, role != ""
}
