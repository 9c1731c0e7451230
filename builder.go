package sessionauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/nexustalent/sessionauth/internal/audit"
	"github.com/nexustalent/sessionauth/internal/logging"
	"github.com/nexustalent/sessionauth/jwt"
	"github.com/nexustalent/sessionauth/password"
)

// Builder assembles an Engine. It is used once, during initialization.
type Builder struct {
	config Config

	primary  PrimaryStore
	fallback FallbackStore
	schemes  []password.Scheme
	checks   []healthCheck

	logger    Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithPrimaryStore sets the identity provider consulted first by Authenticate
// and used for role and profile lookups.
func (b *Builder) WithPrimaryStore(s PrimaryStore) *Builder {
	b.primary = s
	return b
}

// WithFallbackStore sets the user store consulted when the primary store does
// not affirm the credentials.
func (b *Builder) WithFallbackStore(s FallbackStore) *Builder {
	b.fallback = s
	return b
}

// WithPasswordSchemes overrides the schemes used to check fallback-store
// hashes. They are consulted in the given order. Without this option the
// Engine uses bcrypt then Argon2id, configured from Config.Password.
func (b *Builder) WithPasswordSchemes(schemes ...password.Scheme) *Builder {
	b.schemes = schemes
	return b
}

// WithHealthCheck registers a dependency probed by Engine.CheckHealth.
// Stores passed to WithPrimaryStore or WithFallbackStore that implement
// Pinger are registered automatically.
func (b *Builder) WithHealthCheck(name string, p Pinger) *Builder {
	b.checks = append(b.checks, healthCheck{name: name, pinger: p})
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(l Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the destination of audit events. Events are only
// dispatched when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the clock used for minting, expiry checks and audit
// timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine.
//
// A missing signing secret or a Builder without any identity store fails with
// an error wrapping ErrConfiguration; callers treat it as fatal at startup.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.primary == nil && b.fallback == nil {
		return nil, configErr("at least one identity store is required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = logging.Nop()
	}

	// -------- CREDENTIAL CODEC --------
	codec, err := jwt.NewManager(jwt.Config{
		Secret: cloneBytes(cfg.Codec.Secret),
		TTL:    cfg.Codec.TTL,
		Now:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	// -------- PASSWORD VERIFIER --------
	var verifier *password.Verifier
	if len(b.schemes) > 0 {
		verifier, err = password.NewVerifier(b.schemes...)
	} else {
		verifier, err = password.NewDefaultVerifier(cfg.Password.BcryptCost, password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		codec:    codec,
		verifier: verifier,
		primary:  b.primary,
		fallback: b.fallback,
		logger:   logger.With("component", "sessionauth"),
		now:      now,
	}

	// -------- IDENTITY PROVIDERS (fixed priority) --------
	if b.primary != nil {
		engine.providers = append(engine.providers, primaryProvider{store: b.primary})
		if p, ok := b.primary.(Pinger); ok {
			engine.checks = append(engine.checks, healthCheck{name: "primary", pinger: p})
		}
	}
	if b.fallback != nil {
		// Unknown accounts still pay for one hash comparison so response time
		// does not reveal whether the email exists.
		decoy, err := verifier.Hash("decoy-password-for-unknown-accounts")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		engine.providers = append(engine.providers, fallbackProvider{
			store:    b.fallback,
			verifier: verifier,
			decoy:    decoy,
		})
		if p, ok := b.fallback.(Pinger); ok {
			engine.checks = append(engine.checks, healthCheck{name: "fallback", pinger: p})
		}
	}
	for _, c := range b.checks {
		if c.pinger != nil {
			engine.checks = append(engine.checks, c)
		}
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
