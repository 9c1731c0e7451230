package sessionauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nexustalent/sessionauth/password"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakePrimary struct {
	mu sync.Mutex

	// accounts maps email to password and identity.
	accounts map[string]fakeAccount
	profiles map[string]*Profile // by id
	byEmail  map[string]*Profile

	signInErr    error
	profileErr   error
	byEmailErr   error
	pingErr      error
	signInCalls  int
	profileCalls int
	byEmailCalls int
}

type fakeAccount struct {
	password string
	identity Identity
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{
		accounts: map[string]fakeAccount{},
		profiles: map[string]*Profile{},
		byEmail:  map[string]*Profile{},
	}
}

func (f *fakePrimary) SignInWithPassword(_ context.Context, email, pw string) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signInCalls++
	if f.signInErr != nil {
		return Identity{}, f.signInErr
	}
	acc, ok := f.accounts[email]
	if !ok || acc.password != pw {
		return Identity{}, ErrInvalidCredentials
	}
	return acc.identity, nil
}

func (f *fakePrimary) ProfileByID(_ context.Context, id string) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profiles[id], nil
}

func (f *fakePrimary) ProfileByEmail(_ context.Context, email string) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byEmailCalls++
	if f.byEmailErr != nil {
		return nil, f.byEmailErr
	}
	return f.byEmail[email], nil
}

func (f *fakePrimary) Ping(context.Context) error { return f.pingErr }

type fakeFallback struct {
	mu    sync.Mutex
	users map[string]*UserRecord
	err   error
	calls int
}

func (f *fakeFallback) UserByEmail(_ context.Context, email string) (*UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

var errBackendDown = errors.New("connection refused")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Codec.Secret = []byte(testSecret)
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func testSchemes(t testing.TB) (*password.Bcrypt, *password.Argon2) {
	t.Helper()
	bc, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	ar, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return bc, ar
}

type engineOpts struct {
	cfg      *Config
	primary  PrimaryStore
	fallback FallbackStore
	sink     AuditSink
	clock    func() time.Time
}

func newTestEngine(t testing.TB, o engineOpts) *Engine {
	t.Helper()

	cfg := testConfig()
	if o.cfg != nil {
		cfg = *o.cfg
	}
	clock := o.clock
	if clock == nil {
		clock = func() time.Time { return testNow }
	}
	bc, ar := testSchemes(t)

	b := New().
		WithConfig(cfg).
		WithPasswordSchemes(bc, ar).
		WithClock(clock)
	if o.primary != nil {
		b.WithPrimaryStore(o.primary)
	}
	if o.fallback != nil {
		b.WithFallbackStore(o.fallback)
	}
	if o.sink != nil {
		b.WithAuditSink(o.sink)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func hashWith(t testing.TB, scheme interface{ Hash(string) (string, error) }, pw string) string {
	t.Helper()
	h, err := scheme.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

func stringContains(s, sub string) bool {
	return strings.Contains(s, sub)
}
