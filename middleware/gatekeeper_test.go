package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/password"
)

type noUsers struct{}

func (noUsers) UserByEmail(context.Context, string) (*sessionauth.UserRecord, error) {
	return nil, sessionauth.ErrUserNotFound
}

type stubSource struct {
	ok    bool
	err   error
	calls int
}

func (s *stubSource) CurrentSession(*http.Request) (bool, error) {
	s.calls++
	return s.ok, s.err
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *sessionauth.Engine {
	t.Helper()

	cfg := sessionauth.DefaultConfig()
	cfg.Codec.Secret = []byte("0123456789abcdef0123456789abcdef")
	bc, err := password.NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	engine, err := sessionauth.New().
		WithConfig(cfg).
		WithFallbackStore(noUsers{}).
		WithPasswordSchemes(bc).
		WithMetricsEnabled(true).
		WithClock(func() time.Time { return testNow }).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func mintFor(t *testing.T, engine *sessionauth.Engine, role string) string {
	t.Helper()
	token, err := engine.Mint(sessionauth.ClaimSet{
		SubjectID: "u-1",
		Email:     "ana@example.com",
		Role:      role,
		ExpiresAt: testNow.Add(time.Hour),
	})
	require.NoError(t, err)
	return token
}

func withCookie(r *http.Request, value string) *http.Request {
	r.AddCookie(&http.Cookie{Name: "app_session", Value: value})
	return r
}

func alterLast(s string) string {
	last := s[len(s)-1]
	repl := byte('A')
	if last == 'A' {
		repl = 'B'
	}
	return s[:len(s)-1] + string(repl)
}

func TestClassifier(t *testing.T) {
	c := NewClassifier([]string{"dashboard"})

	cases := map[string]bool{
		"/dashboard":               true,
		"/dashboard/":              true,
		"/dashboard/student":       true,
		"/pt/dashboard":            true,
		"/en/dashboard/admin":      true,
		"/zz/dashboard":            true,
		"/":                        false,
		"/pt":                      false,
		"/pt/login":                false,
		"/dashboards":              false,
		"/pt/dashboardx":           false,
		"/api/dashboard":           false,
		"/eng/dashboard":           false,
		"/jobs/dashboard":          false,
		"/pt/courses/dashboard":    false,
		"/DASHBOARD":               false,
		"/en/dashboard/student/42": true,
	}
	for path, want := range cases {
		assert.Equal(t, want, c.Protected(path), "path %q", path)
	}
}

func TestDecidePublicPathAlwaysPasses(t *testing.T) {
	engine := newTestEngine(t)
	legacy := &stubSource{err: errors.New("redis down")}
	g, err := FromEngine(engine, nil, legacy)
	require.NoError(t, err)

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/pt/jobs", nil),
		withCookie(httptest.NewRequest(http.MethodGet, "/", nil), "garbage"),
	} {
		d := g.Decide(r)
		assert.True(t, d.Allow)
		assert.False(t, d.Protected)
		assert.Nil(t, d.RedirectTo)
	}
	assert.Zero(t, legacy.calls, "public paths must not consult checkers")
	assert.Equal(t, uint64(2), engine.Metrics().Value(sessionauth.MetricGatePublic))
}

func TestDecideRedirectsWithoutCookie(t *testing.T) {
	engine := newTestEngine(t)
	g, err := FromEngine(engine, nil)
	require.NoError(t, err)

	cases := []struct {
		path string
		want string
	}{
		{"/dashboard/student", "/pt/login?redirect=%2Fdashboard%2Fstudent"},
		{"/en/dashboard", "/en/login?redirect=%2Fen%2Fdashboard"},
		{"/fr/dashboard/admin?tab=users&page=2", "/fr/login?redirect=%2Ffr%2Fdashboard%2Fadmin%3Ftab%3Dusers%26page%3D2"},
		{"/de/dashboard", "/pt/login?redirect=%2Fde%2Fdashboard"},
	}
	for _, tc := range cases {
		d := g.Decide(httptest.NewRequest(http.MethodGet, tc.path, nil))
		require.False(t, d.Allow, tc.path)
		assert.True(t, d.Protected)
		require.NotNil(t, d.RedirectTo)
		assert.Equal(t, tc.want, d.RedirectTo.String())
	}
}

func TestDecideAllowsValidCredential(t *testing.T) {
	engine := newTestEngine(t)
	g, err := FromEngine(engine, nil)
	require.NoError(t, err)

	token := mintFor(t, engine, "student")
	d := g.Decide(withCookie(httptest.NewRequest(http.MethodGet, "/dashboard/student", nil), token))

	require.True(t, d.Allow)
	require.NotNil(t, d.Claims)
	assert.Equal(t, "u-1", d.Claims.SubjectID)
	assert.Equal(t, "student", d.Claims.Role)
	assert.Equal(t, uint64(1), engine.Metrics().Value(sessionauth.MetricGateAllowed))
}

func TestDecideExpiredCredentialRedirects(t *testing.T) {
	engine := newTestEngine(t)
	token, err := engine.Mint(sessionauth.ClaimSet{SubjectID: "u-1", ExpiresAt: testNow.Add(time.Millisecond)})
	require.NoError(t, err)

	bc, err := password.NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	later, err := sessionauth.New().
		WithConfig(engine.Config()).
		WithFallbackStore(noUsers{}).
		WithPasswordSchemes(bc).
		WithClock(func() time.Time { return testNow.Add(2 * time.Millisecond) }).
		Build()
	require.NoError(t, err)
	defer later.Close()

	g, err := FromEngine(later, nil)
	require.NoError(t, err)
	d := g.Decide(withCookie(httptest.NewRequest(http.MethodGet, "/dashboard", nil), token))
	assert.False(t, d.Allow)
}

func TestDecideFallsThroughToSecondarySession(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("invalid cookie with live legacy session", func(t *testing.T) {
		legacy := &stubSource{ok: true}
		g, err := FromEngine(engine, nil, legacy)
		require.NoError(t, err)

		d := g.Decide(withCookie(httptest.NewRequest(http.MethodGet, "/dashboard", nil), "not-a-token"))
		assert.True(t, d.Allow)
		assert.Nil(t, d.Claims)
		assert.Equal(t, 1, legacy.calls)
	})

	t.Run("valid cookie skips legacy lookup", func(t *testing.T) {
		legacy := &stubSource{ok: true}
		g, err := FromEngine(engine, nil, legacy)
		require.NoError(t, err)

		d := g.Decide(withCookie(httptest.NewRequest(http.MethodGet, "/dashboard", nil), mintFor(t, engine, "")))
		assert.True(t, d.Allow)
		assert.Zero(t, legacy.calls)
	})

	t.Run("legacy failure fails closed", func(t *testing.T) {
		legacy := &stubSource{ok: true, err: errors.New("connection refused")}
		g, err := FromEngine(engine, nil, legacy)
		require.NoError(t, err)

		d := g.Decide(httptest.NewRequest(http.MethodGet, "/en/dashboard/admin", nil))
		assert.False(t, d.Allow)
		assert.Equal(t, "/en/login?redirect=%2Fen%2Fdashboard%2Fadmin", d.RedirectTo.String())
	})

	t.Run("no legacy session", func(t *testing.T) {
		g, err := FromEngine(engine, nil, &stubSource{})
		require.NoError(t, err)
		assert.False(t, g.Decide(httptest.NewRequest(http.MethodGet, "/dashboard", nil)).Allow)
	})
}

func TestHandlerEndToEnd(t *testing.T) {
	engine := newTestEngine(t)
	g, err := FromEngine(engine, nil)
	require.NoError(t, err)

	var seen *sessionauth.ClaimSet
	h := g.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token := mintFor(t, engine, "student")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/dashboard/student", nil), token))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "ana@example.com", seen.Email)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/dashboard/student", nil), alterLast(token)))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/pt/login?redirect=%2Fdashboard%2Fstudent", rec.Header().Get("Location"))
	assert.Equal(t, uint64(1), engine.Metrics().Value(sessionauth.MetricGateRedirected))
}

func TestHandlerPublicRequestHasNoClaims(t *testing.T) {
	engine := newTestEngine(t)
	g, err := FromEngine(engine, nil)
	require.NoError(t, err)

	called := false
	h := g.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := ClaimsFromContext(r.Context())
		assert.False(t, ok)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/pt/jobs", nil), mintFor(t, engine, "")))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewRequiresPrefixesAndCheckers(t *testing.T) {
	_, err := New(Config{}, CookieChecker{Name: "x"})
	assert.Error(t, err)

	_, err = New(Config{ProtectedPrefixes: []string{"dashboard"}})
	assert.Error(t, err)

	_, err = FromEngine(nil, nil)
	assert.ErrorIs(t, err, sessionauth.ErrEngineNotReady)
}

func TestLocaleOf(t *testing.T) {
	g, err := New(Config{
		ProtectedPrefixes: []string{"dashboard"},
		Locales:           []string{"pt", "en", "fr"},
		DefaultLocale:     "pt",
	}, CookieChecker{Name: "app_session"})
	require.NoError(t, err)

	assert.Equal(t, "en", g.LocaleOf("/en/dashboard"))
	assert.Equal(t, "fr", g.LocaleOf("/fr"))
	assert.Equal(t, "pt", g.LocaleOf("/dashboard"))
	assert.Equal(t, "pt", g.LocaleOf("/es/dashboard"))
	assert.Equal(t, "pt", g.LocaleOf("/"))
}

func TestCookieCheckerVerdicts(t *testing.T) {
	engine := newTestEngine(t)
	c := CookieChecker{Name: "app_session", Verifier: engine}

	v, _ := c.Check(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, NotApplicable, v)

	v, _ = c.Check(withCookie(httptest.NewRequest(http.MethodGet, "/dashboard", nil), "a.b.c"))
	assert.Equal(t, Deny, v)

	v, claims := c.Check(withCookie(httptest.NewRequest(http.MethodGet, "/dashboard", nil), mintFor(t, engine, "admin")))
	assert.Equal(t, Allow, v)
	require.NotNil(t, claims)
	assert.Equal(t, "admin", claims.Role)
}
