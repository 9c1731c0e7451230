package server

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/internal/config"
	"github.com/nexustalent/sessionauth/internal/logging"
	"github.com/nexustalent/sessionauth/internal/stores"
	"github.com/nexustalent/sessionauth/session"
)

const secret = "0123456789abcdef0123456789abcdef"

func provider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"password":"s3cret"`) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","user":{"id":"p-1","email":"ana@example.com"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func pages(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("rendered " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// stubDB swaps openDB for a sqlmock connection and returns the mock.
func stubDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)

	prev := openDB
	openDB = func(context.Context, string, stores.PoolConfig) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { openDB = prev })
	return mock
}

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Auth.Secret = secret
	return cfg
}

func noFollow() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func get(t *testing.T, url string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := noFollow().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestNewAppServesEveryComponent(t *testing.T) {
	mock := stubDB(t)
	mock.ExpectQuery(`SELECT 1 FROM public\.users`).WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectClose()

	mr := miniredis.RunT(t)
	idp := provider(t)
	web := pages(t)

	cfg := baseConfig()
	cfg.Fallback.DatabaseURL = "postgres://fallback/app"
	cfg.Primary.URL = idp.URL
	cfg.Primary.AnonKey = "anon"
	cfg.Legacy.Backend = config.LegacyRedis
	cfg.Legacy.RedisAddr = mr.Addr()
	cfg.UpstreamURL = web.URL
	cfg.Metrics.OTel = true
	cfg.Audit.Enabled = true

	app, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp := get(t, srv.URL+"/api/auth-health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/auth/login", "application/json",
		strings.NewReader(`{"email":"ana@example.com","password":"s3cret"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var token *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "app_session" {
			token = c
		}
	}
	require.NotNil(t, token)

	resp = get(t, srv.URL+"/dashboard/student", &http.Cookie{Name: token.Name, Value: token.Value})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "rendered /dashboard/student", string(body))

	store := session.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "ls")
	id, err := session.NewID()
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), &session.Session{
		ID:        id,
		UserID:    "legacy-7",
		Email:     "old@example.com",
		CreatedAt: time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}))

	resp = get(t, srv.URL+"/en/dashboard/recruiter", &http.Cookie{Name: "legacy_session", Value: id})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "legacy session must pass the gate")

	resp = get(t, srv.URL+"/en/dashboard/recruiter")
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/en/login?redirect=%2Fen%2Fdashboard%2Frecruiter", resp.Header.Get("Location"))

	resp = get(t, srv.URL+"/metrics")
	text, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(text), "sessionauth_gate_legacy_allowed_total 1")

	app.close(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewAppClosesOnFailure(t *testing.T) {
	mock := stubDB(t)
	mock.ExpectClose()

	cfg := baseConfig()
	cfg.Fallback.DatabaseURL = "postgres://fallback/app"
	cfg.Primary.URL = "not a url"
	cfg.Primary.AnonKey = "anon"

	app, err := NewApp(context.Background(), cfg, nil)
	require.ErrorIs(t, err, sessionauth.ErrConfiguration)
	assert.Nil(t, app)
	assert.NoError(t, mock.ExpectationsWereMet(), "the opened database must be closed")
}

func TestNewAppMigratesOnStart(t *testing.T) {
	stubDB(t)

	var calls atomic.Int32
	prev := migrate
	migrate = func(context.Context, *sql.DB) error {
		calls.Add(1)
		return nil
	}
	t.Cleanup(func() { migrate = prev })

	cfg := baseConfig()
	cfg.Fallback.DatabaseURL = "postgres://fallback/app"
	cfg.Fallback.MigrateOnStart = true

	app, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer app.close(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	migrate = func(context.Context, *sql.DB) error { return errors.New("dirty schema") }
	_, err = NewApp(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "dirty schema")
}

func TestNewAppWithoutUpstreamAnswers404(t *testing.T) {
	stubDB(t)
	cfg := baseConfig()
	cfg.Fallback.DatabaseURL = "postgres://fallback/app"

	app, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer app.close(context.Background())

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fr/blog", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpstreamErrorIs502(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	h, err := newUpstream(dead.URL, logging.Nop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	stubDB(t)
	cfg := baseConfig()
	cfg.Fallback.DatabaseURL = "postgres://fallback/app"
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second

	app, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
