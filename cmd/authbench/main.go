// Command authbench drives the gatekeeper and the legacy session lookup
// concurrently and prints latency percentiles for each.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	mrand "math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/middleware"
	"github.com/nexustalent/sessionauth/session"
)

type options struct {
	sessions  int
	workers   int
	ops       int
	redisAddr string
	prefix    string
}

func main() {
	var o options
	flag.IntVar(&o.sessions, "sessions", 10000, "legacy sessions to seed")
	flag.IntVar(&o.workers, "concurrency", 64, "concurrent workers")
	flag.IntVar(&o.ops, "ops", 200000, "operations per phase")
	flag.StringVar(&o.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address (default $REDIS_ADDR, else in-process miniredis)")
	flag.StringVar(&o.prefix, "prefix", "ls", "legacy session key prefix")
	flag.Parse()

	if o.sessions <= 0 || o.workers <= 0 || o.ops <= 0 {
		fmt.Fprintln(os.Stderr, "-sessions, -concurrency and -ops must be positive")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, o); err != nil {
		fmt.Fprintln(os.Stderr, "authbench:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	addr := o.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
	}
	fmt.Println("redis:", addr)

	client := redis.NewClient(&redis.Options{Addr: addr, PoolSize: o.workers})
	defer client.Close()
	store := session.NewStore(client, o.prefix)
	source := session.NewCookieSource(store, "", 0)

	ids, err := seed(ctx, store, o.sessions)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()
	gate, err := middleware.FromEngine(engine, nil, source)
	if err != nil {
		return err
	}
	mix, err := newMix(engine, ids[0])
	if err != nil {
		return err
	}

	phases := []phase{
		{name: "gate", op: func() bool {
			s := mix[mrand.IntN(len(mix))]
			return gate.Decide(s.req).Allow == s.allow
		}},
		{name: "legacy", op: func() bool {
			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: ids[mrand.IntN(len(ids))]})
			ok, err := source.CurrentSession(req)
			return ok && err == nil
		}},
	}
	for _, p := range phases {
		p.ops, p.workers = o.ops, o.workers
		r, err := p.run(ctx)
		if err != nil {
			return err
		}
		fmt.Println(r)
	}

	c := engine.MetricsSnapshot().Counters
	fmt.Printf("gate decisions: allowed=%d legacy=%d redirected=%d public=%d\n",
		c[sessionauth.MetricGateAllowed], c[sessionauth.MetricGateLegacyAllowed],
		c[sessionauth.MetricGateRedirected], c[sessionauth.MetricGatePublic])
	return nil
}

func seed(ctx context.Context, store *session.Store, n int) ([]string, error) {
	start := time.Now()
	expires := start.Add(24 * time.Hour).Unix()
	ids := make([]string, 0, n)
	for i := range n {
		id, err := session.NewID()
		if err != nil {
			return nil, err
		}
		err = store.Save(ctx, &session.Session{
			ID:        id,
			UserID:    fmt.Sprintf("legacy-%d", i),
			Email:     fmt.Sprintf("user%d@example.com", i),
			CreatedAt: start.Unix(),
			ExpiresAt: expires,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	fmt.Printf("seeded %d sessions in %s\n", n, time.Since(start).Round(time.Millisecond))
	return ids, nil
}

// emptyStore satisfies the fallback store requirement; nothing here logs in.
type emptyStore struct{}

func (emptyStore) UserByEmail(context.Context, string) (*sessionauth.UserRecord, error) {
	return nil, sessionauth.ErrUserNotFound
}

func newEngine() (*sessionauth.Engine, error) {
	cfg := sessionauth.DefaultConfig()
	cfg.Codec.Secret = make([]byte, 32)
	if _, err := rand.Read(cfg.Codec.Secret); err != nil {
		return nil, err
	}
	cfg.Metrics.Enabled = true
	return sessionauth.New().WithConfig(cfg).WithFallbackStore(emptyStore{}).Build()
}

type scenario struct {
	req   *http.Request
	allow bool
}

// newMix covers each gate outcome: signed credential, tampered credential,
// legacy session, no cookie and a public page.
func newMix(engine *sessionauth.Engine, legacyID string) ([]scenario, error) {
	token, err := engine.Mint(sessionauth.ClaimSet{
		SubjectID: "bench-user",
		Email:     "bench@example.com",
		Role:      "student",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		return nil, err
	}
	last := token[len(token)-1]
	if last == 'A' {
		last = 'B'
	} else {
		last = 'A'
	}
	tampered := token[:len(token)-1] + string(last)
	if tampered == token {
		return nil, errors.New("tampering left the token unchanged")
	}

	get := func(path, cookie, value string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		if cookie != "" {
			r.AddCookie(&http.Cookie{Name: cookie, Value: value})
		}
		return r
	}
	return []scenario{
		{get("/dashboard/student", engine.CookieName(), token), true},
		{get("/en/dashboard/student?tab=jobs", engine.CookieName(), tampered), false},
		{get("/fr/dashboard", session.DefaultCookieName, legacyID), true},
		{get("/dashboard", "", ""), false},
		{get("/pt/blog/hello", "", ""), true},
	}, nil
}
