// Package server wires sessionauthd: identity stores, the engine, the
// gatekeeper chain, the HTTP API and the upstream proxy, and runs the HTTP
// server until its context ends.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/internal/config"
	"github.com/nexustalent/sessionauth/internal/httpapi"
	"github.com/nexustalent/sessionauth/internal/logging"
	"github.com/nexustalent/sessionauth/internal/stores"
	"github.com/nexustalent/sessionauth/internal/stores/fallback"
	"github.com/nexustalent/sessionauth/internal/stores/primary"
	otelexport "github.com/nexustalent/sessionauth/metrics/export/otel"
	"github.com/nexustalent/sessionauth/metrics/export/prometheus"
	"github.com/nexustalent/sessionauth/middleware"
	"github.com/nexustalent/sessionauth/session"
)

const meterName = "github.com/nexustalent/sessionauth"

// openDB and migrate are replaced in tests.
var (
	openDB  = stores.OpenPostgres
	migrate = fallback.Migrate
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	engine  *sessionauth.Engine
	handler http.Handler
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// NewApp connects every configured store and builds the request pipeline.
// Anything opened before a failure is closed again.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *App, err error) {
	if logger == nil {
		logger = logging.Nop()
	}
	app := &App{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.close(ctx)
		}
	}()

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	b := sessionauth.New().WithConfig(engineCfg).WithLogger(logger)

	if cfg.Fallback.DatabaseURL != "" {
		db, err := app.open(ctx, "fallback db", cfg.Fallback.DatabaseURL, cfg.Fallback.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		if cfg.Fallback.MigrateOnStart {
			if err := migrate(ctx, db); err != nil {
				return nil, err
			}
			logger.Info(ctx, "fallback store migrated")
		}
		b.WithFallbackStore(fallback.NewRepository(db))
	}

	var primaryClient *primary.Client
	if cfg.Primary.URL != "" {
		pc := primary.Config{
			URL:               cfg.Primary.URL,
			AnonKey:           cfg.Primary.AnonKey,
			AccessTokenCookie: cfg.Primary.AccessTokenCookie,
			Timeout:           cfg.Legacy.Timeout,
		}
		if cfg.Primary.DatabaseURL != "" {
			db, err := app.open(ctx, "primary db", cfg.Primary.DatabaseURL, 0)
			if err != nil {
				return nil, err
			}
			pc.DB = db
		}
		primaryClient, err = primary.New(pc)
		if err != nil {
			return nil, err
		}
		b.WithPrimaryStore(primaryClient)
	}

	var secondary []middleware.SessionSource
	switch cfg.Legacy.Backend {
	case config.LegacyRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Legacy.RedisAddr,
			Password: cfg.Legacy.RedisPassword,
			DB:       cfg.Legacy.RedisDB,
		})
		app.closers = append(app.closers, closer{name: "legacy redis", fn: client.Close})
		src := session.NewCookieSource(session.NewStore(client, cfg.Legacy.KeyPrefix), cfg.Legacy.CookieName, cfg.Legacy.Timeout)
		b.WithHealthCheck("legacy", src)
		secondary = append(secondary, src)
	case config.LegacyPrimary:
		secondary = append(secondary, primaryClient)
	}

	if cfg.Audit.Enabled {
		b.WithAuditSink(sessionauth.NewLoggerSink(logger.With("stream", "audit")))
	}

	app.engine, err = b.Build()
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closer{name: "engine", fn: func() error {
		app.engine.Close()
		return nil
	}})

	report := app.engine.SecurityReport()
	for _, w := range report.Warnings {
		logger.Warn(ctx, "security posture", "warning", w)
	}
	logger.Info(ctx, "engine ready",
		"production", report.ProductionMode,
		"primary_store", report.PrimaryStore,
		"fallback_store", report.FallbackStore,
		"legacy_backend", cfg.Legacy.Backend,
		"password_schemes", report.Password.Schemes,
	)

	gate, err := middleware.FromEngine(app.engine, logger, secondary...)
	if err != nil {
		return nil, err
	}

	opts := httpapi.Options{
		Engine: app.engine,
		Gate:   gate,
		Logger: logger,
	}
	if cfg.UpstreamURL != "" {
		opts.Upstream, err = newUpstream(cfg.UpstreamURL, logger)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = prometheus.NewExporter(app.engine).Handler()
		if cfg.Metrics.OTel {
			exp, err := otelexport.NewExporter(otel.Meter(meterName), app.engine)
			if err != nil {
				return nil, fmt.Errorf("otel exporter: %w", err)
			}
			app.closers = append(app.closers, closer{name: "otel exporter", fn: exp.Close})
		}
	}

	api, err := httpapi.New(opts)
	if err != nil {
		return nil, err
	}
	app.handler = api.Handler()
	return app, nil
}

func (app *App) open(ctx context.Context, name, dsn string, maxOpen int) (*sql.DB, error) {
	db, err := openDB(ctx, dsn, stores.PoolConfig{
		MaxOpenConns:    maxOpen,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	app.closers = append(app.closers, closer{name: name, fn: db.Close})
	return db, nil
}

// Handler returns the full request pipeline.
func (app *App) Handler() http.Handler {
	return app.handler
}

// Engine returns the engine the App was built with.
func (app *App) Engine() *sessionauth.Engine {
	return app.engine
}

// Run serves HTTP until ctx ends, then shuts down gracefully and releases
// every store.
func (app *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              app.config.ListenAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		app.close(ctx)
		return err
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	app.close(ctx)
	return err
}

// close releases resources in reverse order of acquisition.
func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		c := app.closers[i]
		if err := c.fn(); err != nil {
			app.logger.Warn(ctx, "close failed", "resource", c.name, "error", err)
		}
	}
	app.closers = nil
}

func newUpstream(raw string, logger logging.Logger) (http.Handler, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: upstream URL: %v", sessionauth.ErrConfiguration, err)
	}
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn(r.Context(), "upstream unavailable",
			"path", r.URL.Path,
			"request_id", sessionauth.RequestIDFromContext(r.Context()),
			"error", err,
		)
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}
