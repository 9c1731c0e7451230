// Command sessionauthd serves the session endpoints and gates page requests
// in front of the page renderer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexustalent/sessionauth/internal/config"
	"github.com/nexustalent/sessionauth/internal/logging"
	"github.com/nexustalent/sessionauth/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		if config.IsHelp(err) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "sessionauthd: %v\n", err)
		return 2
	}

	format := cfg.Log.Format
	if cfg.Production() {
		format = "json"
	}
	logger, err := logging.New(os.Stdout, format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessionauthd: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		return 1
	}
	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		return 1
	}
	logger.Info(ctx, "bye")
	return 0
}
