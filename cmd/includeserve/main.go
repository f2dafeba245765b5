// Command includeserve serves a static site for local development, filling
// each page's data-include-header placeholder with the shared header fragment
// and reloading open pages when the site's files change.
//
// Usage:
//
//	includeserve                          # serve the current directory on :8000
//	includeserve -root ./site -addr :8080
//	includeserve -config includeserve.yaml
//	includeserve -open                    # also open the site in a browser
//
// Every setting can also come from a .env file or INCLUDESERVE_* environment
// variables; see internal/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"impractical.co/include/internal/config"
	"impractical.co/include/internal/server"
	"impractical.co/include/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	dotenv := flag.String("env-file", ".env", "path to a .env file, ignored if missing")
	addr := flag.String("addr", "", "address to listen on, overrides config")
	root := flag.String("root", "", "site directory to serve, overrides config")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	open := flag.Bool("open", false, "open the site in the default browser once serving")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dotenv, *addr, *root, *open); err != nil {
		logger.Error("includeserve: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dotenv, addr, root string, open bool) error {
	cfg, err := config.Load(configPath, dotenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if root != "" {
		cfg.Root = root
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdown, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("includeserve: telemetry shutdown", "error", err)
		}
	}()

	site, err := server.SiteFS(cfg)
	if err != nil {
		return err
	}
	srv := server.New(cfg, site, logger)
	if open {
		srv.OnReady(func(url string) {
			openBrowser(ctx, logger, url)
		})
	}
	return srv.Run(ctx)
}
