package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meteostation/services/config"
	"meteostation/services/logging"
	"meteostation/services/station"
)

const appName = "meteostation"

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	path := flag.String("config", os.Getenv("STATION_CONFIG"), "YAML file overriding the built-in defaults")
	bootDelay := flag.Duration("boot-delay", 0, "wait before starting (lets USB CDC enumerate)")
	flag.Parse()

	time.Sleep(*bootDelay)

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)
	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := station.Run(ctx, cfg, logger, station.Options{Version: version}); err != nil {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
	slog.Info("shutting down")
}
