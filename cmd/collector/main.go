// cmd/collector runs the in-memory collector for bench testing a station.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meteostation/services/collector"
	"meteostation/services/config"
	"meteostation/services/logging"
)

const (
	appName = "collector"
	version = "dev"
)

func main() {
	addr := flag.String("addr", ":5500", "listen address")
	certFile := flag.String("cert", "", "TLS certificate (plain HTTP when empty)")
	keyFile := flag.String("key", "", "TLS key")
	register := flag.String("register", "", "chip id to pre-register as a producer")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("STATION_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	srv := collector.New(cfg.Uplink.Secret, collector.WithLogger(logger))
	if *register != "" {
		srv.AddProducer(*register)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *addr, *certFile, *keyFile, srv.Routes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
	slog.Info("shutting down")
}

func run(ctx context.Context, addr, cert, key string, h http.Handler) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr, "tls", cert != "")
		if cert != "" {
			errCh <- hs.ListenAndServeTLS(cert, key)
			return
		}
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shutCtx)
}
