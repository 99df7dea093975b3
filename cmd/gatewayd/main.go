// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Command gatewayd is the browser-automation gateway's entry point: it
// loads configuration, wires every subsystem through internal/gateway,
// and runs until SIGINT/SIGTERM triggers a graceful shutdown.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/momentics/hioload-gateway/internal/config"
	"github.com/momentics/hioload-gateway/internal/gateway"
)

func main() {
	configFile := flag.String("config", "", "path to a JSON or YAML config file (overrides GATEWAY_CONFIG_FILE)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("gatewayd: config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	svc, err := gateway.New(cfg, logger)
	if err != nil {
		logger.Error("gatewayd: wiring failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- svc.Start(ctx)
	}()

	select {
	case err := <-runErrCh:
		if err != nil {
			logger.Error("gatewayd: run failed", slog.String("error", err.Error()))
		}
	case <-ctx.Done():
		logger.Info("gatewayd: shutdown signal received")
	}

	shutdownCtx := context.Background()
	if cfg.GracefulShutdown {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, cfg.ShutdownTimeout())
		defer cancel()
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error("gatewayd: shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("gatewayd: stopped")
}
