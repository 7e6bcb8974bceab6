package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"vaultguard/cmd/internal/client"
	"vaultguard/config"
	"vaultguard/observability"
	"vaultguard/observability/logging"
	telemetry "vaultguard/observability/otel"
	"vaultguard/services/monitord"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("monitord: %v", err)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "vault.toml", "path to vault client configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	logger := logging.SetupWithFile("monitord", cfg.Log.Env, cfg.Log.File)

	shutdownTelemetry, err := telemetry.Init(context.Background(), client.TelemetryConfig(cfg, "monitord"))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.Open(stopCtx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	opts := []monitord.Option{
		monitord.WithInterval(cfg.Monitor.Refresh.Duration),
		monitord.WithMetrics(observability.Vault()),
		monitord.WithLogger(logger),
	}
	if c.Recovery != nil {
		opts = append(opts, monitord.WithRecovery(c.Recovery))
	}
	monitor := monitord.NewMonitor(c.Multisig, opts...)

	httpServer := &http.Server{
		Addr:         cfg.Monitor.Listen,
		Handler:      monitord.NewServer(monitor, logger).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 2)
	go func() {
		if err := monitor.Run(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs <- err
		}
	}()
	go func() {
		logger.Info("monitord listening", slog.String("addr", cfg.Monitor.Listen), slog.String("wallet", cfg.Wallet().Hex()))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
