// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// tradewire-relay is the trade-signal relay daemon. It accepts
// persistent CBOR-over-TCP connections from master and receiver
// clients, fans trade signals from masters out to licensed receivers,
// and serves the HTTP boundary for license administration and
// one-shot trade injection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/tradewire-project/tradewire/api"
	"github.com/tradewire-project/tradewire/config"
	"github.com/tradewire-project/tradewire/lib/apikey"
	"github.com/tradewire-project/tradewire/lib/clock"
	"github.com/tradewire-project/tradewire/lib/version"
	"github.com/tradewire-project/tradewire/relay"
	"github.com/tradewire-project/tradewire/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("tradewire-relay", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (required)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("tradewire-relay %s\n", version.Info())
		return nil
	}
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Info("starting tradewire-relay", "version", version.Info())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	st, err := store.Open(store.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	publicKey, err := apikey.LoadPublicKey(cfg.Auth.MasterPublicKey)
	if err != nil {
		return fmt.Errorf("loading master public key: %w", err)
	}
	verifier := apikey.NewVerifier(publicKey, clk)

	registry := relay.NewRegistry()
	sink := &storeSink{store: st}
	broadcaster := relay.NewBroadcaster(registry, sink, clk, logger)
	admission := relay.NewAdmission(verifier, storeOracle{store: st}, clk, logger)

	server := relay.NewServer(relay.ServerConfig{
		Registry:        registry,
		Admission:       admission,
		Broadcaster:     broadcaster,
		Sink:            sink,
		Clock:           clk,
		Logger:          logger,
		MaxMessageBytes: int64(cfg.Limits.MaxMessageBytes),
	})
	reaper := relay.NewReaper(relay.ReaperConfig{
		Registry:    registry,
		Broadcaster: broadcaster,
		Sink:        sink,
		Clock:       clk,
		Logger:      logger,
		Interval:    cfg.Reaper.Interval.Std(),
		Timeout:     cfg.Reaper.SessionTimeout.Std(),
		Retention:   cfg.Reaper.LogRetention,
	})

	listener, err := net.Listen("tcp", cfg.Listen.Relay)
	if err != nil {
		return fmt.Errorf("binding relay listener on %s: %w", cfg.Listen.Relay, err)
	}
	logger.Info("relay listening", "address", listener.Addr().String())

	var httpServer *http.Server
	if cfg.Listen.API != "" {
		httpServer = &http.Server{
			Addr: cfg.Listen.API,
			Handler: api.NewHandler(api.Config{
				Store:       st,
				Broadcaster: broadcaster,
				Admission:   admission,
				Sessions:    registry,
				Clock:       clk,
				Logger:      logger,
				AdminToken:  cfg.Auth.AdminToken,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	if err := st.AppendLog(ctx, "info", "relay started", map[string]any{
		"relay_addr": listener.Addr().String(),
		"api_addr":   cfg.Listen.API,
	}); err != nil {
		logger.Warn("recording startup event failed", "error", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx, listener); err != nil {
			errs <- fmt.Errorf("relay server: %w", err)
		}
	}()

	if httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("api listening", "address", cfg.Listen.API)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("api server: %w", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errs:
		stop()
		logger.Error("server failed", "error", err)
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api shutdown", "error", err)
		}
	}
	wg.Wait()
	return nil
}
