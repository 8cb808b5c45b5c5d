package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"permde/adapters/rng"
	"permde/internal"
	"permde/internal/api"
	"permde/internal/config"
	"permde/internal/difftest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appConfig, err := config.Load()
	if err != nil {
		internal.DefaultLogger.Error("Failed to load configuration: %v", err)
		os.Exit(2)
	}

	logger := internal.NewLogger(internal.ParseLogLevel(appConfig.Log.Level))
	defer logger.Sync()

	if appConfig.Profiling.Enabled {
		go func() {
			addr := "localhost:" + appConfig.Profiling.Port
			logger.Info("pprof listening on %s", addr)
			srv := &http.Server{Addr: addr, ReadHeaderTimeout: 10 * time.Second}
			if err := srv.ListenAndServe(); err != nil {
				logger.Warn("pprof server stopped: %v", err)
			}
		}()
	}

	tester := difftest.NewTester(rng.NewSeededRNG(), difftest.WithLogger(logger))
	server := api.NewServer(tester, api.Options{
		Defaults:       appConfig.Test,
		RequestTimeout: appConfig.Server.RequestTimeout,
		MaxBodyBytes:   appConfig.Server.MaxBodyBytes,
		GinMode:        appConfig.Server.GinMode,
	}, logger)

	err = server.ListenAndServe(ctx, ":"+appConfig.Server.Port, appConfig.Server.ShutdownTimeout)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}
