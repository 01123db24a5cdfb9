package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stripe-fire-sync/internal/app"
	"stripe-fire-sync/internal/config"
	"stripe-fire-sync/internal/httpserver"
)

func main() {
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	if loaded, err := config.LoadDotEnv(); err != nil {
		logger.Fatalf("load .env: %v", err)
	} else if loaded {
		logger.Printf("loaded .env")
	}
	cfg := config.FromEnv()

	ctx := context.Background()
	syncApp, err := app.NewSyncer(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatalf("init syncer: %v", err)
	}
	defer syncApp.Close()

	srv, err := httpserver.New(cfg.HTTPAddr, logger, syncApp.Pool, httpserver.Deps{
		SyncSvc:        syncApp.Service,
		DefaultJob:     cfg.DefaultJob,
		MetricsHandler: promhttp.Handler(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
