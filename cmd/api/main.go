// Package main runs the public LikeCoin API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/likecoin/likecoin-api-public/internal/app"
	"github.com/likecoin/likecoin-api-public/internal/config"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("main").WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Error("wiring failed")
		os.Exit(1)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("startup failed")
		os.Exit(1)
	}
	log.WithField("port", cfg.Server.Port).Info("likecoin api started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
