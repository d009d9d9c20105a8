// Package main is the entry point for the single-binary VaultScribe
// deployment: jobs live in memory and audio on local disk.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/VaultScribe/internal/config"
	"github.com/dharsanguruparan/VaultScribe/internal/logging"
	"github.com/dharsanguruparan/VaultScribe/internal/server"
)

func main() {
	// Step 1: load configuration from the environment and an optional .env.
	cfg, err := config.Load()
	log := logging.New("info", "text")
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	log = logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.RequireSpeech(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	// Step 2: construct dependencies.
	srv, err := server.New(cfg, server.NewEngine(cfg), log)
	if err != nil {
		log.WithError(err).Fatal("init server")
	}

	// Step 3: cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.WithField("address", cfg.Address).Info("VaultScribe starting")

	// Step 4: block until the HTTP server exits.
	if err := srv.Serve(ctx); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
