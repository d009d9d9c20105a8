package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/VaultScribe/internal/api"
	"github.com/dharsanguruparan/VaultScribe/internal/config"
	"github.com/dharsanguruparan/VaultScribe/internal/logging"
	"github.com/dharsanguruparan/VaultScribe/internal/server"
	"github.com/dharsanguruparan/VaultScribe/internal/signing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	log := logging.New("info", "text")
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	log = logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.RequireSpeech(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	if err := cfg.RequireBackends(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("api stopped")
		stop()
		os.Exit(1)
	}
}

// run owns the backend connections so they are closed on every return path.
func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	backends, err := server.OpenBackends(ctx, cfg, server.NewEngine(cfg), log)
	defer backends.Close()
	if err != nil {
		return fmt.Errorf("open backends: %w", err)
	}

	srv := api.New(backends.Service, backends.Blobs, backends.Blobs, signing.NewSigner(cfg.SigningSecret), server.APIOptions(cfg), log)
	return srv.Run(ctx)
}
