package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/VaultScribe/internal/config"
	"github.com/dharsanguruparan/VaultScribe/internal/logging"
	"github.com/dharsanguruparan/VaultScribe/internal/server"
	"github.com/dharsanguruparan/VaultScribe/internal/worker"
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
		log.WithError(err).Error("worker stopped")
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

	srv := asynq.NewServer(server.RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.ProcessingPool,
		Logger:      log,
		LogLevel:    asynqLevel(cfg.LogLevel),
	})
	processor := worker.NewProcessor(backends.Service, log)
	mux := processor.Handler()

	// Jobs left in flight by a previous run are queued again; task ids keep
	// this idempotent across replicas.
	if _, err := backends.Service.Resume(ctx); err != nil {
		log.WithError(err).Error("resume in-flight jobs")
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()
	return srv.Run(mux)
}

func asynqLevel(level string) asynq.LogLevel {
	switch level {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
