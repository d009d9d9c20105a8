package server

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/VaultScribe/internal/config"
	"github.com/dharsanguruparan/VaultScribe/internal/database"
	"github.com/dharsanguruparan/VaultScribe/internal/events"
	"github.com/dharsanguruparan/VaultScribe/internal/lease"
	"github.com/dharsanguruparan/VaultScribe/internal/queue"
	"github.com/dharsanguruparan/VaultScribe/internal/repository"
	"github.com/dharsanguruparan/VaultScribe/internal/s3storage"
	"github.com/dharsanguruparan/VaultScribe/internal/speech"
	"github.com/dharsanguruparan/VaultScribe/internal/summary"
	"github.com/dharsanguruparan/VaultScribe/internal/transcription"
)

// Backends is the shared stack of the api and worker binaries: PostgreSQL
// for jobs, MinIO for blobs, Redis for the task queue and poll leases, and an
// optional RabbitMQ status feed.
type Backends struct {
	DB        *pgxpool.Pool
	Repo      *repository.JobRepository
	Blobs     *s3storage.Storage
	Redis     *redis.Client
	Queue     *asynq.Client
	Scheduler *queue.Scheduler
	Notifier  events.Notifier
	Service   *transcription.Service

	closers []func() error
}

// RedisOpt returns the asynq connection settings.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// OpenBackends connects every backend and wires the orchestrator. Call Close
// when done, also after an error.
func OpenBackends(ctx context.Context, cfg *config.Config, engine speech.Engine, log logrus.FieldLogger) (*Backends, error) {
	b := &Backends{}
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return b, fmt.Errorf("connect database: %w", err)
	}
	b.DB = db
	b.closers = append(b.closers, func() error { db.Close(); return nil })
	if err := database.EnsureSchema(ctx, db); err != nil {
		return b, err
	}
	b.Repo = repository.NewJobRepository(db)

	b.Blobs, err = s3storage.New(cfg)
	if err != nil {
		return b, err
	}
	if err := b.Blobs.EnsureBuckets(ctx); err != nil {
		return b, fmt.Errorf("ensure buckets: %w", err)
	}

	b.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	b.closers = append(b.closers, b.Redis.Close)
	if err := b.Redis.Ping(ctx).Err(); err != nil {
		return b, fmt.Errorf("ping redis: %w", err)
	}
	b.Queue = asynq.NewClient(RedisOpt(cfg))
	b.closers = append(b.closers, b.Queue.Close)
	// One task run covers the whole poll window plus upload time.
	b.Scheduler = queue.NewScheduler(b.Queue, cfg.MaxPollDuration+10*time.Minute)

	if cfg.AMQPURL != "" {
		rabbit, err := events.NewRabbitNotifier(cfg.AMQPURL, cfg.StatusQueue)
		if err != nil {
			return b, err
		}
		b.Notifier = rabbit
		b.closers = append(b.closers, rabbit.Close)
	} else {
		b.Notifier = events.NewLogNotifier(log)
	}

	templates, err := summary.LoadTemplates(cfg.SummaryTemplates)
	if err != nil {
		return b, err
	}
	b.Service = transcription.New(transcription.Deps{
		Store:      b.Repo,
		Engine:     engine,
		Audio:      b.Blobs,
		Summarizer: summary.New(engine, b.Repo, templates, cfg.SummaryParallel, log),
		Scheduler:  b.Scheduler,
		Locker:     lease.NewRedisLocker(b.Redis),
		Notifier:   b.Notifier,
		Archive:    b.Blobs,
		Log:        log,
	}, ServiceOptions(cfg))
	return b, nil
}

// Close releases backends in reverse order of opening.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}
