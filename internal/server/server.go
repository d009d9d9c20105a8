// Package server assembles the runtime graph of each binary. The local
// deployment keeps everything in one process: in-memory jobs, audio on disk,
// a goroutine pool and the HTTP API.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/VaultScribe/internal/api"
	"github.com/dharsanguruparan/VaultScribe/internal/config"
	"github.com/dharsanguruparan/VaultScribe/internal/events"
	"github.com/dharsanguruparan/VaultScribe/internal/processing"
	"github.com/dharsanguruparan/VaultScribe/internal/signing"
	"github.com/dharsanguruparan/VaultScribe/internal/speech"
	"github.com/dharsanguruparan/VaultScribe/internal/storage"
	"github.com/dharsanguruparan/VaultScribe/internal/summary"
	"github.com/dharsanguruparan/VaultScribe/internal/transcription"
)

// Server hosts the single-binary deployment.
type Server struct {
	cfg  *config.Config
	log  logrus.FieldLogger
	pool *processing.Pool
	svc  *transcription.Service
	api  *api.Server
	once sync.Once
}

// New creates a configured local server around engine.
func New(cfg *config.Config, engine speech.Engine, log logrus.FieldLogger) (*Server, error) {
	files, err := storage.NewDiskFiles(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	templates, err := summary.LoadTemplates(cfg.SummaryTemplates)
	if err != nil {
		return nil, err
	}
	store := storage.NewMemoryStore()
	pool := processing.New(cfg.ProcessingPool, log)
	svc := transcription.New(transcription.Deps{
		Store:      store,
		Engine:     engine,
		Audio:      files,
		Summarizer: summary.New(engine, store, templates, cfg.SummaryParallel, log),
		Scheduler:  pool,
		Notifier:   events.NewLogNotifier(log),
		Log:        log,
	}, ServiceOptions(cfg))
	apiServer := api.New(svc, files, nil, signing.NewSigner(cfg.SigningSecret), APIOptions(cfg), log)
	return &Server{cfg: cfg, log: log, pool: pool, svc: svc, api: apiServer}, nil
}

// Service exposes the orchestrator, mainly for tests.
func (s *Server) Service() *transcription.Service {
	return s.svc
}

// Serve starts the worker pool and the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.once.Do(func() {
		s.pool.Start(ctx, s.svc.Process)
	})
	err := s.api.Run(ctx)
	s.pool.Wait()
	if err != nil {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// NewEngine builds the provider client from configuration.
func NewEngine(cfg *config.Config) *speech.Client {
	return speech.NewClient(speech.Options{
		APIKey:      cfg.SpeechAPIKey,
		BaseURL:     cfg.SpeechBaseURL,
		SpeechModel: cfg.SpeechModel,
		FinalModel:  cfg.QueryFinalModel,
		CallTimeout: cfg.CallTimeout,
		SubmitRate:  cfg.SubmitRatePerSec,
	})
}

// ServiceOptions maps configuration onto orchestrator options.
func ServiceOptions(cfg *config.Config) transcription.Options {
	return transcription.Options{
		PollInterval:    cfg.PollInterval,
		MaxPollDuration: cfg.MaxPollDuration,
		CallTimeout:     cfg.CallTimeout,
		LeaseTTL:        cfg.PollLeaseTTL,
		DefaultLanguage: cfg.DefaultLanguage,
		DefaultSpeakers: cfg.DefaultSpeakers,
	}
}

// APIOptions maps configuration onto HTTP options.
func APIOptions(cfg *config.Config) api.Options {
	return api.Options{
		Address:        cfg.Address,
		MaxFileSize:    cfg.MaxFileSize,
		AllowedTypes:   cfg.AllowedTypes,
		SignedURLTTL:   cfg.SignedURLTTL,
		AllowedOrigins: cfg.CORSAllowedOrigin,
	}
}
