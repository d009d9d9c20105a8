// Package worker plugs the transcription service into the asynq worker loop.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
	"github.com/dharsanguruparan/VaultScribe/internal/queue"
)

// JobRunner runs a job to a terminal state.
type JobRunner interface {
	Process(ctx context.Context, jobID string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	runner JobRunner
	log    logrus.FieldLogger
}

// NewProcessor constructs a worker processor.
func NewProcessor(runner JobRunner, log logrus.FieldLogger) *Processor {
	return &Processor{runner: runner, log: log}
}

// Handler registers the transcription task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessTranscriptionTask, p.handleProcess)
	return mux
}

func (p *Processor) handleProcess(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeProcessPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := p.log.WithField("job_id", payload.JobID)
	log.Debug("processing transcription task")
	if err := p.runner.Process(ctx, payload.JobID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Warn("job no longer exists")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		log.WithError(err).Error("transcription task failed")
		return err
	}
	return nil
}
