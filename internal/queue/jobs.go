// Package queue schedules transcription jobs as asynq tasks so any worker
// process can pick them up and a restart never loses them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// ProcessTranscriptionTask is scheduled for every submitted or resumed job.
	ProcessTranscriptionTask = "transcription:process"
)

// ProcessPayload is serialized into the task payload.
type ProcessPayload struct {
	JobID string `json:"job_id"`
}

// DecodeProcessPayload parses a task payload.
func DecodeProcessPayload(task *asynq.Task) (ProcessPayload, error) {
	var payload ProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.JobID == "" {
		return payload, errors.New("decode payload: job_id is empty")
	}
	return payload, nil
}

// NewProcessTask builds the task for jobID. The task id is derived from the
// job id so a job is never queued twice at once.
func NewProcessTask(jobID string, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(ProcessPayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ProcessTranscriptionTask, data,
		asynq.TaskID("transcription:"+jobID),
		asynq.MaxRetry(5),
		asynq.Timeout(timeout),
	), nil
}

// Scheduler enqueues tasks through an asynq client.
type Scheduler struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewScheduler constructs a Scheduler. timeout bounds one task run and
// should cover the whole poll window.
func NewScheduler(client *asynq.Client, timeout time.Duration) *Scheduler {
	return &Scheduler{client: client, timeout: timeout}
}

// Schedule enqueues a processing task. A task already pending for the job
// counts as success.
func (s *Scheduler) Schedule(ctx context.Context, jobID string) error {
	task, err := NewProcessTask(jobID, s.timeout)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue transcription task: %w", err)
	}
	return nil
}
