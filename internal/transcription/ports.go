// Package transcription orchestrates a job from audio upload through provider
// polling to a persisted transcript and its summaries.
package transcription

import (
	"context"
	"errors"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
)

var (
	// ErrInvalidRequest is returned when a submission is malformed.
	ErrInvalidRequest = errors.New("invalid transcription request")
	// ErrNotCompleted is returned for operations that need a finished
	// transcript.
	ErrNotCompleted = errors.New("transcription not completed")
)

// Store persists jobs. Transition methods report whether the state machine
// allowed the change; a refused transition is not an error.
type Store interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	LatestForFile(ctx context.Context, fileID string) (*model.Job, error)
	MarkQueued(ctx context.Context, id string) (bool, error)
	MarkProcessing(ctx context.Context, id, providerJobID string) (bool, error)
	AttachResult(ctx context.Context, id string, result *model.Transcript, segments []model.Segment, meta model.ResultMeta) (bool, error)
	AttachError(ctx context.Context, id, detail string) (bool, error)
	AddSummary(ctx context.Context, s model.Summary) error
	ListSummaries(ctx context.Context, jobID string) ([]model.Summary, error)
	ListSegments(ctx context.Context, jobID string) ([]model.Segment, error)
	ListInFlight(ctx context.Context) ([]model.Job, error)
}

// Scheduler hands a job id to background execution of Service.Process.
type Scheduler interface {
	Schedule(ctx context.Context, jobID string) error
}

// AudioSource reads the bytes of an uploaded file.
type AudioSource interface {
	ReadAudio(ctx context.Context, fileID string) ([]byte, error)
}

// Archive keeps a rendered copy of completed transcripts.
type Archive interface {
	ArchiveTranscript(ctx context.Context, jobID string, data []byte) error
}
