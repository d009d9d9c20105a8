// Package speech isolates every interaction with the external speech
// recognition provider behind the Engine interface.
package speech

import (
	"context"
	"errors"
	"fmt"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
)

// Engine is the narrow surface the orchestrator depends on. Implementations
// never retry; transient failures propagate to the caller.
type Engine interface {
	UploadAudio(ctx context.Context, data []byte) (string, error)
	SubmitJob(ctx context.Context, audioRef string, params Params) (string, error)
	FetchJobStatus(ctx context.Context, providerJobID string) (*JobStatus, error)
	Query(ctx context.Context, providerJobID, prompt string) (string, error)
}

// Params are fixed at submission time.
type Params struct {
	LanguageCode     string
	SpeakerLabels    bool
	SpeakersExpected int
}

// JobStatus is the provider view of a job mapped onto the job lifecycle
// vocabulary (queued, processing, completed, error).
type JobStatus struct {
	ProviderJobID string
	Status        model.JobStatus
	Transcript    *model.Transcript
	Error         string
}

// Terminal reports whether the provider finished the job either way.
func (s *JobStatus) Terminal() bool {
	return s != nil && s.Status.Terminal()
}

// Kind partitions provider failures so callers can tell retryable conditions
// from terminal ones without inspecting concrete types.
type Kind string

const (
	KindUpload     Kind = "upload"
	KindSubmission Kind = "submission"
	KindPoll       Kind = "poll"
	KindQuery      Kind = "query"
)

// Error wraps a provider failure with its kind and, for HTTP failures, the
// response status code.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Kind, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err carries a provider error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// NewError builds a kinded error; it is exported for fakes in other packages.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
