// Package model contains the transcription records shared across packages.
package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by every job store when an id is unknown. Callers
// compare against it with errors.Is.
var ErrNotFound = errors.New("transcription job not found")

// JobStatus describes the orchestration lifecycle. In Go a type declared via
// "type X string" creates a new named type backed by string, so statuses
// cannot be mixed up with arbitrary text.
type JobStatus string

const (
	StatusUploading  JobStatus = "uploading"
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Valid reports whether s is one of the known lifecycle values.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusUploading, StatusQueued, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// CanTransition enforces the job state machine edges.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case StatusUploading:
		return to == StatusQueued || to == StatusError
	case StatusQueued:
		return to == StatusProcessing || to == StatusError
	case StatusProcessing:
		return to == StatusCompleted || to == StatusError
	default:
		return false
	}
}

// Job is one audio-to-text transcription request tracked end to end.
type Job struct {
	ID               string      `json:"id"`
	SourceFileID     string      `json:"sourceFileId"`
	ProviderJobID    string      `json:"providerJobId,omitempty"`
	Status           JobStatus   `json:"status"`
	LanguageHint     string      `json:"languageHint,omitempty"`
	ExpectedSpeakers int         `json:"expectedSpeakers,omitempty"`
	Result           *Transcript `json:"result,omitempty"`
	ErrorDetail      string      `json:"errorDetail,omitempty"`
	// Duration and DetectedLanguage are derived from Result when available.
	Duration         float64   `json:"durationSeconds,omitempty"`
	DetectedLanguage string    `json:"detectedLanguage,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Validate checks the record invariants: a result exists exactly when the job
// completed, an error detail exists exactly when it failed, and a provider job
// id is present once the provider accepted the submission.
func (j *Job) Validate() error {
	if !j.Status.Valid() {
		return fmt.Errorf("job %s: unknown status %q", j.ID, j.Status)
	}
	if (j.Status == StatusCompleted) != (j.Result != nil) {
		return fmt.Errorf("job %s: status %s with result present=%t", j.ID, j.Status, j.Result != nil)
	}
	if (j.Status == StatusError) != (j.ErrorDetail != "") {
		return fmt.Errorf("job %s: status %s with error detail present=%t", j.ID, j.Status, j.ErrorDetail != "")
	}
	switch j.Status {
	case StatusUploading, StatusQueued:
		if j.ProviderJobID != "" {
			return fmt.Errorf("job %s: provider job id set while %s", j.ID, j.Status)
		}
	case StatusProcessing, StatusCompleted:
		if j.ProviderJobID == "" {
			return fmt.Errorf("job %s: provider job id missing while %s", j.ID, j.Status)
		}
	}
	return nil
}

// ResultMeta carries values derived from a completed transcript.
type ResultMeta struct {
	Duration float64
	Language string
}

// Summary is the outcome of one prompt template run against a completed job.
// Exactly one of Text and ErrorMessage is set.
type Summary struct {
	JobID        string    `json:"jobId"`
	TemplateKey  string    `json:"templateKey"`
	Text         string    `json:"text,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Failed reports whether the template produced an error instead of prose.
func (s Summary) Failed() bool {
	return s.ErrorMessage != ""
}
