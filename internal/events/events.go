// Package events mirrors job status changes to the file store, which tracks
// its own coarser pending|processing|completed|error lifecycle.
package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
)

// File statuses understood by the file store.
const (
	FilePending    = "pending"
	FileProcessing = "processing"
	FileCompleted  = "completed"
	FileError      = "error"
)

// StatusEvent is published whenever a job changes state.
type StatusEvent struct {
	JobID        string          `json:"jobId"`
	SourceFileID string          `json:"fileId"`
	JobStatus    model.JobStatus `json:"jobStatus"`
	FileStatus   string          `json:"fileStatus"`
	ErrorDetail  string          `json:"errorDetail,omitempty"`
	At           time.Time       `json:"at"`
}

// Notifier delivers status events. Delivery failures never roll back a job
// transition; callers log them.
type Notifier interface {
	Notify(ctx context.Context, ev StatusEvent) error
}

// FileStatus maps a job status onto the file store vocabulary.
func FileStatus(s model.JobStatus) string {
	switch s {
	case model.StatusProcessing:
		return FileProcessing
	case model.StatusCompleted:
		return FileCompleted
	case model.StatusError:
		return FileError
	default:
		return FilePending
	}
}

// NewStatusEvent builds the event for the job's current state.
func NewStatusEvent(job *model.Job) StatusEvent {
	return StatusEvent{
		JobID:        job.ID,
		SourceFileID: job.SourceFileID,
		JobStatus:    job.Status,
		FileStatus:   FileStatus(job.Status),
		ErrorDetail:  job.ErrorDetail,
		At:           time.Now().UTC(),
	}
}

// LogNotifier writes events to the structured log. It is the default when no
// broker is configured.
type LogNotifier struct {
	log logrus.FieldLogger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, ev StatusEvent) error {
	n.log.WithFields(logrus.Fields{
		"job_id":      ev.JobID,
		"file_id":     ev.SourceFileID,
		"job_status":  ev.JobStatus,
		"file_status": ev.FileStatus,
	}).Info("file status changed")
	return nil
}
