package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

func TestProcessTaskRoundTrip(t *testing.T) {
	task, err := NewProcessTask("job-1", time.Hour)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != ProcessTranscriptionTask {
		t.Fatalf("unexpected type %s", task.Type())
	}
	payload, err := DecodeProcessPayload(task)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.JobID != "job-1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDecodeRejectsEmptyJob(t *testing.T) {
	if _, err := DecodeProcessPayload(asynq.NewTask(ProcessTranscriptionTask, []byte(`{}`))); err == nil {
		t.Fatal("expected error for empty job id")
	}
	if _, err := DecodeProcessPayload(asynq.NewTask(ProcessTranscriptionTask, []byte(`not json`))); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
