package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{name: "uploading", job: Job{ID: "a", Status: StatusUploading}},
		{name: "processing", job: Job{ID: "a", Status: StatusProcessing, ProviderJobID: "p"}},
		{name: "completed", job: Job{ID: "a", Status: StatusCompleted, ProviderJobID: "p", Result: &Transcript{Text: "hi"}}},
		{name: "error before submit", job: Job{ID: "a", Status: StatusError, ErrorDetail: "upload failed"}},
		{name: "completed without result", job: Job{ID: "a", Status: StatusCompleted, ProviderJobID: "p"}, wantErr: true},
		{name: "error without detail", job: Job{ID: "a", Status: StatusError}, wantErr: true},
		{name: "processing with detail", job: Job{ID: "a", Status: StatusProcessing, ProviderJobID: "p", ErrorDetail: "x"}, wantErr: true},
		{name: "uploading with provider id", job: Job{ID: "a", Status: StatusUploading, ProviderJobID: "p"}, wantErr: true},
		{name: "processing without provider id", job: Job{ID: "a", Status: StatusProcessing}, wantErr: true},
		{name: "unknown status", job: Job{ID: "a", Status: "paused"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[JobStatus][]JobStatus{
		StatusUploading:  {StatusQueued, StatusError},
		StatusQueued:     {StatusProcessing, StatusError},
		StatusProcessing: {StatusCompleted, StatusError},
	}
	all := []JobStatus{StatusUploading, StatusQueued, StatusProcessing, StatusCompleted, StatusError}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %t, want %t", from, to, got, want)
			}
		}
	}
}

func TestBuildSegmentsPrefersUtterances(t *testing.T) {
	tr := &Transcript{
		Text: "hello there general kenobi",
		Words: []Word{
			{Text: "hello", Start: 0, End: 400},
			{Text: "kenobi", Start: 2100, End: 2600},
		},
		Utterances: []Utterance{
			{Speaker: "B", Text: "general kenobi", Start: 1500, End: 2600, Confidence: 0.8},
			{Speaker: "A", Text: "hello there", Start: 0, End: 1200, Confidence: 0.9},
		},
	}
	got := BuildSegments(tr)
	want := []Segment{
		{Index: 0, StartMS: 0, EndMS: 1200, Text: "hello there", Speaker: "A", Confidence: 0.9},
		{Index: 1, StartMS: 1500, EndMS: 2600, Text: "general kenobi", Speaker: "B", Confidence: 0.8},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildSegmentsFallsBackToWords(t *testing.T) {
	tr := &Transcript{
		Text:       "one two three",
		Confidence: 0.75,
		Words: []Word{
			{Text: "one", Start: 100, End: 300},
			{Text: "two", Start: 350, End: 600},
			{Text: "three", Start: 650, End: 900},
		},
	}
	got := BuildSegments(tr)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].StartMS != 100 || got[0].EndMS != 900 || got[0].Text != "one two three" || got[0].Confidence != 0.75 {
		t.Fatalf("unexpected segment: %+v", got[0])
	}
	if got[0].Speaker != "" {
		t.Fatalf("synthetic segment should have no speaker, got %q", got[0].Speaker)
	}
}

func TestBuildSegmentsEmpty(t *testing.T) {
	if got := BuildSegments(&Transcript{Text: ""}); got != nil {
		t.Fatalf("expected nil segments, got %+v", got)
	}
	if got := BuildSegments(nil); got != nil {
		t.Fatalf("expected nil segments for nil transcript, got %+v", got)
	}
}

func TestTranscriptCloneIsDeep(t *testing.T) {
	orig := &Transcript{
		Text:       "hi",
		Words:      []Word{{Text: "hi"}},
		Utterances: []Utterance{{Speaker: "A", Text: "hi", Words: []Word{{Text: "hi"}}}},
	}
	c := orig.Clone()
	c.Words[0].Text = "x"
	c.Utterances[0].Text = "x"
	c.Utterances[0].Words[0].Text = "x"
	if orig.Words[0].Text != "hi" || orig.Utterances[0].Text != "hi" || orig.Utterances[0].Words[0].Text != "hi" {
		t.Fatalf("clone shares memory with original: %+v", orig)
	}
	var nilTranscript *Transcript
	if nilTranscript.Clone() != nil {
		t.Fatal("clone of nil should be nil")
	}
}
