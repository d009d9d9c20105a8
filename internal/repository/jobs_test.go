package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/VaultScribe/internal/database"
	"github.com/dharsanguruparan/VaultScribe/internal/model"
)

func TestSourceStatuses(t *testing.T) {
	cases := map[model.JobStatus][]string{
		model.StatusQueued:     {"uploading"},
		model.StatusProcessing: {"queued"},
		model.StatusCompleted:  {"processing"},
		model.StatusError:      {"uploading", "queued", "processing"},
		model.StatusUploading:  nil,
	}
	for to, want := range cases {
		if diff := cmp.Diff(want, sourceStatuses(to)); diff != "" {
			t.Errorf("%s (-want +got):\n%s", to, diff)
		}
	}
}

// newRepository connects to VAULTSCRIBE_TEST_DATABASE_URL; the integration
// tests are skipped when it is unset.
func newRepository(t *testing.T) *JobRepository {
	t.Helper()
	dsn := os.Getenv("VAULTSCRIBE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VAULTSCRIBE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := database.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewJobRepository(pool)
}

func TestJobRepositoryLifecycle(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	id := uuid.NewString()
	if err := repo.Create(ctx, &model.Job{ID: id, SourceFileID: "file", LanguageHint: "en", ExpectedSpeakers: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := repo.MarkQueued(ctx, id); err != nil || !ok {
		t.Fatalf("queued: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.MarkProcessing(ctx, id, "prov-"+id); err != nil || !ok {
		t.Fatalf("processing: ok=%v err=%v", ok, err)
	}
	result := &model.Transcript{Text: "hi there", LanguageCode: "en", AudioDuration: 3}
	segments := []model.Segment{
		{Index: 0, StartMS: 0, EndMS: 1000, Text: "hi", Speaker: "A", Confidence: 0.9},
		{Index: 1, StartMS: 1000, EndMS: 3000, Text: "there", Speaker: "B", Confidence: 0.8},
	}
	if ok, err := repo.AttachResult(ctx, id, result, segments, result.Meta()); err != nil || !ok {
		t.Fatalf("result: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.AttachResult(ctx, id, result, segments, result.Meta()); err != nil || ok {
		t.Fatalf("second result should be a no-op: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.AttachError(ctx, id, "late"); err != nil || ok {
		t.Fatalf("error after completion should be a no-op: ok=%v err=%v", ok, err)
	}

	job, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := job.Validate(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if job.Result.Text != "hi there" || job.DetectedLanguage != "en" {
		t.Fatalf("unexpected job: %+v", job)
	}
	got, err := repo.ListSegments(ctx, id)
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if diff := cmp.Diff(segments, got); diff != "" {
		t.Fatalf("segments (-want +got):\n%s", diff)
	}

	if err := repo.AddSummary(ctx, model.Summary{JobID: id, TemplateKey: "meeting", ErrorMessage: "boom"}); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if err := repo.AddSummary(ctx, model.Summary{JobID: id, TemplateKey: "meeting", Text: "recap"}); err != nil {
		t.Fatalf("summary overwrite: %v", err)
	}
	summaries, err := repo.ListSummaries(ctx, id)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Text != "recap" || summaries[0].Failed() {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}

func TestJobRepositoryNotFound(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	if _, err := repo.Get(ctx, uuid.NewString()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if _, err := repo.AttachError(ctx, uuid.NewString(), "x"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("attach error: %v", err)
	}
	if err := repo.AddSummary(ctx, model.Summary{JobID: uuid.NewString(), TemplateKey: "k", Text: "t"}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("add summary: %v", err)
	}
}

func TestJobRepositoryLatestForFile(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	fileID := "file-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)
	older, newer := uuid.NewString(), uuid.NewString()
	if err := repo.Create(ctx, &model.Job{ID: older, SourceFileID: fileID, CreatedAt: base}); err != nil {
		t.Fatalf("create older: %v", err)
	}
	if err := repo.Create(ctx, &model.Job{ID: newer, SourceFileID: fileID, CreatedAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("create newer: %v", err)
	}
	job, err := repo.LatestForFile(ctx, fileID)
	if err != nil {
		t.Fatalf("latest for file: %v", err)
	}
	if job.ID != newer {
		t.Fatalf("expected %s, got %s", newer, job.ID)
	}
	if _, err := repo.LatestForFile(ctx, "file-"+uuid.NewString()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("missing file: %v", err)
	}
}
