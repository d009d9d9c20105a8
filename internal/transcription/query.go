package transcription

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
	"github.com/dharsanguruparan/VaultScribe/internal/speech"
)

// JobView is a job together with its derived records.
type JobView struct {
	model.Job
	Segments  []model.Segment `json:"segments,omitempty"`
	Summaries []model.Summary `json:"summaries,omitempty"`
}

// GetStatus returns the job, reconciling it first when it is still
// processing at the provider. Terminal jobs are served from storage without
// a provider call. Provider failures are logged and the stored state is
// returned unchanged.
func (s *Service) GetStatus(ctx context.Context, id string) (*JobView, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == model.StatusProcessing && job.ProviderJobID != "" {
		job = s.reconcileLazily(ctx, job)
	}
	view := &JobView{Job: *job}
	if job.Status != model.StatusCompleted {
		return view, nil
	}
	if view.Segments, err = s.store.ListSegments(ctx, id); err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	if view.Summaries, err = s.store.ListSummaries(ctx, id); err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return view, nil
}

// StatusForFile returns the latest job submitted for a source file, with the
// same lazy reconciliation as GetStatus.
func (s *Service) StatusForFile(ctx context.Context, fileID string) (*JobView, error) {
	job, err := s.store.LatestForFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return s.GetStatus(ctx, job.ID)
}

func (s *Service) reconcileLazily(ctx context.Context, job *model.Job) *model.Job {
	log := s.jobLog(job)
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	st, err := s.engine.FetchJobStatus(callCtx, job.ProviderJobID)
	cancel()
	if err != nil {
		log.WithError(err).Warn("status check at provider failed")
		return job
	}
	if !st.Terminal() {
		return job
	}
	if err := s.reconcile(ctx, job, st); err != nil {
		log.WithError(err).Error("reconcile job")
		return job
	}
	fresh, err := s.store.Get(ctx, job.ID)
	if err != nil {
		log.WithError(err).Warn("reload job")
		return job
	}
	return fresh
}

// Segments returns the stored segments of a job.
func (s *Service) Segments(ctx context.Context, id string) ([]model.Segment, error) {
	return s.store.ListSegments(ctx, id)
}

// ListSummaries returns the stored summaries of a job.
func (s *Service) ListSummaries(ctx context.Context, id string) ([]model.Summary, error) {
	return s.store.ListSummaries(ctx, id)
}

// Ask runs an ad-hoc prompt against a completed transcript. The answer is not
// stored.
func (s *Service) Ask(ctx context.Context, id, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	job, err := s.completedJob(ctx, id)
	if err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	answer, err := s.engine.Query(callCtx, job.ProviderJobID, prompt)
	if err != nil {
		s.jobLog(job).WithError(err).Warn("ad-hoc query failed")
		return "", err
	}
	return answer, nil
}

// Summarize re-runs every template for a completed job, replacing the
// previous outcome of each.
func (s *Service) Summarize(ctx context.Context, id string) ([]model.Summary, error) {
	job, err := s.completedJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.summarizer.Run(ctx, job), nil
}

func (s *Service) completedJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusCompleted {
		return nil, speech.NewError(speech.KindQuery, "query", fmt.Errorf("%w: job is %s", ErrNotCompleted, job.Status))
	}
	return job, nil
}

// Transcript renders a completed job as plain text.
func (s *Service) Transcript(ctx context.Context, id string) ([]byte, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusCompleted {
		return nil, fmt.Errorf("%w: job is %s", ErrNotCompleted, job.Status)
	}
	segments, err := s.store.ListSegments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	return RenderTranscript(job, segments), nil
}

// RenderTranscript formats segments as "[hh:mm:ss] Speaker X: text" lines.
func RenderTranscript(job *model.Job, segments []model.Segment) []byte {
	var buf bytes.Buffer
	for _, seg := range segments {
		fmt.Fprintf(&buf, "[%s] ", clock(seg.StartMS))
		if seg.Speaker != "" {
			fmt.Fprintf(&buf, "Speaker %s: ", seg.Speaker)
		}
		buf.WriteString(strings.TrimSpace(seg.Text))
		buf.WriteByte('\n')
	}
	if buf.Len() == 0 && job.Result != nil {
		buf.WriteString(strings.TrimSpace(job.Result.Text))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func clock(ms int64) string {
	sec := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, sec%3600/60, sec%60)
}
