// Package storage contains the in-memory job store and the local audio file
// store used by the single-binary server and by tests.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
)

// MemoryStore keeps jobs, segments and summaries in maps guarded by one
// RWMutex. Every mutation happens under the write lock, so a reader never sees
// a completed job without its result or segments.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*model.Job
	segments  map[string][]model.Segment
	summaries map[string]map[string]model.Summary
	now       func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*model.Job),
		segments:  make(map[string][]model.Segment),
		summaries: make(map[string]map[string]model.Summary),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new job in the uploading state.
func (m *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	job.Status = model.StatusUploading
	job.ProviderJobID = ""
	job.Result = nil
	job.ErrorDetail = ""
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get returns a copy of the job.
func (m *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneJob(rec), nil
}

// MarkQueued moves an uploading job to queued.
func (m *MemoryStore) MarkQueued(ctx context.Context, id string) (bool, error) {
	return m.transition(id, model.StatusQueued, func(rec *model.Job) {})
}

// MarkProcessing records the provider job id and moves a queued job to
// processing.
func (m *MemoryStore) MarkProcessing(ctx context.Context, id, providerJobID string) (bool, error) {
	return m.transition(id, model.StatusProcessing, func(rec *model.Job) {
		rec.ProviderJobID = providerJobID
	})
}

// AttachResult completes a processing job with its transcript and segments.
func (m *MemoryStore) AttachResult(ctx context.Context, id string, result *model.Transcript, segments []model.Segment, meta model.ResultMeta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	applied, err := m.transitionLocked(id, model.StatusCompleted, func(rec *model.Job) {
		rec.Result = result.Clone()
		rec.ErrorDetail = ""
		rec.Duration = meta.Duration
		rec.DetectedLanguage = meta.Language
	})
	if err != nil || !applied {
		return applied, err
	}
	m.segments[id] = append([]model.Segment(nil), segments...)
	return true, nil
}

// AttachError fails any non-terminal job.
func (m *MemoryStore) AttachError(ctx context.Context, id, detail string) (bool, error) {
	return m.transition(id, model.StatusError, func(rec *model.Job) {
		rec.ErrorDetail = detail
		rec.Result = nil
	})
}

// AddSummary stores the outcome of one template, replacing any previous
// outcome for the same template key.
func (m *MemoryStore) AddSummary(ctx context.Context, summary model.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[summary.JobID]; !ok {
		return model.ErrNotFound
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = m.now()
	}
	byKey, ok := m.summaries[summary.JobID]
	if !ok {
		byKey = make(map[string]model.Summary)
		m.summaries[summary.JobID] = byKey
	}
	byKey[summary.TemplateKey] = summary
	return nil
}

// ListSummaries returns the current summaries ordered by template key.
func (m *MemoryStore) ListSummaries(ctx context.Context, jobID string) ([]model.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.jobs[jobID]; !ok {
		return nil, model.ErrNotFound
	}
	out := make([]model.Summary, 0, len(m.summaries[jobID]))
	for _, s := range m.summaries[jobID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TemplateKey < out[j].TemplateKey })
	return out, nil
}

// ListSegments returns the segments ordered by start time.
func (m *MemoryStore) ListSegments(ctx context.Context, jobID string) ([]model.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.jobs[jobID]; !ok {
		return nil, model.ErrNotFound
	}
	return append([]model.Segment(nil), m.segments[jobID]...), nil
}

// ListInFlight returns every non-terminal job, oldest first.
func (m *MemoryStore) ListInFlight(ctx context.Context) ([]model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Job
	for _, rec := range m.jobs {
		if !rec.Status.Terminal() {
			out = append(out, *cloneJob(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// LatestForFile returns the most recently created job for a source file.
func (m *MemoryStore) LatestForFile(ctx context.Context, fileID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *model.Job
	for _, rec := range m.jobs {
		if rec.SourceFileID != fileID {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, model.ErrNotFound
	}
	return cloneJob(latest), nil
}

func cloneJob(j *model.Job) *model.Job {
	out := *j
	out.Result = j.Result.Clone()
	return &out
}

func (m *MemoryStore) transition(id string, to model.JobStatus, mutate func(*model.Job)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, to, mutate)
}

// transitionLocked applies mutate only when the state machine allows the
// edge. A disallowed edge is a silent no-op.
func (m *MemoryStore) transitionLocked(id string, to model.JobStatus, mutate func(*model.Job)) (bool, error) {
	rec, ok := m.jobs[id]
	if !ok {
		return false, model.ErrNotFound
	}
	if !model.CanTransition(rec.Status, to) {
		return false, nil
	}
	mutate(rec)
	rec.Status = to
	rec.UpdatedAt = m.now()
	return true, nil
}
