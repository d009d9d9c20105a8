package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/VaultScribe/internal/events"
	"github.com/dharsanguruparan/VaultScribe/internal/lease"
	"github.com/dharsanguruparan/VaultScribe/internal/model"
	"github.com/dharsanguruparan/VaultScribe/internal/speech"
	"github.com/dharsanguruparan/VaultScribe/internal/summary"
)

// DetailPollingTimeout is recorded when a job outlives MaxPollDuration.
const DetailPollingTimeout = "polling_timeout"

// Options tunes the orchestration loop.
type Options struct {
	PollInterval    time.Duration
	MaxPollDuration time.Duration
	CallTimeout     time.Duration
	LeaseTTL        time.Duration
	DefaultLanguage string
	DefaultSpeakers int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.MaxPollDuration <= 0 {
		o.MaxPollDuration = 2 * time.Hour
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 60 * time.Second
	}
	if o.LeaseTTL < 2*o.PollInterval {
		o.LeaseTTL = 2 * o.PollInterval
	}
	if o.DefaultLanguage == "" {
		o.DefaultLanguage = "en"
	}
	if o.DefaultSpeakers <= 0 {
		o.DefaultSpeakers = 2
	}
	return o
}

// Deps are the collaborators of a Service. Locker, Notifier and Archive are
// optional.
type Deps struct {
	Store      Store
	Engine     speech.Engine
	Audio      AudioSource
	Summarizer *summary.Summarizer
	Scheduler  Scheduler
	Locker     lease.Locker
	Notifier   events.Notifier
	Archive    Archive
	Log        logrus.FieldLogger
}

// Service is the single entry point for job lifecycle changes. The poll loop
// and the status query share one reconciliation path, so fan-out runs once
// no matter which of them observes completion first.
type Service struct {
	store      Store
	engine     speech.Engine
	audio      AudioSource
	summarizer *summary.Summarizer
	scheduler  Scheduler
	locker     lease.Locker
	notifier   events.Notifier
	archive    Archive
	log        logrus.FieldLogger
	opts       Options
	now        func() time.Time
}

// New wires a Service.
func New(deps Deps, opts Options) *Service {
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	locker := deps.Locker
	if locker == nil {
		locker = lease.NewMemoryLocker(nil)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = events.NewLogNotifier(log)
	}
	return &Service{
		store:      deps.Store,
		engine:     deps.Engine,
		audio:      deps.Audio,
		summarizer: deps.Summarizer,
		scheduler:  deps.Scheduler,
		locker:     locker,
		notifier:   notifier,
		archive:    deps.Archive,
		log:        log,
		opts:       opts.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SubmitRequest describes a new transcription.
type SubmitRequest struct {
	SourceFileID     string
	LanguageHint     string
	ExpectedSpeakers int
}

// Submit creates the job and schedules it in the background. It returns as
// soon as the job is persisted; a scheduling failure is recorded on the job
// rather than returned.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*model.Job, error) {
	fileID := strings.TrimSpace(req.SourceFileID)
	if fileID == "" {
		return nil, fmt.Errorf("%w: file id is required", ErrInvalidRequest)
	}
	if req.ExpectedSpeakers < 0 {
		return nil, fmt.Errorf("%w: expected speakers must not be negative", ErrInvalidRequest)
	}
	job := &model.Job{
		ID:               uuid.NewString(),
		SourceFileID:     fileID,
		LanguageHint:     strings.TrimSpace(req.LanguageHint),
		ExpectedSpeakers: req.ExpectedSpeakers,
	}
	if job.LanguageHint == "" {
		job.LanguageHint = s.opts.DefaultLanguage
	}
	if job.ExpectedSpeakers == 0 {
		job.ExpectedSpeakers = s.opts.DefaultSpeakers
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	log := s.jobLog(job)
	log.Info("transcription submitted")
	s.notify(ctx, job.ID)

	if err := s.scheduler.Schedule(ctx, job.ID); err != nil {
		log.WithError(err).Error("schedule transcription")
		s.fail(ctx, job.ID, fmt.Sprintf("scheduling failed: %v", err))
	}
	return s.store.Get(ctx, job.ID)
}

// Process is the background task body: it moves a job to the provider and
// then tracks it to a terminal state. Jobs found in processing resume
// polling; terminal jobs are left alone.
func (s *Service) Process(ctx context.Context, jobID string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		return nil
	}
	held, err := s.locker.Acquire(ctx, jobID, s.opts.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire poll lease: %w", err)
	}
	if !held {
		s.jobLog(job).Info("job is tracked elsewhere")
		return nil
	}
	defer s.release(jobID)

	if job.Status == model.StatusUploading || job.Status == model.StatusQueued {
		job, err = s.start(ctx, job)
		if err != nil || job == nil {
			return err
		}
	}
	return s.poll(ctx, job)
}

// Track polls a processing job until it reaches a terminal state, the poll
// deadline passes, or ctx ends. It returns immediately when another process
// owns the job's poll lease.
func (s *Service) Track(ctx context.Context, job *model.Job) error {
	held, err := s.locker.Acquire(ctx, job.ID, s.opts.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire poll lease: %w", err)
	}
	if !held {
		s.jobLog(job).Info("job is tracked elsewhere")
		return nil
	}
	defer s.release(job.ID)
	return s.poll(ctx, job)
}

// start uploads the audio and submits it. Failures are recorded on the job
// and reported as a nil job so the caller stops. When ctx itself ends the job
// is left as is and ctx's error is returned so the task is retried; only the
// per-call timeout counts as a provider failure.
func (s *Service) start(ctx context.Context, job *model.Job) (*model.Job, error) {
	log := s.jobLog(job)
	audio, err := s.readAudio(ctx, job.SourceFileID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Error("read audio")
		s.fail(ctx, job.ID, fmt.Sprintf("audio unavailable: %v", err))
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	audioRef, err := s.engine.UploadAudio(callCtx, audio)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Error("upload audio")
		s.fail(ctx, job.ID, err.Error())
		return nil, nil
	}
	applied, err := s.store.MarkQueued(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("mark queued: %w", err)
	}
	if !applied && job.Status != model.StatusQueued {
		log.Info("job left uploading elsewhere")
		return nil, nil
	}

	params := speech.Params{
		LanguageCode:     job.LanguageHint,
		SpeakerLabels:    true,
		SpeakersExpected: job.ExpectedSpeakers,
	}
	callCtx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
	providerJobID, err := s.engine.SubmitJob(callCtx, audioRef, params)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Error("submit job")
		s.fail(ctx, job.ID, err.Error())
		return nil, nil
	}
	applied, err = s.store.MarkProcessing(ctx, job.ID, providerJobID)
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	if !applied {
		log.Info("job left queued elsewhere")
		return nil, nil
	}
	log.WithField("provider_job_id", providerJobID).Info("submitted to provider")
	s.notify(ctx, job.ID)
	return s.store.Get(ctx, job.ID)
}

func (s *Service) readAudio(ctx context.Context, fileID string) ([]byte, error) {
	if s.audio == nil {
		return nil, errors.New("no audio source configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.audio.ReadAudio(callCtx, fileID)
}

func (s *Service) poll(ctx context.Context, job *model.Job) error {
	log := s.jobLog(job)
	deadline := job.CreatedAt.Add(s.opts.MaxPollDuration)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		done, err := s.pollOnce(ctx, job.ID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if s.now().After(deadline) {
			log.Warn("poll deadline exceeded")
			s.fail(ctx, job.ID, DetailPollingTimeout)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		held, err := s.locker.Acquire(ctx, job.ID, s.opts.LeaseTTL)
		if err != nil {
			log.WithError(err).Warn("refresh poll lease")
			continue
		}
		if !held {
			log.Warn("poll lease lost")
			return nil
		}
	}
}

// pollOnce re-reads the stored job so a reconciliation made through the
// query surface ends the loop, then asks the provider once. Provider errors
// are logged and retried on the next tick.
func (s *Service) pollOnce(ctx context.Context, jobID string) (bool, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		return true, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	st, err := s.engine.FetchJobStatus(callCtx, job.ProviderJobID)
	cancel()
	if err != nil {
		s.jobLog(job).WithError(err).Warn("poll provider")
		return false, nil
	}
	if !st.Terminal() {
		return false, nil
	}
	if err := s.reconcile(ctx, job, st); err != nil {
		return false, err
	}
	return true, nil
}

// reconcile applies a terminal provider status. Side effects run only when
// this call performed the transition.
func (s *Service) reconcile(ctx context.Context, job *model.Job, st *speech.JobStatus) error {
	log := s.jobLog(job)
	if st.Status == model.StatusError || st.Transcript == nil {
		detail := st.Error
		if detail == "" {
			detail = "provider completed without a transcript"
		}
		applied, err := s.store.AttachError(ctx, job.ID, detail)
		if err != nil {
			return fmt.Errorf("attach error: %w", err)
		}
		if applied {
			log.WithField("detail", detail).Warn("transcription failed at provider")
			s.notify(ctx, job.ID)
		}
		return nil
	}

	segments := model.BuildSegments(st.Transcript)
	applied, err := s.store.AttachResult(ctx, job.ID, st.Transcript, segments, st.Transcript.Meta())
	if err != nil {
		return fmt.Errorf("attach result: %w", err)
	}
	if !applied {
		return nil
	}
	log.WithField("segments", len(segments)).Info("transcription completed")
	s.notify(ctx, job.ID)

	// Fan-out outlives the caller's request.
	bg := context.WithoutCancel(ctx)
	done, err := s.store.Get(bg, job.ID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}
	s.archiveTranscript(bg, done, segments)
	s.summarizer.Run(bg, done)
	return nil
}

func (s *Service) archiveTranscript(ctx context.Context, job *model.Job, segments []model.Segment) {
	if s.archive == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	if err := s.archive.ArchiveTranscript(callCtx, job.ID, RenderTranscript(job, segments)); err != nil {
		s.jobLog(job).WithError(err).Warn("archive transcript")
	}
}

// Resume schedules every job that was in flight when the process stopped.
func (s *Service) Resume(ctx context.Context) (int, error) {
	jobs, err := s.store.ListInFlight(ctx)
	if err != nil {
		return 0, fmt.Errorf("list in-flight jobs: %w", err)
	}
	scheduled := 0
	for i := range jobs {
		job := &jobs[i]
		if err := s.scheduler.Schedule(ctx, job.ID); err != nil {
			s.jobLog(job).WithError(err).Error("reschedule job")
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		s.log.WithField("jobs", scheduled).Info("resumed in-flight transcriptions")
	}
	return scheduled, nil
}

func (s *Service) fail(ctx context.Context, jobID, detail string) {
	applied, err := s.store.AttachError(ctx, jobID, detail)
	if err != nil {
		s.log.WithField("job_id", jobID).WithError(err).Error("attach error")
		return
	}
	if applied {
		s.notify(ctx, jobID)
	}
}

func (s *Service) notify(ctx context.Context, jobID string) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		s.log.WithField("job_id", jobID).WithError(err).Warn("load job for notification")
		return
	}
	if err := s.notifier.Notify(ctx, events.NewStatusEvent(job)); err != nil {
		s.jobLog(job).WithError(err).Warn("notify file store")
	}
}

func (s *Service) release(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locker.Release(ctx, jobID); err != nil {
		s.log.WithField("job_id", jobID).WithError(err).Warn("release poll lease")
	}
}

func (s *Service) jobLog(job *model.Job) logrus.FieldLogger {
	fields := logrus.Fields{"job_id": job.ID}
	if job.ProviderJobID != "" {
		fields["provider_job_id"] = job.ProviderJobID
	}
	return s.log.WithFields(fields)
}
