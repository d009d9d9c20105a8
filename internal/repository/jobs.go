// Package repository persists transcription jobs in PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
)

const foreignKeyViolation = "23503"

// JobRepository wraps all SQL used by the api and worker binaries.
type JobRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewJobRepository constructs a repository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a job in the uploading state.
func (r *JobRepository) Create(ctx context.Context, job *model.Job) error {
	now := r.now()
	job.Status = model.StatusUploading
	job.ProviderJobID = ""
	job.Result = nil
	job.ErrorDetail = ""
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transcription_jobs (id, source_file_id, status, language_hint, expected_speakers, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, job.ID, job.SourceFileID, job.Status, job.LanguageHint, job.ExpectedSpeakers, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, source_file_id, provider_job_id, status, language_hint, expected_speakers,
	result, error_detail, duration_seconds, detected_language, created_at, updated_at`

// Get returns a job by id.
func (r *JobRepository) Get(ctx context.Context, id string) (*model.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM transcription_jobs WHERE id=$1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// LatestForFile returns the most recently created job for a source file.
func (r *JobRepository) LatestForFile(ctx context.Context, fileID string) (*model.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM transcription_jobs
		WHERE source_file_id=$1 ORDER BY created_at DESC LIMIT 1`, fileID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select latest job for file: %w", err)
	}
	return job, nil
}

// MarkQueued moves an uploading job to queued.
func (r *JobRepository) MarkQueued(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, model.StatusQueued, `status=$2, updated_at=$3`)
}

// MarkProcessing stores the provider job id and moves a queued job to
// processing.
func (r *JobRepository) MarkProcessing(ctx context.Context, id, providerJobID string) (bool, error) {
	return r.transition(ctx, id, model.StatusProcessing, `status=$2, updated_at=$3, provider_job_id=$5`, providerJobID)
}

// AttachError fails any non-terminal job.
func (r *JobRepository) AttachError(ctx context.Context, id, detail string) (bool, error) {
	return r.transition(ctx, id, model.StatusError, `status=$2, updated_at=$3, error_detail=$5, result=NULL`, detail)
}

// AttachResult completes a processing job. The status change, the raw result
// and the segments are written in one transaction.
func (r *JobRepository) AttachResult(ctx context.Context, id string, result *model.Transcript, segments []model.Segment, meta model.ResultMeta) (bool, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}
	applied := false
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE transcription_jobs
			SET status=$2, updated_at=$3, result=$4, error_detail=NULL, duration_seconds=$5, detected_language=$6
			WHERE id=$1 AND status=$7
		`, id, model.StatusCompleted, r.now(), raw, meta.Duration, meta.Language, model.StatusProcessing)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		applied = true
		if _, err := tx.Exec(ctx, `DELETE FROM transcription_segments WHERE job_id=$1`, id); err != nil {
			return fmt.Errorf("clear segments: %w", err)
		}
		if len(segments) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"transcription_segments"},
			[]string{"job_id", "idx", "start_ms", "end_ms", "text", "speaker", "confidence"},
			pgx.CopyFromSlice(len(segments), func(i int) ([]any, error) {
				s := segments[i]
				var speaker any
				if s.Speaker != "" {
					speaker = s.Speaker
				}
				return []any{id, s.Index, s.StartMS, s.EndMS, s.Text, speaker, s.Confidence}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy segments: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, r.ensureExists(ctx, id)
	}
	return true, nil
}

// AddSummary upserts the outcome of one template.
func (r *JobRepository) AddSummary(ctx context.Context, s model.Summary) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transcription_summaries (job_id, template_key, text, error_message, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (job_id, template_key) DO UPDATE
		SET text=EXCLUDED.text, error_message=EXCLUDED.error_message, created_at=EXCLUDED.created_at
	`, s.JobID, s.TemplateKey, nullable(s.Text), nullable(s.ErrorMessage), s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return model.ErrNotFound
		}
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// ListSummaries returns the current summaries ordered by template key.
func (r *JobRepository) ListSummaries(ctx context.Context, jobID string) ([]model.Summary, error) {
	if err := r.ensureExists(ctx, jobID); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT job_id, template_key, COALESCE(text,''), COALESCE(error_message,''), created_at
		FROM transcription_summaries WHERE job_id=$1 ORDER BY template_key
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("select summaries: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Summary, error) {
		var s model.Summary
		err := row.Scan(&s.JobID, &s.TemplateKey, &s.Text, &s.ErrorMessage, &s.CreatedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan summaries: %w", err)
	}
	return out, nil
}

// ListSegments returns the segments ordered by start time.
func (r *JobRepository) ListSegments(ctx context.Context, jobID string) ([]model.Segment, error) {
	if err := r.ensureExists(ctx, jobID); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT idx, start_ms, end_ms, text, COALESCE(speaker,''), confidence
		FROM transcription_segments WHERE job_id=$1 ORDER BY start_ms, idx
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("select segments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Segment, error) {
		var s model.Segment
		err := row.Scan(&s.Index, &s.StartMS, &s.EndMS, &s.Text, &s.Speaker, &s.Confidence)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan segments: %w", err)
	}
	return out, nil
}

// ListInFlight returns every non-terminal job, oldest first.
func (r *JobRepository) ListInFlight(ctx context.Context) ([]model.Job, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM transcription_jobs
		WHERE status NOT IN ('completed','error') ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select in-flight jobs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Job, error) {
		job, err := scanJob(row)
		if err != nil {
			return model.Job{}, err
		}
		return *job, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan in-flight jobs: %w", err)
	}
	return out, nil
}

// transition runs a conditional UPDATE that only matches rows whose current
// status may move to the target. Placeholders $1..$4 are fixed: id, target
// status, timestamp and allowed source statuses; extra args start at $5.
func (r *JobRepository) transition(ctx context.Context, id string, to model.JobStatus, set string, extra ...any) (bool, error) {
	args := append([]any{id, to, r.now(), sourceStatuses(to)}, extra...)
	tag, err := r.pool.Exec(ctx, `UPDATE transcription_jobs SET `+set+` WHERE id=$1 AND status = ANY($4::text[])`, args...)
	if err != nil {
		return false, fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, r.ensureExists(ctx, id)
	}
	return true, nil
}

func (r *JobRepository) ensureExists(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transcription_jobs WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return model.ErrNotFound
	}
	return nil
}

// sourceStatuses lists the statuses allowed to move to the target.
func sourceStatuses(to model.JobStatus) []string {
	var out []string
	for _, from := range []model.JobStatus{model.StatusUploading, model.StatusQueued, model.StatusProcessing, model.StatusCompleted, model.StatusError} {
		if model.CanTransition(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job        model.Job
		providerID sql.NullString
		raw        []byte
		errDetail  sql.NullString
		duration   sql.NullFloat64
		language   sql.NullString
	)
	if err := row.Scan(&job.ID, &job.SourceFileID, &providerID, &job.Status, &job.LanguageHint, &job.ExpectedSpeakers,
		&raw, &errDetail, &duration, &language, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.ProviderJobID = providerID.String
	job.ErrorDetail = errDetail.String
	job.Duration = duration.Float64
	job.DetectedLanguage = language.String
	if len(raw) > 0 {
		var t model.Transcript
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &t
	}
	return &job, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
