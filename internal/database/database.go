package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema holds the tables used by the job repository. Segments and summaries
// cascade with their job.
const Schema = `
CREATE TABLE IF NOT EXISTS transcription_jobs (
	id TEXT PRIMARY KEY,
	source_file_id TEXT NOT NULL,
	provider_job_id TEXT,
	status TEXT NOT NULL,
	language_hint TEXT NOT NULL DEFAULT '',
	expected_speakers INTEGER NOT NULL DEFAULT 0,
	result JSONB,
	error_detail TEXT,
	duration_seconds DOUBLE PRECISION,
	detected_language TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcription_jobs_status ON transcription_jobs(status);
CREATE INDEX IF NOT EXISTS idx_transcription_jobs_source_file ON transcription_jobs(source_file_id, created_at DESC);

CREATE TABLE IF NOT EXISTS transcription_segments (
	job_id TEXT NOT NULL REFERENCES transcription_jobs(id) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	start_ms BIGINT NOT NULL,
	end_ms BIGINT NOT NULL,
	text TEXT NOT NULL,
	speaker TEXT,
	confidence DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (job_id, idx)
);

CREATE TABLE IF NOT EXISTS transcription_summaries (
	job_id TEXT NOT NULL REFERENCES transcription_jobs(id) ON DELETE CASCADE,
	template_key TEXT NOT NULL,
	text TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (job_id, template_key)
);`

// EnsureSchema creates the transcription tables if needed. The migration lives
// in code so docker compose can bootstrap everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
