// Package s3storage keeps uploaded audio and archived transcripts in MinIO/S3.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/VaultScribe/internal/config"
)

// Storage wraps MinIO/S3 interactions for audio and transcript objects.
type Storage struct {
	client           *minio.Client
	audioBucket      string
	transcriptBucket string
	region           string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:           client,
		audioBucket:      cfg.AudioBucket,
		transcriptBucket: cfg.TranscriptBucket,
		region:           cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure the audio/transcript buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.audioBucket, s.transcriptBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// SaveAudio uploads an audio file and returns its object key, which doubles
// as the file id handed to transcription jobs.
func (s *Storage) SaveAudio(ctx context.Context, name, contentType string, r io.Reader, size int64) (string, error) {
	key := AudioKey(uuid.NewString(), name)
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.audioBucket, key, r, size, opts); err != nil {
		return "", fmt.Errorf("upload audio object: %w", err)
	}
	return key, nil
}

// ReadAudio fetches the audio bytes for an object key.
func (s *Storage) ReadAudio(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.audioBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get audio object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read audio object: %w", err)
	}
	return buf, nil
}

// ArchiveTranscript stores the rendered transcript of a completed job.
func (s *Storage) ArchiveTranscript(ctx context.Context, jobID string, data []byte) error {
	opts := minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"}
	_, err := s.client.PutObject(ctx, s.transcriptBucket, TranscriptKey(jobID), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload transcript object: %w", err)
	}
	return nil
}

// TranscriptURL returns a presigned GET URL for the archived transcript.
func (s *Storage) TranscriptURL(ctx context.Context, jobID string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", jobID+".txt"))
	u, err := s.client.PresignedGetObject(ctx, s.transcriptBucket, TranscriptKey(jobID), ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign transcript object: %w", err)
	}
	return u.String(), nil
}

// AudioKey builds "<id>/<base name>" so object names stay readable.
func AudioKey(id, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "audio"
	}
	return id + "/" + base
}

// TranscriptKey is the object key of an archived transcript.
func TranscriptKey(jobID string) string {
	return "transcripts/" + jobID + ".txt"
}
