package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
	"github.com/dharsanguruparan/VaultScribe/internal/signing"
	"github.com/dharsanguruparan/VaultScribe/internal/speech"
	"github.com/dharsanguruparan/VaultScribe/internal/transcription"
)

type stubService struct {
	jobs       map[string]*model.Job
	submitted  transcription.SubmitRequest
	submitErr  error
	askAnswer  string
	askErr     error
	transcript []byte
}

func (s *stubService) Submit(ctx context.Context, req transcription.SubmitRequest) (*model.Job, error) {
	s.submitted = req
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &model.Job{ID: "job-new", Status: model.StatusUploading}, nil
}

func (s *stubService) GetStatus(ctx context.Context, id string) (*transcription.JobView, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &transcription.JobView{Job: *job}, nil
}

func (s *stubService) StatusForFile(ctx context.Context, fileID string) (*transcription.JobView, error) {
	for _, job := range s.jobs {
		if job.SourceFileID == fileID {
			return &transcription.JobView{Job: *job}, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *stubService) Segments(ctx context.Context, id string) ([]model.Segment, error) {
	if _, ok := s.jobs[id]; !ok {
		return nil, model.ErrNotFound
	}
	return nil, nil
}

func (s *stubService) ListSummaries(ctx context.Context, id string) ([]model.Summary, error) {
	if _, ok := s.jobs[id]; !ok {
		return nil, model.ErrNotFound
	}
	return []model.Summary{{JobID: id, TemplateKey: "recap", Text: "hello"}}, nil
}

func (s *stubService) Summarize(ctx context.Context, id string) ([]model.Summary, error) {
	return s.ListSummaries(ctx, id)
}

func (s *stubService) Ask(ctx context.Context, id, prompt string) (string, error) {
	return s.askAnswer, s.askErr
}

func (s *stubService) Transcript(ctx context.Context, id string) ([]byte, error) {
	if _, ok := s.jobs[id]; !ok {
		return nil, model.ErrNotFound
	}
	return s.transcript, nil
}

type stubFiles struct {
	name, contentType string
	data              []byte
}

func (f *stubFiles) SaveAudio(ctx context.Context, name, contentType string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.name, f.contentType, f.data = name, contentType, data
	return "file-1", nil
}

func newTestServer(svc *stubService, files *stubFiles) *Server {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	return New(svc, files, nil, signing.NewSigner([]byte("secret")), Options{
		MaxFileSize:  1024,
		AllowedTypes: []string{"audio/wav", "audio/mpeg"},
		SignedURLTTL: time.Minute,
	}, logger)
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func multipartBody(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(data)
	w.Close()
	return &buf, w.FormDataContentType()
}

func wavBytes() []byte {
	header := []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x44\xac\x00\x00\x88\x58\x01\x00\x02\x00\x10\x00data\x00\x00\x00\x00")
	return append(header, make([]byte, 64)...)
}

func TestHealth(t *testing.T) {
	s := newTestServer(&stubService{}, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestUploadAcceptsAudio(t *testing.T) {
	files := &stubFiles{}
	s := newTestServer(&stubService{}, files)
	body, ct := multipartBody(t, "call.wav", wavBytes())
	rec := do(t, s.Handler(), http.MethodPost, "/files", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["fileId"]; got != "file-1" {
		t.Fatalf("unexpected file id %v", got)
	}
	if files.name != "call.wav" || files.contentType != "audio/wav" || len(files.data) != len(wavBytes()) {
		t.Fatalf("unexpected stored file: %s %s %d", files.name, files.contentType, len(files.data))
	}
}

func TestUploadRejectsNonAudio(t *testing.T) {
	s := newTestServer(&stubService{}, &stubFiles{})
	body, ct := multipartBody(t, "notes.txt", []byte("just some text"))
	rec := do(t, s.Handler(), http.MethodPost, "/files", body, ct)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if decode(t, rec)["code"] != "UNSUPPORTED_TYPE" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestUploadRejectsOversize(t *testing.T) {
	s := newTestServer(&stubService{}, &stubFiles{})
	body, ct := multipartBody(t, "big.wav", append(wavBytes(), make([]byte, 4096)...))
	rec := do(t, s.Handler(), http.MethodPost, "/files", body, ct)
	if rec.Code != http.StatusRequestEntityTooLarge && rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestSubmit(t *testing.T) {
	svc := &stubService{}
	s := newTestServer(svc, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodPost, "/transcriptions",
		strings.NewReader(`{"fileId":"file-1","languageHint":"en","expectedSpeakers":2}`), "application/json")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	if out["id"] != "job-new" || out["status"] != "uploading" {
		t.Fatalf("unexpected body %v", out)
	}
	if svc.submitted.SourceFileID != "file-1" || svc.submitted.ExpectedSpeakers != 2 {
		t.Fatalf("unexpected request %+v", svc.submitted)
	}
}

func TestSubmitInvalid(t *testing.T) {
	svc := &stubService{submitErr: fmt.Errorf("%w: file id is required", transcription.ErrInvalidRequest)}
	s := newTestServer(svc, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodPost, "/transcriptions", strings.NewReader(`{}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestStatusNotFound(t *testing.T) {
	s := newTestServer(&stubService{}, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodGet, "/transcriptions/missing", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if decode(t, rec)["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestStatusAndSummaries(t *testing.T) {
	svc := &stubService{jobs: map[string]*model.Job{"job-1": {ID: "job-1", Status: model.StatusProcessing, ProviderJobID: "prov"}}}
	s := newTestServer(svc, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodGet, "/transcriptions/job-1", nil, "")
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "processing" {
		t.Fatalf("unexpected status response %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s.Handler(), http.MethodGet, "/transcriptions/job-1/summaries", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"templateKey":"recap"`) {
		t.Fatalf("unexpected summaries response %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s.Handler(), http.MethodGet, "/transcriptions/job-1/segments", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"segments":[]`) {
		t.Fatalf("unexpected segments response %d %s", rec.Code, rec.Body.String())
	}
}

func TestQueryOnIncompleteJobConflicts(t *testing.T) {
	svc := &stubService{askErr: speech.NewError(speech.KindQuery, "query", transcription.ErrNotCompleted)}
	s := newTestServer(svc, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodPost, "/transcriptions/job-1/query", strings.NewReader(`{"prompt":"who?"}`), "application/json")
	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestQueryProviderFailure(t *testing.T) {
	svc := &stubService{askErr: speech.NewError(speech.KindQuery, "query", errors.New("rejected"))}
	s := newTestServer(svc, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodPost, "/transcriptions/job-1/query", strings.NewReader(`{"prompt":"who?"}`), "application/json")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestQuery(t *testing.T) {
	svc := &stubService{askAnswer: "Speaker A"}
	s := newTestServer(svc, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodPost, "/transcriptions/job-1/query", strings.NewReader(`{"prompt":"who?"}`), "application/json")
	if rec.Code != http.StatusOK || decode(t, rec)["result"] != "Speaker A" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestTranscriptLinkRoundTrip(t *testing.T) {
	svc := &stubService{
		jobs:       map[string]*model.Job{"job-1": {ID: "job-1", Status: model.StatusCompleted}},
		transcript: []byte("[00:00:00] Speaker A: hi\n"),
	}
	s := newTestServer(svc, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodGet, "/transcriptions/job-1/transcript-url", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	link, _ := decode(t, rec)["url"].(string)
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	rec = do(t, s.Handler(), http.MethodGet, u.RequestURI(), nil, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "[00:00:00] Speaker A: hi\n" {
		t.Fatalf("unexpected export %d %q", rec.Code, rec.Body.String())
	}

	q := u.Query()
	sig := q.Get("sig")
	flipped := "0"
	if sig[0] == '0' {
		flipped = "1"
	}
	q.Set("sig", flipped+sig[1:])
	rec = do(t, s.Handler(), http.MethodGet, u.Path+"?"+q.Encode(), nil, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected tampered link to be rejected, got %d", rec.Code)
	}
}

func TestTranscriptLinkRequiresCompletion(t *testing.T) {
	svc := &stubService{jobs: map[string]*model.Job{"job-1": {ID: "job-1", Status: model.StatusProcessing}}}
	s := newTestServer(svc, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodGet, "/transcriptions/job-1/transcript-url", nil, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestFileTranscriptionLookup(t *testing.T) {
	svc := &stubService{jobs: map[string]*model.Job{
		"job-1": {ID: "job-1", SourceFileID: "0f8e/meeting.wav", Status: model.StatusCompleted},
	}}
	s := newTestServer(svc, &stubFiles{})
	rec := do(t, s.Handler(), http.MethodGet, "/files/0f8e%2Fmeeting.wav/transcription", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["id"] != "job-1" || body["status"] != "completed" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	rec = do(t, s.Handler(), http.MethodGet, "/files/unknown/transcription", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown file, got %d", rec.Code)
	}
}
