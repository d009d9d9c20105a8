package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
)

// Options configures the AssemblyAI client.
type Options struct {
	APIKey      string
	BaseURL     string
	SpeechModel string
	FinalModel  string
	// CallTimeout bounds every HTTP round trip.
	CallTimeout time.Duration
	// SubmitRate throttles uploads and submissions per account (events/sec).
	// Zero or negative disables throttling.
	SubmitRate float64
	HTTPClient *http.Client
}

// Client talks to the AssemblyAI REST API.
type Client struct {
	apiKey      string
	baseURL     string
	speechModel string
	finalModel  string
	http        *http.Client
	limiter     *rate.Limiter
}

var _ Engine = (*Client)(nil)

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.CallTimeout}
	}
	limit := rate.Inf
	if opts.SubmitRate > 0 {
		limit = rate.Limit(opts.SubmitRate)
	}
	return &Client{
		apiKey:      opts.APIKey,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		speechModel: opts.SpeechModel,
		finalModel:  opts.FinalModel,
		http:        hc,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

// UploadAudio sends raw audio bytes and returns the provider's audio URL.
func (c *Client) UploadAudio(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", NewError(KindUpload, "upload", errors.New("empty audio"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", NewError(KindUpload, "upload", err)
	}
	var out uploadResponse
	if err := c.do(ctx, KindUpload, "upload", http.MethodPost, "/v2/upload", "application/octet-stream", bytes.NewReader(data), &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", NewError(KindUpload, "upload", errors.New("response missing upload_url"))
	}
	return out.UploadURL, nil
}

type submitRequest struct {
	AudioURL         string `json:"audio_url"`
	LanguageCode     string `json:"language_code,omitempty"`
	SpeakerLabels    bool   `json:"speaker_labels"`
	SpeakersExpected int    `json:"speakers_expected,omitempty"`
	Punctuate        bool   `json:"punctuate"`
	FormatText       bool   `json:"format_text"`
	SpeechModel      string `json:"speech_model,omitempty"`
}

// SubmitJob starts a transcription of a previously uploaded audio file.
func (c *Client) SubmitJob(ctx context.Context, audioRef string, params Params) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", NewError(KindSubmission, "submit", err)
	}
	req := submitRequest{
		AudioURL:      audioRef,
		LanguageCode:  params.LanguageCode,
		SpeakerLabels: params.SpeakerLabels,
		Punctuate:     true,
		FormatText:    true,
		SpeechModel:   c.speechModel,
	}
	if params.SpeakerLabels && params.SpeakersExpected > 0 {
		req.SpeakersExpected = params.SpeakersExpected
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", NewError(KindSubmission, "submit", err)
	}
	var out transcriptResponse
	if err := c.do(ctx, KindSubmission, "submit", http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", NewError(KindSubmission, "submit", errors.New("response missing id"))
	}
	return out.ID, nil
}

type transcriptResponse struct {
	ID            string      `json:"id"`
	Status        string      `json:"status"`
	Text          string      `json:"text"`
	Error         string      `json:"error"`
	Confidence    float64     `json:"confidence"`
	LanguageCode  string      `json:"language_code"`
	AudioDuration float64     `json:"audio_duration"`
	Words         []wordJSON  `json:"words"`
	Utterances    []utterJSON `json:"utterances"`
}

type wordJSON struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    *string `json:"speaker"`
}

type utterJSON struct {
	Speaker    string     `json:"speaker"`
	Text       string     `json:"text"`
	Start      int64      `json:"start"`
	End        int64      `json:"end"`
	Confidence float64    `json:"confidence"`
	Words      []wordJSON `json:"words"`
}

// FetchJobStatus reads the provider's view of a job. It never mutates
// provider-side state and is safe to call repeatedly.
func (c *Client) FetchJobStatus(ctx context.Context, providerJobID string) (*JobStatus, error) {
	if providerJobID == "" {
		return nil, NewError(KindPoll, "status", errors.New("provider job id is required"))
	}
	var out transcriptResponse
	if err := c.do(ctx, KindPoll, "status", http.MethodGet, "/v2/transcript/"+providerJobID, "", nil, &out); err != nil {
		return nil, err
	}
	status := &JobStatus{
		ProviderJobID: providerJobID,
		Status:        mapStatus(out.Status),
	}
	switch status.Status {
	case model.StatusCompleted:
		status.Transcript = out.transcript()
	case model.StatusError:
		status.Error = out.Error
		if status.Error == "" {
			status.Error = "provider reported error without detail"
		}
	}
	return status, nil
}

type lemurRequest struct {
	TranscriptIDs []string `json:"transcript_ids"`
	Prompt        string   `json:"prompt"`
	FinalModel    string   `json:"final_model,omitempty"`
}

type lemurResponse struct {
	RequestID string `json:"request_id"`
	Response  string `json:"response"`
}

// Query runs a natural-language prompt against a completed transcript.
func (c *Client) Query(ctx context.Context, providerJobID, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", NewError(KindQuery, "query", errors.New("prompt is required"))
	}
	body, err := json.Marshal(lemurRequest{
		TranscriptIDs: []string{providerJobID},
		Prompt:        prompt,
		FinalModel:    c.finalModel,
	})
	if err != nil {
		return "", NewError(KindQuery, "query", err)
	}
	var out lemurResponse
	if err := c.do(ctx, KindQuery, "query", http.MethodPost, "/lemur/v3/generate/task", "application/json", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Response), nil
}

func (c *Client) do(ctx context.Context, kind Kind, op, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return NewError(kind, op, err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return NewError(kind, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{Kind: kind, Op: op, StatusCode: resp.StatusCode, Err: errors.New(providerMessage(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewError(kind, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func providerMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return msg
}

func mapStatus(s string) model.JobStatus {
	switch strings.ToLower(s) {
	case "queued":
		return model.StatusQueued
	case "completed":
		return model.StatusCompleted
	case "error":
		return model.StatusError
	default:
		return model.StatusProcessing
	}
}

func (r *transcriptResponse) transcript() *model.Transcript {
	t := &model.Transcript{
		Text:          r.Text,
		Confidence:    r.Confidence,
		LanguageCode:  r.LanguageCode,
		AudioDuration: r.AudioDuration,
		Words:         convertWords(r.Words),
	}
	if len(r.Utterances) > 0 {
		t.Utterances = make([]model.Utterance, 0, len(r.Utterances))
		for _, u := range r.Utterances {
			t.Utterances = append(t.Utterances, model.Utterance{
				Speaker:    u.Speaker,
				Text:       u.Text,
				Start:      u.Start,
				End:        u.End,
				Confidence: u.Confidence,
				Words:      convertWords(u.Words),
			})
		}
	}
	return t
}

func convertWords(in []wordJSON) []model.Word {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.Word, 0, len(in))
	for _, w := range in {
		word := model.Word{Text: w.Text, Start: w.Start, End: w.End, Confidence: w.Confidence}
		if w.Speaker != nil {
			word.Speaker = *w.Speaker
		}
		out = append(out, word)
	}
	return out
}
