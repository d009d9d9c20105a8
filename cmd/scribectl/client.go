package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 2 * time.Minute}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <audio-file>",
		Short: "Upload an audio file and print its file id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, contentType, err := multipartFile(args[0])
			if err != nil {
				return err
			}
			return callAPI(cmd.Context(), cmd.OutOrStdout(), http.MethodPost, "/files", contentType, body)
		},
	}
}

func newSubmitCmd() *cobra.Command {
	var (
		language string
		speakers int
		upload   string
	)
	cmd := &cobra.Command{
		Use:   "submit [file-id]",
		Short: "Start a transcription for an uploaded file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var fileID string
			switch {
			case upload != "":
				body, contentType, err := multipartFile(upload)
				if err != nil {
					return err
				}
				var out struct {
					FileID string `json:"fileId"`
				}
				if err := callAPIInto(ctx, http.MethodPost, "/files", contentType, body, &out); err != nil {
					return err
				}
				fileID = out.FileID
			case len(args) == 1:
				fileID = args[0]
			default:
				return fmt.Errorf("pass a file id or --upload <audio-file>")
			}
			payload, err := json.Marshal(map[string]any{
				"fileId":           fileID,
				"languageHint":     language,
				"expectedSpeakers": speakers,
			})
			if err != nil {
				return err
			}
			return callAPI(ctx, cmd.OutOrStdout(), http.MethodPost, "/transcriptions", "application/json", bytes.NewReader(payload))
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language hint such as en or ru")
	cmd.Flags().IntVarP(&speakers, "speakers", "s", 0, "Expected number of speakers")
	cmd.Flags().StringVar(&upload, "upload", "", "Upload this audio file first")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var (
		wait     bool
		byFile   bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a transcription, optionally waiting for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := "/transcriptions/" + args[0]
			if byFile {
				path = "/files/" + url.PathEscape(args[0]) + "/transcription"
			}
			if !wait {
				return callAPI(ctx, cmd.OutOrStdout(), http.MethodGet, path, "", nil)
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				var view struct {
					Status string `json:"status"`
				}
				if err := callAPIInto(ctx, http.MethodGet, path, "", nil, &view); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "status: %s\n", view.Status)
				if view.Status == "completed" || view.Status == "error" {
					return callAPI(ctx, cmd.OutOrStdout(), http.MethodGet, path, "", nil)
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the job is completed or failed")
	cmd.Flags().BoolVar(&byFile, "file", false, "Treat the argument as a file id and show its latest transcription")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Polling interval for --wait")
	return cmd
}

func newSummariesCmd() *cobra.Command {
	var rerun bool
	cmd := &cobra.Command{
		Use:   "summaries <job-id>",
		Short: "List summaries of a completed transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := http.MethodGet
			if rerun {
				method = http.MethodPost
			}
			return callAPI(cmd.Context(), cmd.OutOrStdout(), method, "/transcriptions/"+args[0]+"/summaries", "", nil)
		},
	}
	cmd.Flags().BoolVar(&rerun, "rerun", false, "Run every template again before listing")
	return cmd
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <job-id> <prompt...>",
		Short: "Ask a question about a completed transcription",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(map[string]string{"prompt": strings.Join(args[1:], " ")})
			if err != nil {
				return err
			}
			var out struct {
				Result string `json:"result"`
			}
			if err := callAPIInto(cmd.Context(), http.MethodPost, "/transcriptions/"+args[0]+"/query", "application/json", bytes.NewReader(payload), &out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Result)
			return nil
		},
	}
}

func multipartFile(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// callAPI prints the indented JSON response.
func callAPI(ctx context.Context, out io.Writer, method, path, contentType string, body io.Reader) error {
	var raw json.RawMessage
	if err := callAPIInto(ctx, method, path, contentType, body, &raw); err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		_, err = out.Write(raw)
		return err
	}
	pretty.WriteByte('\n')
	_, err := pretty.WriteTo(out)
	return err
}

func callAPIInto(ctx context.Context, method, path, contentType string, body io.Reader, into any) error {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(apiURL, "/")+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.Unmarshal(data, into)
}
