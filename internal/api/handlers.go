package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
	"github.com/dharsanguruparan/VaultScribe/internal/signing"
	"github.com/dharsanguruparan/VaultScribe/internal/speech"
	"github.com/dharsanguruparan/VaultScribe/internal/transcription"
)

type submitRequest struct {
	FileID           string `json:"fileId"`
	LanguageHint     string `json:"languageHint"`
	ExpectedSpeakers int    `json:"expectedSpeakers"`
}

type queryRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxFileSize+1024)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondCode(c, http.StatusRequestEntityTooLarge, "LIMIT_EXCEEDED", fmt.Sprintf("file exceeds limit (%d bytes)", s.opts.MaxFileSize))
			return
		}
		respondCode(c, http.StatusBadRequest, "INVALID_INPUT", "send the audio as multipart/form-data field \"file\"")
		return
	}
	if header.Size == 0 {
		respondCode(c, http.StatusBadRequest, "INVALID_INPUT", "empty file")
		return
	}
	if header.Size > s.opts.MaxFileSize {
		respondCode(c, http.StatusRequestEntityTooLarge, "LIMIT_EXCEEDED", fmt.Sprintf("file exceeds limit (%d bytes)", s.opts.MaxFileSize))
		return
	}
	f, err := header.Open()
	if err != nil {
		respondCode(c, http.StatusBadRequest, "INVALID_INPUT", "could not read upload")
		return
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		respondCode(c, http.StatusBadRequest, "INVALID_INPUT", "could not read upload")
		return
	}
	contentType, ok := s.allowedType(mt)
	if !ok {
		respondCode(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE", fmt.Sprintf("%s is not an accepted audio format", mt.String()))
		return
	}
	if _, err := f.Seek(0, 0); err != nil {
		respondError(c, fmt.Errorf("rewind upload: %w", err))
		return
	}
	fileID, err := s.files.SaveAudio(c.Request.Context(), header.Filename, contentType, f, header.Size)
	if err != nil {
		s.log.WithError(err).Error("store audio")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"fileId":      fileID,
		"contentType": contentType,
		"size":        header.Size,
	})
}

// allowedType walks the detected type and its parents so aliases such as
// audio/x-wav still match the configured list.
func (s *Server) allowedType(mt *mimetype.MIME) (string, bool) {
	for m := mt; m != nil; m = m.Parent() {
		for _, allowed := range s.opts.AllowedTypes {
			if m.Is(allowed) {
				return m.String(), true
			}
		}
	}
	return "", false
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondCode(c, http.StatusBadRequest, "INVALID_INPUT", "request body must be JSON")
		return
	}
	job, err := s.svc.Submit(c.Request.Context(), transcription.SubmitRequest{
		SourceFileID:     req.FileID,
		LanguageHint:     req.LanguageHint,
		ExpectedSpeakers: req.ExpectedSpeakers,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "status": job.Status})
}

func (s *Server) handleStatus(c *gin.Context) {
	view, err := s.svc.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// handleFileStatus resolves the latest transcription of an uploaded file.
func (s *Server) handleFileStatus(c *gin.Context) {
	view, err := s.svc.StatusForFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleSegments(c *gin.Context) {
	segments, err := s.svc.Segments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segments": nonNil(segments)})
}

func (s *Server) handleSummaries(c *gin.Context) {
	summaries, err := s.svc.ListSummaries(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": nonNil(summaries)})
}

func (s *Server) handleResummarize(c *gin.Context) {
	summaries, err := s.svc.Summarize(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": nonNil(summaries)})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondCode(c, http.StatusBadRequest, "INVALID_INPUT", "request body must be JSON")
		return
	}
	answer, err := s.svc.Ask(c.Request.Context(), c.Param("id"), req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": answer})
}

func (s *Server) handleTranscriptURL(c *gin.Context) {
	id := c.Param("id")
	view, err := s.svc.GetStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if view.Status != model.StatusCompleted {
		respondCode(c, http.StatusConflict, "NOT_COMPLETED", "transcription is not completed yet")
		return
	}
	var link string
	if s.links != nil {
		link, err = s.links.TranscriptURL(c.Request.Context(), id, s.opts.SignedURLTTL)
		if err != nil {
			s.log.WithField("job_id", id).WithError(err).Error("presign transcript")
			respondError(c, err)
			return
		}
	} else {
		link = s.signer.Link(requestBase(c)+"/exports/transcripts", id, s.opts.SignedURLTTL)
	}
	c.JSON(http.StatusOK, gin.H{"url": link, "expiresIn": int64(s.opts.SignedURLTTL.Seconds())})
}

func (s *Server) handleExport(c *gin.Context) {
	id := c.Param("id")
	switch err := s.signer.Verify(id, c.Query("expires"), c.Query("sig")); {
	case errors.Is(err, signing.ErrExpired):
		respondCode(c, http.StatusGone, "LINK_EXPIRED", "download link expired")
		return
	case err != nil:
		respondCode(c, http.StatusForbidden, "INVALID_SIGNATURE", "invalid download link")
		return
	}
	text, err := s.svc.Transcript(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".txt"))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", text)
}

func requestBase(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = strings.Split(fwd, ",")[0]
	}
	return scheme + "://" + c.Request.Host
}

func respondCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		respondCode(c, http.StatusNotFound, "NOT_FOUND", "transcription not found")
	case errors.Is(err, transcription.ErrInvalidRequest):
		respondCode(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, transcription.ErrNotCompleted):
		respondCode(c, http.StatusConflict, "NOT_COMPLETED", "transcription is not completed yet")
	case speech.IsKind(err, speech.KindQuery):
		respondCode(c, http.StatusBadGateway, "PROVIDER_ERROR", err.Error())
	case errors.Is(err, context.Canceled):
		respondCode(c, http.StatusRequestTimeout, "REQUEST_CANCELED", "request was canceled")
	default:
		respondCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
