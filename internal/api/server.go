// Package api exposes the transcription service over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
	"github.com/dharsanguruparan/VaultScribe/internal/signing"
	"github.com/dharsanguruparan/VaultScribe/internal/transcription"
)

// Service is the slice of the transcription service the handlers need.
type Service interface {
	Submit(ctx context.Context, req transcription.SubmitRequest) (*model.Job, error)
	GetStatus(ctx context.Context, id string) (*transcription.JobView, error)
	StatusForFile(ctx context.Context, fileID string) (*transcription.JobView, error)
	Segments(ctx context.Context, id string) ([]model.Segment, error)
	ListSummaries(ctx context.Context, id string) ([]model.Summary, error)
	Summarize(ctx context.Context, id string) ([]model.Summary, error)
	Ask(ctx context.Context, id, prompt string) (string, error)
	Transcript(ctx context.Context, id string) ([]byte, error)
}

// FileStore keeps uploaded audio and returns its file id.
type FileStore interface {
	SaveAudio(ctx context.Context, name, contentType string, r io.Reader, size int64) (string, error)
}

// LinkIssuer presigns transcript downloads in an object store. When absent,
// the server issues HMAC-signed links to its own export route.
type LinkIssuer interface {
	TranscriptURL(ctx context.Context, jobID string, ttl time.Duration) (string, error)
}

// Options configures request limits and CORS.
type Options struct {
	Address        string
	MaxFileSize    int64
	AllowedTypes   []string
	SignedURLTTL   time.Duration
	AllowedOrigins []string
}

// Server exposes HTTP endpoints for uploads and transcription visibility.
type Server struct {
	svc    Service
	files  FileStore
	links  LinkIssuer
	signer *signing.Signer
	opts   Options
	log    logrus.FieldLogger

	once   sync.Once
	router *gin.Engine
	server *http.Server
}

// New constructs a Server. links may be nil.
func New(svc Service, files FileStore, links LinkIssuer, signer *signing.Signer, opts Options, log logrus.FieldLogger) *Server {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 5 * time.Minute
	}
	return &Server{svc: svc, files: files, links: links, signer: signer, opts: opts, log: log}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		s.router = s.routes()
	})
	return s.router
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.WithField("address", s.opts.Address).Info("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	// File ids are "<uuid>/<name>"; route on the raw path so %2F stays in :id.
	router.UseRawPath = true
	router.Use(gin.Recovery(), requestLogger(s.log))

	corsConfig := cors.DefaultConfig()
	if len(s.opts.AllowedOrigins) == 0 || (len(s.opts.AllowedOrigins) == 1 && s.opts.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.opts.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", handleHealth)
	router.POST("/files", s.handleUpload)
	router.GET("/files/:id/transcription", s.handleFileStatus)

	tr := router.Group("/transcriptions")
	tr.POST("", s.handleSubmit)
	tr.GET("/:id", s.handleStatus)
	tr.GET("/:id/segments", s.handleSegments)
	tr.GET("/:id/summaries", s.handleSummaries)
	tr.POST("/:id/summaries", s.handleResummarize)
	tr.POST("/:id/query", s.handleQuery)
	tr.GET("/:id/transcript-url", s.handleTranscriptURL)

	router.GET("/exports/transcripts/:id", s.handleExport)
	return router
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("http request")
	}
}
