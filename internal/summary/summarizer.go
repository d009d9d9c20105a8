package summary

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/VaultScribe/internal/model"
)

// Querier sends a prompt about a provider transcript.
type Querier interface {
	Query(ctx context.Context, providerJobID, prompt string) (string, error)
}

// Sink persists summary outcomes, overwriting per template key.
type Sink interface {
	AddSummary(ctx context.Context, s model.Summary) error
}

// Summarizer fans a completed job out over every template. Templates are
// independent: one failing never prevents another from running or being
// stored.
type Summarizer struct {
	engine      Querier
	sink        Sink
	templates   []Template
	parallelism int
	log         logrus.FieldLogger
	now         func() time.Time
}

// New constructs a Summarizer. parallelism bounds concurrent queries; values
// below one run templates sequentially.
func New(engine Querier, sink Sink, templates []Template, parallelism int, log logrus.FieldLogger) *Summarizer {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Summarizer{
		engine:      engine,
		sink:        sink,
		templates:   templates,
		parallelism: parallelism,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Templates returns the configured templates.
func (s *Summarizer) Templates() []Template {
	return append([]Template(nil), s.templates...)
}

// Run queries every template for job and stores each outcome. The returned
// slice follows template order.
func (s *Summarizer) Run(ctx context.Context, job *model.Job) []model.Summary {
	out := make([]model.Summary, len(s.templates))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, tmpl := range s.templates {
		i, tmpl := i, tmpl
		g.Go(func() error {
			out[i] = s.runOne(ctx, job, tmpl)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Summarizer) runOne(ctx context.Context, job *model.Job, tmpl Template) model.Summary {
	log := s.log.WithFields(logrus.Fields{
		"job_id":          job.ID,
		"provider_job_id": job.ProviderJobID,
		"template":        tmpl.Key,
	})
	result := model.Summary{JobID: job.ID, TemplateKey: tmpl.Key}
	text, err := s.engine.Query(ctx, job.ProviderJobID, tmpl.Prompt)
	switch {
	case err != nil:
		log.WithError(err).Warn("summary template failed")
		result.ErrorMessage = err.Error()
	case text == "":
		log.Warn("summary template returned no text")
		result.ErrorMessage = "empty response"
	default:
		result.Text = text
	}
	result.CreatedAt = s.now()
	if err := s.sink.AddSummary(ctx, result); err != nil {
		log.WithError(err).Error("store summary")
	}
	return result
}
