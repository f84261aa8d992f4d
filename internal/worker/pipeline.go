// Package worker runs the per-job pipeline behind the queue consumer: load the
// job, check the result cache, resolve content, summarize and persist the
// terminal state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/suPer8Hu/summarizer/internal/jobs"
)

type JobStore interface {
	GetJobByID(ctx context.Context, id string) (*jobs.Job, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, summary string, cacheHit bool) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// Cache never fails from the pipeline's point of view: an unreachable cache
// is a miss on Get and a no-op on Set.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

type ContentResolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

type Pipeline struct {
	store      JobStore
	cache      Cache
	resolver   ContentResolver
	summarizer Summarizer
	ttl        time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewPipeline(store JobStore, cache Cache, resolver ContentResolver, summarizer Summarizer, ttl time.Duration, log zerolog.Logger) *Pipeline {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Pipeline{
		store:      store,
		cache:      cache,
		resolver:   resolver,
		summarizer: summarizer,
		ttl:        ttl,
		log:        log.With().Str("component", "pipeline").Logger(),
		now:        time.Now,
	}
}

// Process runs one job to a terminal state. Resolver and backend failures are
// recorded on the job and Process returns nil. A non-nil error means the
// job store could not be read or written; the caller should retry the message.
func (p *Pipeline) Process(ctx context.Context, jobID string) error {
	start := p.now()
	ctx, span := otel.Tracer("worker/Pipeline").Start(ctx, "Process",
		trace.WithAttributes(attribute.String("job.id", jobID)),
	)
	defer span.End()

	lg := p.log.With().Str("job_id", jobID).Logger()
	outcome, err := p.run(ctx, jobID, lg)
	if err != nil {
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		lg.Error().Err(err).Msg("job bookkeeping failed")
	}
	span.SetAttributes(attribute.String("job.outcome", outcome))

	dur := p.now().Sub(start)
	jobsProcessed.WithLabelValues(outcome).Inc()
	jobDuration.WithLabelValues(outcome).Observe(dur.Seconds())
	lg.Info().Str("outcome", outcome).Dur("dur", dur).Msg("job handled")
	return err
}

func (p *Pipeline) run(ctx context.Context, jobID string, lg zerolog.Logger) (string, error) {
	job, err := p.store.GetJobByID(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		lg.Warn().Msg("job not found, dropping message")
		return outcomeDropped, nil
	}
	if err != nil {
		return "", fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		// redelivery of a job that already finished
		lg.Info().Str("status", string(job.Status)).Msg("job already terminal, skipping")
		return outcomeSkipped, nil
	}

	if summary, ok := p.cache.Get(ctx, job.InputHash); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		if err := p.store.MarkCompleted(ctx, job.ID, summary, true); err != nil {
			return p.settle(err, outcomeCacheHit, lg, "mark completed")
		}
		return outcomeCacheHit, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	// a job found in processing was interrupted mid-run and resumes here
	if job.Status == jobs.StatusQueued {
		if err := p.store.MarkProcessing(ctx, job.ID); err != nil {
			return p.settle(err, outcomeSkipped, lg, "mark processing")
		}
	}

	summary, err := p.compute(ctx, job)
	if err != nil {
		lg.Error().Err(err).Str("input_type", string(job.InputType)).Msg("job failed")
		if merr := p.store.MarkFailed(ctx, job.ID, err.Error()); merr != nil {
			return p.settle(merr, outcomeFailed, lg, "mark failed")
		}
		return outcomeFailed, nil
	}

	p.cache.Set(ctx, job.InputHash, summary, p.ttl)
	if err := p.store.MarkCompleted(ctx, job.ID, summary, false); err != nil {
		return p.settle(err, outcomeCompleted, lg, "mark completed")
	}
	return outcomeCompleted, nil
}

// settle classifies a failed status write. A job that vanished or already
// moved on cannot be helped by a retry, so those end the message quietly.
func (p *Pipeline) settle(err error, outcome string, lg zerolog.Logger, step string) (string, error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		lg.Warn().Str("step", step).Msg("job disappeared during processing")
		return outcomeDropped, nil
	case errors.Is(err, jobs.ErrInvalidTransition):
		lg.Warn().Err(err).Str("step", step).Msg("job changed state concurrently, skipping")
		return outcomeSkipped, nil
	default:
		return outcome, fmt.Errorf("%s: %w", step, err)
	}
}

// compute resolves the job's content and summarizes it. A panic in either
// step becomes an ordinary job failure.
func (p *Pipeline) compute(ctx context.Context, job *jobs.Job) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary, err = "", fmt.Errorf("unexpected error: %v", r)
		}
	}()

	content, err := p.content(ctx, job)
	if err != nil {
		return "", err
	}

	ctx, span := otel.Tracer("worker/Pipeline").Start(ctx, "Summarize",
		trace.WithAttributes(attribute.Int("content.chars", len(content))),
	)
	defer span.End()
	summary, err = p.summarizer.Summarize(ctx, content)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return summary, nil
}

func (p *Pipeline) content(ctx context.Context, job *jobs.Job) (string, error) {
	switch job.InputType {
	case jobs.InputText:
		if job.OriginalText == nil || *job.OriginalText == "" {
			return "", errors.New("job has no text input")
		}
		return *job.OriginalText, nil
	case jobs.InputURL:
		if job.OriginalURL == nil || *job.OriginalURL == "" {
			return "", errors.New("job has no url input")
		}
		ctx, span := otel.Tracer("worker/Pipeline").Start(ctx, "Resolve",
			trace.WithAttributes(attribute.String("url", *job.OriginalURL)),
		)
		defer span.End()
		text, err := p.resolver.Resolve(ctx, *job.OriginalURL)
		if err != nil {
			span.RecordError(err)
			return "", err
		}
		return text, nil
	default:
		return "", fmt.Errorf("unknown input type %q", job.InputType)
	}
}
