package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/summarizer/internal/jobs"
)

type SweepStore interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]jobs.Job, error)
	TouchPending(ctx context.Context, id string) error
}

// Sweeper re-enqueues jobs that stayed pending too long, typically because
// the enqueue at submission failed or a message was lost.
type Sweeper struct {
	store      SweepStore
	queue      jobs.Enqueuer
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	log        zerolog.Logger
	now        func() time.Time
}

func NewSweeper(store SweepStore, queue jobs.Enqueuer, interval, staleAfter time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Sweeper{
		store:      store,
		queue:      queue,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      100,
		log:        log.With().Str("component", "sweeper").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Info().Dur("interval", s.interval).Dur("stale_after", s.staleAfter).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// SweepOnce re-enqueues one batch of stale jobs and returns how many were
// requeued. It stops at the first publish error; the rest wait for the next pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	stale, err := s.store.ListStalePending(ctx, s.now().Add(-s.staleAfter), s.batch)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, j := range stale {
		if err := s.queue.PublishJob(ctx, j.ID); err != nil {
			return n, err
		}
		if err := s.store.TouchPending(ctx, j.ID); err != nil {
			s.log.Warn().Err(err).Str("job_id", j.ID).Msg("touch after requeue failed")
		}
		n++
		jobsRequeued.Inc()
		s.log.Info().Str("job_id", j.ID).Str("status", string(j.Status)).Msg("stale job re-enqueued")
	}
	return n, nil
}
