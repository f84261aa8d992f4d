package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Result is a job plus the cache introspection the result endpoint reports.
type Result struct {
	Job *Job

	// Cached is false when the entry expired or the cache was unreachable;
	// CacheTTL is meaningful only when Cached is true.
	Cached   bool
	CacheTTL time.Duration
}

// ValidJobID reports whether id has the canonical 8-4-4-4-12 UUID shape.
func ValidJobID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// GetStatus loads a job for the status endpoint.
func (s *Service) GetStatus(ctx context.Context, id string) (*Job, error) {
	if !ValidJobID(id) {
		return nil, ErrInvalidJobID
	}
	return s.repo.GetJobByID(ctx, id)
}

// GetResult loads a job and, once completed, looks up the remaining TTL of
// the cache entry for its fingerprint.
func (s *Service) GetResult(ctx context.Context, id string) (*Result, error) {
	j, err := s.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &Result{Job: j}
	if j.Status == StatusCompleted && s.cache != nil {
		res.CacheTTL, res.Cached = s.cache.TTL(ctx, j.InputHash)
	}
	return res, nil
}
