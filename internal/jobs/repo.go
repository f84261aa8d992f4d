package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repo is the durable job table. The submission path only inserts; every
// later mutation goes through a status-guarded transition.
type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates or updates the jobs table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Job{})
}

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	now := r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *Repo) MarkProcessing(ctx context.Context, id string) error {
	return r.transition(ctx, id, StatusProcessing, nil)
}

func (r *Repo) MarkCompleted(ctx context.Context, id string, summary string, cacheHit bool) error {
	return r.transition(ctx, id, StatusCompleted, map[string]any{
		"summary":       summary,
		"is_cache_hit":  cacheHit,
		"error_message": nil,
	})
}

func (r *Repo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.transition(ctx, id, StatusFailed, map[string]any{
		"error_message": errMsg,
		"summary":       nil,
		"is_cache_hit":  nil,
	})
}

// transition moves a job to `to` only when its current status is a legal
// predecessor, so a status can never regress even under redelivery.
func (r *Repo) transition(ctx context.Context, id string, to Status, fields map[string]any) error {
	updates := map[string]any{
		"status":     to,
		"updated_at": r.now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", id, predecessors(to)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	cur, err := r.GetJobByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
}

// ListStalePending returns queued or processing jobs untouched since before
// cutoff, oldest first. These are jobs whose queue message was lost.
func (r *Repo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Job
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []Status{StatusQueued, StatusProcessing}, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// TouchPending bumps updated_at of a still-pending job after it was
// re-enqueued, so the sweeper does not pick it up again on the next pass.
func (r *Repo) TouchPending(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", id, []Status{StatusQueued, StatusProcessing}).
		Update("updated_at", r.now()).Error
}

// Ping checks that the underlying database answers.
func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
