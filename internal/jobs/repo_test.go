package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "jobs.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// steppingClock advances one second per call so every transition gets a
// strictly later timestamp.
func steppingClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r := NewRepo(openTestDB(t))
	r.now = steppingClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return r
}

func seedJob(t *testing.T, r *Repo, text string) *Job {
	t.Helper()
	j := &Job{
		ID:           uuid.NewString(),
		InputType:    InputText,
		OriginalText: &text,
		InputHash:    InputHash(text),
		Status:       StatusQueued,
	}
	require.NoError(t, r.CreateJob(context.Background(), j))
	return j
}

func TestRepo_CreateAndGet(t *testing.T) {
	r := newTestRepo(t)
	j := seedJob(t, r, "some text")

	got, err := r.GetJobByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.Equal(t, "some text", got.Input())
	assert.Nil(t, got.IsCacheHit)
	assert.Nil(t, got.Summary)
	assert.Equal(t, got.CreatedAt.Unix(), got.UpdatedAt.Unix())
}

func TestRepo_GetMissing(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.GetJobByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRepo_ProcessingThenCompleted(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	j := seedJob(t, r, "x")

	require.NoError(t, r.MarkProcessing(ctx, j.ID))
	mid, err := r.GetJobByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, mid.Status)
	assert.Nil(t, mid.IsCacheHit)
	assert.True(t, mid.UpdatedAt.After(j.CreatedAt))

	require.NoError(t, r.MarkCompleted(ctx, j.ID, "short summary", false))
	done, err := r.GetJobByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Summary)
	assert.Equal(t, "short summary", *done.Summary)
	require.NotNil(t, done.IsCacheHit)
	assert.False(t, *done.IsCacheHit)
	assert.True(t, done.UpdatedAt.After(mid.UpdatedAt))
}

func TestRepo_CacheHitShortcut(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	j := seedJob(t, r, "x")

	require.NoError(t, r.MarkCompleted(ctx, j.ID, "cached", true))
	got, err := r.GetJobByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.IsCacheHit)
	assert.True(t, *got.IsCacheHit)
}

func TestRepo_NoRegression(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	j := seedJob(t, r, "x")

	require.NoError(t, r.MarkFailed(ctx, j.ID, "boom"))

	err := r.MarkProcessing(ctx, j.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = r.MarkCompleted(ctx, j.ID, "late", false)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := r.GetJobByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)
	assert.Nil(t, got.Summary)
}

func TestRepo_ProcessingTwiceRejected(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	j := seedJob(t, r, "x")

	require.NoError(t, r.MarkProcessing(ctx, j.ID))
	assert.ErrorIs(t, r.MarkProcessing(ctx, j.ID), ErrInvalidTransition)
}

func TestRepo_TransitionMissingJob(t *testing.T) {
	r := newTestRepo(t)
	err := r.MarkProcessing(context.Background(), uuid.NewString())
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestRepo_ListStalePendingAndTouch(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	old := seedJob(t, r, "old")
	started := seedJob(t, r, "started")
	require.NoError(t, r.MarkProcessing(ctx, started.ID))
	finished := seedJob(t, r, "finished")
	require.NoError(t, r.MarkFailed(ctx, finished.ID, "x"))
	fresh := seedJob(t, r, "fresh")

	stale, err := r.ListStalePending(ctx, fresh.UpdatedAt, 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, old.ID, stale[0].ID)
	assert.Equal(t, started.ID, stale[1].ID)

	require.NoError(t, r.TouchPending(ctx, old.ID))
	require.NoError(t, r.TouchPending(ctx, started.ID))
	stale, err = r.ListStalePending(ctx, fresh.UpdatedAt, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	got, err := r.GetJobByID(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
}

func TestRepo_Ping(t *testing.T) {
	r := newTestRepo(t)
	assert.NoError(t, r.Ping(context.Background()))
}
