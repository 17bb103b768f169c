// internal/jobs/repo_test.go
package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lexflow/intake-backend/internal/database"
	"github.com/lexflow/intake-backend/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func createCase(t *testing.T, db *gorm.DB) *models.Case {
	t.Helper()
	c := &models.Case{PropertyAddress: "55 Oak Ave", Status: models.CaseStatusPending}
	require.NoError(t, db.Create(c).Error)
	return c
}

func testPolicy() ClaimPolicy {
	return ClaimPolicy{
		MaxAttempts:  3,
		RetryDelay:   time.Minute,
		StaleRunning: 5 * time.Minute,
	}
}

func TestEnqueueReturnsActiveJob(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	c := createCase(t, db)

	first, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, first.Status)

	// Enqueueing again while the job is active is a no-op.
	second, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.GenerationJob{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnqueueAfterTerminalJob(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	c := createCase(t, db)

	first, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, first.ID))

	second, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.JobStatusQueued, second.Status)
}

func TestClaimNextRunnable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	c := createCase(t, db)

	queued, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)

	job, err := repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queued.ID, job.ID)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)

	// Nothing else runnable.
	job, err = repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimOrderedByAge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	older := createCase(t, db)
	first, err := repo.Enqueue(ctx, nil, older.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(first).Update("created_at", time.Now().Add(-time.Hour)).Error)

	newer := createCase(t, db)
	_, err = repo.Enqueue(ctx, nil, newer.ID)
	require.NoError(t, err)

	job, err := repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, older.ID, job.CaseID)
}

func TestFailedJobReclaimedAfterDelay(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	c := createCase(t, db)

	enqueued, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)

	job, err := repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, repo.Fail(ctx, job.ID, errors.New("templating returned 503")))

	// Inside the retry delay the job is not runnable.
	job, err = repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	assert.Nil(t, job)

	// Age the failure past the delay.
	past := time.Now().Add(-2 * time.Minute)
	require.NoError(t, db.Model(&models.GenerationJob{}).
		Where("id = ?", enqueued.ID).
		Update("last_error_at", past).Error)

	job, err = repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
}

func TestFailedJobExhaustsAttemptBudget(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	c := createCase(t, db)

	enqueued, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)

	policy := testPolicy()
	past := time.Now().Add(-2 * time.Minute)
	for i := 0; i < policy.MaxAttempts; i++ {
		job, err := repo.ClaimNextRunnable(ctx, policy)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d should be claimable", i+1)
		require.NoError(t, repo.Fail(ctx, job.ID, errors.New("boom")))
		require.NoError(t, db.Model(&models.GenerationJob{}).
			Where("id = ?", enqueued.ID).
			Update("last_error_at", past).Error)
	}

	job, err := repo.ClaimNextRunnable(ctx, policy)
	require.NoError(t, err)
	assert.Nil(t, job, "budget exhausted, job must stay failed")
}

func TestStaleRunningJobReclaimed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	c := createCase(t, db)

	enqueued, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)

	job, err := repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, job)

	// A fresh heartbeat keeps the job off the runnable set.
	reclaimed, err := repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	assert.Nil(t, reclaimed)

	// A heartbeat older than the stale window means the worker died.
	stale := time.Now().Add(-10 * time.Minute)
	require.NoError(t, db.Model(&models.GenerationJob{}).
		Where("id = ?", enqueued.ID).
		Update("heartbeat_at", stale).Error)

	reclaimed, err = repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, enqueued.ID, reclaimed.ID)
	assert.Equal(t, 2, reclaimed.Attempts)
}

func TestHeartbeatOnlyTouchesRunning(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	c := createCase(t, db)

	job, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Heartbeat(ctx, job.ID))

	var reloaded models.GenerationJob
	require.NoError(t, db.First(&reloaded, "id = ?", job.ID).Error)
	assert.Nil(t, reloaded.HeartbeatAt)
}

func TestCancelQueuedJob(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	c := createCase(t, db)

	_, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Cancel(ctx, c.ID))

	latest, err := repo.LatestForCase(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.JobStatusCancelled, latest.Status)
	assert.NotNil(t, latest.FinishedAt)
}

func TestCancelClaimedJobRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	c := createCase(t, db)

	_, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)

	job, err := repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, job)

	err = repo.Cancel(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestAbortIsTerminal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	c := createCase(t, db)

	_, err := repo.Enqueue(ctx, nil, c.ID)
	require.NoError(t, err)

	job, err := repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, repo.Abort(ctx, job.ID, context.Canceled))

	// Aborted jobs are never reclaimed; the case needs an explicit retry.
	reclaimed, err := repo.ClaimNextRunnable(ctx, testPolicy())
	require.NoError(t, err)
	assert.Nil(t, reclaimed)

	latest, err := repo.LatestForCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAborted, latest.Status)
	assert.False(t, latest.Active())
}

func TestLatestForCaseMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)

	latest, err := repo.LatestForCase(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, latest)
}
