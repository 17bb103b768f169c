// internal/jobs/worker_test.go
package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexflow/intake-backend/internal/models"
)

type stubHandler struct {
	mu      sync.Mutex
	handled []models.GenerationJob
	err     error
}

func (h *stubHandler) Handle(ctx context.Context, job *models.GenerationJob) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, *job)
	return h.err
}

func (h *stubHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func waitForJobStatus(t *testing.T, repo *Repo, id interface{}, want models.JobStatus) models.GenerationJob {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var job models.GenerationJob
		if err := repo.db.First(&job, "id = ?", id).Error; err == nil && job.Status == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job never reached status %s", want)
	return models.GenerationJob{}
}

func TestWorkerPoolProcessesJob(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	c := createCase(t, db)

	job, err := repo.Enqueue(context.Background(), nil, c.ID)
	require.NoError(t, err)

	handler := &stubHandler{}
	pool := NewWorkerPool(repo, handler, testPolicy(), 2, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	done := waitForJobStatus(t, repo, job.ID, models.JobStatusSucceeded)
	assert.Equal(t, 1, done.Attempts)
	assert.NotNil(t, done.FinishedAt)
	assert.Equal(t, 1, handler.count())

	cancel()
	pool.Wait()
}

func TestWorkerPoolRecordsHandlerFailure(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	c := createCase(t, db)

	job, err := repo.Enqueue(context.Background(), nil, c.ID)
	require.NoError(t, err)

	handler := &stubHandler{err: errors.New("templating unreachable")}
	pool := NewWorkerPool(repo, handler, testPolicy(), 1, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	failed := waitForJobStatus(t, repo, job.ID, models.JobStatusFailed)
	assert.Contains(t, failed.LastError, "templating unreachable")
	assert.NotNil(t, failed.LastErrorAt)

	cancel()
	pool.Wait()
}

func TestWorkerPoolRecoversFromPanic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepo(db)
	c := createCase(t, db)

	job, err := repo.Enqueue(context.Background(), nil, c.ID)
	require.NoError(t, err)

	pool := NewWorkerPool(repo, panicHandler{}, testPolicy(), 1, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	failed := waitForJobStatus(t, repo, job.ID, models.JobStatusFailed)
	assert.Contains(t, failed.LastError, "panic")

	cancel()
	pool.Wait()
}

type panicHandler struct{}

func (panicHandler) Handle(ctx context.Context, job *models.GenerationJob) error {
	panic("nil template registry")
}
