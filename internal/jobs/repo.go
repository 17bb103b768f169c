// internal/jobs/repo.go

// Package jobs is the durable generation queue. Jobs live in Postgres
// next to the cases they belong to, so enqueueing can share the intake
// transaction and claiming uses row locks instead of a second broker.
// Delivery is at-least-once; handlers must be idempotent.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexflow/intake-backend/internal/models"
)

// ErrNotCancellable is returned when a cancel request arrives after the
// job was already claimed; cancellation is then cooperative only.
var ErrNotCancellable = errors.New("job is no longer queued")

type ClaimPolicy struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Enqueue creates a queued job for the case, riding the caller's
// transaction when one is given. At most one queued/running job exists
// per case; enqueueing while one is active returns the active job, so
// retrying an already-queued case is a no-op.
func (r *Repo) Enqueue(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) (*models.GenerationJob, error) {
	db := tx
	if db == nil {
		db = r.db
	}

	var existing models.GenerationJob
	err := db.WithContext(ctx).
		Where("case_id = ? AND status IN ?", caseID, []models.JobStatus{models.JobStatusQueued, models.JobStatusRunning}).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}

	job := &models.GenerationJob{
		CaseID: caseID,
		Status: models.JobStatusQueued,
	}
	if err := db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

// ClaimNextRunnable picks one runnable job and marks it running. The
// row is taken with FOR UPDATE SKIP LOCKED so concurrent workers never
// claim the same job and never wait on each other. Runnable means
// queued, or failed within the attempt budget once the retry delay has
// passed, or running with a heartbeat stale enough that its worker is
// presumed dead.
func (r *Repo) ClaimNextRunnable(ctx context.Context, policy ClaimPolicy) (*models.GenerationJob, error) {
	now := time.Now()
	retryCutoff := now.Add(-policy.RetryDelay)
	staleCutoff := now.Add(-policy.StaleRunning)

	var claimed *models.GenerationJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.GenerationJob
		q := tx.Where(`
			(
				status = ?
				OR (
					status = ?
					AND attempts < ?
					AND (last_error_at IS NULL OR last_error_at < ?)
				)
				OR (
					status = ?
					AND heartbeat_at IS NOT NULL
					AND heartbeat_at < ?
				)
			)
		`, models.JobStatusQueued,
			models.JobStatusFailed, policy.MaxAttempts, retryCutoff,
			models.JobStatusRunning, staleCutoff).
			Order("created_at ASC")

		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		uErr := tx.Model(&models.GenerationJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       models.JobStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}

		job.Status = models.JobStatusRunning
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Heartbeat keeps a running job from being reclaimed as stale.
func (r *Repo) Heartbeat(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

// Complete marks the job finished.
func (r *Repo) Complete(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      models.JobStatusSucceeded,
			"finished_at": now,
			"updated_at":  now,
		}).Error
}

// Fail records an attempt failure. The job stays eligible for reclaim
// until the attempt budget runs out.
func (r *Repo) Fail(ctx context.Context, id uuid.UUID, cause error) error {
	now := time.Now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.JobStatusFailed,
			"last_error":    msg,
			"last_error_at": now,
			"updated_at":    now,
		}).Error
}

// Abort marks a job stopped by cooperative cancellation mid-run. It is
// terminal; the case must be retried explicitly.
func (r *Repo) Abort(ctx context.Context, id uuid.UUID, cause error) error {
	now := time.Now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.JobStatusAborted,
			"last_error":    msg,
			"last_error_at": now,
			"finished_at":   now,
			"updated_at":    now,
		}).Error
}

// Cancel withdraws a job that has not been claimed yet. Once a worker
// holds it, cancellation happens cooperatively through the context.
func (r *Repo) Cancel(ctx context.Context, caseID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("case_id = ? AND status = ?", caseID, models.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":      models.JobStatusCancelled,
			"finished_at": time.Now(),
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotCancellable
	}
	return nil
}

// LatestForCase returns the most recent job for a case, or nil.
func (r *Repo) LatestForCase(ctx context.Context, caseID uuid.UUID) (*models.GenerationJob, error) {
	var job models.GenerationJob
	err := r.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
