// internal/jobs/worker.go
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lexflow/intake-backend/internal/models"
)

// Handler processes one claimed generation job.
type Handler interface {
	Handle(ctx context.Context, job *models.GenerationJob) error
}

type WorkerPool struct {
	repo    *Repo
	handler Handler
	policy  ClaimPolicy

	workers      int
	pollInterval time.Duration
	wg           sync.WaitGroup
}

func NewWorkerPool(repo *Repo, handler Handler, policy ClaimPolicy, workers int, pollInterval time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		repo:         repo,
		handler:      handler,
		policy:       policy,
		workers:      workers,
		pollInterval: pollInterval,
	}
}

// Start launches the workers. They run until ctx is cancelled;
// cancellation is cooperative, so an in-flight job finishes its current
// document and is marked aborted rather than killed mid-write.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until all workers have drained after ctx cancellation.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	log := logrus.WithField("worker", id)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := p.repo.ClaimNextRunnable(ctx, p.policy)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("Failed to claim job")
				}
				continue
			}
			if job == nil {
				continue
			}
			p.process(ctx, log, job)
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, log *logrus.Entry, job *models.GenerationJob) {
	log = log.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"case_id": job.CaseID,
		"attempt": job.Attempts,
	})
	log.Info("Processing generation job")

	// Heartbeat so a stalled worker's jobs get reclaimed, but live ones don't.
	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	go func() {
		t := time.NewTicker(p.policy.StaleRunning / 4)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				if err := p.repo.Heartbeat(hbCtx, job.ID); err != nil {
					log.WithError(err).Warn("Heartbeat failed")
				}
			}
		}
	}()
	defer stopHeartbeat()

	var handleErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				handleErr = fmt.Errorf("job handler panic: %v", r)
				log.WithField("panic", r).Error("Job handler panicked")
			}
		}()
		handleErr = p.handler.Handle(ctx, job)
	}()

	// Status updates must survive shutdown, so they use a fresh context.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case handleErr == nil:
		if err := p.repo.Complete(finishCtx, job.ID); err != nil {
			log.WithError(err).Error("Failed to mark job succeeded")
		} else {
			log.Info("Generation job succeeded")
		}
	case ctx.Err() != nil:
		if err := p.repo.Abort(finishCtx, job.ID, handleErr); err != nil {
			log.WithError(err).Error("Failed to mark job aborted")
		} else {
			log.Warn("Generation job aborted by shutdown")
		}
	default:
		if err := p.repo.Fail(finishCtx, job.ID, handleErr); err != nil {
			log.WithError(err).Error("Failed to mark job failed")
		} else {
			log.WithError(handleErr).Warn("Generation job failed")
		}
	}
}
