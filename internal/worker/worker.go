package worker

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
)

// Worker drains the sync job queue: jobs arrive from the API and the
// scheduler, and each one runs a full guarded sync pass.
type Worker struct {
	workerID string
	queue    ports.JobQueue
	registry JobRegistry
}

func NewWorker(queue ports.JobQueue, registry JobRegistry) *Worker {
	return &Worker{
		workerID: uuid.New().String(),
		queue:    queue,
		registry: registry,
	}
}

// Start begins the blocking consume loop. Call this in main.go as a
// goroutine.
func (w *Worker) Start(ctx context.Context) {
	log.Printf("Worker %s started, waiting for sync jobs...", w.workerID)
	for {
		if ctx.Err() != nil {
			log.Printf("Worker %s shutting down...", w.workerID)
			return
		}
		w.ProcessNextJob(ctx)
	}
}

// ProcessNextJob handles exactly ONE job lifecycle
func (w *Worker) ProcessNextJob(ctx context.Context) {
	job, err := w.queue.Pop(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("Worker %s error popping from queue: %v", w.workerID, err)
		}
		return
	}

	handler, err := w.registry.handler(job.Kind)
	if err != nil {
		log.Printf("Worker %s dropping job for %s/%s: %v", w.workerID, job.TenantID, job.EnvironmentID, err)
		return
	}

	result, err := handler(ctx, job.TenantID, job.EnvironmentID)
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		// Another run already holds the guard for this environment; the
		// scheduler will enqueue again next interval.
		log.Printf("Worker %s: %s sync for %s/%s already in progress, skipping",
			w.workerID, job.Kind, job.TenantID, job.EnvironmentID)
	case err != nil:
		log.Printf("Worker %s: %s sync for %s/%s failed: %v",
			w.workerID, job.Kind, job.TenantID, job.EnvironmentID, err)
	default:
		log.Printf("Worker %s: %s sync for %s/%s done (processed=%d skipped=%d errors=%d)",
			w.workerID, job.Kind, job.TenantID, job.EnvironmentID,
			result.Processed, result.Skipped, result.ErrorCount())
	}
}
