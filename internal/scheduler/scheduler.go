package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
)

// Target is one (tenant, environment) pair the scheduler keeps in sync.
type Target struct {
	TenantID      uuid.UUID
	EnvironmentID string
}

// Scheduler enqueues repository and environment sync jobs for every
// configured target on a fixed interval. The worker and the sync guard
// take care of everything else, so an interval shorter than a sync pass
// is harmless.
type Scheduler struct {
	queue    ports.JobQueue
	targets  []Target
	interval time.Duration
}

func NewScheduler(queue ports.JobQueue, targets []Target, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		queue:    queue,
		targets:  targets,
		interval: interval,
	}
}

// Start begins the ticking loop. Call this in main.go as a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	if len(s.targets) == 0 {
		log.Println("Scheduler: no targets configured, not starting")
		return
	}
	log.Printf("Scheduler started, syncing %d targets every %s", len(s.targets), s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler shutting down...")
			return
		case <-ticker.C:
			s.enqueueAll(ctx)
		}
	}
}

func (s *Scheduler) enqueueAll(ctx context.Context) {
	for _, target := range s.targets {
		for _, kind := range []domain.SyncKind{domain.SyncKindRepository, domain.SyncKindEnvironment} {
			job := domain.SyncJob{
				TenantID:      target.TenantID,
				EnvironmentID: target.EnvironmentID,
				Kind:          kind,
			}
			if err := s.queue.Push(ctx, job); err != nil {
				log.Printf("Scheduler: failed to enqueue %s sync for %s/%s: %v",
					kind, target.TenantID, target.EnvironmentID, err)
			}
		}
	}
}
