package service

import (
	"context"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
	"canonsync/internal/identity"
	"canonsync/internal/metrics"
	"canonsync/internal/sync"
)

type SyncService interface {
	SyncRepository(ctx context.Context, tenantID uuid.UUID, environmentID string) (*domain.SyncResult, error)
	SyncEnvironment(ctx context.Context, tenantID uuid.UUID, environmentID string) (*domain.SyncResult, error)
	GetMappingStatus(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID) (domain.MappingStatus, error)
	SetMappingStatus(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID, status domain.MappingStatus) error
	DeleteWorkflow(ctx context.Context, canonicalID uuid.UUID) error
	Enqueue(ctx context.Context, job domain.SyncJob) error
}

// The Implementation
type syncService struct {
	repoSyncer    *sync.RepositorySyncer
	envSyncer     *sync.EnvironmentSyncer
	canonicals    ports.CanonicalRepository
	mappings      ports.MappingRepository
	guard         ports.SyncGuard
	queue         ports.JobQueue
	events        ports.EventBus
	fingerprinter *identity.Fingerprinter

	lockTTL time.Duration

	rebuildOnce stdsync.Once
	rebuildErr  error
}

// Constructor
func NewSyncService(
	repoSyncer *sync.RepositorySyncer,
	envSyncer *sync.EnvironmentSyncer,
	canonicals ports.CanonicalRepository,
	mappings ports.MappingRepository,
	guard ports.SyncGuard,
	queue ports.JobQueue,
	events ports.EventBus,
	fingerprinter *identity.Fingerprinter,
	lockTTL time.Duration,
) SyncService {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &syncService{
		repoSyncer:    repoSyncer,
		envSyncer:     envSyncer,
		canonicals:    canonicals,
		mappings:      mappings,
		guard:         guard,
		queue:         queue,
		events:        events,
		fingerprinter: fingerprinter,
		lockTTL:       lockTTL,
	}
}

func (s *syncService) SyncRepository(ctx context.Context, tenantID uuid.UUID, environmentID string) (*domain.SyncResult, error) {
	return s.runGuarded(ctx, tenantID, environmentID, domain.SyncKindRepository, s.repoSyncer.Run)
}

func (s *syncService) SyncEnvironment(ctx context.Context, tenantID uuid.UUID, environmentID string) (*domain.SyncResult, error) {
	return s.runGuarded(ctx, tenantID, environmentID, domain.SyncKindEnvironment, s.envSyncer.Run)
}

// runGuarded is the shared wrapper for both orchestrators: collision
// registry rebuilt once per process lifetime, per-(tenant, environment)
// guard held for the whole pass, metrics and completion event on the way
// out.
func (s *syncService) runGuarded(
	ctx context.Context,
	tenantID uuid.UUID,
	environmentID string,
	kind domain.SyncKind,
	run func(ctx context.Context, tenantID uuid.UUID, environmentID string) (*domain.SyncResult, error),
) (*domain.SyncResult, error) {
	if err := s.ensureRegistry(ctx); err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(ctx, guardKey(tenantID, environmentID), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result, err := run(ctx, tenantID, environmentID)
	metrics.ObserveSync(string(kind), result, err, time.Since(start))
	if err != nil {
		return result, err
	}

	event := domain.SyncCompletedEvent{
		TenantID:      tenantID,
		EnvironmentID: environmentID,
		Kind:          kind,
		Processed:     result.Processed,
		Skipped:       result.Skipped,
		Errored:       result.ErrorCount(),
	}
	if err := s.events.PublishSyncCompleted(ctx, event); err != nil {
		// Consumers poll the mapping tables anyway; a lost event is not
		// worth failing the sync over.
		log.Printf("SyncService: failed to publish completion event: %v", err)
	}
	return result, nil
}

// ensureRegistry rebuilds the collision registry from persisted digests
// before the first sync of this process lifetime.
func (s *syncService) ensureRegistry(ctx context.Context) error {
	s.rebuildOnce.Do(func() {
		s.rebuildErr = s.fingerprinter.Rebuild(ctx)
	})
	return s.rebuildErr
}

func (s *syncService) GetMappingStatus(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID) (domain.MappingStatus, error) {
	mapping, err := s.mappings.GetByCanonicalID(ctx, tenantID, environmentID, canonicalID)
	if err != nil {
		return "", err
	}
	return mapping.Status, nil
}

// SetMappingStatus applies administrative overrides. IGNORED and DELETED
// may be entered from any state; UNTRACKED backs out of IGNORED and lets
// the next sync re-resolve. There is no exit from DELETED, enforced at
// the storage layer.
func (s *syncService) SetMappingStatus(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID, status domain.MappingStatus) error {
	switch status {
	case domain.StatusIgnored, domain.StatusDeleted, domain.StatusUntracked:
	default:
		return fmt.Errorf("status %s cannot be set administratively", status)
	}
	return s.mappings.SetStatus(ctx, tenantID, environmentID, canonicalID, status)
}

// DeleteWorkflow retires a canonical identity. The row is soft-deleted:
// identity is permanent, so the id stays resolvable for audit and for
// mappings that still reference it.
func (s *syncService) DeleteWorkflow(ctx context.Context, canonicalID uuid.UUID) error {
	if _, err := s.canonicals.GetByID(ctx, canonicalID); err != nil {
		return err
	}
	return s.canonicals.SoftDelete(ctx, canonicalID)
}

func (s *syncService) Enqueue(ctx context.Context, job domain.SyncJob) error {
	return s.queue.Push(ctx, job)
}

func guardKey(tenantID uuid.UUID, environmentID string) string {
	return fmt.Sprintf("sync:%s:%s", tenantID, environmentID)
}
