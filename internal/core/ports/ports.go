package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"canonsync/internal/domain"
)

// CanonicalRepository stores workflow identity anchors.
type CanonicalRepository interface {
	Create(ctx context.Context, workflow *domain.CanonicalWorkflow) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.CanonicalWorkflow, error)

	// SoftDelete marks the workflow deleted; identity rows are never
	// removed.
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// GitStateRepository stores the per-environment version-controlled
// representation of each canonical workflow.
type GitStateRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID) (*domain.GitState, error)

	// Upsert writes the row for (tenant, environment, canonical id),
	// atomically via the composite unique index.
	Upsert(ctx context.Context, state *domain.GitState) error

	// FindCanonicalIDsByHash returns every canonical id whose stored git
	// hash equals contentHash in this (tenant, environment). Used by the
	// auto-linker, which requires exactly one match.
	FindCanonicalIDsByHash(ctx context.Context, tenantID uuid.UUID, environmentID, contentHash string) ([]uuid.UUID, error)
}

// MappingRepository stores the live runtime representation of each
// workflow per environment.
type MappingRepository interface {
	GetByNativeID(ctx context.Context, tenantID uuid.UUID, environmentID, nativeID string) (*domain.EnvironmentMapping, error)

	GetByCanonicalID(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID) (*domain.EnvironmentMapping, error)

	// FindConflicting returns a non-MISSING mapping holding canonicalID
	// under a different native id, or ErrNotFound.
	FindConflicting(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID, excludeNativeID string) (*domain.EnvironmentMapping, error)

	// Upsert writes the row for (tenant, environment, native id),
	// atomically via the composite unique index.
	Upsert(ctx context.Context, mapping *domain.EnvironmentMapping) error

	// MarkMissingExcept transitions every mapping of this (tenant,
	// environment) whose native id is not in seenNativeIDs to MISSING,
	// preserving native and canonical ids for reappearance handling.
	// Returns the number of rows transitioned.
	MarkMissingExcept(ctx context.Context, tenantID uuid.UUID, environmentID string, seenNativeIDs []string) (int64, error)

	// SetStatus applies an administrative override (IGNORED, DELETED,
	// or back out of IGNORED).
	SetStatus(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID, status domain.MappingStatus) error
}

// WorkflowFileRepository stores the explicit path -> canonical id mapping
// maintained by repository sync.
type WorkflowFileRepository interface {
	GetByPath(ctx context.Context, tenantID uuid.UUID, environmentID, path string) (*domain.WorkflowFile, error)

	Upsert(ctx context.Context, file *domain.WorkflowFile) error
}

// DigestRepository persists first-seen payloads per content hash for the
// collision registry.
type DigestRepository interface {
	Save(ctx context.Context, hash string, payload []byte) error

	All(ctx context.Context) (map[string][]byte, error)
}

// RepositoryFile is one workflow definition discovered in the tracked
// repository path. SidecarErr carries a per-item companion-file failure
// without failing the listing.
type RepositoryFile struct {
	Path       string
	Content    []byte
	CommitRef  string
	Sidecar    []byte
	SidecarErr error
}

// RepositoryReader lists workflow definition files for an environment.
// The transport (local checkout, git host API) is external to this core.
type RepositoryReader interface {
	List(ctx context.Context, tenantID uuid.UUID, environmentID string) ([]RepositoryFile, error)
}

// RuntimeWorkflow is one live workflow instance as the runtime reports it.
type RuntimeWorkflow struct {
	NativeID   string
	Name       string
	Definition []byte
	UpdatedAt  time.Time
}

// RuntimeReader lists live workflow instances for an environment.
type RuntimeReader interface {
	List(ctx context.Context, tenantID uuid.UUID, environmentID string) ([]RuntimeWorkflow, error)
}

// SyncGuard serializes sync runs per (tenant, environment). Acquire
// returns ErrSyncInProgress when the guard is already held; the returned
// release func is always safe to call.
type SyncGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// JobQueue carries queued sync requests from the API and scheduler to the
// sync worker.
type JobQueue interface {
	Push(ctx context.Context, job domain.SyncJob) error

	// Pop blocks until a job is available or ctx is done.
	Pop(ctx context.Context) (domain.SyncJob, error)
}

// EventBus publishes sync lifecycle events for external consumers.
type EventBus interface {
	PublishSyncCompleted(ctx context.Context, event domain.SyncCompletedEvent) error
}
