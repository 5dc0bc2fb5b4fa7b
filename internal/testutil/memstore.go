// Package testutil provides in-memory implementations of the core ports
// for tests. They mirror the storage-layer semantics the gorm
// implementations provide, including composite-key upserts and the
// MISSING sweep.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
)

type MemCanonicalRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.CanonicalWorkflow

	Creates int
}

func NewMemCanonicalRepo() *MemCanonicalRepo {
	return &MemCanonicalRepo{items: make(map[uuid.UUID]*domain.CanonicalWorkflow)}
}

func (r *MemCanonicalRepo) Create(ctx context.Context, workflow *domain.CanonicalWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Creates++
	cp := *workflow
	r.items[workflow.ID] = &cp
	return nil
}

func (r *MemCanonicalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.CanonicalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (r *MemCanonicalRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wf, ok := r.items[id]; ok && wf.DeletedAt == nil {
		now := time.Now()
		wf.DeletedAt = &now
	}
	return nil
}

type gitStateKey struct {
	tenant    uuid.UUID
	env       string
	canonical uuid.UUID
}

type MemGitStateRepo struct {
	mu    sync.Mutex
	items map[gitStateKey]*domain.GitState

	Upserts int
}

func NewMemGitStateRepo() *MemGitStateRepo {
	return &MemGitStateRepo{items: make(map[gitStateKey]*domain.GitState)}
}

func (r *MemGitStateRepo) Get(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID) (*domain.GitState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.items[gitStateKey{tenantID, environmentID, canonicalID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *state
	return &cp, nil
}

func (r *MemGitStateRepo) Upsert(ctx context.Context, state *domain.GitState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Upserts++
	cp := *state
	r.items[gitStateKey{state.TenantID, state.EnvironmentID, state.CanonicalID}] = &cp
	return nil
}

func (r *MemGitStateRepo) FindCanonicalIDsByHash(ctx context.Context, tenantID uuid.UUID, environmentID, contentHash string) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for key, state := range r.items {
		if key.tenant == tenantID && key.env == environmentID && state.ContentHash == contentHash {
			ids = append(ids, state.CanonicalID)
		}
	}
	return ids, nil
}

type mappingKey struct {
	tenant uuid.UUID
	env    string
	native string
}

type MemMappingRepo struct {
	mu    sync.Mutex
	items map[mappingKey]*domain.EnvironmentMapping

	Upserts int
}

func NewMemMappingRepo() *MemMappingRepo {
	return &MemMappingRepo{items: make(map[mappingKey]*domain.EnvironmentMapping)}
}

func (r *MemMappingRepo) GetByNativeID(ctx context.Context, tenantID uuid.UUID, environmentID, nativeID string) (*domain.EnvironmentMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mapping, ok := r.items[mappingKey{tenantID, environmentID, nativeID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *mapping
	return &cp, nil
}

func (r *MemMappingRepo) GetByCanonicalID(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID) (*domain.EnvironmentMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, mapping := range r.items {
		if key.tenant == tenantID && key.env == environmentID &&
			mapping.CanonicalID != nil && *mapping.CanonicalID == canonicalID {
			cp := *mapping
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemMappingRepo) FindConflicting(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID, excludeNativeID string) (*domain.EnvironmentMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, mapping := range r.items {
		if key.tenant == tenantID && key.env == environmentID &&
			mapping.CanonicalID != nil && *mapping.CanonicalID == canonicalID &&
			mapping.NativeID != excludeNativeID && mapping.Status != domain.StatusMissing {
			cp := *mapping
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemMappingRepo) Upsert(ctx context.Context, mapping *domain.EnvironmentMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Upserts++
	cp := *mapping
	r.items[mappingKey{mapping.TenantID, mapping.EnvironmentID, mapping.NativeID}] = &cp
	return nil
}

func (r *MemMappingRepo) MarkMissingExcept(ctx context.Context, tenantID uuid.UUID, environmentID string, seenNativeIDs []string) (int64, error) {
	seen := make(map[string]bool, len(seenNativeIDs))
	for _, id := range seenNativeIDs {
		seen[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var swept int64
	for key, mapping := range r.items {
		if key.tenant != tenantID || key.env != environmentID || seen[mapping.NativeID] {
			continue
		}
		switch mapping.Status {
		case domain.StatusMissing, domain.StatusIgnored, domain.StatusDeleted:
			continue
		}
		mapping.Status = domain.StatusMissing
		swept++
	}
	return swept, nil
}

func (r *MemMappingRepo) SetStatus(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID, status domain.MappingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, mapping := range r.items {
		if key.tenant != tenantID || key.env != environmentID ||
			mapping.CanonicalID == nil || *mapping.CanonicalID != canonicalID {
			continue
		}
		if mapping.Status == domain.StatusDeleted && status != domain.StatusDeleted {
			continue
		}
		mapping.Status = status
		return nil
	}
	return domain.ErrNotFound
}

type fileKey struct {
	tenant uuid.UUID
	env    string
	path   string
}

type MemWorkflowFileRepo struct {
	mu    sync.Mutex
	items map[fileKey]*domain.WorkflowFile

	Upserts int
}

func NewMemWorkflowFileRepo() *MemWorkflowFileRepo {
	return &MemWorkflowFileRepo{items: make(map[fileKey]*domain.WorkflowFile)}
}

func (r *MemWorkflowFileRepo) GetByPath(ctx context.Context, tenantID uuid.UUID, environmentID, path string) (*domain.WorkflowFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.items[fileKey{tenantID, environmentID, path}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *file
	return &cp, nil
}

func (r *MemWorkflowFileRepo) Upsert(ctx context.Context, file *domain.WorkflowFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Upserts++
	cp := *file
	r.items[fileKey{file.TenantID, file.EnvironmentID, file.Path}] = &cp
	return nil
}

type MemDigestRepo struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewMemDigestRepo() *MemDigestRepo {
	return &MemDigestRepo{items: make(map[string][]byte)}
}

func (r *MemDigestRepo) Save(ctx context.Context, hash string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[hash]; !ok {
		r.items[hash] = payload
	}
	return nil
}

func (r *MemDigestRepo) All(ctx context.Context) (map[string][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]byte, len(r.items))
	for k, v := range r.items {
		out[k] = v
	}
	return out, nil
}

// StaticRepositoryReader serves a fixed file listing.
type StaticRepositoryReader struct {
	Files []ports.RepositoryFile
	Err   error
}

func (r *StaticRepositoryReader) List(ctx context.Context, tenantID uuid.UUID, environmentID string) ([]ports.RepositoryFile, error) {
	return r.Files, r.Err
}

// StaticRuntimeReader serves a fixed workflow listing.
type StaticRuntimeReader struct {
	Workflows []ports.RuntimeWorkflow
	Err       error
}

func (r *StaticRuntimeReader) List(ctx context.Context, tenantID uuid.UUID, environmentID string) ([]ports.RuntimeWorkflow, error) {
	return r.Workflows, r.Err
}

// MemSyncGuard serializes by key in process, mirroring the redis lock.
type MemSyncGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemSyncGuard() *MemSyncGuard {
	return &MemSyncGuard{held: make(map[string]bool)}
}

func (g *MemSyncGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return nil, domain.ErrSyncInProgress
	}
	g.held[key] = true
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.held, key)
	}, nil
}

// MemJobQueue is a channel-backed JobQueue.
type MemJobQueue struct {
	jobs chan domain.SyncJob
}

func NewMemJobQueue(size int) *MemJobQueue {
	return &MemJobQueue{jobs: make(chan domain.SyncJob, size)}
}

func (q *MemJobQueue) Push(ctx context.Context, job domain.SyncJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemJobQueue) Pop(ctx context.Context) (domain.SyncJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return domain.SyncJob{}, ctx.Err()
	}
}

// RecordingEventBus collects published events.
type RecordingEventBus struct {
	mu     sync.Mutex
	Events []domain.SyncCompletedEvent
}

func (b *RecordingEventBus) PublishSyncCompleted(ctx context.Context, event domain.SyncCompletedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, event)
	return nil
}
