package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
	"canonsync/internal/identity"
)

// sidecarDocument is the optional companion file committed next to a
// workflow definition (<file>.mapping.json). It pre-populates environment
// mappings during migration and bootstrapping.
type sidecarDocument struct {
	CanonicalWorkflowID string                        `json:"canonical_workflow_id"`
	Environments        map[string]sidecarEnvironment `json:"environments"`
}

type sidecarEnvironment struct {
	NativeID    string    `json:"native_id"`
	ContentHash string    `json:"content_hash"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// RepositorySyncer ingests the version-controlled side: it walks every
// definition file under the tracked path, establishes canonical identity,
// and upserts git state.
type RepositorySyncer struct {
	reader        ports.RepositoryReader
	canonicals    ports.CanonicalRepository
	gitStates     ports.GitStateRepository
	workflowFiles ports.WorkflowFileRepository
	mappings      ports.MappingRepository
	fingerprinter *identity.Fingerprinter
	opts          Options
}

func NewRepositorySyncer(
	reader ports.RepositoryReader,
	canonicals ports.CanonicalRepository,
	gitStates ports.GitStateRepository,
	workflowFiles ports.WorkflowFileRepository,
	mappings ports.MappingRepository,
	fingerprinter *identity.Fingerprinter,
	opts Options,
) *RepositorySyncer {
	return &RepositorySyncer{
		reader:        reader,
		canonicals:    canonicals,
		gitStates:     gitStates,
		workflowFiles: workflowFiles,
		mappings:      mappings,
		fingerprinter: fingerprinter,
		opts:          opts.withDefaults(),
	}
}

// Run processes every discovered file independently: a single item's
// failure lands in the result list and the batch continues. Only a
// storage write failure aborts the run.
func (s *RepositorySyncer) Run(ctx context.Context, tenantID uuid.UUID, environmentID string) (*domain.SyncResult, error) {
	var files []ports.RepositoryFile
	err := withRetry(ctx, s.opts, "repository listing", func(ctx context.Context) error {
		var listErr error
		files, listErr = s.reader.List(ctx, tenantID, environmentID)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("repository sync: list %s: %w", environmentID, err)
	}

	result := &domain.SyncResult{}
	for _, batch := range batches(files, s.opts.BatchSize) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Concurrency)
		for _, file := range batch {
			g.Go(func() error {
				return s.processFile(gctx, tenantID, environmentID, file, result)
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *RepositorySyncer) processFile(ctx context.Context, tenantID uuid.UUID, environmentID string, file ports.RepositoryFile, result *domain.SyncResult) error {
	canonicalID, err := s.resolveIdentity(ctx, tenantID, environmentID, file.Path)
	if err != nil {
		result.AddFailed(file.Path, err)
		return nil
	}

	normalized, err := identity.Normalize(file.Content)
	if err != nil {
		result.AddFailed(file.Path, err)
		return nil
	}

	// The canonical id is always available on the repository side, so a
	// digest collision here is always resolvable.
	hash, warning, err := s.fingerprinter.Fingerprint(ctx, normalized, &canonicalID)
	if err != nil {
		result.AddFailed(file.Path, err)
		return nil
	}
	if warning != nil {
		result.AddCollision(*warning)
	}

	state, err := s.gitStates.Get(ctx, tenantID, environmentID, canonicalID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		result.AddFailed(file.Path, err)
		return nil
	}
	if state != nil && state.ContentHash == hash {
		// Unchanged since the last pass: no writes at all. A sidecar
		// read failure is still worth surfacing.
		if file.SidecarErr != nil {
			result.AddError(file.Path, fmt.Errorf("sidecar: %w", file.SidecarErr))
		}
		result.AddSkipped()
		return nil
	}

	if err := s.ensureCanonical(ctx, tenantID, canonicalID, file.Content, result); err != nil {
		return fmt.Errorf("%w: ensure canonical %s: %v", domain.ErrStorageUnavailable, canonicalID, err)
	}

	if err := s.workflowFiles.Upsert(ctx, domain.NewWorkflowFile(tenantID, environmentID, file.Path, canonicalID)); err != nil {
		return fmt.Errorf("%w: workflow file %s: %v", domain.ErrStorageUnavailable, file.Path, err)
	}

	if state == nil {
		state = domain.NewGitState(tenantID, environmentID, canonicalID)
	}
	state.Path = file.Path
	state.CommitRef = file.CommitRef
	state.ContentHash = hash
	state.LastSyncAt = time.Now()
	if err := s.gitStates.Upsert(ctx, state); err != nil {
		return fmt.Errorf("%w: git state for %s: %v", domain.ErrStorageUnavailable, canonicalID, err)
	}

	if file.SidecarErr != nil {
		result.AddError(file.Path, fmt.Errorf("sidecar: %w", file.SidecarErr))
	} else if len(file.Sidecar) > 0 {
		s.ingestSidecar(ctx, tenantID, canonicalID, file, result)
	}

	result.AddProcessed()
	return nil
}

// resolveIdentity prefers the explicit path mapping maintained by earlier
// sync passes; the filename convention (<canonical-id>.json) is only the
// bootstrap fallback, and an unparseable name means first sight of a new
// workflow.
func (s *RepositorySyncer) resolveIdentity(ctx context.Context, tenantID uuid.UUID, environmentID, path string) (uuid.UUID, error) {
	mapped, err := s.workflowFiles.GetByPath(ctx, tenantID, environmentID, path)
	if err == nil {
		return mapped.CanonicalID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return uuid.Nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if id, parseErr := uuid.Parse(stem); parseErr == nil {
		return id, nil
	}
	return uuid.New(), nil
}

func (s *RepositorySyncer) ensureCanonical(ctx context.Context, tenantID uuid.UUID, canonicalID uuid.UUID, raw []byte, result *domain.SyncResult) error {
	_, err := s.canonicals.GetByID(ctx, canonicalID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	workflow := domain.NewCanonicalWorkflow(tenantID, displayName(raw))
	workflow.ID = canonicalID
	if err := s.canonicals.Create(ctx, workflow); err != nil {
		return err
	}
	result.AddCreated()
	return nil
}

// ingestSidecar pre-populates environment mappings from the companion
// file. Existing rows always win over bootstrap data, and any failure
// here is per-item: the file itself already synced.
func (s *RepositorySyncer) ingestSidecar(ctx context.Context, tenantID uuid.UUID, canonicalID uuid.UUID, file ports.RepositoryFile, result *domain.SyncResult) {
	var doc sidecarDocument
	if err := json.Unmarshal(file.Sidecar, &doc); err != nil {
		result.AddError(file.Path, fmt.Errorf("sidecar: %w", err))
		return
	}
	if doc.CanonicalWorkflowID != "" {
		if id, err := uuid.Parse(doc.CanonicalWorkflowID); err == nil {
			canonicalID = id
		}
	}

	for environmentID, entry := range doc.Environments {
		if entry.NativeID == "" {
			continue
		}
		_, err := s.mappings.GetByNativeID(ctx, tenantID, environmentID, entry.NativeID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			result.AddError(file.Path, fmt.Errorf("sidecar %s: %w", environmentID, err))
			continue
		}

		mapping := domain.NewEnvironmentMapping(tenantID, environmentID, entry.NativeID)
		mapping.Link(canonicalID, "bootstrap")
		mapping.ContentHash = entry.ContentHash
		mapping.NativeUpdatedAt = entry.LastSeenAt
		if err := s.mappings.Upsert(ctx, mapping); err != nil {
			result.AddError(file.Path, fmt.Errorf("sidecar %s: %w", environmentID, err))
			continue
		}
		log.Printf("RepositorySyncer: bootstrapped mapping %s/%s -> %s", environmentID, entry.NativeID, canonicalID)
	}
}

func displayName(raw []byte) string {
	var def struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		return ""
	}
	return def.Name
}
