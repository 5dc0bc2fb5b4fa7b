package sync

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
	"canonsync/internal/identity"
	"canonsync/internal/linker"
)

// EnvironmentSyncer reconciles the runtime side: it walks every workflow
// the runtime reports, short-circuits unchanged ones by native timestamp,
// auto-links untracked ones, and sweeps everything unseen to MISSING.
type EnvironmentSyncer struct {
	runtime       ports.RuntimeReader
	mappings      ports.MappingRepository
	autoLinker    *linker.AutoLinker
	fingerprinter *identity.Fingerprinter
	classes       map[string]domain.EnvironmentClass
	opts          Options
}

func NewEnvironmentSyncer(
	runtime ports.RuntimeReader,
	mappings ports.MappingRepository,
	autoLinker *linker.AutoLinker,
	fingerprinter *identity.Fingerprinter,
	classes map[string]domain.EnvironmentClass,
	opts Options,
) *EnvironmentSyncer {
	return &EnvironmentSyncer{
		runtime:       runtime,
		mappings:      mappings,
		autoLinker:    autoLinker,
		fingerprinter: fingerprinter,
		classes:       classes,
		opts:          opts.withDefaults(),
	}
}

func (s *EnvironmentSyncer) class(environmentID string) domain.EnvironmentClass {
	if c, ok := s.classes[environmentID]; ok {
		return c
	}
	return domain.EnvironmentObservational
}

func (s *EnvironmentSyncer) Run(ctx context.Context, tenantID uuid.UUID, environmentID string) (*domain.SyncResult, error) {
	var instances []ports.RuntimeWorkflow
	err := withRetry(ctx, s.opts, "runtime listing", func(ctx context.Context) error {
		var listErr error
		instances, listErr = s.runtime.List(ctx, tenantID, environmentID)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("environment sync: list %s: %w", environmentID, err)
	}

	// Everything in the listing counts as seen, even items that fail
	// below: a processing error must not demote a live workflow to
	// MISSING.
	seen := make([]string, 0, len(instances))
	for _, inst := range instances {
		seen = append(seen, inst.NativeID)
	}

	result := &domain.SyncResult{}
	for _, batch := range batches(instances, s.opts.BatchSize) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Concurrency)
		for _, inst := range batch {
			g.Go(func() error {
				return s.processInstance(gctx, tenantID, environmentID, inst, result)
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}
	}

	swept, err := s.mappings.MarkMissingExcept(ctx, tenantID, environmentID, seen)
	if err != nil {
		return result, fmt.Errorf("%w: missing sweep for %s: %v", domain.ErrStorageUnavailable, environmentID, err)
	}
	result.AddMissing(int(swept))

	return result, nil
}

func (s *EnvironmentSyncer) processInstance(ctx context.Context, tenantID uuid.UUID, environmentID string, inst ports.RuntimeWorkflow, result *domain.SyncResult) error {
	mapping, err := s.mappings.GetByNativeID(ctx, tenantID, environmentID, inst.NativeID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		result.AddFailed(inst.NativeID, err)
		return nil
	}

	if mapping != nil {
		switch mapping.Status {
		case domain.StatusDeleted, domain.StatusIgnored:
			// Administrative overrides win over anything the runtime
			// reports.
			result.AddSkipped()
			return nil
		case domain.StatusMissing:
			// Reappearance: always reprocess, even with an unchanged
			// native timestamp.
		default:
			if sameInstant(mapping.NativeUpdatedAt, inst.UpdatedAt) {
				result.AddSkipped()
				return nil
			}
		}
	}

	normalized, err := identity.Normalize(inst.Definition)
	if err != nil {
		result.AddFailed(inst.NativeID, err)
		return nil
	}

	var canonicalID *uuid.UUID
	if mapping != nil {
		canonicalID = mapping.CanonicalID
	}
	hash, warning, err := s.fingerprinter.Fingerprint(ctx, normalized, canonicalID)
	if err != nil {
		result.AddFailed(inst.NativeID, err)
		return nil
	}
	unresolvedCollision := false
	if warning != nil {
		warning.NativeID = &inst.NativeID
		unresolvedCollision = !warning.Resolved
		result.AddCollision(*warning)
	}

	isNew := mapping == nil
	if isNew {
		mapping = domain.NewEnvironmentMapping(tenantID, environmentID, inst.NativeID)
	}
	previousStatus := mapping.Status

	if mapping.CanonicalID == nil && !unresolvedCollision {
		linked, err := s.autoLinker.TryAutoLink(ctx, tenantID, environmentID, inst.NativeID, hash)
		if err != nil {
			result.AddFailed(inst.NativeID, err)
			return nil
		}
		if linked != nil {
			mapping.Link(*linked, "auto-linker")
		}
	} else if unresolvedCollision {
		// An unresolved collision means this hash is shared by two
		// different payloads. Linking on it would merge distinct
		// workflows under one identity, so the mapping stays untracked
		// for manual review.
		log.Printf("EnvironmentSyncer: skipping auto-link for %s/%s, hash %s has an unresolved collision", environmentID, inst.NativeID, hash)
	}

	in := domain.StatusInput{
		CanonicalID:      mapping.CanonicalID,
		NativeID:         &inst.NativeID,
		PresentInRuntime: true,
	}
	if !in.Consistent() {
		log.Printf("EnvironmentSyncer: inconsistent status inputs for %s/%s, defaulting to UNTRACKED", environmentID, inst.NativeID)
	}
	mapping.Status = domain.ResolveStatus(in)

	mapping.ContentHash = hash
	mapping.NativeUpdatedAt = inst.UpdatedAt
	if s.class(environmentID) == domain.EnvironmentFull {
		mapping.CachedPayload = datatypes.JSON(inst.Definition)
	}

	if err := s.mappings.Upsert(ctx, mapping); err != nil {
		return fmt.Errorf("%w: mapping %s/%s: %v", domain.ErrStorageUnavailable, environmentID, inst.NativeID, err)
	}

	if isNew {
		result.AddCreated()
	}
	if mapping.Status != previousStatus || isNew {
		switch mapping.Status {
		case domain.StatusLinked:
			result.AddLinked()
		case domain.StatusUntracked:
			result.AddUntracked()
		}
	}
	result.AddProcessed()
	return nil
}
