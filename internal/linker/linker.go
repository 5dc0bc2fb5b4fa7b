// Package linker associates untracked runtime workflows with existing
// canonical identities purely from fingerprint equality.
package linker

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
)

// AutoLinker is deliberately exact-match-only: a missed auto-link costs a
// manual linking step, but a false positive silently merges two distinct
// workflows under one identity. Any ambiguity leaves the workflow
// UNTRACKED.
type AutoLinker struct {
	gitStates ports.GitStateRepository
	mappings  ports.MappingRepository
}

func NewAutoLinker(gitStates ports.GitStateRepository, mappings ports.MappingRepository) *AutoLinker {
	return &AutoLinker{
		gitStates: gitStates,
		mappings:  mappings,
	}
}

// TryAutoLink returns the canonical id whose git-state hash exactly
// matches contentHash in this (tenant, environment), or nil when no safe
// link exists: no match, more than one match, or the matched canonical id
// already linked to a different native workflow.
func (l *AutoLinker) TryAutoLink(ctx context.Context, tenantID uuid.UUID, environmentID, nativeID, contentHash string) (*uuid.UUID, error) {
	candidates, err := l.gitStates.FindCanonicalIDsByHash(ctx, tenantID, environmentID, contentHash)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		// Not yet committed to the repository for this environment.
		return nil, nil
	}
	if len(candidates) > 1 {
		log.Printf("AutoLinker: hash %s matches %d canonical workflows in %s, leaving %s untracked",
			contentHash, len(candidates), environmentID, nativeID)
		return nil, nil
	}

	canonicalID := candidates[0]

	conflict, err := l.mappings.FindConflicting(ctx, tenantID, environmentID, canonicalID, nativeID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if conflict != nil {
		log.Printf("AutoLinker: canonical %s already mapped to native %s in %s, refusing to link native %s",
			canonicalID, conflict.NativeID, environmentID, nativeID)
		return nil, nil
	}

	return &canonicalID, nil
}
