package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
)

type gitStateRepository struct {
	db *gorm.DB
}

// NewGitStateRepository creates a new instance of GitStateRepository
func NewGitStateRepository(db *gorm.DB) ports.GitStateRepository {
	return &gitStateRepository{db: db}
}

func (r *gitStateRepository) Get(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID) (*domain.GitState, error) {
	var state domain.GitState
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND environment_id = ? AND canonical_id = ?", tenantID, environmentID, canonicalID).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Upsert relies on the composite unique index so two concurrent syncs
// cannot produce divergent rows for the same key.
func (r *gitStateRepository) Upsert(ctx context.Context, state *domain.GitState) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "environment_id"}, {Name: "canonical_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"path", "commit_ref", "content_hash", "last_sync_at", "updated_at",
			}),
		}).
		Create(state).Error
}

func (r *gitStateRepository) FindCanonicalIDsByHash(ctx context.Context, tenantID uuid.UUID, environmentID, contentHash string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&domain.GitState{}).
		Where("tenant_id = ? AND environment_id = ? AND content_hash = ?", tenantID, environmentID, contentHash).
		Pluck("canonical_id", &ids).Error
	return ids, err
}
