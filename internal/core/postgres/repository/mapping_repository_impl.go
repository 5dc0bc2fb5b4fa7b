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

type mappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository creates a new instance of MappingRepository
func NewMappingRepository(db *gorm.DB) ports.MappingRepository {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) GetByNativeID(ctx context.Context, tenantID uuid.UUID, environmentID, nativeID string) (*domain.EnvironmentMapping, error) {
	var mapping domain.EnvironmentMapping
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND environment_id = ? AND native_id = ?", tenantID, environmentID, nativeID).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *mappingRepository) GetByCanonicalID(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID) (*domain.EnvironmentMapping, error) {
	var mapping domain.EnvironmentMapping
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND environment_id = ? AND canonical_id = ?", tenantID, environmentID, canonicalID).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *mappingRepository) FindConflicting(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID, excludeNativeID string) (*domain.EnvironmentMapping, error) {
	var mapping domain.EnvironmentMapping
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND environment_id = ? AND canonical_id = ? AND native_id != ? AND status != ?",
			tenantID, environmentID, canonicalID, excludeNativeID, domain.StatusMissing).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// Upsert relies on the (tenant, environment, native id) unique index for
// atomicity under concurrent item workers.
func (r *mappingRepository) Upsert(ctx context.Context, mapping *domain.EnvironmentMapping) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "environment_id"}, {Name: "native_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"canonical_id", "content_hash", "native_updated_at", "status",
				"cached_payload", "linked_at", "linked_by", "updated_at",
			}),
		}).
		Create(mapping).Error
}

// MarkMissingExcept is the sweep phase of environment sync: anything the
// pass did not see was known and is now gone. IGNORED and DELETED rows
// keep their overriding status; native and canonical ids are preserved
// for reappearance handling.
func (r *mappingRepository) MarkMissingExcept(ctx context.Context, tenantID uuid.UUID, environmentID string, seenNativeIDs []string) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&domain.EnvironmentMapping{}).
		Where("tenant_id = ? AND environment_id = ? AND status NOT IN ?",
			tenantID, environmentID,
			[]domain.MappingStatus{domain.StatusMissing, domain.StatusIgnored, domain.StatusDeleted})
	if len(seenNativeIDs) > 0 {
		query = query.Where("native_id NOT IN ?", seenNativeIDs)
	}
	result := query.Update("status", domain.StatusMissing)
	return result.RowsAffected, result.Error
}

// SetStatus applies administrative overrides. DELETED is terminal: the
// guard refuses to move a row out of it.
func (r *mappingRepository) SetStatus(ctx context.Context, tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID, status domain.MappingStatus) error {
	query := r.db.WithContext(ctx).
		Model(&domain.EnvironmentMapping{}).
		Where("tenant_id = ? AND environment_id = ? AND canonical_id = ?", tenantID, environmentID, canonicalID)
	if status != domain.StatusDeleted {
		query = query.Where("status != ?", domain.StatusDeleted)
	}
	result := query.Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
