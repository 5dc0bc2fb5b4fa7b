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

type workflowFileRepository struct {
	db *gorm.DB
}

// NewWorkflowFileRepository creates a new instance of WorkflowFileRepository
func NewWorkflowFileRepository(db *gorm.DB) ports.WorkflowFileRepository {
	return &workflowFileRepository{db: db}
}

func (r *workflowFileRepository) GetByPath(ctx context.Context, tenantID uuid.UUID, environmentID, path string) (*domain.WorkflowFile, error) {
	var file domain.WorkflowFile
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND environment_id = ? AND path = ?", tenantID, environmentID, path).
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *workflowFileRepository) Upsert(ctx context.Context, file *domain.WorkflowFile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "environment_id"}, {Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"canonical_id", "updated_at"}),
		}).
		Create(file).Error
}
